package api

import "github.com/gin-gonic/gin"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: msg})
}
