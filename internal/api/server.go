package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// ServerConfig carries the listener settings and the admin bearer token.
type ServerConfig struct {
	Addr         string
	StaticDir    string
	AdminToken   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *ServerConfig) withDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

type Server struct {
	cfg   ServerConfig
	srv   *http.Server
	log   logx.Logger
	token atomic.Pointer[string]
}

func NewServer(cfg ServerConfig, h *Handler, log logx.Logger) *Server {
	cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Server{cfg: cfg, log: log}
	s.token.Store(&cfg.AdminToken)

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(requestLog(log), gin.Recovery())

	apiGroup := e.Group("/api")
	apiGroup.POST("/subscribe", h.Subscribe)
	apiGroup.POST("/unsubscribe", h.Unsubscribe)
	apiGroup.GET("/vapid-public-key", h.VAPIDPublicKey)

	admin := apiGroup.Group("", s.bearerAuth)
	admin.POST("/notify", h.Notify)
	admin.GET("/status", h.StatusReport)

	if cfg.StaticDir != "" {
		e.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      e,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// SetAdminToken swaps the bearer token at runtime (config hot-reload).
func (s *Server) SetAdminToken(token string) {
	s.token.Store(&token)
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// bearerAuth guards admin routes. An empty configured token disables the
// routes entirely rather than leaving them open.
func (s *Server) bearerAuth(c *gin.Context) {
	token := ""
	if p := s.token.Load(); p != nil {
		token = *p
	}
	if token == "" {
		fail(c, http.StatusForbidden, "admin api disabled")
		return
	}
	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if got != token {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	c.Next()
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			return
		}
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
