package api

import (
	"context"
	"errors"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/schedule"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	"github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Service is the slice of the scheduling core the HTTP layer needs.
type Service interface {
	Add(ctx context.Context, sub webpush.Subscription, launchTime string, dailyTimes []string, timezone string) (subscription.Record, error)
	RemoveByID(ctx context.Context, id string) bool
	RemoveByEndpoint(ctx context.Context, endpoint string) bool
	SendNow(ctx context.Context, id string, p dispatch.Payload) error
	SendAll(ctx context.Context, p dispatch.Payload) int
}

// Status reports runtime counters for the admin status endpoint.
type Status interface {
	Len() int
	ArmedAll() map[string]schedule.EntryStatus
	Snapshot() []dispatch.HistoryItem
}

type Handler struct {
	svc         Service
	status      Status
	validate    *validator.Validate
	vapidPublic string
	log         logx.Logger
}

func NewHandler(svc Service, status Status, vapidPublic string, log logx.Logger) *Handler {
	return &Handler{
		svc:         svc,
		status:      status,
		validate:    validator.New(),
		vapidPublic: vapidPublic,
		log:         log,
	}
}

// Subscribe registers a browser push subscription and arms its reminders.
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	sub := webpush.Subscription{
		Endpoint: req.Subscription.Endpoint,
		Keys: webpush.Keys{
			P256dh: req.Subscription.Keys.P256dh,
			Auth:   req.Subscription.Keys.Auth,
		},
	}
	rec, err := h.svc.Add(c.Request.Context(), sub, req.LaunchTime, req.DailyTimes, req.Timezone)
	if err != nil {
		h.log.Warn("subscribe rejected", logx.Err(err))
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, http.StatusCreated, gin.H{"id": rec.ID})
}

// Unsubscribe removes a recipient by id or endpoint. Removing a recipient
// that is already gone succeeds so clients can retry safely.
func (h *Handler) Unsubscribe(c *gin.Context) {
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" && req.Endpoint == "" {
		fail(c, http.StatusBadRequest, "id or endpoint required")
		return
	}

	removed := false
	if req.ID != "" {
		removed = h.svc.RemoveByID(c.Request.Context(), req.ID)
	} else {
		removed = h.svc.RemoveByEndpoint(c.Request.Context(), req.Endpoint)
	}
	ok(c, http.StatusOK, gin.H{"removed": removed})
}

// Notify pushes an ad-hoc message to one recipient or to everyone.
func (h *Handler) Notify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" && !req.All {
		fail(c, http.StatusBadRequest, "id or all required")
		return
	}

	payload := dispatch.Payload{Title: req.Title, Body: req.Body, URL: req.URL}
	if req.All {
		n := h.svc.SendAll(c.Request.Context(), payload)
		ok(c, http.StatusAccepted, gin.H{"queued": n})
		return
	}
	if err := h.svc.SendNow(c.Request.Context(), req.ID, payload); err != nil {
		if errors.Is(err, schedule.ErrUnknownRecipient) {
			fail(c, http.StatusNotFound, "unknown recipient")
			return
		}
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	ok(c, http.StatusAccepted, gin.H{"queued": 1})
}

// VAPIDPublicKey hands the application server key to the landing page.
func (h *Handler) VAPIDPublicKey(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"public_key": h.vapidPublic})
}

// StatusReport summarizes recipients, armed triggers and recent dispatches.
func (h *Handler) StatusReport(c *gin.Context) {
	armed := h.status.ArmedAll()
	ok(c, http.StatusOK, gin.H{
		"recipients": h.status.Len(),
		"armed":      armed,
		"history":    h.status.Snapshot(),
	})
}
