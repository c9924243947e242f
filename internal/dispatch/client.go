package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Sender delivers one notification to one endpoint and classifies the result.
// Implementations must not mutate subscription state; pruning on Gone is the
// caller's responsibility so deletion and trigger teardown stay together.
type Sender interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) (Outcome, error)
}

// Payload is the notification body shown by the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

func (p Payload) Marshal() []byte {
	b, _ := json.Marshal(p)
	return b
}

// ClientConfig holds the VAPID signing material and transport knobs.
type ClientConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact address; webpush-go adds mailto: automatically
	TTL             int    // seconds the push service may queue the message
	Timeout         time.Duration
}

// Client sends Web Push messages signed with VAPID keys.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * 60 * 24
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

func (c *Client) Send(ctx context.Context, sub webpush.Subscription, payload []byte) (Outcome, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		HTTPClient:      c.http,
		Subscriber:      c.cfg.Subscriber,
		VAPIDPublicKey:  c.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: c.cfg.VAPIDPrivateKey,
		TTL:             c.cfg.TTL,
	})
	if err != nil {
		return Retryable, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivered, nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return Gone, nil
	default:
		// Keep a short excerpt of the body for the log line.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Retryable, fmt.Errorf("push service returned %d: %s", resp.StatusCode, string(b))
	}
}
