package subscription

import (
	"errors"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
)

var ErrInvalidSubscription = errors.New("invalid push subscription")

// Record is one subscriber.
//
// The webpush.Subscription is the opaque endpoint descriptor handed to us by
// the browser (endpoint URL + per-endpoint encryption keys). It is compared
// only by endpoint equality and never inspected beyond that.
//
// LaunchTime is a civil timestamp ("2006-01-02 15:04") interpreted in the
// record's Timezone; empty means no one-off launch alert. DailyTimes are
// "HH:MM" entries, one recurring daily reminder each.
type Record struct {
	ID           string               `json:"id"`
	Subscription webpush.Subscription `json:"subscription"`
	LaunchTime   string               `json:"launch_time,omitempty"`
	DailyTimes   []string             `json:"daily_times,omitempty"`
	Timezone     string               `json:"timezone,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`

	// LastSentAt is advisory only; schedules are never derived from it.
	LastSentAt time.Time `json:"last_sent_at,omitempty"`
}

// Endpoint returns the record's network identity.
func (r Record) Endpoint() string { return r.Subscription.Endpoint }

// Validate checks the fields a subscribe request must carry.
// Schedule fields are not validated here: malformed daily times are skipped
// per-entry at planning time and must not reject the whole record.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Subscription.Endpoint) == "" {
		return errors.New("subscription endpoint is required")
	}
	if strings.TrimSpace(r.Subscription.Keys.P256dh) == "" || strings.TrimSpace(r.Subscription.Keys.Auth) == "" {
		return errors.New("subscription keys (p256dh, auth) are required")
	}
	return nil
}

// NewRecord mints a record with a fresh id and creation time.
func NewRecord(sub webpush.Subscription, launchTime string, dailyTimes []string, timezone string, now time.Time) Record {
	return Record{
		ID:           uuid.NewString(),
		Subscription: sub,
		LaunchTime:   strings.TrimSpace(launchTime),
		DailyTimes:   append([]string(nil), dailyTimes...),
		Timezone:     strings.TrimSpace(timezone),
		CreatedAt:    now,
	}
}
