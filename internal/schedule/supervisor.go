package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/eventbus"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Defaults are applied to subscribe requests that omit schedule fields.
type Defaults struct {
	LaunchTime string
	DailyTimes []string
	Timezone   string
}

// Supervisor boots the scheduling core and owns the add/remove operations the
// request layer calls into.
type Supervisor struct {
	log   logx.Logger
	reg   *subscription.Registry
	sched *Scheduler
	bus   eventbus.Bus

	mu       sync.Mutex
	defaults Defaults
}

func NewSupervisor(reg *subscription.Registry, sched *Scheduler, defaults Defaults, log logx.Logger, bus eventbus.Bus) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{log: log, reg: reg, sched: sched, bus: bus, defaults: defaults}
}

// Apply swaps the subscribe-time defaults at runtime (config hot-reload).
// Existing records keep their own schedules.
func (sv *Supervisor) Apply(d Defaults) {
	sv.mu.Lock()
	sv.defaults = d
	sv.mu.Unlock()
}

// Bootstrap loads every persisted record and (re)arms its schedule.
// A failure planning one record is logged and must not prevent the rest from
// being scheduled.
func (sv *Supervisor) Bootstrap(ctx context.Context) int {
	n := sv.reg.Load(ctx)
	scheduled := 0
	for _, rec := range sv.reg.All() {
		if err := sv.sched.Schedule(rec.ID); err != nil {
			sv.log.Warn("bootstrap: scheduling failed", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		scheduled++
	}
	sv.log.Info("bootstrap complete", logx.Int("loaded", n), logx.Int("scheduled", scheduled))
	return scheduled
}

// Add registers a subscription and arms its schedule.
//
// Subscriptions dedupe by endpoint: re-subscribing an already-known endpoint
// updates that endpoint's record in place, reusing its id, instead of minting
// a second concurrent schedule for the same physical endpoint.
func (sv *Supervisor) Add(ctx context.Context, sub webpush.Subscription, launchTime string, dailyTimes []string, timezone string) (subscription.Record, error) {
	sv.mu.Lock()
	def := sv.defaults
	sv.mu.Unlock()

	if launchTime = strings.TrimSpace(launchTime); launchTime == "" {
		launchTime = def.LaunchTime
	}
	if len(dailyTimes) == 0 {
		dailyTimes = def.DailyTimes
	}
	if timezone = strings.TrimSpace(timezone); timezone == "" {
		timezone = def.Timezone
	}

	rec := subscription.NewRecord(sub, launchTime, dailyTimes, timezone, time.Now())
	if err := rec.Validate(); err != nil {
		return subscription.Record{}, err
	}

	rec, updated := sv.reg.Upsert(ctx, rec)
	if err := sv.sched.Schedule(rec.ID); err != nil {
		return rec, err
	}

	sv.log.Info("subscription added", logx.String("id", rec.ID), logx.Int("daily", len(rec.DailyTimes)), logx.Bool("updated", updated))
	if sv.bus != nil {
		sv.bus.Publish(eventbus.Event{Type: eventbus.TypeSubscriptionAdded, Data: dispatch.DispatchEvent{RecordID: rec.ID}})
	}
	return rec, nil
}

// RemoveByID unschedules and deletes a record. Unknown ids are a no-op
// success, not an error.
func (sv *Supervisor) RemoveByID(ctx context.Context, id string) bool {
	sv.sched.Unschedule(id)
	removed := sv.reg.Delete(ctx, id)
	if removed {
		sv.log.Info("subscription removed", logx.String("id", id))
		if sv.bus != nil {
			sv.bus.Publish(eventbus.Event{Type: eventbus.TypeSubscriptionRemoved, Data: dispatch.DispatchEvent{RecordID: id}})
		}
	}
	return removed
}

// RemoveByEndpoint resolves the endpoint's record and removes it.
func (sv *Supervisor) RemoveByEndpoint(ctx context.Context, endpoint string) bool {
	rec, ok := sv.reg.ByEndpoint(endpoint)
	if !ok {
		return false
	}
	return sv.RemoveByID(ctx, rec.ID)
}

// SendNow dispatches an immediate notification to one recipient.
func (sv *Supervisor) SendNow(ctx context.Context, id string, p dispatch.Payload) error {
	_ = ctx
	return sv.sched.SendNow(id, p)
}

// SendAll dispatches an immediate notification to every recipient and returns
// the number of enqueued sends.
func (sv *Supervisor) SendAll(ctx context.Context, p dispatch.Payload) int {
	_ = ctx
	sent := 0
	for _, rec := range sv.reg.All() {
		if err := sv.sched.SendNow(rec.ID, p); err != nil {
			sv.log.Warn("broadcast enqueue failed", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		sent++
	}
	return sent
}
