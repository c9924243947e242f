package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/eventbus"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

var (
	ErrNotStarted       = errors.New("scheduler not started")
	ErrUnknownRecipient = errors.New("unknown recipient")
)

// Dispatcher is the async send seam. The production implementation is
// dispatch.Pipeline; tests inject a synchronous fake.
type Dispatcher interface {
	Enqueue(j dispatch.Job) error
}

// Messages holds the notification texts used for scheduled fires.
type Messages struct {
	LaunchTitle string
	LaunchBody  string
	DailyTitle  string
	DailyBody   string
	URL         string
}

func (m Messages) withDefaults() Messages {
	if m.LaunchTitle == "" {
		m.LaunchTitle = "It's launch day!"
	}
	if m.LaunchBody == "" {
		m.LaunchBody = "The wait is over. Tap to see what's live."
	}
	if m.DailyTitle == "" {
		m.DailyTitle = "Launch countdown"
	}
	if m.DailyBody == "" {
		m.DailyBody = "Your daily reminder: launch is getting closer."
	}
	return m
}

// entry is the live set of armed triggers for one record id.
// Entries are destroyed and rebuilt wholesale on every replan; there are no
// partial trigger updates.
type entry struct {
	launch    cron.EntryID
	hasLaunch bool
	daily     []cron.EntryID
}

// EntryStatus is a read-only view of one armed entry.
type EntryStatus struct {
	Launch bool `json:"launch"`
	Daily  int  `json:"daily"`
}

// Scheduler owns every live trigger. All arming and disarming funnels through
// it; store mutation on permanent failure happens here too, so deletion and
// trigger teardown stay together.
type Scheduler struct {
	mu sync.Mutex

	log     logx.Logger
	reg     *subscription.Registry
	planner Planner
	disp    Dispatcher
	bus     eventbus.Bus
	msgs    Messages

	c       *cron.Cron
	entries map[string]*entry

	// now is injectable for tests.
	now func() time.Time
}

func NewScheduler(planner Planner, reg *subscription.Registry, disp Dispatcher, msgs Messages, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:     log,
		reg:     reg,
		planner: planner,
		disp:    disp,
		bus:     bus,
		msgs:    msgs.withDefaults(),
		entries: map[string]*entry{},
		now:     time.Now,
	}
}

// Apply swaps message texts and the default timezone at runtime.
// Existing triggers keep their plan until the next Schedule call.
func (s *Scheduler) Apply(planner Planner, msgs Messages) {
	s.mu.Lock()
	s.planner = planner
	s.msgs = msgs.withDefaults()
	s.mu.Unlock()
}

// Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New()
	s.c.Start()
	s.log.Info("scheduler started")
}

func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]*entry{}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("scheduler stopped")
}

// Schedule tears down any existing entry for id and arms a fresh one from the
// current record. The teardown is unconditional and idempotent, so calling
// Schedule twice in a row can never leave duplicate triggers.
func (s *Scheduler) Schedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}
	s.teardownLocked(id)

	rec, ok := s.reg.Get(id)
	if !ok {
		return nil
	}

	plan := s.planner.Plan(rec, s.now())
	for _, raw := range plan.Skipped {
		s.log.Warn("skipping malformed schedule entry", logx.String("id", id), logx.String("entry", raw))
	}

	e := &entry{}
	if plan.Launch != nil {
		at := *plan.Launch
		e.launch = s.c.Schedule(onceSchedule{at: at}, cron.FuncJob(func() { s.fire(id, "launch") }))
		e.hasLaunch = true
	}
	for _, d := range plan.Daily {
		d := d
		eid := s.c.Schedule(dailySchedule{hour: d.Hour, minute: d.Minute, loc: plan.Location}, cron.FuncJob(func() { s.fire(id, "daily") }))
		e.daily = append(e.daily, eid)
	}
	s.entries[id] = e

	fields := []logx.Field{logx.String("id", id), logx.Int("daily", len(e.daily)), logx.Bool("launch", e.hasLaunch)}
	if plan.Launch != nil {
		fields = append(fields, logx.Time("launch_at", *plan.Launch))
	}
	s.log.Debug("schedule armed", fields...)
	return nil
}

// Unschedule tears down the entry for id without touching the store.
// Store deletion on user-initiated unsubscribe is the caller's responsibility.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	s.teardownLocked(id)
	s.mu.Unlock()
}

// teardownLocked removes every armed trigger for id. No-op when none exist.
func (s *Scheduler) teardownLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if s.c != nil {
		if e.hasLaunch {
			s.c.Remove(e.launch)
		}
		for _, eid := range e.daily {
			s.c.Remove(eid)
		}
	}
	delete(s.entries, id)
}

// Armed reports the live trigger set for id.
func (s *Scheduler) Armed(id string) (EntryStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return EntryStatus{}, false
	}
	return EntryStatus{Launch: e.hasLaunch, Daily: len(e.daily)}, true
}

// ArmedAll returns a snapshot of every live entry, keyed by record id.
func (s *Scheduler) ArmedAll() map[string]EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]EntryStatus, len(s.entries))
	for id, e := range s.entries {
		out[id] = EntryStatus{Launch: e.hasLaunch, Daily: len(e.daily)}
	}
	return out
}

// SendNow dispatches an immediate one-off notification to id, bypassing the
// armed triggers but reusing the same pipeline and pruning semantics.
func (s *Scheduler) SendNow(id string, p dispatch.Payload) error {
	rec, ok := s.reg.Get(id)
	if !ok {
		return ErrUnknownRecipient
	}
	return s.enqueue(rec, "manual", p)
}

// fire runs on the cron goroutine when a trigger goes off.
func (s *Scheduler) fire(id, kind string) {
	rec, ok := s.reg.Get(id)
	if !ok {
		// Record pruned between arming and firing; the stale trigger is gone
		// on the next teardown.
		return
	}

	s.mu.Lock()
	msgs := s.msgs
	s.mu.Unlock()

	var p dispatch.Payload
	switch kind {
	case "launch":
		p = dispatch.Payload{Title: msgs.LaunchTitle, Body: msgs.LaunchBody, URL: msgs.URL, Tag: "launch"}
	default:
		p = dispatch.Payload{Title: msgs.DailyTitle, Body: msgs.DailyBody, URL: msgs.URL, Tag: "daily"}
	}

	if err := s.enqueue(rec, kind, p); err != nil {
		s.log.Warn("dispatch enqueue failed", logx.String("id", id), logx.String("kind", kind), logx.Err(err))
	}
}

func (s *Scheduler) enqueue(rec subscription.Record, kind string, p dispatch.Payload) error {
	id := rec.ID
	return s.disp.Enqueue(dispatch.Job{
		RecordID: id,
		Kind:     kind,
		Sub:      rec.Subscription,
		Payload:  p.Marshal(),
		OnResult: func(ctx context.Context, outcome dispatch.Outcome) {
			switch outcome {
			case dispatch.Gone:
				s.prune(ctx, id)
			case dispatch.Delivered:
				s.reg.TouchLastSent(ctx, id, time.Now())
			}
		},
	})
}

// prune deletes the record, persists, and tears down every remaining trigger
// for id. This is the only failure condition that mutates state.
func (s *Scheduler) prune(ctx context.Context, id string) {
	removed := s.reg.Delete(ctx, id)
	s.Unschedule(id)
	if removed {
		s.log.Info("recipient pruned (endpoint gone)", logx.String("id", id))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchPruned, Data: dispatch.DispatchEvent{RecordID: id}})
		}
	}
}
