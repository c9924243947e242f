package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/eventbus"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrStopped   = errors.New("dispatch pipeline stopped")
)

// Job is one delivery attempt flowing through the pipeline.
//
// OnResult runs on the worker goroutine after classification; the scheduler
// uses it to prune permanently-gone recipients. It may be nil.
type Job struct {
	RecordID string
	Kind     string // "launch", "daily" or "manual"
	Sub      webpush.Subscription
	Payload  []byte
	OnResult func(ctx context.Context, outcome Outcome)
}

// PipelineConfig controls the async send pipeline.
type PipelineConfig struct {
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
}

// HistoryItem is one completed dispatch attempt, kept for the status surface.
type HistoryItem struct {
	At       time.Time `json:"at"`
	RecordID string    `json:"record_id"`
	Kind     string    `json:"kind"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
}

// Pipeline is a queue + worker pool in front of the Sender.
//
// Trigger callbacks enqueue and return immediately, so a hung network call
// for one recipient never stalls arming or firing for any other recipient.
type Pipeline struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus

	cfg     PipelineConfig
	limiter *rate.Limiter

	queue  chan Job
	runCtx context.Context // set by Start; Apply uses it when regrowing the pool
	wg     sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func NewPipeline(cfg PipelineConfig, sender Sender, log logx.Logger, bus eventbus.Bus) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{log: log, sender: sender, bus: bus}
	p.applyLocked(cfg)
	return p
}

func (p *Pipeline) Apply(cfg PipelineConfig) {
	p.mu.Lock()
	p.applyLocked(cfg)
	p.mu.Unlock()
}

func (p *Pipeline) applyLocked(cfg PipelineConfig) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	resize := p.queue != nil && (cfg.Workers != p.cfg.Workers || cfg.QueueSize != p.cfg.QueueSize)
	p.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)

	if resize {
		// Swap in a fresh queue and pool. Closing the old queue lets the old
		// workers drain what was already enqueued and exit, so no job is lost.
		old := p.queue
		p.queue = make(chan Job, cfg.QueueSize)
		p.spawnLocked()
		close(old)
		p.log.Info("dispatch pool resized", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
	}
}

func (p *Pipeline) spawnLocked() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(p.runCtx, p.queue)
	}
}

// Start is idempotent.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil {
		return
	}
	p.runCtx = ctx
	p.queue = make(chan Job, p.cfg.QueueSize)
	p.spawnLocked()
	p.log.Info("dispatch pipeline started", logx.Int("workers", p.cfg.Workers))
}

// Stop drains the queue best-effort until ctx expires.
func (p *Pipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	q := p.queue
	p.queue = nil
	p.mu.Unlock()
	if q == nil {
		return
	}
	close(q)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	p.log.Info("dispatch pipeline stopped")
}

// Enqueue hands a job to the worker pool without blocking.
func (p *Pipeline) Enqueue(j Job) error {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return ErrStopped
	}
	select {
	case q <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Snapshot returns recent dispatch attempts, newest last.
func (p *Pipeline) Snapshot() []HistoryItem {
	p.hmu.Lock()
	out := append([]HistoryItem(nil), p.history...)
	p.hmu.Unlock()
	return out
}

func (p *Pipeline) workerLoop(ctx context.Context, q <-chan Job) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			p.execOne(ctx, j)
		}
	}
}

func (p *Pipeline) execOne(ctx context.Context, j Job) {
	p.mu.Lock()
	lim := p.limiter
	timeout := p.cfg.SendTimeout
	p.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	outcome, err := p.sender.Send(callCtx, j.Sub, j.Payload)
	cancel()

	item := HistoryItem{At: time.Now(), RecordID: j.RecordID, Kind: j.Kind, Outcome: outcome.String()}
	if err != nil {
		item.Error = err.Error()
	}
	p.appendHistory(item)

	switch outcome {
	case Delivered:
		p.log.Debug("dispatch ok", logx.String("id", j.RecordID), logx.String("kind", j.Kind))
		p.publish(eventbus.TypeDispatchSent, j, "")
	case Retryable:
		p.log.Warn("dispatch failed (transient)", logx.String("id", j.RecordID), logx.String("kind", j.Kind), logx.Err(err))
		p.publish(eventbus.TypeDispatchRetryable, j, item.Error)
	case Gone:
		p.log.Info("endpoint gone", logx.String("id", j.RecordID), logx.String("kind", j.Kind))
	}

	if j.OnResult != nil {
		j.OnResult(ctx, outcome)
	}
}

func (p *Pipeline) appendHistory(item HistoryItem) {
	p.hmu.Lock()
	p.history = append(p.history, item)
	if len(p.history) > 300 {
		p.history = p.history[len(p.history)-300:]
	}
	p.hmu.Unlock()
}

func (p *Pipeline) publish(typ string, j Job, errStr string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: DispatchEvent{
		RecordID: j.RecordID,
		Kind:     j.Kind,
		Error:    errStr,
	}})
}

// DispatchEvent is emitted on the event bus for delivery lifecycle events.
type DispatchEvent struct {
	RecordID string `json:"record_id"`
	Kind     string `json:"kind"`
	Error    string `json:"error,omitempty"`
}
