package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/alert"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/api"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/config"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/eventbus"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/observability/pprof"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/schedule"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/storage"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// App wires the config manager, registry, scheduler, dispatch pipeline and
// the HTTP surface into one process.
type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store storage.Store
	reg   *subscription.Registry
	pipe  *dispatch.Pipeline
	sched *schedule.Scheduler
	core  *schedule.Supervisor
	srv   *api.Server
	alert *alert.Notifier
	pprof *pprof.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errOnce sync.Once
	errCh   chan struct{}
	err     error
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.VAPID.PublicKey) == "" || strings.TrimSpace(cfg.VAPID.PrivateKey) == "" {
		return nil, fmt.Errorf("vapid.public_key and vapid.private_key are required")
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	reg := subscription.NewRegistry(store, log.With(logx.String("comp", "registry")))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := dispatch.NewClient(dispatch.ClientConfig{
		VAPIDPublicKey:  cfg.VAPID.PublicKey,
		VAPIDPrivateKey: cfg.VAPID.PrivateKey,
		Subscriber:      cfg.VAPID.Subscriber,
		TTL:             cfg.Dispatch.TTLSeconds,
		Timeout:         dcfg.SendTimeout,
	}, log.With(logx.String("comp", "webpush")))
	pipe := dispatch.NewPipeline(dcfg, client, log.With(logx.String("comp", "dispatch")), bus)

	defaults, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := schedule.NewScheduler(
		schedule.Planner{DefaultTimezone: cfg.Scheduler.DefaultTimezone},
		reg, pipe, mapMessages(cfg),
		log.With(logx.String("comp", "scheduler")), bus,
	)
	core := schedule.NewSupervisor(reg, sched, defaults,
		log.With(logx.String("comp", "core")), bus)

	scfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	handler := api.NewHandler(core, statusView{reg: reg, sched: sched, pipe: pipe},
		cfg.VAPID.PublicKey, log.With(logx.String("comp", "http")))
	srv := api.NewServer(scfg, handler, log.With(logx.String("comp", "http")))

	alerter, err := alert.New(mapAlertConfig(cfg), bus, log.With(logx.String("comp", "alerts")))
	if err != nil {
		return nil, err
	}

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   store,
		reg:     reg,
		pipe:    pipe,
		sched:   sched,
		core:    core,
		srv:     srv,
		alert:   alerter,
		pprof:   pprofSvc,
		errCh:   make(chan struct{}),
	}, nil
}

// Done is closed when a fatal error occurs (e.g. the listener fails).
func (a *App) Done() <-chan struct{} { return a.errCh }

func (a *App) Err() error { return a.err }

func (a *App) fatal(err error) {
	a.errOnce.Do(func() {
		a.err = err
		close(a.errCh)
	})
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.pipe.Start(runCtx)
	a.sched.Start(runCtx)
	// Rebuild schedules from persisted state before accepting traffic, so a
	// restart re-arms every surviving recipient.
	a.core.Bootstrap(runCtx)
	a.alert.Start(runCtx)
	if err := a.pprof.Start(); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.srv.Run(); err != nil {
			a.fatal(fmt.Errorf("http server: %w", err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.apply(cfg)
		}
	}
}

// apply pushes a validated config into the running components. Listener
// address, VAPID keys and the storage driver need a restart; everything else
// takes effect live.
func (a *App) apply(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if dcfg, err := mapDispatchConfig(cfg); err == nil {
		a.pipe.Apply(dcfg)
	} else {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	}

	a.srv.SetAdminToken(cfg.Server.AdminToken)

	a.sched.Apply(schedule.Planner{DefaultTimezone: cfg.Scheduler.DefaultTimezone}, mapMessages(cfg))

	if defs, err := mapSchedulerConfig(cfg); err == nil {
		a.core.Apply(defs)
	} else {
		a.log.Warn("invalid scheduler config; keeping previous defaults", logx.Err(err))
	}

	// Re-plan everything so new defaults and texts reach existing recipients.
	replanned := 0
	for _, rec := range a.reg.All() {
		if err := a.sched.Schedule(rec.ID); err != nil {
			a.log.Warn("replan failed", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		replanned++
	}

	a.log.Info("config reloaded", logx.Int("replanned", replanned))
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	a.sched.Stop(ctx)
	a.pipe.Stop(ctx)
	a.alert.Stop()
	a.pprof.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// statusView aggregates the pieces the admin status endpoint reads.
type statusView struct {
	reg   *subscription.Registry
	sched *schedule.Scheduler
	pipe  *dispatch.Pipeline
}

func (v statusView) Len() int { return v.reg.Len() }

func (v statusView) ArmedAll() map[string]schedule.EntryStatus { return v.sched.ArmedAll() }

func (v statusView) Snapshot() []dispatch.HistoryItem { return v.pipe.Snapshot() }
