package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/alert"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/api"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/config"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/observability/pprof"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/schedule"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/storage"
)

const launchLayout = "2006-01-02 15:04"

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.PipelineConfig, error) {
	timeout, err := config.ParseDurationField("dispatch.timeout", cfg.Dispatch.Timeout)
	if err != nil {
		return dispatch.PipelineConfig{}, err
	}
	if cfg.Dispatch.Workers < 0 {
		return dispatch.PipelineConfig{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if cfg.Dispatch.QueueSize < 0 {
		return dispatch.PipelineConfig{}, fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return dispatch.PipelineConfig{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	return dispatch.PipelineConfig{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: timeout,
	}, nil
}

func mapServerConfig(cfg *config.Config) (api.ServerConfig, error) {
	rt, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	wt, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	it, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	return api.ServerConfig{
		Addr:         cfg.Server.Addr,
		StaticDir:    cfg.Server.StaticDir,
		AdminToken:   cfg.Server.AdminToken,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  it,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (schedule.Defaults, error) {
	if tz := strings.TrimSpace(cfg.Scheduler.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return schedule.Defaults{}, fmt.Errorf("scheduler.default_timezone: invalid %q: %w", tz, err)
		}
	}
	if lt := strings.TrimSpace(cfg.Scheduler.LaunchTime); lt != "" {
		if _, err := time.Parse(launchLayout, lt); err != nil {
			return schedule.Defaults{}, fmt.Errorf("scheduler.launch_time: want %q format: %w", launchLayout, err)
		}
	}
	return schedule.Defaults{
		LaunchTime: cfg.Scheduler.LaunchTime,
		DailyTimes: cfg.Scheduler.DefaultDailyTimes,
		Timezone:   cfg.Scheduler.DefaultTimezone,
	}, nil
}

func mapMessages(cfg *config.Config) schedule.Messages {
	return schedule.Messages{
		LaunchTitle: cfg.Messages.LaunchTitle,
		LaunchBody:  cfg.Messages.LaunchBody,
		DailyTitle:  cfg.Messages.DailyTitle,
		DailyBody:   cfg.Messages.DailyBody,
		URL:         cfg.Messages.URL,
	}
}

func mapAlertConfig(cfg *config.Config) alert.Config {
	if cfg.Alerts == nil || cfg.Alerts.Telegram == nil {
		return alert.Config{}
	}
	t := cfg.Alerts.Telegram
	return alert.Config{Enabled: t.Enabled, Token: t.Token, ChatID: t.ChatID}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	if cfg.Pprof == nil {
		return pprof.Config{}
	}
	return pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr, Token: cfg.Pprof.Token}
}

// validate is the transactional hot-reload gate: a config that fails here is
// rejected without touching the running components.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.VAPID.PublicKey) == "" || strings.TrimSpace(cfg.VAPID.PrivateKey) == "" {
		return fmt.Errorf("vapid.public_key and vapid.private_key are required")
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
