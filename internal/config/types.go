package config

// Config is the full server configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server  ServerConfig  `json:"server"`
	VAPID   VAPIDConfig   `json:"vapid"`
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls trigger behavior (launch + daily reminders).
	Scheduler SchedulerConfig `json:"scheduler"`

	// Dispatch controls the async Web Push send pipeline.
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	Messages MessagesConfig `json:"messages,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Alerts   *AlertsConfig  `json:"alerts,omitempty"`
	Pprof    *PprofConfig   `json:"pprof,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"` // default ":8080"

	// StaticDir is served at "/" (landing page, service worker). Empty disables it.
	StaticDir string `json:"static_dir,omitempty"`

	// AdminToken protects /api/notify and /api/status. Empty disables both.
	AdminToken string `json:"admin_token,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// VAPIDConfig holds the Web Push signing keys.
//
// PublicKey and PrivateKey are required; the server refuses to start without
// them. Subscriber is the contact address reported to push services.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Subscriber string `json:"subscriber,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls trigger planning.
type SchedulerConfig struct {
	// DefaultTimezone is the IANA zone used for records that don't carry one.
	DefaultTimezone string `json:"default_timezone,omitempty"`

	// LaunchTime is the site-wide launch moment ("2006-01-02 15:04", civil
	// time in DefaultTimezone) applied to subscriptions that don't specify
	// their own. Empty means subscribers must bring their own launch_time.
	LaunchTime string `json:"launch_time,omitempty"`

	// DefaultDailyTimes seeds daily_times for subscriptions that omit them.
	DefaultDailyTimes []string `json:"default_daily_times,omitempty"`
}

// DispatchConfig controls the async Web Push pipeline.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 10
//   - timeout: "10s"
//   - ttl_seconds: 86400
type DispatchConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// MessagesConfig holds the notification texts.
type MessagesConfig struct {
	LaunchTitle string `json:"launch_title,omitempty"`
	LaunchBody  string `json:"launch_body,omitempty"`
	DailyTitle  string `json:"daily_title,omitempty"`
	DailyBody   string `json:"daily_body,omitempty"`
	URL         string `json:"url,omitempty"` // deep link opened on click
}

// StorageConfig controls the subscription persistence layer.
//
// Driver values:
//   - "file": human-readable JSON snapshot (default)
//   - "sqlite": SQLite database file (optional build tag)
//   - "none": in-memory only
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AlertsConfig controls optional operator alerts (Telegram).
type AlertsConfig struct {
	Telegram *TelegramAlerts `json:"telegram,omitempty"`
}

type TelegramAlerts struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note: prefer binding to localhost (e.g. "127.0.0.1:6060").
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token   string `json:"token,omitempty"` // required for non-loopback binds
}
