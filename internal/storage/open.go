package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and the server runs
// in-memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API consumed by the subscription registry.
type Store interface {
	Load(ctx context.Context) (map[string]subscription.Record, error)
	Save(ctx context.Context, recs map[string]subscription.Record) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
