package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

const (
	debounceDelay   = 250 * time.Millisecond
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
	validateTimeout = 5 * time.Second
)

// Manager loads the config file, keeps the committed snapshot, and fans out
// validated reloads to subscribers while Watch runs.
type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash [sha256.Size]byte

	// subsMu guards subs and serializes publish against Unsubscribe closing
	// a channel mid-send.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs a hook Watch runs before committing a reload.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toJSON(m.path, raw)
	if err != nil {
		return nil, err
	}
	return decodeStrict(jb)
}

func decodeStrict(jb []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	switch err := dec.Decode(&struct{}{}); err {
	case io.EOF:
		return &cfg, nil
	case nil:
		return nil, fmt.Errorf("invalid config: trailing data")
	default:
		return nil, err
	}
}

// Load parses the file and commits the result.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = snapshotHash(cfg)
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func snapshotHash(cfg *Config) [sha256.Size]byte {
	if cfg == nil {
		return [sha256.Size]byte{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(b)
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if !offer(ch, cfg) && !m.log.IsZero() {
			m.log.Debug("config update dropped (subscriber slow)")
		}
	}
}

// offer delivers cfg without blocking. When the buffer is full it evicts
// the oldest pending snapshot so the subscriber always sees the newest.
func offer(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// reload re-parses the file and, if the content changed and validates,
// commits and publishes it.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil || cfg == nil {
		if !m.log.IsZero() {
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		}
		return
	}

	h := snapshotHash(cfg)
	m.mu.RLock()
	unchanged := h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			}
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	if !m.log.IsZero() {
		m.log.Info("config reloaded", logx.String("path", m.path))
	}
}

// Watch follows the config file until ctx is done, recreating the watcher
// with backoff when it breaks. Events are debounced so editors that write
// in several steps trigger one reload.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() { m.reload(ctx) })
	}

	backoff := watchBackoffMin
	for ctx.Err() == nil {
		w, err := newDirWatcher(dir)
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			}
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, watchBackoffMax)
			continue
		}
		backoff = watchBackoffMin

		m.pump(ctx, w, file, schedule)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}

		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", backoff))
		}
		if !sleep(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, watchBackoffMax)
	}
	return nil
}

// pump consumes watcher events until the watcher breaks or ctx ends.
func (m *Manager) pump(ctx context.Context, w *fsnotify.Watcher, file string, schedule func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// Match by basename so absolute and relative paths both work.
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				schedule()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return
			}
			if werr == nil {
				continue
			}
			if !m.log.IsZero() {
				m.log.Warn("config watch error", logx.Err(werr))
			}
			if strings.Contains(strings.ToLower(werr.Error()), "closed") {
				return
			}
		}
	}
}

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
