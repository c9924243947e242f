package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// fileStore keeps the whole subscription map in one JSON document.
//
// The file is a mapping of id -> record, indented so operators can hand-edit
// it for recovery. Writes go through a temp file + rename so a crash mid-save
// never leaves a truncated snapshot. A missing file reads as an empty map.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (map[string]subscription.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]subscription.Record{}, nil
		}
		return map[string]subscription.Record{}, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]subscription.Record{}, nil
	}

	var recs map[string]subscription.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return map[string]subscription.Record{}, err
	}
	if recs == nil {
		recs = map[string]subscription.Record{}
	}
	return recs, nil
}

func (s *fileStore) Save(ctx context.Context, recs map[string]subscription.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
