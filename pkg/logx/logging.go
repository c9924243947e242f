package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger writes structured events. A logger handed out by a Service stays
// live across Apply calls; the zero value is a safe no-op.
type Logger struct {
	svc    *Service
	static *zerolog.Logger
	fields []Field
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{static: &zl}
}

func (l Logger) IsZero() bool {
	return l.svc == nil && l.static == nil && len(l.fields) == 0
}

// With returns a logger that adds the given fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	l.fields = merged
	return l
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) active() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.static != nil:
		return *l.static
	}
	return zerolog.Nop()
}

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.active()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if site := callSite(3); site != "" {
		e.Str(zerolog.CallerFieldName, site)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

// callSite reports the caller as file:line, without the directory part.
func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// Service owns the shared sinks. Apply rebuilds them in place so every
// Logger derived from the service picks up the new level and outputs.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File
}

// New builds the logging service and applies cfg immediately.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply swaps level and sinks at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter())
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		path = "./helalink.log"
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
