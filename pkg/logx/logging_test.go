package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(b)
}

func TestServiceWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})

	log.With(String("comp", "test")).Info("hello sink", Int("n", 7))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := readLog(t, path)
	for _, want := range []string{"hello sink", `"comp":"test"`, `"n":7`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestLevelFiltersBelow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})

	log.Info("quiet")
	log.Warn("loud")
	_ = svc.Close()

	out := readLog(t, path)
	if strings.Contains(out, "quiet") {
		t.Fatal("info event leaked past warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Fatal("warn event missing")
	}
}

func TestApplySwapsSinksLive(t *testing.T) {
	first := filepath.Join(t.TempDir(), "first.log")
	second := filepath.Join(t.TempDir(), "second.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})

	log.Info("before swap")
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	log.Info("after swap")
	_ = svc.Close()

	if out := readLog(t, first); !strings.Contains(out, "before swap") || strings.Contains(out, "after swap") {
		t.Fatalf("first sink = %q", out)
	}
	if out := readLog(t, second); !strings.Contains(out, "after swap") {
		t.Fatalf("second sink = %q", out)
	}
}

func TestZeroValueLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger not reported as zero")
	}
	l.Info("discarded")
	l.With(String("k", "v")).Error("discarded")

	if Nop().IsZero() {
		t.Fatal("Nop must not look like the zero logger")
	}
	Nop().Warn("discarded")
}
