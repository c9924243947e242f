package app

import (
	"testing"
	"time"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		VAPID: config.VAPIDConfig{PublicKey: "pub", PrivateKey: "priv"},
	}
}

func TestValidateRequiresVAPIDKeys(t *testing.T) {
	cfg := baseConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}
	cfg.VAPID.PrivateKey = ""
	if err := validate(cfg); err == nil {
		t.Fatal("missing private key accepted")
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := baseConfig()
	cfg.Server.ReadTimeout = "soonish"
	if err := validate(cfg); err == nil {
		t.Fatal("bad server duration accepted")
	}

	cfg = baseConfig()
	cfg.Dispatch.Timeout = "-5s"
	if err := validate(cfg); err == nil {
		t.Fatal("negative dispatch timeout accepted")
	}
}

func TestValidateRejectsBadScheduler(t *testing.T) {
	cfg := baseConfig()
	cfg.Scheduler.DefaultTimezone = "Mars/Olympus"
	if err := validate(cfg); err == nil {
		t.Fatal("bad timezone accepted")
	}

	cfg = baseConfig()
	cfg.Scheduler.LaunchTime = "next tuesday"
	if err := validate(cfg); err == nil {
		t.Fatal("bad launch time accepted")
	}
}

func TestMapStorageConfig(t *testing.T) {
	cfg := baseConfig()
	if _, enabled, err := mapStorageConfig(cfg); err != nil || enabled {
		t.Fatalf("nil storage: enabled=%v err=%v", enabled, err)
	}

	cfg.Storage = &config.StorageConfig{Driver: "none"}
	if _, enabled, _ := mapStorageConfig(cfg); enabled {
		t.Fatal("driver none must disable storage")
	}

	cfg.Storage = &config.StorageConfig{Driver: "SQLite", Path: "./x.db", BusyTimeout: "3s"}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		t.Fatalf("enabled=%v err=%v", enabled, err)
	}
	if sc.Driver != "sqlite" || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("mapped = %+v", sc)
	}
}

func TestMapServerConfigDurations(t *testing.T) {
	cfg := baseConfig()
	cfg.Server.Addr = ":9000"
	cfg.Server.ReadTimeout = "7s"
	sc, err := mapServerConfig(cfg)
	if err != nil {
		t.Fatalf("mapServerConfig: %v", err)
	}
	if sc.Addr != ":9000" || sc.ReadTimeout != 7*time.Second {
		t.Fatalf("mapped = %+v", sc)
	}
}

func TestMapDispatchConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Dispatch.Workers = 3
	cfg.Dispatch.Timeout = "2s"
	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("mapDispatchConfig: %v", err)
	}
	if dc.Workers != 3 || dc.SendTimeout != 2*time.Second {
		t.Fatalf("mapped = %+v", dc)
	}

	cfg.Dispatch.QueueSize = -1
	if _, err := mapDispatchConfig(cfg); err == nil {
		t.Fatal("negative queue size accepted")
	}
}
