package agenda

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agenda.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendLocal {
		t.Errorf("backend = %q, want %q", cfg.Backend, BackendLocal)
	}
	if cfg.Local.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Local.Concurrency)
	}
	if cfg.Loop.PerCallTimeout != DefaultPerCallTimeout {
		t.Errorf("per-call timeout = %v, want %v", cfg.Loop.PerCallTimeout, DefaultPerCallTimeout)
	}
	if cfg.Loop.MaxTurns != DefaultMaxTurns {
		t.Errorf("max turns = %d, want %d", cfg.Loop.MaxTurns, DefaultMaxTurns)
	}
	if cfg.Cache.MaxSize != 128 {
		t.Errorf("cache max size = %d, want 128", cfg.Cache.MaxSize)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
backend: durable
local:
  queue_capacity: 16
  concurrency: 2
loop:
  per_call_timeout: 5s
  max_turns: 8
  fallback_message: "tool unavailable"
cache:
  max_size: 32
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendDurable {
		t.Errorf("backend = %q, want %q", cfg.Backend, BackendDurable)
	}
	if cfg.Local.QueueCapacity != 16 || cfg.Local.Concurrency != 2 {
		t.Errorf("local = %+v", cfg.Local)
	}
	if cfg.Loop.PerCallTimeout != 5*time.Second {
		t.Errorf("per-call timeout = %v, want 5s", cfg.Loop.PerCallTimeout)
	}
	if cfg.Loop.MaxTurns != 8 {
		t.Errorf("max turns = %d, want 8", cfg.Loop.MaxTurns)
	}
	if cfg.Loop.FallbackMessage != "tool unavailable" {
		t.Errorf("fallback = %q", cfg.Loop.FallbackMessage)
	}
	if cfg.Cache.MaxSize != 32 {
		t.Errorf("cache max size = %d, want 32", cfg.Cache.MaxSize)
	}
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	path := writeConfig(t, "backend: etcd\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("want error for unknown backend")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestConfig_NewScheduler(t *testing.T) {
	local, err := DefaultConfig().NewScheduler(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := local.(*LocalScheduler); !ok {
		t.Errorf("got %T, want *LocalScheduler", local)
	}

	cfg := DefaultConfig()
	cfg.Backend = BackendDurable
	if _, err := cfg.NewScheduler(nil); err == nil {
		t.Fatal("durable backend without a dialer must fail")
	}

	durable, err := cfg.NewScheduler(func(ctx context.Context) (WorkflowClient, error) {
		return nil, errors.New("not dialed in this test")
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := durable.(*DurableScheduler); !ok {
		t.Errorf("got %T, want *DurableScheduler", durable)
	}
}
