// internal/config/load_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
backend:
  kind: sqlite
  path: /var/lib/superscore/db.sqlite
control:
  default_protocol: modbus
  timeout_ms: 1500
  rate_per_second: 50
  shims:
    - tag: modbus
      kind: modbus
      endpoint: 10.0.0.5:502
      unit_id: 3
    - tag: sim
      kind: sim
      values:
        "SIM:A": "1.5"
log:
  level: debug
  format: json
metrics:
  listen: ":9108"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Backend.Kind != BackendSQLite || cfg.Backend.Path != "/var/lib/superscore/db.sqlite" {
		t.Fatalf("backend: %+v", cfg.Backend)
	}
	if len(cfg.Control.Shims) != 2 || cfg.Control.Shims[0].UnitID != 3 {
		t.Fatalf("shims: %+v", cfg.Control.Shims)
	}
	if cfg.Control.Shims[1].Values["SIM:A"] != "1.5" {
		t.Fatalf("sim values: %+v", cfg.Control.Shims[1].Values)
	}
	if cfg.Control.RatePerSecond != 50 || cfg.Metrics.Listen != ":9108" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	if _, err := Parse([]byte("backend:\n  kind: memory\n  colour: blue\n")); err == nil {
		t.Fatalf("expected unknown key error, got nil")
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Kind != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.cfg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFind(t *testing.T) {
	xdg := t.TempDir()
	wd := t.TempDir()
	t.Setenv(EnvPath, "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(wd)

	if _, err := Find(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	local := filepath.Join(wd, FileName)
	if err := os.WriteFile(local, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Find()
	if err != nil || got != local {
		t.Fatalf("expected %s, got %q (%v)", local, got, err)
	}

	user := filepath.Join(xdg, FileName)
	if err := os.WriteFile(user, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got, _ := Find(); got != user {
		t.Fatalf("XDG config should win over the working directory: got %q", got)
	}

	// explicit env var wins even when the file does not exist
	t.Setenv(EnvPath, "other/cfg")
	if got, _ := Find(); got != "other/cfg" {
		t.Fatalf("expected other/cfg, got %q", got)
	}
}
