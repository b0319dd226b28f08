package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Pipeline.Workers != 5 {
		t.Errorf("Pipeline.Workers default = %d, want 5", cfg.Pipeline.Workers)
	}
	if got := cfg.Pipeline.GetStartDate(); !got.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start date = %v, want 2025-01-01", got)
	}
	if got := cfg.Clients.GetRequestInterval(); got != 500*time.Millisecond {
		t.Errorf("request interval = %v, want 500ms", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("FNOSCREEN_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_SymbolsEnvOverride(t *testing.T) {
	t.Setenv("FNOSCREEN_SYMBOLS", " sbin, reliance ,,TCS")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	want := []string{"SBIN", "RELIANCE", "TCS"}
	if len(cfg.Universe.Symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", cfg.Universe.Symbols, want)
	}
	for i := range want {
		if cfg.Universe.Symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, cfg.Universe.Symbols[i], want[i])
		}
	}
}

func TestConfig_InvalidDurationFallsBack(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Pipeline.BackoffBase = "soon"
	cfg.Pipeline.FetchTimeout = "-5s"

	if got := cfg.Pipeline.GetBackoffBase(); got != time.Second {
		t.Errorf("backoff base = %v, want 1s", got)
	}
	if got := cfg.Pipeline.GetFetchTimeout(); got != 60*time.Second {
		t.Errorf("fetch timeout = %v, want 60s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad start date", func(c *Config) { c.Pipeline.StartDate = "01-01-2025" }},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"no attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }},
		{"negative tolerance", func(c *Config) { c.Reconcile.MismatchTolerance = -1 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "duckdb" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_FileMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fnoscreen.toml")
	content := `
environment = "production"

[pipeline]
start_date = "2024-06-01"
workers = 8

[storage]
backend = "postgres"
dsn = "host=localhost user=app dbname=stocks"

[clients.yahoo.symbol_overrides]
"M&M" = "M&M.NS"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !cfg.IsProduction() {
		t.Errorf("expected production environment")
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("max attempts default lost on merge: %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("backend = %q, want postgres", cfg.Storage.Backend)
	}
	if cfg.Clients.Yahoo.SymbolOverrides["M&M"] != "M&M.NS" {
		t.Errorf("symbol override not loaded: %v", cfg.Clients.Yahoo.SymbolOverrides)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\nstart_date = \"yesterday\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid start date")
	}
}
