package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, "config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agenthub.ini"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr %q", cfg.ListenAddr)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("store driver %q", cfg.StoreDriver)
	}
	if cfg.PayTo == "" || cfg.Asset == "" || cfg.Network != "base" || cfg.Currency != "USDC" {
		t.Fatalf("payment defaults: %+v", cfg)
	}
	if cfg.CallTimeout != 300*time.Second {
		t.Fatalf("call timeout %v", cfg.CallTimeout)
	}
	if !cfg.SeedOnStart || !cfg.RateLimitEnabled {
		t.Fatalf("boolean defaults: %+v", cfg)
	}
	if cfg.RateLimitRPS != 10 || cfg.RateLimitBurst != 20 {
		t.Fatalf("rate limit defaults: %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
# comment line
[server]
listen_addr = :9999
base_url = https://hub.example.com

[storage]
store_driver = memory

[calls]
call_timeout = 30s

[ledger]
ledger_async = true
ledger_batch_size = 50
ledger_flush_interval = 250ms
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.BaseURL != "https://hub.example.com" {
		t.Fatalf("server section: %+v", cfg)
	}
	if cfg.StoreDriver != "memory" {
		t.Fatalf("store driver %q", cfg.StoreDriver)
	}
	if cfg.CallTimeout != 30*time.Second {
		t.Fatalf("call timeout %v", cfg.CallTimeout)
	}
	if !cfg.LedgerAsync || cfg.LedgerBatchSize != 50 || cfg.LedgerFlushInterval != 250*time.Millisecond {
		t.Fatalf("ledger section: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "listen_addr = :9999\nstore_driver = memory\n")

	t.Setenv("AGENTHUB_LISTEN_ADDR", ":7777")
	t.Setenv("AGENTHUB_STORE_DRIVER", "sqlite")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("env override lost: %q", cfg.ListenAddr)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("env override lost: %q", cfg.StoreDriver)
	}
}

func TestInvalidStoreDriver(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "store_driver = redis\n")
	if _, err := Load(root); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "store_driver = postgres\n")
	if _, err := Load(root); err == nil {
		t.Fatal("expected error when postgres_dsn is missing")
	}

	writeConfig(t, root, "store_driver = postgres\npostgres_dsn = postgres://localhost/hub\n")
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PostgresDSN != "postgres://localhost/hub" {
		t.Fatalf("dsn %q", cfg.PostgresDSN)
	}
}

func TestInvalidDuration(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "call_timeout = soon\n")
	if _, err := Load(root); err == nil {
		t.Fatal("expected error for unparseable call_timeout")
	}
}
