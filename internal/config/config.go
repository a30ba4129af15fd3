package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const configFile = "config/agenthub.ini"

// HubConfig describes runtime options for the marketplace daemon. Values
// come from config/agenthub.ini with AGENTHUB_* environment overrides.
type HubConfig struct {
	ListenAddr string
	BaseURL    string

	// x402 settlement defaults
	PayTo    string
	Network  string
	Asset    string
	Currency string

	// Storage: memory | sqlite | postgres
	StoreDriver           string
	RegistryPath          string
	LedgerPath            string
	PostgresDSN           string
	PGMaxOpen             int
	PGMaxIdle             int
	PGConnLifetimeMinutes int
	PGConnIdleMinutes     int

	// Demo catalogue seeding
	SeedFile    string
	SeedOnStart bool

	// Upstream forwarding
	CallTimeout time.Duration

	// Async ledger write-behind
	LedgerAsync         bool
	LedgerBatchSize     int
	LedgerFlushInterval time.Duration

	// Best-effort in-memory rate limit on the call endpoint
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   float64

	LogFile  string
	LogLevel string

	// Optional bearer token guarding admin endpoints
	AdminToken string
}

// Load reads the hub configuration from root. A missing config file yields
// defaults rather than an error.
func Load(root string) (HubConfig, error) {
	if root == "" {
		root = "."
	}
	values, err := parseINI(filepath.Join(root, configFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			values = map[string]string{}
		} else {
			return HubConfig{}, err
		}
	}

	get := func(key, envKey, fallback string) string {
		return firstNonEmpty(os.Getenv(envKey), values[key], fallback)
	}

	cfg := HubConfig{
		ListenAddr:            get("listen_addr", "AGENTHUB_LISTEN_ADDR", ":8080"),
		BaseURL:               get("base_url", "AGENTHUB_BASE_URL", "http://localhost:8080"),
		PayTo:                 get("pay_to", "AGENTHUB_PAY_TO", "0x66356d55a891321048e53Fa6A29ed21a15fc3A6A"),
		Network:               get("network", "AGENTHUB_NETWORK", "base"),
		Asset:                 get("asset", "AGENTHUB_ASSET", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Currency:              get("currency", "AGENTHUB_CURRENCY", "USDC"),
		StoreDriver:           strings.ToLower(get("store_driver", "AGENTHUB_STORE_DRIVER", "sqlite")),
		RegistryPath:          get("registry_path", "AGENTHUB_REGISTRY_PATH", filepath.Join(root, "data", "registry.db")),
		LedgerPath:            get("ledger_path", "AGENTHUB_LEDGER_PATH", filepath.Join(root, "data", "ledger.db")),
		PostgresDSN:           get("postgres_dsn", "AGENTHUB_POSTGRES_DSN", ""),
		PGMaxOpen:             parseOptionalInt(get("pg_max_open", "AGENTHUB_PG_MAX_OPEN", ""), 20),
		PGMaxIdle:             parseOptionalInt(get("pg_max_idle", "AGENTHUB_PG_MAX_IDLE", ""), 5),
		PGConnLifetimeMinutes: parseOptionalInt(get("pg_conn_lifetime_minutes", "AGENTHUB_PG_CONN_LIFETIME_MINUTES", ""), 60),
		PGConnIdleMinutes:     parseOptionalInt(get("pg_conn_idle_minutes", "AGENTHUB_PG_CONN_IDLE_MINUTES", ""), 10),
		SeedFile:              get("seed_file", "AGENTHUB_SEED_FILE", filepath.Join(root, "config", "seeds.yaml")),
		SeedOnStart:           parseOptionalBool(get("seed_on_start", "AGENTHUB_SEED_ON_START", ""), true),
		LedgerAsync:           parseOptionalBool(get("ledger_async", "AGENTHUB_LEDGER_ASYNC", ""), false),
		LedgerBatchSize:       parseOptionalInt(get("ledger_batch_size", "AGENTHUB_LEDGER_BATCH_SIZE", ""), 100),
		RateLimitEnabled:      parseOptionalBool(get("rate_limit_enabled", "AGENTHUB_RATE_LIMIT_ENABLED", ""), true),
		LogFile:               get("log_file", "AGENTHUB_LOG_FILE", ""),
		LogLevel:              strings.ToLower(get("log_level", "AGENTHUB_LOG_LEVEL", "info")),
		AdminToken:            get("admin_token", "AGENTHUB_ADMIN_TOKEN", ""),
	}

	switch cfg.StoreDriver {
	case "memory", "sqlite", "postgres":
	default:
		return HubConfig{}, fmt.Errorf("invalid store_driver %q (want memory, sqlite, or postgres)", cfg.StoreDriver)
	}
	if cfg.StoreDriver == "postgres" && strings.TrimSpace(cfg.PostgresDSN) == "" {
		return HubConfig{}, errors.New("store_driver=postgres requires postgres_dsn")
	}

	if v := get("call_timeout", "AGENTHUB_CALL_TIMEOUT", ""); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return HubConfig{}, fmt.Errorf("invalid call_timeout %q: %w", v, err)
		}
		cfg.CallTimeout = dur
	} else {
		cfg.CallTimeout = 300 * time.Second
	}

	if v := get("ledger_flush_interval", "AGENTHUB_LEDGER_FLUSH_INTERVAL", ""); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return HubConfig{}, fmt.Errorf("invalid ledger_flush_interval %q: %w", v, err)
		}
		cfg.LedgerFlushInterval = dur
	} else {
		cfg.LedgerFlushInterval = time.Second
	}

	cfg.RateLimitRPS = parseOptionalFloat(get("rate_limit_rps", "AGENTHUB_RATE_LIMIT_RPS", ""), 10)
	cfg.RateLimitBurst = parseOptionalFloat(get("rate_limit_burst", "AGENTHUB_RATE_LIMIT_BURST", ""), 20)

	return cfg, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalFloat(v string, fallback float64) float64 {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
