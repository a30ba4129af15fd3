package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openclaw/agenthub/internal/config"
	"github.com/openclaw/agenthub/internal/httpserver"
	"github.com/openclaw/agenthub/internal/ledger"
	ledgerasync "github.com/openclaw/agenthub/internal/ledger/async"
	ledgermem "github.com/openclaw/agenthub/internal/ledger/memory"
	ledgerpg "github.com/openclaw/agenthub/internal/ledger/postgres"
	ledgersql "github.com/openclaw/agenthub/internal/ledger/sqlite"
	"github.com/openclaw/agenthub/internal/logging"
	"github.com/openclaw/agenthub/internal/metrics"
	"github.com/openclaw/agenthub/internal/payment"
	"github.com/openclaw/agenthub/internal/proxy"
	"github.com/openclaw/agenthub/internal/ratelimit"
	"github.com/openclaw/agenthub/internal/registry"
	registrymem "github.com/openclaw/agenthub/internal/registry/memory"
	registrypg "github.com/openclaw/agenthub/internal/registry/postgres"
	registrysql "github.com/openclaw/agenthub/internal/registry/sqlite"
	"github.com/openclaw/agenthub/internal/seeds"
	"github.com/openclaw/agenthub/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(300 * 1024 * 1024) // 300MB
	if target := strings.TrimSpace(cfg.LogFile); target != "" {
		rot, err := logging.NewRotatingWriter(target, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[agenthubd] ")
	logger := log.Default()

	logger.Printf("starting agenthub %s store=%s listen=%s", version.FullInfo(), cfg.StoreDriver, cfg.ListenAddr)

	regStore, ledStore, err := openStores(cfg)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer regStore.Close()
	defer ledStore.Close()

	if cfg.LedgerAsync {
		ledStore = ledgerasync.New(ledStore, ledgerasync.Config{
			BatchSize:     cfg.LedgerBatchSize,
			FlushInterval: cfg.LedgerFlushInterval,
			Logger:        logger,
		})
		defer ledStore.Close()
	}

	ctx := context.Background()
	if cfg.SeedOnStart {
		if err := seedIfEmpty(ctx, regStore, cfg.SeedFile, logger); err != nil {
			logger.Fatalf("seed registry: %v", err)
		}
	}

	gate := &payment.Builder{
		PayTo:    cfg.PayTo,
		Network:  cfg.Network,
		Asset:    cfg.Asset,
		Currency: cfg.Currency,
		BaseURL:  cfg.BaseURL,
	}
	collector := metrics.NewCollector()

	px := proxy.New(regStore, ledStore, gate, proxy.Options{
		CallTimeout: cfg.CallTimeout,
		Logger:      logger,
		Metrics:     collector,
	})

	var rl *ratelimit.Middleware
	if cfg.RateLimitEnabled {
		limiter := ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		})
		defer limiter.Close()
		rl = ratelimit.NewMiddleware(limiter, true, logger, collector)
	}

	server := httpserver.New(regStore, ledStore, px, gate, collector, rl, logger, httpserver.Config{
		AdminToken: cfg.AdminToken,
		SeedFile:   cfg.SeedFile,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
		return
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(drainCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	logger.Printf("stopped")
}

func openStores(cfg config.HubConfig) (registry.Store, ledger.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return registrymem.New(), ledgermem.New(), nil
	case "sqlite":
		reg, err := registrysql.New(cfg.RegistryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("registry sqlite: %w", err)
		}
		led, err := ledgersql.New(cfg.LedgerPath)
		if err != nil {
			reg.Close()
			return nil, nil, fmt.Errorf("ledger sqlite: %w", err)
		}
		return reg, led, nil
	case "postgres":
		reg, err := registrypg.New(cfg.PostgresDSN, cfg.PGMaxOpen, cfg.PGMaxIdle, cfg.PGConnLifetimeMinutes, cfg.PGConnIdleMinutes)
		if err != nil {
			return nil, nil, fmt.Errorf("registry postgres: %w", err)
		}
		led, err := ledgerpg.New(cfg.PostgresDSN, cfg.PGMaxOpen, cfg.PGMaxIdle, cfg.PGConnLifetimeMinutes, cfg.PGConnIdleMinutes)
		if err != nil {
			reg.Close()
			return nil, nil, fmt.Errorf("ledger postgres: %w", err)
		}
		return reg, led, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// seedIfEmpty loads the demo catalogue into a registry that has no services
// yet. A registry that already holds anything is left alone.
func seedIfEmpty(ctx context.Context, store registry.Store, seedFile string, logger *log.Logger) error {
	existing, err := store.List(ctx, registry.Filter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Printf("registry already holds %d services, skipping seed", len(existing))
		return nil
	}
	catalogue, err := seeds.Load(seedFile)
	if err != nil {
		return err
	}
	if len(catalogue) == 0 {
		logger.Printf("no seed catalogue at %s", seedFile)
		return nil
	}
	if err := seeds.Apply(ctx, store, catalogue); err != nil {
		return err
	}
	logger.Printf("seeded registry with %d services", len(catalogue))
	return nil
}
