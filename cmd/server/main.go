package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/nbapaper/internal/aggregator"
	"github.com/atmx/nbapaper/internal/config"
	"github.com/atmx/nbapaper/internal/exchange"
	"github.com/atmx/nbapaper/internal/execution"
	"github.com/atmx/nbapaper/internal/metrics"
	"github.com/atmx/nbapaper/internal/risk"
	"github.com/atmx/nbapaper/internal/sportsfeed"
	"github.com/atmx/nbapaper/internal/store"
	"github.com/atmx/nbapaper/internal/strategy"
)

// Startup order follows : storage, then the risk account,
// then the execution engine, then the strategy engine, then the
// aggregator, then the exchange stream. Shutdown reverses it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 1. Storage ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { _ = rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis read-through cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- 2. Risk account ---
	gate := risk.NewGate(risk.DefaultLimits())
	if account, err := st.LoadRiskAccount(ctx); err == nil {
		gate.Restore(account)
	}

	// --- 3. Execution engine ---
	sports := sportsfeed.NewClient(cfg.SportsFeedBaseURL, cfg.SportsFeedAPIKey)
	stream := exchange.NewStream(cfg.ExchangeStreamURL, exchange.NoopSigner{}, nil)

	var publisher aggregator.EventPublisher
	if cfg.KafkaBroker != "" {
		kp := aggregator.NewKafkaPublisher([]string{cfg.KafkaBroker}, "nbapaper.game_events")
		cleanup = append(cleanup, func() { _ = kp.Close() })
		publisher = kp
		slog.Info("Kafka event publishing enabled", "broker", cfg.KafkaBroker)
	}

	agg := aggregator.New(st, sports, publisher, stream, stream.Events(), cfg.NBAPollInterval, cfg.OddsPollInterval, cfg.DiscoveryPollInterval)

	execEngine := execution.NewEngine(st, gate, agg)

	// --- 4. Strategy engine ---
	stratEngine := strategy.New(st, agg, execEngine, cfg.EvaluationInterval)
	if err := registerStrategies(ctx, stratEngine, st); err != nil {
		slog.Error("failed to register strategies", "err", err)
	}

	// --- 5. Aggregator ---
	go agg.Run(ctx)

	// --- 6. Exchange stream ---
	go stream.Run(ctx)

	go stratEngine.Run(ctx)

	// --- Ops-facing HTTP surface (health + metrics only; the full REST
	// API surface is out of scope for this engine) ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"nbapaper"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("nbapaper listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down nbapaper...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}

	if err := st.SaveRiskAccount(shutdownCtx, gate.Account()); err != nil {
		slog.Error("failed to persist risk account on shutdown", "err", err)
	}

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	fmt.Println("nbapaper stopped")
}

// registerStrategies loads persisted strategy configs and registers one
// instance per enabled row. An empty store (fresh deployment) registers no
// strategies; operators add rows via the strategies table.
func registerStrategies(ctx context.Context, eng *strategy.Engine, st store.Store) error {
	records, err := st.ListStrategies(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		s, err := strategy.FromRecord(rec)
		if err != nil {
			slog.Error("skipping strategy with invalid config", "id", rec.ID, "kind", rec.Kind, "err", err)
			continue
		}
		eng.Register(s)
	}
	return nil
}
