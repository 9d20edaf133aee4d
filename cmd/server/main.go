package main

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/catalog"
	"github.com/PortNumber53/landing-api/internal/config"
	"github.com/PortNumber53/landing-api/internal/formrelay"
	"github.com/PortNumber53/landing-api/internal/handlers"
	"github.com/PortNumber53/landing-api/internal/httpserver"
	"github.com/PortNumber53/landing-api/internal/logging"
	"github.com/PortNumber53/landing-api/internal/metrics"
	"github.com/PortNumber53/landing-api/internal/migrations"
	"github.com/PortNumber53/landing-api/internal/models"
	"github.com/PortNumber53/landing-api/internal/reconcile"
	"github.com/PortNumber53/landing-api/internal/store"
	"github.com/PortNumber53/landing-api/internal/stripe"
	"github.com/PortNumber53/landing-api/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	logDBTarget(cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	if err := runMigrationsWithDirtyFix(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database migrations")
	}

	st, err := store.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}

	cat, err := loadCatalog(cfg.PricingCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load pricing catalog")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	reconciler, err := reconcile.New(st, reconcile.Options{
		DedupSize:    cfg.WebhookDedupSize,
		StoreTimeout: reconcile.DefaultOptions().StoreTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reconciler")
	}

	verifier := stripe.NewVerifier(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance)
	checkout := stripe.NewClient(cfg.StripeSecretKey)

	deps := httpserver.Deps{
		Webhook:  handlers.NewWebhookHandler(verifier, reconciler, st, m),
		Stripe:   handlers.NewStripeHandler(cat, checkout, st, cfg.PublicBaseURL),
		Contacts: st,
		DB:       st,
		Observer: m,
		Gatherer: registry,
	}

	if cfg.FormRelayURL != "" {
		relay, err := formrelay.NewClient(cfg.FormRelayURL, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create form relay client")
		}
		w := worker.New(worker.DefaultConfig(), st, relay)
		w.SetInstrumentation(relayInstrumentation(m))
		deps.RelayWorker = w
	} else {
		log.Warn().Msg("FORM_RELAY_URL not set; contact submissions will be stored but not relayed")
	}

	srv := httpserver.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func relayInstrumentation(m *metrics.Metrics) *worker.Instrumentation {
	return &worker.Instrumentation{
		OnComplete: func(sub *models.ContactSubmission, d time.Duration) {
			m.ObserveRelay("relayed", d)
		},
		OnFail: func(sub *models.ContactSubmission, err error, d time.Duration) {
			m.ObserveRelay("error", d)
		},
		OnHeartbeat: func(workerID string, stats worker.Stats) {
			log.Info().Str("worker_id", workerID).Str("stats", stats.String()).Msg("relay worker heartbeat")
		},
	}
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB) error {
	if err := migrations.Up(db); err != nil {
		if !strings.Contains(err.Error(), "Dirty database version") {
			return err
		}
		log.Warn().Err(err).Msg("dirty database detected, attempting to fix")
		if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
			log.Error().Err(fixErr).Msg("failed to fix dirty database")
			return err
		}
		return migrations.Up(db)
	}
	return nil
}

func logDBTarget(dsn string) {
	// Only hostname and database name; the DSN carries credentials.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Info().Err(err).Msg("database configured (dsn parse error)")
		return
	}
	log.Info().Str("host", u.Hostname()).Str("db", strings.TrimPrefix(u.Path, "/")).Msg("database target")
}
