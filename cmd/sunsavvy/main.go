package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/sunsavvy/internal/api/http"
	"github.com/i474232898/sunsavvy/internal/config"
	"github.com/i474232898/sunsavvy/internal/fault"
	"github.com/i474232898/sunsavvy/internal/logging"
	"github.com/i474232898/sunsavvy/internal/observability"
	"github.com/i474232898/sunsavvy/internal/ratelimit"
	"github.com/i474232898/sunsavvy/internal/scheduler"
	"github.com/i474232898/sunsavvy/internal/solar"
	"github.com/i474232898/sunsavvy/internal/solar/providers"
	"github.com/i474232898/sunsavvy/internal/store"
)

const maxRecordsPerOwner = 500

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.ProviderTimeout,
	}
	backoff := providers.DefaultBackoff()
	backoff.MaxRetries = cfg.ProviderMaxRetries

	// Geocoders and irradiance providers in fallback order. Nominatim is
	// paced by a shared gate; keyed providers join only when configured.
	chains := providers.ChainConfig{
		Client:  httpClient,
		Backoff: backoff,
		Nominatim: providers.NominatimConfig{
			BaseURL:      cfg.NominatimURL,
			UserAgent:    cfg.NominatimUserAgent,
			CountryCodes: cfg.GeocodeCountryCodes,
			Limiter:      ratelimit.NewGate(cfg.GeocodeInterval, clock, metrics),
		},
		GeocodeCacheSize:  cfg.GeocodeCacheSize,
		GoogleMapsAPIKey:  cfg.GoogleMapsAPIKey,
		SolcastAPIKey:     cfg.SolcastAPIKey,
		OpenWeatherAPIKey: cfg.OpenWeatherAPIKey,
		Metrics:           metrics,
	}
	geocoders := providers.GeocoderChain(chains)
	irradiance := providers.IrradianceChain(chains)

	// Persistence. Without URLs everything lives in one memory store.
	memStore := store.NewMemoryStore(cfg.SessionTTL, maxRecordsPerOwner, clock)

	var (
		sessions solar.SessionStore = memStore
		records  solar.RecordStore  = memStore
		rates    solar.RateStore    = memStore
		sweeper  scheduler.Sweeper  = memStore
	)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		records, rates = pg, pg
		log.Info("using postgres for estimation records")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		rs := store.NewRedisSessionStore(client, cfg.SessionTTL)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		sessions, sweeper = rs, nil
		log.Info("using redis for estimation sessions")
	}

	// Core service orchestrating resolvers, estimator and stores.
	service := solar.NewService(solar.ServiceConfig{
		Locations:  solar.NewCoordinateResolver(geocoders, cfg.GeocodeCountry, cfg.ProviderTimeout, log, metrics),
		Irradiance: solar.NewIrradianceResolver(irradiance, cfg.Fallback, cfg.ProviderTimeout, log, metrics),
		Estimator:  solar.NewFinancialEstimator(cfg.Financial),
		Sessions:   sessions,
		Records:    records,
		Rates:      rates,
		Clock:      clock,
		Log:        log,
		Metrics:    metrics,
	})

	for _, p := range cfg.ServiceProviders {
		if _, err := service.RegisterProvider(ctx, p); err != nil {
			return fmt.Errorf("failed to seed service provider %q: %w", p.ID, err)
		}
	}

	var classifier fault.Classifier
	if cfg.ClassifierURL != "" {
		classifier = providers.NewHTTPClassifier(&http.Client{Timeout: 30 * time.Second}, cfg.ClassifierURL)
	}
	detector := fault.NewDetector(classifier, log)

	// Scheduler that sweeps idle in-memory sessions.
	sched := scheduler.New(sweeper, cfg.SessionSweepInterval, log, metrics)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "sunsavvy",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             12 * 1024 * 1024,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "sunsavvy",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, detector, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(":" + cfg.Port)
	}()
	log.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"geocoders":  len(geocoders),
		"irradiance": len(irradiance),
		"providers":  len(cfg.ServiceProviders),
	}).Info("sunsavvy started")

	// Wait for termination signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("fiber server stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
	return nil
}
