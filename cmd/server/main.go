package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/audit"
	"github.com/openclaw/link-broker-go/internal/config"
	"github.com/openclaw/link-broker-go/internal/database"
	"github.com/openclaw/link-broker-go/internal/handler"
	"github.com/openclaw/link-broker-go/internal/jobs"
	"github.com/openclaw/link-broker-go/internal/linking"
	"github.com/openclaw/link-broker-go/internal/metrics"
	"github.com/openclaw/link-broker-go/internal/middleware"
	"github.com/openclaw/link-broker-go/internal/redis"
	"github.com/openclaw/link-broker-go/internal/repository"
	"github.com/openclaw/link-broker-go/internal/service"
	"github.com/openclaw/link-broker-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	pingers := map[string]handler.Pinger{}

	var linkEventRepo repository.LinkEventRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()
		log.Info().Msg("database connected")

		linkEventRepo = repository.NewLinkEventRepository(db.DB)
		pingers["database"] = db.Ping
	} else {
		log.Info().Msg("DATABASE_URL not set, audit events are logged only")
	}

	var limiter service.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		limiter = service.NewRateLimiter(redisClient.Client)
		pingers["redis"] = redisClient.Ping
	} else {
		limiter = service.NewMemoryRateLimiter(nil)
		log.Info().Msg("REDIS_URL not set, using in-memory rate limiting")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	brokerMetrics := metrics.New(registry)

	var cipher *util.Cipher
	if cfg.CredentialsKey != "" {
		cipher, err = util.NewCipher(cfg.CredentialsKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid credentials key")
		}
	}

	backend, err := linking.NewDevBackend(linking.DevBackendConfig{
		Dir:             cfg.CredentialsDir,
		RefreshInterval: cfg.QRRefresh(),
		Cipher:          cipher,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create linking backend")
	}

	var auditWriter audit.Writer
	var eventPruner jobs.EventPruner
	if linkEventRepo != nil {
		auditWriter = linkEventRepo
		eventPruner = linkEventRepo
	}
	auditLogger := audit.NewLogger(auditWriter, config.AuditBufferSize)
	auditLogger.Start()

	broker := service.NewBroker(service.BrokerConfig{
		SessionTTL:       cfg.SessionTTL(),
		PairingTTL:       cfg.PairingTTL(),
		DisconnectPolicy: cfg.DisconnectPolicy,
	}, service.BrokerDeps{
		Backend: backend,
		Metrics: brokerMetrics,
		Audit:   auditLogger,
	})

	brokerCtx, stopBroker := context.WithCancel(context.Background())
	go broker.Run(brokerCtx)

	restored, err := broker.Restore(brokerCtx)
	if err != nil {
		log.Error().Err(err).Msg("failed to restore persisted credentials")
	} else {
		log.Info().Int("count", restored).Msg("restored persisted credentials")
	}

	sweepJob := jobs.NewSweepJob(broker, eventPruner, cfg.AuditRetention(), cfg.SweepInterval(), nil)
	sweepJob.Start()

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	connLimitMiddleware := middleware.NewIPRateLimitMiddleware(limiter, cfg.ConnectionsPerMin, time.Minute, "ws")

	healthHandler := handler.NewHealthHandler(broker, pingers)
	wsHandler := handler.NewWSHandler(broker, limiter, cfg.PairingAttemptsPerMin)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.With(connLimitMiddleware.Handler).Get("/ws", wsHandler.ServeHTTP)

	if cfg.DevBackendRoutes {
		r.Route("/dev", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerReadTimeout))
			r.Mount("/", handler.NewDevHandler(backend).Routes())
		})
		log.Warn().Msg("development backend routes enabled")
	}

	if linkEventRepo != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerReadTimeout))
			r.Mount("/", handler.NewEventsHandler(linkEventRepo).Routes())
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.NotFound(handler.StaticFileServer(cfg.StaticDir, "").ServeHTTP)
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("disconnectPolicy", string(cfg.DisconnectPolicy)).
			Bool("trustProxyHeaders", cfg.TrustProxyHeaders).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	sweepJob.Stop()
	stopBroker()
	<-broker.Done()
	auditLogger.Stop()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
