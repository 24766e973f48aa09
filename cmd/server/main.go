package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/config"
	"github.com/tabremote/relay-server/internal/events"
	"github.com/tabremote/relay-server/internal/handler"
	"github.com/tabremote/relay-server/internal/jobs"
	"github.com/tabremote/relay-server/internal/metrics"
	"github.com/tabremote/relay-server/internal/middleware"
	"github.com/tabremote/relay-server/internal/redis"
	"github.com/tabremote/relay-server/internal/relay"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var redisClient *redis.Client
	var connectLimiter middleware.Limiter = middleware.NewRateLimiter()
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		connectLimiter = middleware.NewRedisRateLimiter(redisClient.Client)
		log.Info().Str("channel", cfg.RedisEventsChannel).Msg("redis connected")
	}

	broker := events.NewBroker(redisClient, cfg.RedisEventsChannel)
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rl := relay.New(relay.Options{
		PairCodeTTL:       cfg.PairCodeTTL(),
		TrustTokenTTL:     cfg.TrustTokenTTL(),
		RateLimitInterval: cfg.RateLimitInterval(),
		PingTimeout:       cfg.SweepInterval(),
		Publisher:         broker,
		Metrics:           metrics.New(registry),
	})

	gateway := handler.NewGateway(rl, handler.GatewayOptions{
		OriginPatterns:  cfg.OriginPatterns(),
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendQueueSize:   cfg.SendQueueSize,
		WriteTimeout:    cfg.WriteTimeout(),
	})
	healthHandler := handler.NewHealthHandler(rl, broker)
	eventsHandler := handler.NewEventsHandler(broker, rl)

	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminToken)
	connectLimitMiddleware := middleware.NewConnectLimitMiddleware(connectLimiter, cfg.ConnectLimitPerMin)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Group(func(r chi.Router) {
		r.Use(connectLimitMiddleware.Handler)
		r.Get("/", handler.Root(gateway))
		r.Get("/ws", gateway.ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Get("/health", healthHandler.ServeHTTP)
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(adminAuthMiddleware.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
	})

	reaperJob := jobs.NewReaperJob(rl, cfg.SweepInterval())
	reaperJob.Start()
	defer reaperJob.Stop()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: config.ServerReadHeaderTimeout,
		WriteTimeout:      0,
		IdleTimeout:       config.ServerIdleTimeout,
	}
	// Event streams never finish on their own.
	server.RegisterOnShutdown(broker.Close)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting relay server")
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
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket connections did not close in time")
	}

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
