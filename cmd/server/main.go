package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fusetalk/fusetalk-server/internal/config"
	"github.com/fusetalk/fusetalk-server/internal/database"
	"github.com/fusetalk/fusetalk-server/internal/fanout"
	"github.com/fusetalk/fusetalk-server/internal/handler"
	"github.com/fusetalk/fusetalk-server/internal/jobs"
	"github.com/fusetalk/fusetalk-server/internal/middleware"
	"github.com/fusetalk/fusetalk-server/internal/redis"
	"github.com/fusetalk/fusetalk-server/internal/relay"
	"github.com/fusetalk/fusetalk-server/internal/repository"
	"github.com/fusetalk/fusetalk-server/internal/service"
	"github.com/fusetalk/fusetalk-server/internal/util"
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

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if cfg.RunMigrations {
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
	}

	var (
		redisClient *redis.Client
		limiter     middleware.Limiter
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		limiter = middleware.NewRedisRateLimiter(redisClient)
		log.Info().Msg("redis connected")
	} else {
		limiter = middleware.NewRateLimiter()
		log.Warn().Msg("REDIS_URL not set: fan-out and rate limits are local to this instance")
	}

	hub := fanout.NewHub(redisClient)

	userRepo := repository.NewUserRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	fuseRepo := repository.NewFuseRepository(db.DB)
	queue := repository.NewPostgresQueue(db, config.QueueLockTimeout)

	matchingService := service.NewMatchingService(queue, userRepo, hub, cfg.QueueTTL())
	sessionService := service.NewSessionService(queue.Sessions(), messageRepo, hub)
	var contactCipher *util.FieldCipher
	if cfg.EncryptionKey != "" {
		contactCipher, err = util.NewFieldCipher(cfg.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load encryption key")
		}
	}
	fuseService := service.NewFuseService(fuseRepo, queue.Sessions(), userRepo, hub, contactCipher)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	joinRateLimit := middleware.NewRateLimitMiddleware(limiter, "join", cfg.JoinRateLimitPerMin)
	apiRateLimit := middleware.NewRateLimitMiddleware(limiter, "api", config.DefaultRateLimitPerMin*10)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction())

	matchHandler := handler.NewMatchHandler(matchingService, joinRateLimit.Handler)
	sessionHandler := handler.NewSessionHandler(sessionService, fuseService)
	fuseHandler := handler.NewFuseHandler(fuseService)
	eventsHandler := handler.NewEventsHandler(hub)
	wsHandler := handler.NewWSHandler(relay.New(sessionService, sessionService, hub, cfg.AllowedOrigins))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(bodyLimitMiddleware.Handler)
		r.Get("/match/health", handler.Health)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/events", eventsHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
				r.Use(apiRateLimit.Handler)
				r.Mount("/match", matchHandler.Routes())
				r.Mount("/sessions", sessionHandler.Routes())
				r.Mount("/fuse-moments", fuseHandler.Routes())
			})
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(authMiddleware.Optional)
		r.Mount("/", wsHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(config.CleanupJobInterval,
		jobs.Task{Name: "waiting sessions", Run: matchingService.ExpireStale},
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}
	// Shutdown waits for open event streams and never sees hijacked websockets,
	// so the hub has to release them as soon as shutdown begins.
	server.RegisterOnShutdown(hub.Close)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
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
