package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/config"
	"github.com/geocoder89/taskhub/internal/db"
	httpx "github.com/geocoder89/taskhub/internal/http"
	"github.com/geocoder89/taskhub/internal/http/handlers"
	"github.com/geocoder89/taskhub/internal/http/middlewares"
	"github.com/geocoder89/taskhub/internal/observability"
	"github.com/geocoder89/taskhub/internal/redisclient"
	"github.com/geocoder89/taskhub/internal/repo/mongodb"
	"github.com/geocoder89/taskhub/internal/repo/postgres"
	"github.com/geocoder89/taskhub/internal/security"
	"github.com/geocoder89/taskhub/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up; anything missing is fatal
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "taskhub-api",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	// postgres: users
	pool, err := db.NewPool(ctx, cfg.PostgresURL(), cfg.Postgres.MaxConns)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("postgres migrate failed", "err", err)
		os.Exit(1)
	}

	// mongodb: tasks
	mongoClient, err := mongodb.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		log.Error("mongo connect failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	usersRepo := postgres.NewUsersRepo(pool, prom)
	tasksRepo := mongodb.NewTasksRepo(mongoClient, cfg.Mongo.Database, prom)

	if err := tasksRepo.EnsureIndexes(ctx); err != nil {
		log.Error("mongo indexes failed", "err", err)
		os.Exit(1)
	}

	checks := []handlers.Check{
		{Name: "postgres", Ping: usersRepo.Ping},
		{Name: "mongodb", Ping: tasksRepo.Ping},
	}

	// redis is optional and only backs the rate limiter
	var limitStore middlewares.LimitStore = middlewares.NewMemoryLimitStore()
	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		limitStore = middlewares.NewRedisLimitStore(rdb.Raw())
		checks = append(checks, handlers.Check{Name: "redis", Ping: rdb.Ping})
	}

	hasher, err := security.NewHasher(cfg.BcryptCost, cfg.PasswordHashConcurrency, security.WithObserver(prom.ObservePasswordHash))
	if err != nil {
		log.Error("password hasher", "err", err)
		os.Exit(1)
	}

	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	authSvc := service.NewAuthService(usersRepo, hasher, tokens, log)
	taskSvc := service.NewTaskService(tasksRepo, log)

	if err := db.EnsureSeedUser(ctx, authSvc, cfg.SeedUser, log); err != nil {
		log.Error("seed user failed", "err", err)
		os.Exit(1)
	}

	router := httpx.NewRouter(httpx.Deps{
		Log:            log,
		Prom:           prom,
		Gatherer:       reg,
		Env:            cfg.Env,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		HSTS:           cfg.HSTS,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateWindow: cfg.AuthRateWindow,
		LimitStore:     limitStore,
		Tokens:         tokens,
		AuthSvc:        authSvc,
		TaskSvc:        taskSvc,
		Checks:         checks,
	})

	// server set up
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server shutting down")
	case err := <-serveErr:
		log.Error("server failed", "err", err)
		os.Exit(1)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}
