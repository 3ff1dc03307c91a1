package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	oauthHandlers "Xcrol/internal/api/handlers/oauth"
	"Xcrol/internal/api/middleware"
	"Xcrol/internal/api/routes"
	"Xcrol/internal/config"
	"Xcrol/internal/core/oauth"
	"Xcrol/internal/core/users"
	"Xcrol/internal/db/memory"
	"Xcrol/internal/db/migrations"
	postgresRepo "Xcrol/internal/db/postgres"
	redisCache "Xcrol/internal/db/redis"
	"Xcrol/internal/jobs"
	"Xcrol/internal/web"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, handlerOpts)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		db       *sql.DB
		clients  oauth.ClientRepository
		grants   oauth.GrantRepository
		userRepo users.UserRepository
	)
	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("using in-memory store: data is lost on restart")
		store := memory.NewOAuthStore()
		clients, grants = store, store
		userRepo = memory.NewUserStore()
	default:
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("failed to close database", "error", closeErr)
			}
		}()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to database")

		if err := migrations.Up(db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations completed successfully")

		clients = postgresRepo.NewOAuthClientRepository(db)
		grants = postgresRepo.NewOAuthGrantRepository(db)
		userRepo = postgresRepo.NewUserRepository(db)
	}

	// Optional Redis cache in front of the client registry
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisCache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("failed to close redis", "error", closeErr)
			}
		}()
		clients = redisCache.NewClientCache(clients, rdb, cfg.ClientCacheTTL)
		slog.Info("client cache enabled", "ttl", cfg.ClientCacheTTL)
	}

	// Services
	userService := users.NewUserService(userRepo)
	oauthService := oauth.NewService(
		oauth.NewRepository(clients, grants),
		userService,
		oauth.WithAuthCodeTTL(cfg.AuthCodeTTL),
		oauth.WithAccessTokenTTL(cfg.AccessTokenTTL),
		oauth.WithRefreshTokenTTL(cfg.RefreshTokenTTL),
	)

	// HTTP
	templates, err := web.NewTemplates()
	if err != nil {
		slog.Error("failed to load web templates", "error", err)
		os.Exit(1)
	}
	cookies, err := oauthHandlers.NewCookieStore(cfg.SessionCookieSecret, cfg.SecureCookies())
	if err != nil {
		slog.Error("invalid session cookie configuration", "error", err)
		os.Exit(1)
	}
	userAuth := middleware.NewUserAuth(cfg.SessionJWTSecret, cookies)
	handler := oauthHandlers.NewHandler(oauthService, templates, cookies, oauthHandlers.HandlerConfig{
		Issuer:   cfg.Issuer,
		LoginURL: cfg.LoginURL,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, 1*time.Minute)
	defer rateLimiter.Close()
	r.Use(rateLimiter.Middleware)

	stopLimiters := routes.RegisterOAuthRoutes(r, handler, userAuth, routes.OAuthRouteConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		APIKeys:        cfg.APIKeys,
	})
	defer stopLimiters()
	var pinger routes.Pinger
	if db != nil {
		pinger = db
	}
	routes.RegisterHealthRoutes(r, pinger)

	if len(cfg.APIKeys) == 0 {
		slog.Warn("XCROL_API_KEYS is empty: token and user info endpoints accept requests without an api key")
	}

	// Background jobs
	scheduler := jobs.NewScheduler(grants, cfg.CleanupRetention)
	if err := scheduler.Start(cfg.CleanupSchedule); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("XCROL authorization server starting",
			"port", cfg.Port,
			"issuer", cfg.Issuer,
			"store", cfg.Store,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
