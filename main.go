package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motorlot/marketplace/backend/auth"
	"github.com/motorlot/marketplace/backend/config"
	"github.com/motorlot/marketplace/backend/currency"
	"github.com/motorlot/marketplace/backend/dealers"
	"github.com/motorlot/marketplace/backend/inspections"
	"github.com/motorlot/marketplace/backend/internal/logger"
	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/leads"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/migrate"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
	"github.com/motorlot/marketplace/backend/staff"
)

const devSessionSecret = "dev-insecure-session-secret"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "marketplace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "marketplace-backend")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnStart {
		if err := migrate.Run(migrate.Options{DSN: cfg.Database.URL, Command: "up", Logger: log.Named("migrate")}); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// logins answer 503 until redis is reachable
		log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	secret := cfg.Session.Secret
	if secret == "" {
		secret = devSessionSecret
		log.Warn("session.secret not set, using development fallback")
	}
	sessions, err := auth.NewSessionManager(secret, auth.SessionOptions{
		CookieName: cfg.Session.CookieName,
		Lifetime:   cfg.Session.Lifetime,
		Secure:     cfg.Session.SecureCookie,
	})
	if err != nil {
		return fmt.Errorf("configure sessions: %w", err)
	}

	m := metrics.New()
	for _, s := range rbac.DefaultRoutes.Shadowed() {
		log.Warn("protected route can never match",
			zap.String("path", s.Entry.Path),
			zap.String("shadowed_by", s.ShadowedBy.Path),
		)
	}

	router := newRouter(app{
		logger:      log,
		metrics:     m,
		sessions:    sessions,
		routes:      rbac.DefaultRoutes,
		timeout:     cfg.HTTP.RequestTimeout,
		profiles:    profiles.NewPGStore(pool),
		dealers:     dealers.NewPGStore(pool),
		staff:       staff.NewPGStore(pool),
		listings:    listings.NewPGStore(pool),
		leads:       leads.NewPGStore(pool),
		inspections: inspections.NewPGStore(pool),
		limiter:     auth.NewLoginRateLimiter(rdb, m, log.Named("ratelimit")),
		currency: currency.NewConverter(currency.Options{
			BaseURL:  cfg.Currency.BaseURL,
			Timeout:  cfg.Currency.Timeout,
			CacheTTL: cfg.Currency.CacheTTL,
		}, rdb, m, log.Named("currency")),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
