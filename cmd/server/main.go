package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"reviewshelf/internal/app"
	"reviewshelf/internal/config"
	"reviewshelf/internal/ratelimit"
	"reviewshelf/internal/server"
	"reviewshelf/internal/util"
	"reviewshelf/pkg/auth"
)

const rateWindow = time.Minute

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, tokenTTL, auth.TokenOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	authLimiter, err := newLimiter(cfg, "auth", cfg.AuthRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init auth rate limiter: %v", err)
	}
	reviewLimiter, err := newLimiter(cfg, "review", cfg.ReviewRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init review rate limiter: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Tokens:      tokens,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		AuthLimiter:    authLimiter,
		ReviewLimiter:  reviewLimiter,
		TrustedProxies: trusted,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// newLimiter picks the Redis fixed-window limiter when Redis is configured
// and falls back to the in-process token bucket otherwise. A zero limit
// disables the limiter.
func newLimiter(cfg config.FileConfig, name string, perMinute int) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		prefix := "reviewshelf:ratelimit:" + name
		return ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, rateWindow)
	}
	return ratelimit.NewTokenBucketLimiter(perMinute, rateWindow)
}
