package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/config"
	"auction-settlement/internal/metrics"
	"auction-settlement/internal/notify"
	"auction-settlement/internal/objectstore"
	"auction-settlement/internal/repository"
	"auction-settlement/internal/server"
	"auction-settlement/internal/settlement"
	"auction-settlement/utils"

	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

// serve wires the configured backends and runs the API until ctx is cancelled or a signal arrives
func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				utils.Warn("shutdown: close failed", map[string]any{"error": err.Error()})
			}
		}
	}()

	store, health, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, store)

	if cfg.Redis.Addr != "" {
		tokens, err := repository.NewRedisTokenStore(ctx, repository.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		closers = append(closers, tokens)
		store = repository.TokenOverride{Store: store, Tokens: tokens}
		utils.Info("tokens stored in redis", map[string]any{"addr": cfg.Redis.Addr})
	}

	var (
		objects objectstore.Store
		files   *objectstore.MemoryStore
	)
	if cfg.Minio.Endpoint == "" {
		files = objectstore.NewMemoryStore(localFilesURL(cfg.Server.Addr))
		objects = files
	} else {
		objects, err = objectstore.NewMinioStore(ctx, objectstore.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			PublicURL: cfg.Minio.PublicURL,
		})
		if err != nil {
			return err
		}
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.AMQP.URL != "" {
		amqpMailer, err := notify.DialAMQPMailer(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			return err
		}
		closers = append(closers, amqpMailer)
		mailer = amqpMailer
	}

	minAmount, err := cfg.MinAmount()
	if err != nil {
		return err
	}
	tokens := auth.NewJWTMaker(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	m := metrics.New()

	engine, err := settlement.New(settlement.Deps{
		Store:   store,
		Tokens:  tokens,
		Mailer:  mailer,
		Objects: objects,
		Metrics: m,
	}, settlement.Options{
		StoreTimeout:         cfg.Database.StoreTimeout,
		TokenTTL:             cfg.Tokens.TTL,
		MinAmount:            minAmount,
		AllocatorPrefix:      cfg.Allocator.Prefix,
		AllocatorMaxAttempts: cfg.Allocator.MaxAttempts,
	})
	if err != nil {
		return err
	}

	router := server.SetupRouter(server.RouterDeps{
		Service: engine,
		Tokens:  tokens,
		Limiter: server.NewClientLimiter(rate.Limit(cfg.Auth.RateLimit), cfg.Auth.RateBurst),
		Metrics: m,
		Health:  health,
		Files:   files,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{
			"addr":   cfg.Server.Addr,
			"driver": cfg.Database.Driver,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	utils.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func localFilesURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/files"
}

// openStore returns the configured store and, for Postgres, its health check
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, server.Pinger, error) {
	if cfg.Database.Driver != "postgres" {
		return repository.NewMemoryRepo(), nil, nil
	}
	if err := repository.MigrateUp(cfg.Database.DSN); err != nil {
		return nil, nil, err
	}
	repo, err := repository.NewPostgresRepo(ctx, cfg.Database.DSN, cfg.Database.MaxTxRetries)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}
