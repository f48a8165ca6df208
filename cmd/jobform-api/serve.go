package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobform/internal/api"
	"jobform/internal/auth"
	"jobform/internal/config"
	"jobform/internal/db"
	"jobform/internal/jobs"
	"jobform/internal/pubsub"
	"jobform/internal/schema"
	"jobform/internal/service"
	"jobform/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logger, err := newLogger(debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Development logging")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	bus := pubsub.New(rdb, logger)

	objects, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	jobServer, jobClient := jobs.NewJobServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, dbPool.Queries, objects, bus, cfg.PhotoSweepDelay, logger)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()

	policy := storage.PhotoPolicy(cfg.PhotoMaxMB)
	forms := service.NewFormService(dbPool.Queries, schema.NewCompilerWithCache(cfg.SchemaCacheSize), objects, policy, bus, logger)
	forms.SetJobClient(service.NewAsynqJobClient(jobClient))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/v1", api.Routes(api.Dependencies{
		Forms:          forms,
		Auth:           auth.NewJWTConfig(cfg.JWTSecret, cfg.AuthRequired),
		Log:            logger,
		MaxUploadBytes: policy.MaxBytes(),
	}))
	if local, ok := objects.(*storage.LocalStorage); ok {
		r.Handle("/files/*", api.FileServer(local.Dir()))
	}
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server", zap.String("addr", cfg.Addr), zap.String("storage", cfg.StorageDriver))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
	return nil
}

func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case "minio":
		s, err := storage.NewMinIOStorage(ctx, cfg.MinIO, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(cfg.StorageBaseDir, cfg.StorageBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return s, nil
	}
}
