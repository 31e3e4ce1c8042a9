package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/app"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/auth"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/config"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/export"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/session"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// backendSet is the record backend plus the submission guard that goes
// with it.
type backendSet struct {
	backend store.Backend
	guard   session.Guard
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backendSet, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return backendSet{}, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("using redis backend")
		return backendSet{backend: redisStore, guard: session.NewRedisGuardWithClient(redisStore.Client())}, nil
	case config.BackendPostgres:
		pgStore, err := store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			return backendSet{}, fmt.Errorf("postgres backend failed: %w", err)
		}
		logger.Info("using postgres backend")
		return backendSet{backend: pgStore, guard: session.NewMemoryGuard()}, nil
	default:
		logger.Warn("using in-memory backend; proposals are lost on restart")
		return backendSet{backend: store.NewMemoryStore(), guard: session.NewMemoryGuard()}, nil
	}
}

func openKeepsakes(ctx context.Context, cfg config.Config, logger *zap.Logger) *export.Service {
	capturer := export.ChromeCapturer{ExecPath: cfg.Keepsake.ChromePath, Timeout: cfg.Keepsake.Timeout}
	var archive export.Archive
	if cfg.Keepsake.S3Endpoint != "" {
		minioArchive, err := export.NewMinioArchive(ctx, export.ArchiveConfig{
			Endpoint:  cfg.Keepsake.S3Endpoint,
			AccessKey: cfg.Keepsake.S3AccessKey,
			SecretKey: cfg.Keepsake.S3SecretKey,
			Bucket:    cfg.Keepsake.S3Bucket,
			Region:    cfg.Keepsake.S3Region,
			UseSSL:    cfg.Keepsake.S3UseSSL,
			LinkTTL:   cfg.Keepsake.LinkTTL,
		})
		if err != nil {
			logger.Warn("keepsake archive disabled", zap.Error(err))
		} else {
			archive = minioArchive
		}
	}
	return export.NewService(capturer, archive, logger)
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	backends, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.backend.Close()

	proposals := proposal.NewStore(backends.backend, proposal.WithLogger(logger))
	service := app.New(cfg, proposals, backends.guard, openKeepsakes(ctx, cfg, logger), logger)
	clients := auth.Clients{Secret: []byte(cfg.ClientSecret), TTL: cfg.ClientTTL, Secure: cfg.SecureCookie}
	httpServer := app.NewHTTPServer(service, clients, cfg.CORSOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// the tracking stream stays open, so no write timeout
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("valentine api listening", zap.String("addr", cfg.Addr), zap.String("backend", cfg.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		return nil
	})

	err = group.Wait()
	logger.Info("valentine api stopped")
	return err
}
