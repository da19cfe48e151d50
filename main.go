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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memodraft/internal/api"
	"memodraft/internal/auth"
	"memodraft/internal/config"
	"memodraft/internal/contextguide"
	"memodraft/internal/logger"
	"memodraft/internal/redis"
	"memodraft/internal/service/ai"
	"memodraft/internal/service/assistant"
	"memodraft/internal/storage"
	"memodraft/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "memodraft",
		Short:         "Credit memo drafting assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.json (default $MEMODRAFT_CONFIG or ./config.json)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfgPath == "" {
				cfgPath = os.Getenv("MEMODRAFT_CONFIG")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfgPath)
		},
	}
	root.AddCommand(serveCmd)
	return root
}

func runServer(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	if cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("opening database", zap.String("driver", cfg.Database.Driver))
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var rdb *redis.Client
	if redis.Enabled(cfg.Redis) {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	}

	authService := auth.NewService(db, rdb, cfg.Session.TokenTTL, log)
	authService.SetSecureCookie(cfg.Server.SecureCookie)

	guide := contextguide.New(cfg.ContextGuide.Source, cfg.ContextGuide.Timeout, log)
	guide.Start(ctx)

	gateway, err := ai.NewGateway(ctx, cfg.AI, log)
	if err != nil {
		return fmt.Errorf("init ai gateway: %w", err)
	}

	dispatcher := worker.NewDispatcher(
		cfg.Workers.MinWorkers,
		cfg.Workers.MaxWorkers,
		cfg.Workers.QueueSize,
		cfg.Workers.IdleTimeout,
		log,
	)
	defer dispatcher.Stop()

	assistantService, err := assistant.NewService(assistant.Options{
		Gateway:         gateway,
		Dispatcher:      dispatcher,
		Tokens:          authService,
		Guide:           guide,
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		Log:             log,
	})
	if err != nil {
		return fmt.Errorf("init assistant service: %w", err)
	}
	assistantService.StartTokenCleaner(ctx, cfg.Session.CleanupInterval)

	handler := api.NewHandler(assistantService, authService, cfg.Upload, log)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.NewRouter(handler, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
