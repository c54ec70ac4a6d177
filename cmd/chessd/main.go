package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/chessbuilder"
	appcfg "github.com/park285/cheese-chess/internal/config"
	"github.com/park285/cheese-chess/internal/obslog"
	"github.com/park285/cheese-chess/internal/server"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := chessbuilder.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("chess_init_failed", zap.Error(err))
	}

	api, err := server.NewAPI(deps.Service, deps.Messages, logger.Named("http"))
	if err != nil {
		logger.Fatal("http_init_failed", zap.Error(err))
	}
	events := server.NewEvents(deps.Service, deps.Service.Hub(), logger.Named("events"))

	errCh := make(chan error, 2)
	go func() { errCh <- api.ListenAndServe(cfg.HTTPAddr) }()
	if cfg.EventsAddr != "" {
		go func() { errCh <- events.ListenAndServe(cfg.EventsAddr) }()
	}

	resumeCtx, cancelResume := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := deps.Service.Resume(resumeCtx); err != nil {
		logger.Warn("games_resume_failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("games_resumed", zap.Int("count", n))
	}
	cancelResume()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go deps.Service.RunJanitor(janitorCtx, janitorInterval)

	logger.Info("chessd_started",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("events_addr", cfg.EventsAddr),
		zap.Bool("redis", deps.Store != nil))

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("chessd_stopping", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("listener_failed", zap.Error(err))
		}
	}

	stopJanitor()
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := api.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	if err := events.Shutdown(sctx); err != nil {
		logger.Warn("events_shutdown_failed", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("deps_close_failed", zap.Error(err))
	}
}
