package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/nicolasppejo/wagate/internal/api"
	"github.com/nicolasppejo/wagate/internal/config"
	"github.com/nicolasppejo/wagate/internal/logging"
	"github.com/nicolasppejo/wagate/internal/session"
	"github.com/nicolasppejo/wagate/internal/webhook"
)

// @title Wagate WhatsApp Gateway API
// @version 1.0
// @description A REST API for managing WhatsApp messaging sessions
// @BasePath /api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("wagate exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Linked-device name shown in the phone's device list. Must be set
	// before any client connects.
	store.DeviceProps.Os = proto.String(cfg.DeviceName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", cfg.DBPath),
		logging.Wa(logger, "Database"))
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}

	hook := webhook.NewDispatcher(
		filepath.Join(cfg.DataDir, "webhook.json"),
		webhook.Settings{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret},
		logger)

	mgr := session.NewManager(container, hook, cfg, logger, os.Stdout)
	if err := mgr.Restore(ctx); err != nil {
		logger.Warn("restore sessions", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.New(mgr, hook, cfg, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("base_url", cfg.BaseURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	mgr.DisconnectAll()
	return nil
}
