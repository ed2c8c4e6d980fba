package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/api"
	"github.com/Rawan10101/Carevo/internal/app"
	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/config"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer closeStore()

	slots := booking.NewSlotLedger(store, logger.Named("slots"))
	appts := booking.NewAppointmentLedger(store, logger.Named("appointments"))
	svc := booking.NewService(slots, appts, logger.Named("booking"))

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:        svc,
			Slots:          slots,
			Store:          store,
			Backend:        cfg.StoreBackend,
			Logger:         logger.Named("http"),
			Env:            cfg.Env,
			Version:        version,
			RequestTimeout: cfg.RequestTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api-server stopped")
}
