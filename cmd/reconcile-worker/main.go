package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/app"
	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/config"
)

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

	logger.Info("reconcile-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
	)
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("memory store is per process; the worker sees none of the api server's data")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer closeStore()

	svc := booking.NewService(
		booking.NewSlotLedger(store, logger.Named("slots")),
		booking.NewAppointmentLedger(store, logger.Named("appointments")),
		logger.Named("booking"),
	)

	app.NewReconciler(svc, logger.Named("reconcile"), cfg.ReconcileInterval, cfg.ReconcileGrace).Run(rootCtx)
}
