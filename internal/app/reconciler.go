package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/booking"
)

const reconcileRunTimeout = 30 * time.Second

// Reconciler runs booking.Service.Reconcile on a fixed interval.
type Reconciler struct {
	svc      *booking.Service
	logger   *zap.Logger
	interval time.Duration
	grace    time.Duration
}

func NewReconciler(svc *booking.Service, logger *zap.Logger, interval, grace time.Duration) *Reconciler {
	return &Reconciler{
		svc:      svc,
		logger:   logger,
		interval: interval,
		grace:    grace,
	}
}

// Run reconciles once immediately, then on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("grace", r.grace),
	)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) *booking.ReconcileReport {
	runCtx, cancel := context.WithTimeout(ctx, reconcileRunTimeout)
	defer cancel()

	start := time.Now()
	report, err := r.svc.Reconcile(runCtx, r.grace)
	if err != nil {
		r.logger.Error("reconcile run failed", zap.Error(err))
		return report
	}

	r.logger.Info("reconcile run complete",
		zap.Int("doctors", report.DoctorsScanned),
		zap.Int("patients", report.PatientsScanned),
		zap.Int("drifts", len(report.Drifts)),
		zap.Int("repaired", report.Repaired()),
		zap.Duration("took", time.Since(start)),
	)
	return report
}
