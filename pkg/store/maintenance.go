package store

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceLimits holds the timing configuration the maintenance task
// consults for GC and the stranded-provisioning sweep.
type MaintenanceLimits struct {
	IdempotencyWindow   time.Duration
	ProvisioningTimeout time.Duration
}

// RunMaintenanceLoop runs GC of expired idempotency/rate records and the
// stranded-provisioning sweep periodically until ctx is cancelled. It must
// not block request handling and tolerates transient database errors by
// retrying on its next tick.
func RunMaintenanceLoop(ctx context.Context, repo *Repository, logger *slog.Logger, limits MaintenanceLimits, interval time.Duration) {
	logger.Info("maintenance loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runMaintenance(ctx, repo, logger, limits)

	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance loop stopped")
			return
		case <-ticker.C:
			runMaintenance(ctx, repo, logger, limits)
		}
	}
}

func runMaintenance(ctx context.Context, repo *Repository, logger *slog.Logger, limits MaintenanceLimits) {
	now := time.Now()

	if n, err := repo.GCIdempotencyKeys(ctx, now.Add(-limits.IdempotencyWindow)); err != nil {
		logger.Error("gc idempotency keys", "error", err)
	} else if n > 0 {
		logger.Info("gc idempotency keys", "deleted", n)
	}

	if n, err := repo.GCRateLimits(ctx, now.Add(-time.Hour)); err != nil {
		logger.Error("gc rate limits", "error", err)
	} else if n > 0 {
		logger.Info("gc rate limits", "deleted", n)
	}

	sweepStranded(ctx, repo, logger, now.Add(-limits.ProvisioningTimeout))
}

// sweepStranded moves Provisioning stores whose provisioning_started_at
// predates cutoff to Failed, recovering stores whose replica died before
// its readiness watch reached a terminal state.
func sweepStranded(ctx context.Context, repo *Repository, logger *slog.Logger, cutoff time.Time) {
	stranded, err := repo.ListStrandedProvisioning(ctx, cutoff)
	if err != nil {
		logger.Error("listing stranded stores", "error", err)
		return
	}

	reason := "Provisioning timeout exceeded"
	for _, s := range stranded {
		if err := repo.UpdateStoreStatus(ctx, s.ID, StatusFailed, &reason, "", time.Time{}); err != nil {
			logger.Error("reaping stranded store", "store_id", s.ID, "error", err)
			continue
		}
		logger.Info("reaped stranded provisioning store", "store_id", s.ID, "tenant_id", s.TenantID)
		if err := repo.Audit(ctx, s.TenantID, "store.failed", "store", s.ID, "failure", auditDetail(reason, "", "")); err != nil {
			logger.Warn("audit write failed", "store_id", s.ID, "error", err)
		}
	}
}
