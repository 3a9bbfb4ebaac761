package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forgeline/storeplane/internal/telemetry"
)

// ErrNotFound is returned when a store does not exist for the given tenant.
var ErrNotFound = errors.New("store: not found")

// EngineLimits holds the timing configuration the lifecycle engine consults
// while driving a store's readiness watch.
type EngineLimits struct {
	ReadinessCheckInterval time.Duration
	ProvisioningTimeout    time.Duration
	MaxReadinessChecks     int
}

// Engine drives a single store through Provisioning → Ready|Failed and
// * → Deleting → Deleted|Failed. It never blocks an HTTP handler:
// StartProvisioning runs the install and readiness watch in a goroutine, and
// Delete performs only its transactional write and hands the uninstall to a
// goroutine.
type Engine struct {
	repo         *Repository
	orchestrator Orchestrator
	lock         *WatchLock
	notifier     *Notifier
	logger       *slog.Logger
	limits       EngineLimits
	chartPath    string
}

// NewEngine creates an Engine.
func NewEngine(repo *Repository, orchestrator Orchestrator, lock *WatchLock, notifier *Notifier, logger *slog.Logger, limits EngineLimits, chartPath string) *Engine {
	return &Engine{
		repo:         repo,
		orchestrator: orchestrator,
		lock:         lock,
		notifier:     notifier,
		logger:       logger,
		limits:       limits,
		chartPath:    chartPath,
	}
}

// StartProvisioning launches the asynchronous install + readiness watch for
// a freshly admitted store. Call after the create transaction has committed
// and the response has been sent.
func (e *Engine) StartProvisioning(ctx context.Context, s Row) {
	go e.provision(context.WithoutCancel(ctx), s)
}

func (e *Engine) provision(ctx context.Context, s Row) {
	owner := uuid.NewString()
	if !e.lock.Acquire(ctx, s.ID, owner) {
		e.logger.Info("skipping provisioning watch, lease held by another replica", "store_id", s.ID)
		return
	}
	defer e.lock.Release(ctx, s.ID, owner)

	if err := e.orchestrator.Install(ctx, s.ID, e.chartPath, s.Namespace, s.Host); err != nil {
		e.fail(ctx, s, "install failed: "+err.Error(), "", "")
		return
	}

	start := time.Now()
	attempts := 0
	ticker := time.NewTicker(e.limits.ReadinessCheckInterval)
	defer ticker.Stop()

	for {
		attempts++
		if stop, reason := provisioningStopCondition(time.Since(start), attempts, e.limits); stop {
			e.fail(ctx, s, reason, "", "")
			return
		}

		if !e.lock.Renew(ctx, s.ID, owner) {
			e.logger.Info("lost provisioning watch lease, stopping", "store_id", s.ID)
			return
		}

		podResult, err := e.orchestrator.CheckPodReadiness(ctx, s.Namespace)
		if err != nil {
			telemetry.ReadinessChecksTotal.WithLabelValues("error").Inc()
			e.logger.Warn("pod readiness check errored, retrying", "store_id", s.ID, "error", err)
		} else if podResult.Ready {
			ingressResult, err := e.orchestrator.CheckIngressReadiness(ctx, s.Host)
			if err != nil {
				telemetry.ReadinessChecksTotal.WithLabelValues("error").Inc()
				e.logger.Warn("ingress readiness check errored, retrying", "store_id", s.ID, "error", err)
			} else if ingressResult.Ready {
				telemetry.ReadinessChecksTotal.WithLabelValues("ready").Inc()
				e.ready(ctx, s)
				return
			} else {
				telemetry.ReadinessChecksTotal.WithLabelValues("not_ready").Inc()
				e.logger.Debug("ingress not ready", "store_id", s.ID, "reason", ingressResult.Reason)
			}
		} else {
			telemetry.ReadinessChecksTotal.WithLabelValues("not_ready").Inc()
			e.logger.Debug("pods not ready", "store_id", s.ID, "reason", podResult.Reason)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// provisioningStopCondition reports whether the readiness loop must stop
// before attempting another check, and why. Timeout is checked ahead of the
// attempt cap so whichever bound is hit first determines the reason.
func provisioningStopCondition(elapsed time.Duration, attempt int, limits EngineLimits) (stop bool, reason string) {
	if elapsed > limits.ProvisioningTimeout {
		return true, "Provisioning timeout exceeded"
	}
	if attempt > limits.MaxReadinessChecks {
		return true, "Maximum readiness checks exceeded"
	}
	return false, ""
}

func (e *Engine) ready(ctx context.Context, s Row) {
	now := time.Now()
	if err := e.repo.UpdateStoreStatus(ctx, s.ID, StatusReady, nil, "ready_at", now); err != nil {
		e.logger.Error("marking store ready failed", "store_id", s.ID, "error", err)
		return
	}
	telemetry.StoreTransitionsTotal.WithLabelValues(string(StatusReady)).Inc()
	e.audit(ctx, s.TenantID, "store.ready", s.ID, "success", nil)
	e.notifier.NotifyReady(ctx, s)
}

func (e *Engine) fail(ctx context.Context, s Row, reason, stdout, stderr string) {
	if err := e.repo.UpdateStoreStatus(ctx, s.ID, StatusFailed, &reason, "", time.Time{}); err != nil {
		e.logger.Error("marking store failed failed", "store_id", s.ID, "error", err)
		return
	}
	telemetry.StoreTransitionsTotal.WithLabelValues(string(StatusFailed)).Inc()
	e.audit(ctx, s.TenantID, "store.failed", s.ID, "failure", auditDetail(reason, stdout, stderr))
	e.notifier.NotifyFailed(ctx, s, reason)
}

// audit writes a best-effort audit entry; failures are logged, never propagated.
func (e *Engine) audit(ctx context.Context, tenantID, action, resourceID, status string, details json.RawMessage) {
	if err := e.repo.Audit(ctx, tenantID, action, "store", resourceID, status, details); err != nil {
		e.logger.Warn("audit write failed", "action", action, "resource_id", resourceID, "error", err)
	}
}

// auditDetail encodes an orchestrator failure's captured output for the
// audit trail, so a reader can see why a transition failed without
// cross-referencing logs.
func auditDetail(reason, stdout, stderr string) json.RawMessage {
	b, err := json.Marshal(map[string]string{"reason": reason, "stdout": stdout, "stderr": stderr})
	if err != nil {
		return nil
	}
	return b
}

// Delete locks the store row, applies the idempotent-delete rules, and on
// a fresh teardown request hands the uninstall off to a background task.
// The returned message is suitable for direct inclusion in the HTTP response.
func (e *Engine) Delete(ctx context.Context, id, tenantID string) (Row, string, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return Row{}, "", fmt.Errorf("beginning delete transaction: %w", err)
	}

	s, err := e.repo.LockStore(ctx, tx, id, tenantID)
	if err != nil {
		tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, "", ErrNotFound
		}
		return Row{}, "", fmt.Errorf("locking store: %w", err)
	}

	switch s.Status {
	case StatusDeleted:
		tx.Rollback(ctx)
		return s, "already deleted", nil
	case StatusDeleting:
		tx.Rollback(ctx)
		return s, "in progress", nil
	}

	now := time.Now()
	if err := e.repo.UpdateStoreStatusTx(ctx, tx, id, StatusDeleting, nil, "deletion_started_at", now); err != nil {
		tx.Rollback(ctx)
		return Row{}, "", fmt.Errorf("marking store deleting: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Row{}, "", fmt.Errorf("committing delete transaction: %w", err)
	}

	s.Status = StatusDeleting
	s.DeletionStartedAt = &now
	telemetry.StoreTransitionsTotal.WithLabelValues(string(StatusDeleting)).Inc()

	go e.teardown(context.WithoutCancel(ctx), s)

	return s, "deletion started", nil
}

func (e *Engine) teardown(ctx context.Context, s Row) {
	if err := e.orchestrator.Uninstall(ctx, s.ID, s.Namespace); err != nil {
		reason := "Deletion failed: " + err.Error()
		if updErr := e.repo.UpdateStoreStatus(ctx, s.ID, StatusFailed, &reason, "", time.Time{}); updErr != nil {
			e.logger.Error("marking store failed after teardown error failed", "store_id", s.ID, "error", updErr)
		}
		telemetry.StoreTransitionsTotal.WithLabelValues(string(StatusFailed)).Inc()
		e.audit(ctx, s.TenantID, "store.delete_failed", s.ID, "failure", auditDetail(reason, "", ""))
		e.notifier.NotifyFailed(ctx, s, reason)
		return
	}

	now := time.Now()
	if err := e.repo.UpdateStoreStatus(ctx, s.ID, StatusDeleted, nil, "deleted_at", now); err != nil {
		e.logger.Error("marking store deleted failed", "store_id", s.ID, "error", err)
		return
	}
	telemetry.StoreTransitionsTotal.WithLabelValues(string(StatusDeleted)).Inc()
	e.audit(ctx, s.TenantID, "store.deleted", s.ID, "success", nil)
	e.notifier.NotifyDeleted(ctx, s)
}
