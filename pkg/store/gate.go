package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/storeplane/internal/telemetry"
)

// QuotaError is returned when a create request is rejected by the global or
// per-tenant active-store cap.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string { return e.Reason }

// RateLimitError is returned when a create request exceeds the per-tenant
// hourly rate window. RetryAfterSeconds is always >= 1.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// GateLimits holds the quota and rate configuration consulted by Gate.
type GateLimits struct {
	MaxStoresGlobal    int
	MaxStoresPerTenant int
	MaxStoresPerHour   int
	IdempotencyWindow  time.Duration
}

// gateStore is the persistence surface Gate depends on. *Repository
// satisfies it; tests substitute an in-memory fake.
type gateStore interface {
	CheckIdempotent(ctx context.Context, key string, idempotencyCutoff time.Time, tenantID string, rateCutoff time.Time) (*Row, AdmissionCounts, TxHandle, error)
	CommitCreate(ctx context.Context, tx TxHandle, row Row, idempotencyKey string, now time.Time) error
}

// Gate enforces the quota/idempotency/rate predicate described for store
// creation: idempotency replay, then global cap, then per-tenant cap, then
// per-tenant rate window, strictly in that order. It is a pure predicate
// over the persistence layer — no orchestrator calls, no background work.
type Gate struct {
	store  gateStore
	limits GateLimits
}

// NewGate creates a Gate backed by repo using the given limits.
func NewGate(repo *Repository, limits GateLimits) *Gate {
	return &Gate{store: repo, limits: limits}
}

// GateResult is the outcome of a successful Admit call.
type GateResult struct {
	Store  Row
	Replay bool
}

// Admit runs the full gate predicate and, on success, atomically inserts the
// new store, its idempotency record, and its rate record in a single
// transaction. A request that satisfies idempotency replay never consumes
// quota or rate budget.
func (g *Gate) Admit(ctx context.Context, tenantID, idempotencyKey, dnsSuffix string, now time.Time) (GateResult, error) {
	idempotencyCutoff := now.Add(-g.limits.IdempotencyWindow)
	rateCutoff := now.Add(-time.Hour)

	replay, counts, tx, err := g.store.CheckIdempotent(ctx, idempotencyKey, idempotencyCutoff, tenantID, rateCutoff)
	if err != nil {
		return GateResult{}, fmt.Errorf("checking admission: %w", err)
	}

	if replay != nil {
		tx.Rollback(ctx)
		telemetry.IdempotentReplaysTotal.Inc()
		return GateResult{Store: *replay, Replay: true}, nil
	}

	if counts.GlobalActive >= g.limits.MaxStoresGlobal {
		tx.Rollback(ctx)
		telemetry.GateRejectionsTotal.WithLabelValues("global_cap").Inc()
		return GateResult{}, &QuotaError{Reason: "global store quota exceeded"}
	}
	if counts.TenantActive >= g.limits.MaxStoresPerTenant {
		tx.Rollback(ctx)
		telemetry.GateRejectionsTotal.WithLabelValues("tenant_cap").Inc()
		return GateResult{}, &QuotaError{Reason: "tenant store quota exceeded"}
	}
	if counts.RateCount >= g.limits.MaxStoresPerHour {
		tx.Rollback(ctx)
		telemetry.GateRejectionsTotal.WithLabelValues("rate_limit").Inc()
		retryAfter := 1
		if counts.OldestInRate != nil {
			remaining := counts.OldestInRate.Add(time.Hour).Sub(now)
			if s := int(math.Ceil(remaining.Seconds())); s > retryAfter {
				retryAfter = s
			}
		}
		return GateResult{}, &RateLimitError{RetryAfterSeconds: retryAfter}
	}

	id, err := GenerateID()
	if err != nil {
		tx.Rollback(ctx)
		return GateResult{}, err
	}

	row := Row{
		ID:                    id,
		TenantID:              tenantID,
		Namespace:             id,
		Host:                  Host(id, dnsSuffix),
		Status:                StatusProvisioning,
		CreatedAt:             now,
		ProvisioningStartedAt: &now,
	}

	key := idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	if err := g.store.CommitCreate(ctx, tx, row, key, now); err != nil {
		return GateResult{}, err
	}

	return GateResult{Store: row}, nil
}
