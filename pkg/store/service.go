package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Service is the application-layer facade the HTTP handlers call: admission
// through the gate, reads through the repository, teardown through the
// lifecycle engine.
type Service struct {
	repo      *Repository
	gate      *Gate
	engine    *Engine
	dnsSuffix string
}

// NewService wires a Service from its already-constructed collaborators.
func NewService(repo *Repository, gate *Gate, engine *Engine, dnsSuffix string) *Service {
	return &Service{repo: repo, gate: gate, engine: engine, dnsSuffix: dnsSuffix}
}

// CreateResult is the outcome of a Create call.
type CreateResult struct {
	Store  Row
	Replay bool
}

// Create admits a new store through the gate and, on a fresh admission,
// starts its provisioning watch.
func (s *Service) Create(ctx context.Context, tenantID, idempotencyKey string) (CreateResult, error) {
	result, err := s.gate.Admit(ctx, tenantID, idempotencyKey, s.dnsSuffix, time.Now())
	if err != nil {
		return CreateResult{}, err
	}
	if !result.Replay {
		s.engine.StartProvisioning(ctx, result.Store)
	}
	return CreateResult{Store: result.Store, Replay: result.Replay}, nil
}

// Get returns a single store scoped to tenantID.
func (s *Service) Get(ctx context.Context, id, tenantID string) (Row, error) {
	row, err := s.repo.GetStore(ctx, id, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		return Row{}, err
	}
	return row, nil
}

// List returns all non-deleted stores for tenantID.
func (s *Service) List(ctx context.Context, tenantID string) ([]Row, error) {
	return s.repo.ListStoresForTenant(ctx, tenantID)
}

// Delete applies the idempotent delete rules and, on a fresh teardown
// request, starts the uninstall.
func (s *Service) Delete(ctx context.Context, id, tenantID string) (Row, string, error) {
	return s.engine.Delete(ctx, id, tenantID)
}
