package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeTx is a no-op TxHandle for gate unit tests.
type fakeTx struct {
	rolledBack bool
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

// fakeGateStore is an in-memory gateStore used to unit test Gate without a
// database.
type fakeGateStore struct {
	replay       *Row
	counts       AdmissionCounts
	checkErr     error
	commitErr    error
	lastTx       *fakeTx
	committed    *Row
	committedKey string
}

func (f *fakeGateStore) CheckIdempotent(ctx context.Context, key string, idempotencyCutoff time.Time, tenantID string, rateCutoff time.Time) (*Row, AdmissionCounts, TxHandle, error) {
	if f.checkErr != nil {
		return nil, AdmissionCounts{}, nil, f.checkErr
	}
	f.lastTx = &fakeTx{}
	return f.replay, f.counts, f.lastTx, nil
}

func (f *fakeGateStore) CommitCreate(ctx context.Context, tx TxHandle, row Row, idempotencyKey string, now time.Time) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	r := row
	f.committed = &r
	f.committedKey = idempotencyKey
	return nil
}

func newTestGate(fs *fakeGateStore, limits GateLimits) *Gate {
	return &Gate{store: fs, limits: limits}
}

func defaultLimits() GateLimits {
	return GateLimits{
		MaxStoresGlobal:    100,
		MaxStoresPerTenant: 10,
		MaxStoresPerHour:   5,
		IdempotencyWindow:  5 * time.Minute,
	}
}

func TestGateAdmit_Replay(t *testing.T) {
	existing := Row{ID: "store-aaaaaaaa", TenantID: "t1", Status: StatusReady}
	fs := &fakeGateStore{replay: &existing}
	g := newTestGate(fs, defaultLimits())

	result, err := g.Admit(context.Background(), "t1", "K1", "stores.example.com", time.Now())
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if !result.Replay {
		t.Error("expected Replay = true")
	}
	if result.Store.ID != existing.ID {
		t.Errorf("Store.ID = %q, want %q", result.Store.ID, existing.ID)
	}
	if !fs.lastTx.rolledBack {
		t.Error("expected replay transaction to be rolled back")
	}
	if fs.committed != nil {
		t.Error("replay must not consume quota or rate budget")
	}
}

func TestGateAdmit_GlobalCapExceeded(t *testing.T) {
	fs := &fakeGateStore{counts: AdmissionCounts{GlobalActive: 100}}
	g := newTestGate(fs, defaultLimits())

	_, err := g.Admit(context.Background(), "t1", "K1", "stores.example.com", time.Now())

	var qerr *QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QuotaError, got %v", err)
	}
	if fs.committed != nil {
		t.Error("rejected request must not commit a store")
	}
}

func TestGateAdmit_TenantCapExceeded(t *testing.T) {
	fs := &fakeGateStore{counts: AdmissionCounts{TenantActive: 10}}
	limits := defaultLimits()
	g := newTestGate(fs, limits)

	_, err := g.Admit(context.Background(), "t1", "K1", "stores.example.com", time.Now())

	var qerr *QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QuotaError, got %v", err)
	}
}

func TestGateAdmit_RateLimitExceeded(t *testing.T) {
	now := time.Now()
	oldest := now.Add(-50 * time.Minute)
	fs := &fakeGateStore{counts: AdmissionCounts{RateCount: 5, OldestInRate: &oldest}}
	g := newTestGate(fs, defaultLimits())

	_, err := g.Admit(context.Background(), "t1", "K1", "stores.example.com", now)

	var rerr *RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rerr.RetryAfterSeconds < 1 {
		t.Errorf("RetryAfterSeconds = %d, want >= 1", rerr.RetryAfterSeconds)
	}
	wantApprox := 10 * 60 // 10 minutes remaining in the window
	if diff := rerr.RetryAfterSeconds - wantApprox; diff < -2 || diff > 2 {
		t.Errorf("RetryAfterSeconds = %d, want approximately %d", rerr.RetryAfterSeconds, wantApprox)
	}
}

func TestGateAdmit_Success(t *testing.T) {
	fs := &fakeGateStore{}
	g := newTestGate(fs, defaultLimits())

	result, err := g.Admit(context.Background(), "t1", "K1", "stores.example.com", time.Now())
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if result.Replay {
		t.Error("expected Replay = false")
	}
	if result.Store.Status != StatusProvisioning {
		t.Errorf("Status = %q, want %q", result.Store.Status, StatusProvisioning)
	}
	if result.Store.Host != result.Store.ID+".stores.example.com" {
		t.Errorf("Host = %q, does not match id", result.Store.Host)
	}
	if fs.committed == nil {
		t.Fatal("expected CommitCreate to be called")
	}
	if fs.committedKey != "K1" {
		t.Errorf("committed idempotency key = %q, want %q", fs.committedKey, "K1")
	}
}

func TestGateAdmit_GeneratesIdempotencyKeyWhenAbsent(t *testing.T) {
	fs := &fakeGateStore{}
	g := newTestGate(fs, defaultLimits())

	_, err := g.Admit(context.Background(), "t1", "", "stores.example.com", time.Now())
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if fs.committedKey == "" {
		t.Error("expected a generated idempotency key when none is supplied")
	}
}
