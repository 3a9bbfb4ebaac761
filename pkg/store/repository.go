package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflict is returned by InsertStore when id or host already exists.
var ErrConflict = errors.New("store: id or host already exists")

// Repository provides persistence operations for stores, idempotency
// records, rate records, and the audit log. All writes that span multiple
// rows run under a caller-supplied transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const storeColumns = `id, tenant_id, namespace, host, status, failure_reason,
	created_at, provisioning_started_at, ready_at, deletion_started_at, deleted_at`

func scanStoreRow(row pgx.Row) (Row, error) {
	var r Row
	var status string
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Namespace, &r.Host, &status, &r.FailureReason,
		&r.CreatedAt, &r.ProvisioningStartedAt, &r.ReadyAt, &r.DeletionStartedAt, &r.DeletedAt,
	)
	r.Status = Status(status)
	return r, err
}

// InsertStore inserts a new store row with status Provisioning.
// Call within the same transaction as PutIdempotency/InsertRate for the
// gate's atomic create.
func (repo *Repository) InsertStore(ctx context.Context, tx pgx.Tx, r Row) error {
	query := `INSERT INTO stores (id, tenant_id, namespace, host, status, created_at, provisioning_started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, query, r.ID, r.TenantID, r.Namespace, r.Host, string(r.Status), r.CreatedAt, r.ProvisioningStartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrConflict
		}
		return fmt.Errorf("inserting store: %w", err)
	}
	return nil
}

// GetStore returns a single store scoped to tenantID.
func (repo *Repository) GetStore(ctx context.Context, id, tenantID string) (Row, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1 AND tenant_id = $2`
	row := repo.pool.QueryRow(ctx, query, id, tenantID)
	return scanStoreRow(row)
}

// ListStoresForTenant returns all non-deleted stores for tenantID, newest first.
func (repo *Repository) ListStoresForTenant(ctx context.Context, tenantID string) ([]Row, error) {
	query := `SELECT ` + storeColumns + ` FROM stores
		WHERE tenant_id = $1 AND status != 'Deleted'
		ORDER BY created_at DESC`
	rows, err := repo.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		r, err := scanStoreRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning store row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating store rows: %w", err)
	}
	return items, nil
}

// LockStore locks a store row for update inside tx, scoped to tenantID.
// Used by the delete path to serialize concurrent teardown attempts.
func (repo *Repository) LockStore(ctx context.Context, tx pgx.Tx, id, tenantID string) (Row, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	row := tx.QueryRow(ctx, query, id, tenantID)
	return scanStoreRow(row)
}

// UpdateStoreStatus transitions a store to a new status, optionally setting
// failure_reason and a terminal timestamp column.
func (repo *Repository) UpdateStoreStatus(ctx context.Context, id string, status Status, failureReason *string, timestampColumn string, timestamp time.Time) error {
	var query string
	var args []any

	switch timestampColumn {
	case "":
		query = `UPDATE stores SET status = $1, failure_reason = $2 WHERE id = $3`
		args = []any{string(status), failureReason, id}
	default:
		query = fmt.Sprintf(`UPDATE stores SET status = $1, failure_reason = $2, %s = $3 WHERE id = $4`, timestampColumn)
		args = []any{string(status), failureReason, timestamp, id}
	}

	tag, err := repo.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating store status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateStoreStatusTx is UpdateStoreStatus run inside an explicit transaction.
func (repo *Repository) UpdateStoreStatusTx(ctx context.Context, tx pgx.Tx, id string, status Status, failureReason *string, timestampColumn string, timestamp time.Time) error {
	var query string
	var args []any

	switch timestampColumn {
	case "":
		query = `UPDATE stores SET status = $1, failure_reason = $2 WHERE id = $3`
		args = []any{string(status), failureReason, id}
	default:
		query = fmt.Sprintf(`UPDATE stores SET status = $1, failure_reason = $2, %s = $3 WHERE id = $4`, timestampColumn)
		args = []any{string(status), failureReason, timestamp, id}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating store status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LookupIdempotent returns the store previously created for key, if one was
// recorded after cutoff.
func (repo *Repository) LookupIdempotent(ctx context.Context, tx pgx.Tx, key string, cutoff time.Time) (*Row, error) {
	var storeID string
	err := tx.QueryRow(ctx, `SELECT store_id FROM idempotency_keys WHERE key = $1 AND created_at >= $2`, key, cutoff).Scan(&storeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up idempotency key: %w", err)
	}

	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`
	row := tx.QueryRow(ctx, query, storeID)
	r, err := scanStoreRow(row)
	if err != nil {
		return nil, fmt.Errorf("loading idempotent store: %w", err)
	}
	return &r, nil
}

// PutIdempotency records that key produced storeID at createdAt.
func (repo *Repository) PutIdempotency(ctx context.Context, tx pgx.Tx, key, storeID string, createdAt time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, store_id, created_at) VALUES ($1, $2, $3)`, key, storeID, createdAt)
	if err != nil {
		return fmt.Errorf("inserting idempotency key: %w", err)
	}
	return nil
}

// CountGlobalActive returns the number of non-deleted stores across all tenants.
func (repo *Repository) CountGlobalActive(ctx context.Context, tx pgx.Tx) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM stores WHERE status != 'Deleted'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting global active stores: %w", err)
	}
	return n, nil
}

// CountTenantActive returns the number of non-deleted stores for tenantID.
func (repo *Repository) CountTenantActive(ctx context.Context, tx pgx.Tx, tenantID string) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM stores WHERE tenant_id = $1 AND status != 'Deleted'`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tenant active stores: %w", err)
	}
	return n, nil
}

// CountRateWindow returns the number of rate records for tenantID since cutoff.
func (repo *Repository) CountRateWindow(ctx context.Context, tx pgx.Tx, tenantID string, cutoff time.Time) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rate_limits WHERE tenant_id = $1 AND created_at >= $2`, tenantID, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rate window: %w", err)
	}
	return n, nil
}

// OldestRateInWindow returns the oldest created_at for tenantID within the window.
func (repo *Repository) OldestRateInWindow(ctx context.Context, tx pgx.Tx, tenantID string, cutoff time.Time) (*time.Time, error) {
	var t time.Time
	err := tx.QueryRow(ctx, `SELECT min(created_at) FROM rate_limits WHERE tenant_id = $1 AND created_at >= $2`, tenantID, cutoff).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) || t.IsZero() {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding oldest rate record: %w", err)
	}
	return &t, nil
}

// InsertRate records a successful create against the tenant's rate window.
func (repo *Repository) InsertRate(ctx context.Context, tx pgx.Tx, tenantID, storeID string, createdAt time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO rate_limits (tenant_id, store_id, created_at) VALUES ($1, $2, $3)`, tenantID, storeID, createdAt)
	if err != nil {
		return fmt.Errorf("inserting rate record: %w", err)
	}
	return nil
}

// Audit writes a single audit entry. Errors are returned for logging by the
// caller; they must never abort the request that produced the entry.
func (repo *Repository) Audit(ctx context.Context, tenantID, action, resourceType, resourceID, status string, details json.RawMessage) error {
	query := `INSERT INTO audit_logs (tenant_id, action, resource_type, resource_id, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := repo.pool.Exec(ctx, query, tenantID, action, resourceType, resourceID, status, details)
	if err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// BeginTx starts a transaction on the repository's pool.
func (repo *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.Begin(ctx)
}

// AdmissionCounts holds the figures the gate's quota and rate checks
// consult, read within a single transaction snapshot.
type AdmissionCounts struct {
	GlobalActive int
	TenantActive int
	RateCount    int
	OldestInRate *time.Time
}

// TxHandle is the minimal capability Gate needs from an open transaction:
// the ability to abandon it. Satisfied by pgx.Tx.
type TxHandle interface {
	Rollback(ctx context.Context) error
}

// CheckIdempotent looks up an idempotency key and, within the same
// transaction, gathers the admission counts the gate needs if the key
// is not a replay. Returning both from one transaction keeps the whole
// predicate a single consistent read.
func (repo *Repository) CheckIdempotent(ctx context.Context, key string, idempotencyCutoff time.Time, tenantID string, rateCutoff time.Time) (replay *Row, counts AdmissionCounts, tx TxHandle, err error) {
	pgTx, err := repo.pool.Begin(ctx)
	if err != nil {
		return nil, AdmissionCounts{}, nil, fmt.Errorf("beginning admission transaction: %w", err)
	}
	tx = pgTx

	if key != "" {
		replay, err = repo.LookupIdempotent(ctx, pgTx, key, idempotencyCutoff)
		if err != nil {
			pgTx.Rollback(ctx)
			return nil, AdmissionCounts{}, nil, err
		}
		if replay != nil {
			return replay, AdmissionCounts{}, tx, nil
		}
	}

	counts.GlobalActive, err = repo.CountGlobalActive(ctx, pgTx)
	if err != nil {
		pgTx.Rollback(ctx)
		return nil, AdmissionCounts{}, nil, err
	}
	counts.TenantActive, err = repo.CountTenantActive(ctx, pgTx, tenantID)
	if err != nil {
		pgTx.Rollback(ctx)
		return nil, AdmissionCounts{}, nil, err
	}
	counts.RateCount, err = repo.CountRateWindow(ctx, pgTx, tenantID, rateCutoff)
	if err != nil {
		pgTx.Rollback(ctx)
		return nil, AdmissionCounts{}, nil, err
	}
	counts.OldestInRate, err = repo.OldestRateInWindow(ctx, pgTx, tenantID, rateCutoff)
	if err != nil {
		pgTx.Rollback(ctx)
		return nil, AdmissionCounts{}, nil, err
	}

	return nil, counts, tx, nil
}

// CommitCreate inserts the store, idempotency record, and rate record in the
// still-open transaction from CheckIdempotent, then commits it. The caller
// must roll back instead if it decides not to admit the request.
func (repo *Repository) CommitCreate(ctx context.Context, handle TxHandle, row Row, idempotencyKey string, now time.Time) error {
	tx, ok := handle.(pgx.Tx)
	if !ok {
		return fmt.Errorf("commit create: handle is not a database transaction")
	}

	if err := repo.InsertStore(ctx, tx, row); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := repo.PutIdempotency(ctx, tx, idempotencyKey, row.ID, now); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := repo.InsertRate(ctx, tx, row.TenantID, row.ID, now); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing create transaction: %w", err)
	}
	return nil
}

// GCIdempotencyKeys deletes idempotency records older than cutoff.
func (repo *Repository) GCIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := repo.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("gc idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GCRateLimits deletes rate records older than cutoff.
func (repo *Repository) GCRateLimits(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := repo.pool.Exec(ctx, `DELETE FROM rate_limits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("gc rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStrandedProvisioning returns stores stuck in Provisioning whose
// provisioning_started_at predates cutoff — candidates for the stranded
// provisioning sweeper.
func (repo *Repository) ListStrandedProvisioning(ctx context.Context, cutoff time.Time) ([]Row, error) {
	query := `SELECT ` + storeColumns + ` FROM stores
		WHERE status = 'Provisioning' AND provisioning_started_at < $1`
	rows, err := repo.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stranded stores: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		r, err := scanStoreRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stranded store row: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
