// Package store implements the provisioning control plane: the persistence
// layer, quota/idempotency gate, orchestrator client, and lifecycle engine
// that together create, watch, and tear down tenant-isolated workload
// instances ("stores").
package store

import "time"

// Status is a store's position in its lifecycle state machine.
type Status string

const (
	StatusProvisioning Status = "Provisioning"
	StatusReady        Status = "Ready"
	StatusFailed       Status = "Failed"
	StatusDeleting     Status = "Deleting"
	StatusDeleted      Status = "Deleted"
)

// Row is the database representation of a store.
type Row struct {
	ID                    string
	TenantID              string
	Namespace             string
	Host                  string
	Status                Status
	FailureReason         *string
	CreatedAt             time.Time
	ProvisioningStartedAt *time.Time
	ReadyAt               *time.Time
	DeletionStartedAt     *time.Time
	DeletedAt             *time.Time
}

// Response is the JSON representation of a store returned by the HTTP API.
type Response struct {
	ID                    string  `json:"id"`
	TenantID              string  `json:"tenant_id"`
	Namespace             string  `json:"namespace"`
	Host                  string  `json:"host"`
	Status                string  `json:"status"`
	FailureReason         *string `json:"failure_reason,omitempty"`
	CreatedAt             string  `json:"created_at"`
	ProvisioningStartedAt *string `json:"provisioning_started_at,omitempty"`
	ReadyAt               *string `json:"ready_at,omitempty"`
	DeletionStartedAt     *string `json:"deletion_started_at,omitempty"`
	DeletedAt             *string `json:"deleted_at,omitempty"`
}

// millis formats a time with millisecond-precision ISO-8601, matching the
// timestamp precision required of the data model.
func millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func millisPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := millis(*t)
	return &s
}

// ToResponse converts a database row to its JSON representation.
func (r Row) ToResponse() Response {
	return Response{
		ID:                    r.ID,
		TenantID:              r.TenantID,
		Namespace:             r.Namespace,
		Host:                  r.Host,
		Status:                string(r.Status),
		FailureReason:         r.FailureReason,
		CreatedAt:             millis(r.CreatedAt),
		ProvisioningStartedAt: millisPtr(r.ProvisioningStartedAt),
		ReadyAt:               millisPtr(r.ReadyAt),
		DeletionStartedAt:     millisPtr(r.DeletionStartedAt),
		DeletedAt:             millisPtr(r.DeletedAt),
	}
}
