package store

import (
	"testing"
	"time"
)

func TestMillis(t *testing.T) {
	ts := time.Date(2026, 3, 5, 12, 30, 45, 123_000_000, time.UTC)
	got := millis(ts)
	want := "2026-03-05T12:30:45.123Z"
	if got != want {
		t.Fatalf("millis() = %q, want %q", got, want)
	}
}

func TestMillisPtr_Nil(t *testing.T) {
	if got := millisPtr(nil); got != nil {
		t.Fatalf("millisPtr(nil) = %v, want nil", got)
	}
}

func TestRowToResponse(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	readyAt := createdAt.Add(2 * time.Minute)
	reason := "install failed: timeout"

	r := Row{
		ID:        "st_abc123",
		TenantID:  "tenant-1",
		Namespace: "storeplane-st-abc123",
		Host:      "st-abc123.stores.example.com",
		Status:    StatusFailed,
		CreatedAt: createdAt,
		ReadyAt:   &readyAt,

		FailureReason: &reason,
	}

	resp := r.ToResponse()

	if resp.ID != r.ID || resp.TenantID != r.TenantID || resp.Namespace != r.Namespace || resp.Host != r.Host {
		t.Fatalf("identity fields not carried through: %+v", resp)
	}
	if resp.Status != string(StatusFailed) {
		t.Errorf("Status = %q, want %q", resp.Status, StatusFailed)
	}
	if resp.FailureReason == nil || *resp.FailureReason != reason {
		t.Errorf("FailureReason = %v, want %q", resp.FailureReason, reason)
	}
	if resp.CreatedAt != "2026-01-01T00:00:00.000Z" {
		t.Errorf("CreatedAt = %q", resp.CreatedAt)
	}
	if resp.ReadyAt == nil || *resp.ReadyAt != "2026-01-01T00:02:00.000Z" {
		t.Errorf("ReadyAt = %v", resp.ReadyAt)
	}
	if resp.ProvisioningStartedAt != nil {
		t.Errorf("ProvisioningStartedAt = %v, want nil", resp.ProvisioningStartedAt)
	}
	if resp.DeletionStartedAt != nil || resp.DeletedAt != nil {
		t.Errorf("expected deletion timestamps to remain nil, got %v / %v", resp.DeletionStartedAt, resp.DeletedAt)
	}
}
