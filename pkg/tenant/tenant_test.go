package tenant

import (
	"context"
	"testing"
)

func TestFromContextDefault(t *testing.T) {
	if got := FromContext(context.Background()); got != DefaultTenantID {
		t.Errorf("FromContext() = %q, want %q", got, DefaultTenantID)
	}
}

func TestNewContextRoundTrip(t *testing.T) {
	ctx := NewContext(context.Background(), "acme")
	if got := FromContext(ctx); got != "acme" {
		t.Errorf("FromContext() = %q, want %q", got, "acme")
	}
}
