package store

import (
	"strings"
	"testing"
	"time"
)

func TestProvisioningStopCondition(t *testing.T) {
	limits := EngineLimits{
		ProvisioningTimeout: 10 * time.Minute,
		MaxReadinessChecks:  5,
	}

	cases := []struct {
		name       string
		elapsed    time.Duration
		attempt    int
		wantStop   bool
		wantReason string
	}{
		{"within both bounds", time.Minute, 1, false, ""},
		{"exactly at attempt cap", time.Minute, 5, false, ""},
		{"attempt cap exceeded", time.Minute, 6, true, "Maximum readiness checks exceeded"},
		{"exactly at timeout", 10 * time.Minute, 1, false, ""},
		{"timeout exceeded", 10*time.Minute + time.Second, 1, true, "Provisioning timeout exceeded"},
		{"timeout exceeded takes precedence over attempt cap", 10*time.Minute + time.Second, 6, true, "Provisioning timeout exceeded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stop, reason := provisioningStopCondition(tc.elapsed, tc.attempt, limits)
			if stop != tc.wantStop {
				t.Fatalf("stop = %v, want %v", stop, tc.wantStop)
			}
			if reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", reason, tc.wantReason)
			}
		})
	}
}

func TestAuditDetail(t *testing.T) {
	raw := auditDetail("install failed", "some output", "some error")
	if raw == nil {
		t.Fatal("auditDetail returned nil")
	}
	s := string(raw)
	for _, want := range []string{`"reason":"install failed"`, `"stdout":"some output"`, `"stderr":"some error"`} {
		if !strings.Contains(s, want) {
			t.Errorf("auditDetail output %q missing %q", s, want)
		}
	}
}
