package store

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

func TestPodReady(t *testing.T) {
	tests := []struct {
		name string
		pod  corev1.Pod
		want bool
	}{
		{
			name: "ready true",
			pod: corev1.Pod{Status: corev1.PodStatus{Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			}}},
			want: true,
		},
		{
			name: "ready false",
			pod: corev1.Pod{Status: corev1.PodStatus{Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionFalse},
			}}},
			want: false,
		},
		{
			name: "no ready condition",
			pod: corev1.Pod{Status: corev1.PodStatus{Conditions: []corev1.PodCondition{
				{Type: corev1.PodScheduled, Status: corev1.ConditionTrue},
			}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := podReady(tt.pod); got != tt.want {
				t.Errorf("podReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIngressHasRule(t *testing.T) {
	ing := networkingv1.Ingress{Spec: networkingv1.IngressSpec{Rules: []networkingv1.IngressRule{
		{Host: "store-abcd1234.stores.example.com"},
	}}}

	if !ingressHasRule(ing, "store-abcd1234.stores.example.com") {
		t.Error("expected matching host to be found")
	}
	if ingressHasRule(ing, "other.stores.example.com") {
		t.Error("expected non-matching host to be rejected")
	}
}

func TestCLIOrchestrator_RefusesInvalidIdentifiers(t *testing.T) {
	o := NewCLIOrchestrator("helm", "kubectl")
	ctx := context.Background()

	if err := o.Install(ctx, "bad id", "./chart", "bad-ns", "h.example.com"); err == nil {
		t.Error("Install() with invalid id did not error")
	}
	if err := o.Install(ctx, "store-abcd1234", "./chart", "bad ns", "h.example.com"); err == nil {
		t.Error("Install() with invalid namespace did not error")
	}
	if err := o.Uninstall(ctx, "bad id", "store-abcd1234"); err == nil {
		t.Error("Uninstall() with invalid id did not error")
	}
	if _, err := o.CheckPodReadiness(ctx, "bad ns"); err == nil {
		t.Error("CheckPodReadiness() with invalid namespace did not error")
	}
}
