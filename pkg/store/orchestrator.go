package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// ReadinessResult is the outcome of a readiness probe against the orchestrator.
type ReadinessResult struct {
	Ready  bool
	Reason string
}

// Orchestrator wraps the external templating tool and cluster inspection
// tool as opaque command-line collaborators. Every method builds its
// argv deterministically; no shell metacharacters ever reach exec.Command.
type Orchestrator interface {
	Install(ctx context.Context, id, chartPath, namespace, host string) error
	Uninstall(ctx context.Context, id, namespace string) error
	CheckPodReadiness(ctx context.Context, namespace string) (ReadinessResult, error)
	CheckIngressReadiness(ctx context.Context, host string) (ReadinessResult, error)
}

// CLIOrchestrator implements Orchestrator by shelling out to a templating
// binary (helm) and a cluster inspection binary (kubectl), matching the
// opaque command-line collaborator framing: only the commands invoked and
// the JSON fields consumed are part of the contract.
type CLIOrchestrator struct {
	HelmBin    string
	KubectlBin string
}

// NewCLIOrchestrator creates a CLIOrchestrator using the given binaries.
func NewCLIOrchestrator(helmBin, kubectlBin string) *CLIOrchestrator {
	return &CLIOrchestrator{HelmBin: helmBin, KubectlBin: kubectlBin}
}

// Install runs the templating install, refusing to run at all if id or
// namespace fails slug validation. host is passed as a single argv element
// and is not validated.
func (o *CLIOrchestrator) Install(ctx context.Context, id, chartPath, namespace, host string) error {
	if !ValidSlug(id) || !ValidSlug(namespace) {
		return fmt.Errorf("refusing to install: invalid identifier")
	}

	args := []string{
		"install", id, chartPath,
		"--namespace", namespace,
		"--create-namespace",
		"--set", "ingress.host=" + host,
	}
	_, stderr, err := o.run(ctx, o.HelmBin, args...)
	if err != nil {
		if stderr != "" {
			return fmt.Errorf("%s", stderr)
		}
		return err
	}
	return nil
}

// Uninstall removes the release and then the namespace. Uninstall of an
// already-missing release is not treated as failure — the delete path must
// tolerate partial prior cleanup.
func (o *CLIOrchestrator) Uninstall(ctx context.Context, id, namespace string) error {
	if !ValidSlug(id) || !ValidSlug(namespace) {
		return fmt.Errorf("refusing to uninstall: invalid identifier")
	}

	_, stderr, err := o.run(ctx, o.HelmBin, "uninstall", id, "--namespace", namespace)
	if err != nil && !strings.Contains(stderr, "not found") {
		if stderr != "" {
			return fmt.Errorf("%s", stderr)
		}
		return err
	}

	_, stderr, err = o.run(ctx, o.KubectlBin, "delete", "namespace", namespace, "--wait=false")
	if err != nil && !strings.Contains(stderr, "not found") {
		if stderr != "" {
			return fmt.Errorf("%s", stderr)
		}
		return err
	}
	return nil
}

// CheckPodReadiness inspects pods in namespace via the cluster inspection tool.
func (o *CLIOrchestrator) CheckPodReadiness(ctx context.Context, namespace string) (ReadinessResult, error) {
	if !ValidSlug(namespace) {
		return ReadinessResult{}, fmt.Errorf("refusing to inspect: invalid namespace")
	}

	stdout, stderr, err := o.run(ctx, o.KubectlBin, "get", "pods", "--namespace", namespace, "-o", "json")
	if err != nil {
		reason := err.Error()
		if stderr != "" {
			reason = stderr
		}
		return ReadinessResult{Ready: false, Reason: reason}, nil
	}

	var list corev1.PodList
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		return ReadinessResult{Ready: false, Reason: fmt.Sprintf("decoding pod list: %v", err)}, nil
	}

	if len(list.Items) == 0 {
		return ReadinessResult{Ready: false, Reason: "No pods found"}, nil
	}

	var notReady []string
	for _, pod := range list.Items {
		if !podReady(pod) {
			notReady = append(notReady, pod.Name)
		}
	}
	if len(notReady) > 0 {
		return ReadinessResult{Ready: false, Reason: "Pods not ready: " + strings.Join(notReady, ", ")}, nil
	}

	return ReadinessResult{Ready: true}, nil
}

func podReady(pod corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// CheckIngressReadiness finds an ingress whose rules include host and
// reports whether it has a load-balancer entry.
func (o *CLIOrchestrator) CheckIngressReadiness(ctx context.Context, host string) (ReadinessResult, error) {
	stdout, stderr, err := o.run(ctx, o.KubectlBin, "get", "ingress", "--all-namespaces", "-o", "json")
	if err != nil {
		reason := err.Error()
		if stderr != "" {
			reason = stderr
		}
		return ReadinessResult{Ready: false, Reason: reason}, nil
	}

	var list networkingv1.IngressList
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		return ReadinessResult{Ready: false, Reason: fmt.Sprintf("decoding ingress list: %v", err)}, nil
	}

	for _, ing := range list.Items {
		if !ingressHasRule(ing, host) {
			continue
		}
		if len(ing.Status.LoadBalancer.Ingress) == 0 {
			return ReadinessResult{Ready: false, Reason: "Ingress has no load balancer IP"}, nil
		}
		return ReadinessResult{Ready: true}, nil
	}

	return ReadinessResult{Ready: false, Reason: "Ingress not found"}, nil
}

func ingressHasRule(ing networkingv1.Ingress, host string) bool {
	for _, rule := range ing.Spec.Rules {
		if rule.Host == host {
			return true
		}
	}
	return false
}

// run executes name with args, capturing stdout and stderr separately. No
// shell is invoked; arguments reach the process as argv only.
func (o *CLIOrchestrator) run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.String(), strings.TrimSpace(errBuf.String()), err
}
