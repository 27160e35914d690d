// Package orchestrator implements the cluster orchestrator boundary: it
// reads and patches a Deployment's replica count. Failures are reported as
// explicit errors so the control loop can apply its own policy (default to
// 1 replica on read failure, never advance the cooldown on patch failure)
// without this package knowing anything about scaling logic.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Orchestrator reads and patches a target Deployment's replica count.
type Orchestrator struct {
	client     kubernetes.Interface
	namespace  string
	deployment string
}

// New builds an Orchestrator backed by client, targeting the given
// Deployment.
func New(client kubernetes.Interface, namespace, deployment string) *Orchestrator {
	return &Orchestrator{client: client, namespace: namespace, deployment: deployment}
}

// NewClient builds a Kubernetes client, preferring in-cluster config and
// falling back to KUBECONFIG (or $HOME/.kube/config) for local runs.
func NewClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			kubeconfig = os.Getenv("HOME") + "/.kube/config"
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return client, nil
}

// GetReplicas reads the Deployment's current .spec.replicas.
func (o *Orchestrator) GetReplicas(ctx context.Context) (int, error) {
	dep, err := o.client.AppsV1().Deployments(o.namespace).Get(ctx, o.deployment, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("get deployment %s/%s: %w", o.namespace, o.deployment, err)
	}
	if dep.Spec.Replicas == nil {
		return 0, nil
	}
	return int(*dep.Spec.Replicas), nil
}

// PatchReplicas sets the Deployment's .spec.replicas to the given count.
func (o *Orchestrator) PatchReplicas(ctx context.Context, replicas int) error {
	dep, err := o.client.AppsV1().Deployments(o.namespace).Get(ctx, o.deployment, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get deployment %s/%s: %w", o.namespace, o.deployment, err)
	}

	r := int32(replicas)
	dep.Spec.Replicas = &r

	if _, err := o.client.AppsV1().Deployments(o.namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("patch deployment %s/%s to %d replicas: %w", o.namespace, o.deployment, replicas, err)
	}
	return nil
}
