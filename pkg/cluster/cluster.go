package cluster

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/extractor"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// NewConfig builds the REST config once for the whole process. The in-cluster
// service account is tried first, then the kubeconfig path (or ~/.kube/config
// when empty).
func NewConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return config, nil
}

// Client reads namespaces and workloads from the Kubernetes API
type Client struct {
	clientset kubernetes.Interface
	log       logr.Logger
}

// New wraps an existing clientset
func New(clientset kubernetes.Interface, log logr.Logger) *Client {
	return &Client{clientset: clientset, log: log}
}

// NewForConfig creates the clientset from config
func NewForConfig(config *rest.Config, log logr.Logger) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return New(clientset, log), nil
}

// ServerVersion checks connectivity and returns the API server version
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to connect to cluster: %w", err)
	}
	return version.GitVersion, nil
}

func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	nsList, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	namespaces := make([]string, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		namespaces = append(namespaces, ns.Name)
	}
	return namespaces, nil
}

// ListWorkloads returns the deployments of namespace followed by its
// statefulsets, each with the declared resources of its containers.
func (c *Client) ListWorkloads(ctx context.Context, namespace string) ([]models.WorkloadDescriptor, error) {
	deployments, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	statefulSets, err := c.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list statefulsets: %w", err)
	}

	workloads := make([]models.WorkloadDescriptor, 0, len(deployments.Items)+len(statefulSets.Items))
	for _, deploy := range deployments.Items {
		workloads = append(workloads, models.WorkloadDescriptor{
			Namespace:  namespace,
			Name:       deploy.Name,
			Kind:       models.WorkloadDeployment,
			Containers: extractor.Extract(deploy.Spec.Template.Spec.Containers),
		})
	}
	for _, sts := range statefulSets.Items {
		workloads = append(workloads, models.WorkloadDescriptor{
			Namespace:  namespace,
			Name:       sts.Name,
			Kind:       models.WorkloadStatefulSet,
			Containers: extractor.Extract(sts.Spec.Template.Spec.Containers),
		})
	}

	c.log.V(1).Info("Listed workloads",
		"namespace", namespace,
		"deployments", len(deployments.Items),
		"statefulsets", len(statefulSets.Items))
	return workloads, nil
}
