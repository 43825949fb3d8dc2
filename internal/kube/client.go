// client.go constructs the per-context Kubernetes clientsets behind the
// cluster-query surface kubetail depends on.
package kube

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// Interface is the cluster-query surface the resolver needs: list pods by
// namespace and selector, and describe a pod's containers in spec order.
// Log fetching is deliberately not part of this surface; streams are owned
// by child processes (see internal/stream).
type Interface interface {
	ListPods(ctx context.Context, kubeContext, namespace, selector string) ([]string, error)
	PodContainers(ctx context.Context, kubeContext, namespace, pod string) ([]string, error)
}

type contextClient struct {
	clientset kubernetes.Interface
	namespace string
}

// Clients lazily builds one clientset per kubeconfig context.
type Clients struct {
	kubeconfigPath string

	mu      sync.Mutex
	clients map[string]*contextClient
}

// NewClients returns a Clients rooted at the given kubeconfig path. An empty
// path follows the default loading rules ($KUBECONFIG, ~/.kube/config).
func NewClients(kubeconfigPath string) *Clients {
	return &Clients{
		kubeconfigPath: kubeconfigPath,
		clients:        make(map[string]*contextClient),
	}
}

func (c *Clients) clientFor(kubeContext string) (*contextClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[kubeContext]; ok {
		return client, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if c.kubeconfigPath != "" {
		expanded, err := homedir.Expand(c.kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("expand kubeconfig path: %w", err)
		}
		loadingRules.Precedence = []string{filepath.Clean(expanded)}
	}
	overrides := &clientcmd.ConfigOverrides{ClusterInfo: api.Cluster{Server: ""}}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		return nil, fmt.Errorf("resolve default namespace for context %q: %w", kubeContext, err)
	}
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config for context %q: %w", kubeContext, err)
	}
	rest.SetDefaultWarningHandler(rest.NoWarnings{})

	// Aggressive defaults for snappy startup.
	restConfig.Timeout = 30 * time.Second
	restConfig.QPS = 50
	restConfig.Burst = 100

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create client for context %q: %w", kubeContext, err)
	}
	client := &contextClient{clientset: clientset, namespace: namespace}
	c.clients[kubeContext] = client
	return client, nil
}

// DefaultNamespace reports the namespace of the named kubeconfig context.
func (c *Clients) DefaultNamespace(kubeContext string) (string, error) {
	client, err := c.clientFor(kubeContext)
	if err != nil {
		return "", err
	}
	return client.namespace, nil
}

// ListPods returns the names of all pods in the namespace satisfying the
// label selector, in the order the API server reports them.
func (c *Clients) ListPods(ctx context.Context, kubeContext, namespace, selector string) ([]string, error) {
	client, err := c.clientFor(kubeContext)
	if err != nil {
		return nil, err
	}
	listOpts := metav1.ListOptions{}
	if selector != "" {
		listOpts.LabelSelector = selector
	}
	list, err := client.clientset.CoreV1().Pods(namespace).List(ctx, listOpts)
	if err != nil {
		return nil, fmt.Errorf("list pods in %s (context %q): %w", namespace, kubeContext, err)
	}
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		names = append(names, list.Items[i].Name)
	}
	return names, nil
}

// PodContainers returns the pod's container names in spec declaration order.
func (c *Clients) PodContainers(ctx context.Context, kubeContext, namespace, pod string) ([]string, error) {
	client, err := c.clientFor(kubeContext)
	if err != nil {
		return nil, err
	}
	p, err := client.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("describe pod %s/%s (context %q): %w", namespace, pod, kubeContext, err)
	}
	names := make([]string, 0, len(p.Spec.Containers))
	for _, container := range p.Spec.Containers {
		names = append(names, container.Name)
	}
	return names, nil
}

var _ Interface = (*Clients)(nil)
