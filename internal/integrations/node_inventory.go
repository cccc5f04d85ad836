package integrations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// NodeInventoryEntry is one (node, internal address) pair from the cluster
type NodeInventoryEntry struct {
	Name       string
	InternalIP string
}

// NodeInventory lists cluster nodes with their internal addresses.
// Entries must be returned in a stable order; callers take the first match.
type NodeInventory interface {
	ListNodes(ctx context.Context) ([]NodeInventoryEntry, error)
}

// KubeNodeInventory reads nodes from the Kubernetes API
type KubeNodeInventory struct {
	clientset kubernetes.Interface
	log       *logrus.Logger
}

// NewKubeNodeInventory creates a node inventory backed by the core/v1 nodes API
func NewKubeNodeInventory(clientset kubernetes.Interface, log *logrus.Logger) *KubeNodeInventory {
	return &KubeNodeInventory{
		clientset: clientset,
		log:       log,
	}
}

// ListNodes returns one entry per InternalIP address, in the order the API lists nodes.
// Nodes without an InternalIP contribute nothing.
func (k *KubeNodeInventory) ListNodes(ctx context.Context) ([]NodeInventoryEntry, error) {
	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	entries := make([]NodeInventoryEntry, 0, len(nodes.Items))
	for i := range nodes.Items {
		node := &nodes.Items[i]
		for _, addr := range node.Status.Addresses {
			if addr.Type != corev1.NodeInternalIP || addr.Address == "" {
				continue
			}
			entries = append(entries, NodeInventoryEntry{
				Name:       node.Name,
				InternalIP: addr.Address,
			})
		}
	}

	k.log.WithFields(logrus.Fields{
		"nodes":   len(nodes.Items),
		"entries": len(entries),
	}).Debug("Listed node inventory")

	return entries, nil
}

// CachedNodeInventory keeps the last successful listing of a wrapped inventory for ttl.
// Failed listings are never cached.
type CachedNodeInventory struct {
	inner NodeInventory
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	entries   []NodeInventoryEntry
	fetchedAt time.Time
}

// NewCachedNodeInventory wraps inner with a snapshot cache. A non-positive ttl returns inner unchanged.
func NewCachedNodeInventory(inner NodeInventory, ttl time.Duration) NodeInventory {
	if ttl <= 0 {
		return inner
	}
	return &CachedNodeInventory{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
}

// ListNodes returns the cached snapshot while fresh, otherwise refreshes it
func (c *CachedNodeInventory) ListNodes(ctx context.Context) ([]NodeInventoryEntry, error) {
	c.mu.RLock()
	if c.entries != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		entries := c.entries
		c.mu.RUnlock()
		return entries, nil
	}
	c.mu.RUnlock()

	entries, err := c.inner.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries = entries
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return entries, nil
}
