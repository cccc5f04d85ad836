package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestResolver(inventory NodeInventory) *NodeResolver {
	return NewNodeResolver(inventory, logrus.New())
}

func TestNodeResolver_ResolveNodeName(t *testing.T) {
	inventory := &stubInventory{entries: []NodeInventoryEntry{
		{Name: "node-a", InternalIP: "10.0.0.5"},
		{Name: "node-b", InternalIP: "10.0.0.6"},
	}}
	resolver := newTestResolver(inventory)

	name, err := resolver.ResolveNodeName(context.Background(), "10.0.0.5:9100")
	require.NoError(t, err)
	assert.Equal(t, "node-a", name)

	name, err = resolver.ResolveNodeName(context.Background(), "10.0.0.6:")
	require.NoError(t, err)
	assert.Equal(t, "node-b", name)

	// every call reads the inventory
	assert.Equal(t, 2, inventory.callCount())
}

func TestNodeResolver_FirstMatchWins(t *testing.T) {
	resolver := newTestResolver(&stubInventory{entries: []NodeInventoryEntry{
		{Name: "node-old", InternalIP: "10.0.0.5"},
		{Name: "node-new", InternalIP: "10.0.0.5"},
	}})

	name, err := resolver.ResolveNodeName(context.Background(), "10.0.0.5:9100")
	require.NoError(t, err)
	assert.Equal(t, "node-old", name)
}

func TestNodeResolver_NotFound(t *testing.T) {
	resolver := newTestResolver(&stubInventory{entries: []NodeInventoryEntry{
		{Name: "node-a", InternalIP: "10.0.0.5"},
	}})

	name, err := resolver.ResolveNodeName(context.Background(), "10.0.0.9:9100")
	require.Error(t, err)
	assert.Empty(t, name)

	var idErr *IdentityError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, IdentityReasonNodeNotFound, idErr.Reason)
	assert.Equal(t, "10.0.0.9", idErr.Address)
	assert.Equal(t, "node not found for address 10.0.0.9", err.Error())
}

func TestNodeResolver_MalformedLabels(t *testing.T) {
	tests := []struct {
		name   string
		label  string
		reason IdentityErrorReason
	}{
		{name: "No port separator", label: "10.0.0.5", reason: IdentityReasonMalformedLabel},
		{name: "Empty label", label: "", reason: IdentityReasonMalformedLabel},
		{name: "Empty host", label: ":9100", reason: IdentityReasonMalformedLabel},
		{name: "Bracketed IPv6", label: "[fd00::5]:9100", reason: IdentityReasonUnsupportedAddress},
		{name: "Unbracketed IPv6 with port", label: "fe80::1:9100", reason: IdentityReasonUnsupportedAddress},
		{name: "Unbracketed IPv6 without port", label: "fd00::5", reason: IdentityReasonUnsupportedAddress},
		{name: "IPv6 loopback", label: "::1:9100", reason: IdentityReasonUnsupportedAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inventory := &stubInventory{entries: []NodeInventoryEntry{{Name: "node-a", InternalIP: "10.0.0.5"}}}
			resolver := newTestResolver(inventory)

			_, err := resolver.ResolveNodeName(context.Background(), tt.label)
			require.Error(t, err)

			var idErr *IdentityError
			require.True(t, errors.As(err, &idErr))
			assert.Equal(t, tt.reason, idErr.Reason)
			assert.Equal(t, tt.label, idErr.Label)
			assert.Zero(t, inventory.callCount())
		})
	}
}

func TestNodeResolver_InventoryUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	resolver := newTestResolver(&stubInventory{err: cause})

	_, err := resolver.ResolveNodeName(context.Background(), "10.0.0.5:9100")
	require.Error(t, err)

	var idErr *IdentityError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, IdentityReasonInventoryUnavailable, idErr.Reason)
	assert.ErrorIs(t, err, cause)
}

func TestNodeResolver_Snapshot(t *testing.T) {
	inventory := &stubInventory{entries: []NodeInventoryEntry{
		{Name: "node-a", InternalIP: "10.0.0.5"},
		{Name: "node-b", InternalIP: "10.0.0.6"},
		{Name: "node-c", InternalIP: "10.0.0.6"},
	}}
	resolver := newTestResolver(inventory)

	index, err := resolver.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len())

	for label, expected := range map[string]string{
		"10.0.0.5:9100": "node-a",
		"10.0.0.6:9100": "node-b",
		"10.0.0.6:8080": "node-b",
	} {
		name, err := index.Resolve(label)
		require.NoError(t, err)
		assert.Equal(t, expected, name)
	}
	assert.Equal(t, 1, inventory.callCount())
}

func TestNodeResolver_KubeInventory(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		newTestNode("worker-1", internalIP("192.168.1.10")),
		newTestNode("worker-2", internalIP("192.168.1.11")),
	)
	resolver := newTestResolver(NewKubeNodeInventory(clientset, logrus.New()))

	name, err := resolver.ResolveNodeName(context.Background(), "192.168.1.11:9100")
	require.NoError(t, err)
	assert.Equal(t, "worker-2", name)

	_, err = resolver.ResolveNodeName(context.Background(), "192.168.1.12:9100")
	var idErr *IdentityError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, IdentityReasonNodeNotFound, idErr.Reason)
}

func TestAddressFromLabel(t *testing.T) {
	host, err := addressFromLabel("10.0.0.5:9100:extra")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)

	host, err = addressFromLabel("node-a.internal:9100")
	require.NoError(t, err)
	assert.Equal(t, "node-a.internal", host)
}
