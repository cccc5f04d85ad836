package integrations

import (
	"context"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// NodeResolver maps a backend address label (host:port) to a cluster node name
type NodeResolver struct {
	inventory NodeInventory
	log       *logrus.Logger
}

// NewNodeResolver creates a resolver over the given inventory
func NewNodeResolver(inventory NodeInventory, log *logrus.Logger) *NodeResolver {
	return &NodeResolver{
		inventory: inventory,
		log:       log,
	}
}

// ResolveNodeName fetches the inventory and resolves a single label.
// Callers resolving many labels should take one Snapshot instead.
func (r *NodeResolver) ResolveNodeName(ctx context.Context, rawLabel string) (string, error) {
	// reject malformed labels before touching the inventory
	if _, err := addressFromLabel(rawLabel); err != nil {
		return "", err
	}

	index, err := r.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return index.Resolve(rawLabel)
}

// Snapshot fetches the inventory once for a batch of lookups
func (r *NodeResolver) Snapshot(ctx context.Context) (*NodeIndex, error) {
	entries, err := r.inventory.ListNodes(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Node inventory unavailable")
		return nil, &IdentityError{Reason: IdentityReasonInventoryUnavailable, Err: err}
	}
	return NewNodeIndex(entries), nil
}

// NodeIndex is an immutable address lookup built from one inventory listing
type NodeIndex struct {
	byAddress map[string]string
}

// NewNodeIndex indexes entries by internal address. The first entry for an address wins.
func NewNodeIndex(entries []NodeInventoryEntry) *NodeIndex {
	byAddress := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, exists := byAddress[e.InternalIP]; !exists {
			byAddress[e.InternalIP] = e.Name
		}
	}
	return &NodeIndex{byAddress: byAddress}
}

// Len returns the number of distinct addresses in the index
func (i *NodeIndex) Len() int {
	return len(i.byAddress)
}

// Resolve returns the node whose internal address equals the host part of rawLabel
func (i *NodeIndex) Resolve(rawLabel string) (string, error) {
	address, err := addressFromLabel(rawLabel)
	if err != nil {
		return "", err
	}

	name, ok := i.byAddress[address]
	if !ok {
		return "", &IdentityError{
			Reason:  IdentityReasonNodeNotFound,
			Label:   rawLabel,
			Address: address,
		}
	}
	return name, nil
}

// addressFromLabel takes the text before the first ':' of an instance label.
// IPv6 labels, bracketed or not, are refused rather than guessed at.
func addressFromLabel(rawLabel string) (string, error) {
	if strings.HasPrefix(rawLabel, "[") || isIPv6Label(rawLabel) {
		return "", &IdentityError{Reason: IdentityReasonUnsupportedAddress, Label: rawLabel}
	}

	host, _, found := strings.Cut(rawLabel, ":")
	if !found || host == "" {
		return "", &IdentityError{Reason: IdentityReasonMalformedLabel, Label: rawLabel}
	}
	return host, nil
}

// isIPv6Label reports an unbracketed IPv6 address, with or without a trailing :port
func isIPv6Label(rawLabel string) bool {
	if strings.Count(rawLabel, ":") < 2 {
		return false
	}
	if isIPv6(rawLabel) {
		return true
	}
	i := strings.LastIndex(rawLabel, ":")
	return isIPv6(rawLabel[:i])
}

func isIPv6(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() == nil
}
