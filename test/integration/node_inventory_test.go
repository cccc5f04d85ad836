//go:build integration

package integration

import (
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/tosin2013/metrics-gateway/internal/integrations"
	"github.com/tosin2013/metrics-gateway/internal/rbac"
)

// TestNodeInventory_MatchesClusterNodes checks that every node with an InternalIP is listed
func (s *IntegrationTestSuite) TestNodeInventory_MatchesClusterNodes() {
	s.requireCluster()

	nodes, err := s.clientset.CoreV1().Nodes().List(s.ctx, metav1.ListOptions{})
	s.Require().NoError(err)

	expected := 0
	for _, node := range nodes.Items {
		for _, addr := range node.Status.Addresses {
			if addr.Type == corev1.NodeInternalIP {
				expected++
			}
		}
	}

	inventory := integrations.NewKubeNodeInventory(s.clientset, s.log)
	entries, err := inventory.ListNodes(s.ctx)
	s.Require().NoError(err)
	s.Equal(expected, len(entries))

	for _, e := range entries {
		s.NotEmpty(e.Name)
		s.NotEmpty(e.InternalIP)
	}
	s.T().Logf("Node inventory lists %d internal addresses across %d nodes", len(entries), len(nodes.Items))
}

// TestNodeResolver_ResolvesEveryNode resolves a node-exporter style label for each inventory entry
func (s *IntegrationTestSuite) TestNodeResolver_ResolvesEveryNode() {
	s.requireCluster()

	inventory := integrations.NewCachedNodeInventory(integrations.NewKubeNodeInventory(s.clientset, s.log), time.Minute)
	resolver := integrations.NewNodeResolver(inventory, s.log)

	index, err := resolver.Snapshot(s.ctx)
	s.Require().NoError(err)

	entries, err := inventory.ListNodes(s.ctx)
	s.Require().NoError(err)

	for _, e := range entries {
		// IPv6 addresses cannot be expressed as an unbracketed host:port label
		if strings.Contains(e.InternalIP, ":") {
			continue
		}
		name, err := index.Resolve(e.InternalIP + ":9100")
		s.Require().NoError(err)
		s.NotEmpty(name)
	}
}

// TestRBAC_NodeListPermission reports whether the current identity can list nodes
func (s *IntegrationTestSuite) TestRBAC_NodeListPermission() {
	s.requireCluster()

	results, err := rbac.NewVerifier(s.clientset, "default", s.log).VerifyRequired(s.ctx)
	if err != nil {
		s.T().Logf("preflight reported: %v", err)
	}
	s.Require().NotEmpty(results)
	for _, r := range results {
		s.NoError(r.Error)
	}
	s.T().Log(rbac.GenerateReport(results))
}
