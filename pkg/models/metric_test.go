package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPodMetric(t *testing.T) {
	tests := []struct {
		name      string
		podName   string
		timestamp string
		expectErr bool
	}{
		{name: "Valid sample", podName: "pod1", timestamp: "1700000000.123", expectErr: false},
		{name: "Blank pod name", podName: "", timestamp: "1700000000", expectErr: true},
		{name: "Whitespace pod name", podName: "   ", timestamp: "1700000000", expectErr: true},
		{name: "Blank timestamp", podName: "pod1", timestamp: "", expectErr: true},
		{name: "Whitespace timestamp", podName: "pod1", timestamp: "\t", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPodMetric(tt.podName, 25.0, tt.timestamp)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Equal(t, PodMetric{}, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.podName, m.PodName)
			assert.Equal(t, 25.0, m.Value)
			assert.Equal(t, tt.timestamp, m.Timestamp)
		})
	}
}

func TestNewNodeMetric(t *testing.T) {
	m, err := NewNodeMetric("node-a", 65.5, "1700000000")
	require.NoError(t, err)
	assert.Equal(t, "node-a", m.NodeName)
	assert.Equal(t, 65.5, m.Value)
	assert.Contains(t, m.String(), "node-a")

	_, err = NewNodeMetric("", 1, "1700000000")
	assert.EqualError(t, err, "node name cannot be blank")

	_, err = NewNodeMetric("node-a", 1, " ")
	assert.EqualError(t, err, "timestamp cannot be blank")
}

func TestMetricKind(t *testing.T) {
	assert.Len(t, ValidMetricKinds(), 5)
	assert.True(t, IsValidMetricKind("pod_cpu"))
	assert.True(t, IsValidMetricKind("node_memory"))
	assert.False(t, IsValidMetricKind("pod_disk"))

	assert.True(t, MetricKindNodeCPU.IsNodeScoped())
	assert.True(t, MetricKindNodeMemory.IsNodeScoped())
	assert.False(t, MetricKindPodCPU.IsNodeScoped())
	assert.False(t, MetricKindPodHits.IsNodeScoped())

	assert.True(t, MetricKindPodCPU.IsWindowed())
	assert.True(t, MetricKindPodHits.IsWindowed())
	assert.True(t, MetricKindNodeCPU.IsWindowed())
	assert.False(t, MetricKindPodMemory.IsWindowed())
	assert.False(t, MetricKindNodeMemory.IsWindowed())
}

func TestMetricJSON(t *testing.T) {
	pod, err := NewPodMetric("web-1", 12.5, "1700000000.5")
	require.NoError(t, err)
	data, err := json.Marshal(pod)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pod_name":"web-1","value":12.5,"timestamp":"1700000000.5"}`, string(data))

	node, err := NewNodeMetric("node-a", math.NaN(), "1700000000")
	require.NoError(t, err)
	data, err = json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, `{"node_name":"node-a","value":"NaN","timestamp":"1700000000"}`, string(data))

	pod.Value = math.Inf(-1)
	data, err = json.Marshal([]PodMetric{pod})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"pod_name":"web-1","value":"-Inf","timestamp":"1700000000.5"}]`, string(data))
}
