// Package models defines the domain records returned by the metrics gateway.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MetricKind identifies one of the supported pod or node metric queries
type MetricKind string

// Metric kind constants
const (
	MetricKindPodCPU     MetricKind = "pod_cpu"
	MetricKindPodMemory  MetricKind = "pod_memory"
	MetricKindPodHits    MetricKind = "pod_hits"
	MetricKindNodeCPU    MetricKind = "node_cpu"
	MetricKindNodeMemory MetricKind = "node_memory"
)

// ValidMetricKinds returns all supported metric kinds
func ValidMetricKinds() []MetricKind {
	return []MetricKind{
		MetricKindPodCPU,
		MetricKindPodMemory,
		MetricKindPodHits,
		MetricKindNodeCPU,
		MetricKindNodeMemory,
	}
}

// IsValidMetricKind checks if a kind string names a supported metric
func IsValidMetricKind(kind string) bool {
	for _, k := range ValidMetricKinds() {
		if string(k) == kind {
			return true
		}
	}
	return false
}

// IsNodeScoped returns true for kinds whose series are labelled by node address
func (k MetricKind) IsNodeScoped() bool {
	return k == MetricKindNodeCPU || k == MetricKindNodeMemory
}

// IsWindowed returns true for rate-based kinds that are computed over a window
func (k MetricKind) IsWindowed() bool {
	return k == MetricKindPodCPU || k == MetricKindPodHits || k == MetricKindNodeCPU
}

// PodMetric is a single normalized sample for a pod
type PodMetric struct {
	PodName   string  `json:"pod_name"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// NewPodMetric validates and builds a pod sample
func NewPodMetric(podName string, value float64, timestamp string) (PodMetric, error) {
	if err := validateSample("pod name", podName, timestamp); err != nil {
		return PodMetric{}, err
	}
	return PodMetric{PodName: podName, Value: value, Timestamp: timestamp}, nil
}

// MarshalJSON encodes non-finite values the way Prometheus does ("NaN", "+Inf", "-Inf")
func (m PodMetric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PodName   string      `json:"pod_name"`
		Value     interface{} `json:"value"`
		Timestamp string      `json:"timestamp"`
	}{m.PodName, jsonValue(m.Value), m.Timestamp})
}

// String returns a human-readable representation
func (m PodMetric) String() string {
	return fmt.Sprintf("pod %s = %g @ %s", m.PodName, m.Value, m.Timestamp)
}

// NodeMetric is a single normalized sample for a node
type NodeMetric struct {
	NodeName  string  `json:"node_name"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// NewNodeMetric validates and builds a node sample
func NewNodeMetric(nodeName string, value float64, timestamp string) (NodeMetric, error) {
	if err := validateSample("node name", nodeName, timestamp); err != nil {
		return NodeMetric{}, err
	}
	return NodeMetric{NodeName: nodeName, Value: value, Timestamp: timestamp}, nil
}

// MarshalJSON encodes non-finite values the way Prometheus does ("NaN", "+Inf", "-Inf")
func (m NodeMetric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NodeName  string      `json:"node_name"`
		Value     interface{} `json:"value"`
		Timestamp string      `json:"timestamp"`
	}{m.NodeName, jsonValue(m.Value), m.Timestamp})
}

// String returns a human-readable representation
func (m NodeMetric) String() string {
	return fmt.Sprintf("node %s = %g @ %s", m.NodeName, m.Value, m.Timestamp)
}

func validateSample(field, name, timestamp string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s cannot be blank", field)
	}
	if strings.TrimSpace(timestamp) == "" {
		return fmt.Errorf("timestamp cannot be blank")
	}
	return nil
}

func jsonValue(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return v
	}
}
