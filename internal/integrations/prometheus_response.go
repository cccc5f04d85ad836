package integrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/common/model"
)

const statusSuccess = "success"

// PrometheusQueryResponse is the top-level envelope of the Prometheus query API.
// Data is decoded separately so a non-success status is reported even when the
// rest of the envelope has an unexpected shape.
type PrometheusQueryResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"errorType,omitempty"`
}

// prometheusQueryData is the data member of a success envelope
type prometheusQueryData struct {
	ResultType string             `json:"resultType"`
	Result     []prometheusResult `json:"result"`
	Error      string             `json:"error,omitempty"`
}

// prometheusResult is one series of an instant vector: value is [timestamp, "value"]
type prometheusResult struct {
	Metric map[string]string `json:"metric"`
	Value  []json.RawMessage `json:"value"`
}

// RawSeriesPoint is one decoded series entry before normalization
type RawSeriesPoint struct {
	Labels model.LabelSet

	// TimestampRaw is the backend timestamp exactly as it appeared in the body
	TimestampRaw string

	// ValueRaw is the sample literal; Value is its decimal interpretation
	ValueRaw string
	Value    float64
}

// Label returns the value of the named label, or empty if absent
func (p RawSeriesPoint) Label(name model.LabelName) string {
	return string(p.Labels[name])
}

// ParseQueryResponse decodes an instant-query body into series points in input order.
// An empty or missing result is not an error. Entries whose value pair has fewer
// than two elements are dropped.
func ParseQueryResponse(body []byte) ([]RawSeriesPoint, error) {
	var envelope PrometheusQueryResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ParseError{Reason: ParseReasonMalformedEnvelope, Err: err}
	}

	if envelope.Status != statusSuccess {
		return nil, &ParseError{
			Reason:    ParseReasonBackendError,
			ErrorType: envelope.ErrorType,
			Message:   backendErrorMessage(envelope),
		}
	}

	if isAbsent(envelope.Data) {
		return []RawSeriesPoint{}, nil
	}

	var data prometheusQueryData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &ParseError{Reason: ParseReasonMalformedEnvelope, Err: fmt.Errorf("data: %w", err)}
	}

	points := make([]RawSeriesPoint, 0, len(data.Result))
	for i, item := range data.Result {
		if len(item.Value) < 2 {
			continue
		}

		valueRaw, value, err := parseSampleValue(item.Value[1])
		if err != nil {
			return nil, &ParseError{
				Reason:  ParseReasonMalformedSample,
				Message: fmt.Sprintf("result[%d]: %v", i, err),
				Err:     err,
			}
		}

		points = append(points, RawSeriesPoint{
			Labels:       labelSet(item.Metric),
			TimestampRaw: literalText(item.Value[0]),
			ValueRaw:     valueRaw,
			Value:        value,
		})
	}

	return points, nil
}

// labelSet converts without label-name validation; UTF-8 names like k8s.pod.uid are valid on the backend
func labelSet(metric map[string]string) model.LabelSet {
	labels := make(model.LabelSet, len(metric))
	for name, value := range metric {
		labels[model.LabelName(name)] = model.LabelValue(value)
	}
	return labels
}

// backendErrorMessage prefers the top-level error and falls back to data.error
func backendErrorMessage(envelope PrometheusQueryResponse) string {
	if envelope.Error != "" {
		return envelope.Error
	}
	if isAbsent(envelope.Data) {
		return ""
	}
	var data struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return ""
	}
	return data.Error
}

// literalText returns a JSON scalar as written; strings lose their quotes, null becomes empty
func literalText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if isAbsent(trimmed) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// parseSampleValue accepts the usual string form ("0.25", "NaN", "+Inf") and bare numbers
func parseSampleValue(raw json.RawMessage) (string, float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if isAbsent(trimmed) {
		return "", 0, fmt.Errorf("missing sample value")
	}
	if trimmed[0] != '"' && trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9') {
		return string(trimmed), 0, fmt.Errorf("unexpected value literal %s", trimmed)
	}

	literal := literalText(trimmed)
	if hasHexPrefix(literal) {
		return literal, 0, fmt.Errorf("value '%s' is not a decimal literal", literal)
	}
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return literal, 0, fmt.Errorf("failed to parse value '%s': %w", literal, err)
	}
	return literal, value, nil
}

// hasHexPrefix reports a 0x literal, optionally signed, which ParseFloat would otherwise accept
func hasHexPrefix(literal string) bool {
	s := strings.TrimLeft(literal, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isAbsent(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
