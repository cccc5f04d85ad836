package integrations

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryResponse_Vector(t *testing.T) {
	body := `{
		"status": "success",
		"data": {
			"resultType": "vector",
			"result": [
				{"metric": {"pod": "b"}, "value": [1700000000.123, "0.75"]},
				{"metric": {"pod": "a"}, "value": [1700000000.123, "0.25"]},
				{"metric": {"pod": "a"}, "value": [1700000001, "3"]}
			]
		}
	}`

	points, err := ParseQueryResponse([]byte(body))
	require.NoError(t, err)
	require.Len(t, points, 3)

	// input order and duplicates are preserved
	assert.Equal(t, "b", points[0].Label("pod"))
	assert.Equal(t, "a", points[1].Label("pod"))
	assert.Equal(t, "a", points[2].Label("pod"))

	assert.Equal(t, 0.75, points[0].Value)
	assert.Equal(t, "0.75", points[0].ValueRaw)
	assert.Equal(t, "1700000000.123", points[0].TimestampRaw)
	assert.Equal(t, "1700000001", points[2].TimestampRaw)
	assert.Equal(t, model.LabelSet{"pod": "b"}, points[0].Labels)
}

func TestParseQueryResponse_TimestampVerbatim(t *testing.T) {
	tests := []struct {
		name     string
		literal  string
		expected string
	}{
		{name: "Float", literal: `1700000000.100`, expected: "1700000000.100"},
		{name: "Exponent", literal: `1.7e9`, expected: "1.7e9"},
		{name: "String", literal: `"1700000000.5"`, expected: "1700000000.5"},
		{name: "Null", literal: `null`, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"pod":"a"},"value":[` + tt.literal + `,"1"]}]}}`
			points, err := ParseQueryResponse([]byte(body))
			require.NoError(t, err)
			require.Len(t, points, 1)
			assert.Equal(t, tt.expected, points[0].TimestampRaw)
		})
	}
}

func TestParseQueryResponse_SkipsShortValues(t *testing.T) {
	body := `{"status":"success","data":{"resultType":"vector","result":[
		{"metric":{"pod":"a"},"value":[1700000000]},
		{"metric":{"pod":"b"},"value":[]},
		{"metric":{"pod":"c"}},
		{"metric":{"pod":"d"},"value":[1700000000,"5"]}
	]}}`

	points, err := ParseQueryResponse([]byte(body))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "d", points[0].Label("pod"))
	assert.Equal(t, 5.0, points[0].Value)
}

func TestParseQueryResponse_EmptyResult(t *testing.T) {
	bodies := map[string]string{
		"Empty result":   `{"status":"success","data":{"resultType":"vector","result":[]}}`,
		"Null result":    `{"status":"success","data":{"resultType":"vector","result":null}}`,
		"Missing result": `{"status":"success","data":{"resultType":"vector"}}`,
		"Missing data":   `{"status":"success"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			points, err := ParseQueryResponse([]byte(body))
			require.NoError(t, err)
			assert.NotNil(t, points)
			assert.Empty(t, points)
		})
	}
}

func TestParseQueryResponse_BackendError(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		errorType string
		message   string
	}{
		{
			name:      "Error envelope",
			body:      `{"status":"error","errorType":"bad_data","error":"parse error at char 5"}`,
			errorType: "bad_data",
			message:   "parse error at char 5",
		},
		{
			name:    "Error with result data",
			body:    `{"status":"error","error":"timeout","data":{"resultType":"vector","result":[{"metric":{"pod":"a"},"value":[1,"1"]}]}}`,
			message: "timeout",
		},
		{
			name:    "Error message under data",
			body:    `{"status":"error","data":{"error":"query timed out"}}`,
			message: "query timed out",
		},
		{
			name: "Missing status",
			body: `{"data":{"resultType":"vector","result":[]}}`,
		},
		{
			name: "Unexpected data shape",
			body: `{"status":"fail","data":"oops"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := ParseQueryResponse([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, points)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, ParseReasonBackendError, parseErr.Reason)
			assert.Equal(t, tt.errorType, parseErr.ErrorType)
			assert.Equal(t, tt.message, parseErr.Message)
		})
	}
}

func TestParseQueryResponse_UTF8LabelNames(t *testing.T) {
	body := `{"status":"success","data":{"resultType":"vector","result":[
		{"metric":{"pod":"a","k8s.pod.uid":"x"},"value":[1700000000,"0.25"]},
		{"metric":{"pod":"b","service.name":"checkout"},"value":[1700000000,"0.75"]}
	]}}`

	points, err := ParseQueryResponse([]byte(body))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "a", points[0].Label("pod"))
	assert.Equal(t, "x", points[0].Label("k8s.pod.uid"))
	assert.Equal(t, "checkout", points[1].Label("service.name"))
	assert.Equal(t, 0.75, points[1].Value)
}

func TestParseQueryResponse_MalformedEnvelope(t *testing.T) {
	bodies := map[string]string{
		"Empty body":      ``,
		"Not JSON":        `<html>bad gateway</html>`,
		"Truncated":       `{"status":"success","data":{"result":[`,
		"Array":           `[1,2,3]`,
		"Result not list": `{"status":"success","data":{"resultType":"vector","result":{"a":1}}}`,
		"Value not list":  `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":"1"}]}}`,
		"Label not text":  `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"pod":1},"value":[1,"1"]}]}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQueryResponse([]byte(body))
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, ParseReasonMalformedEnvelope, parseErr.Reason)
		})
	}
}

func TestParseQueryResponse_SampleValues(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		check   func(t *testing.T, v float64)
	}{
		{name: "Quoted decimal", literal: `"12.5"`, check: func(t *testing.T, v float64) { assert.Equal(t, 12.5, v) }},
		{name: "Bare number", literal: `42`, check: func(t *testing.T, v float64) { assert.Equal(t, 42.0, v) }},
		{name: "Negative", literal: `"-1.5"`, check: func(t *testing.T, v float64) { assert.Equal(t, -1.5, v) }},
		{name: "Exponent", literal: `"1e3"`, check: func(t *testing.T, v float64) { assert.Equal(t, 1000.0, v) }},
		{name: "NaN", literal: `"NaN"`, check: func(t *testing.T, v float64) { assert.True(t, math.IsNaN(v)) }},
		{name: "Positive infinity", literal: `"+Inf"`, check: func(t *testing.T, v float64) { assert.True(t, math.IsInf(v, 1)) }},
		{name: "Negative infinity", literal: `"-Inf"`, check: func(t *testing.T, v float64) { assert.True(t, math.IsInf(v, -1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"pod":"a"},"value":[1700000000,` + tt.literal + `]}]}}`
			points, err := ParseQueryResponse([]byte(body))
			require.NoError(t, err)
			require.Len(t, points, 1)
			tt.check(t, points[0].Value)
		})
	}
}

func TestParseQueryResponse_MalformedSample(t *testing.T) {
	literals := []string{`"abc"`, `""`, `true`, `null`, `{"v":1}`, `"0x1p-2"`, `"-0X10"`}

	for _, literal := range literals {
		t.Run(literal, func(t *testing.T) {
			body := `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"pod":"a"},"value":[1700000000,` + literal + `]}]}}`
			points, err := ParseQueryResponse([]byte(body))
			require.Error(t, err)
			assert.Nil(t, points)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, ParseReasonMalformedSample, parseErr.Reason)
			assert.Contains(t, parseErr.Message, "result[0]")
		})
	}
}

func TestParseError_Messages(t *testing.T) {
	err := &ParseError{Reason: ParseReasonBackendError, ErrorType: "bad_data", Message: "boom"}
	assert.Equal(t, "backend-reported error: bad_data - boom", err.Error())

	err = &ParseError{Reason: ParseReasonMalformedEnvelope, Err: errors.New("unexpected EOF")}
	assert.Equal(t, "malformed envelope: unexpected EOF", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "unexpected EOF")

	err = &ParseError{Reason: ParseReasonBackendError}
	assert.Equal(t, "backend-reported error", err.Error())
}
