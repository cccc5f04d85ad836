package integrations

import (
	"fmt"
)

// ExecutionError reports a failed round trip to the metrics backend.
// StatusCode is zero when the request never produced a response.
type ExecutionError struct {
	Query      string
	StatusCode int
	Body       string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("prometheus returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ParseErrorReason classifies a ParseError
type ParseErrorReason string

// Parse error reasons
const (
	ParseReasonMalformedEnvelope ParseErrorReason = "malformed envelope"
	ParseReasonBackendError      ParseErrorReason = "backend-reported error"
	ParseReasonMalformedSample   ParseErrorReason = "malformed sample"
)

// ParseError reports a response body that could not be turned into series points
type ParseError struct {
	Reason    ParseErrorReason
	ErrorType string
	Message   string
	Err       error
}

func (e *ParseError) Error() string {
	switch {
	case e.Reason == ParseReasonBackendError && e.ErrorType != "":
		return fmt.Sprintf("%s: %s - %s", e.Reason, e.ErrorType, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	default:
		return string(e.Reason)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IdentityErrorReason classifies an IdentityError
type IdentityErrorReason string

// Identity error reasons
const (
	IdentityReasonMalformedLabel       IdentityErrorReason = "malformed label"
	IdentityReasonUnsupportedAddress   IdentityErrorReason = "unsupported address"
	IdentityReasonNodeNotFound         IdentityErrorReason = "node not found"
	IdentityReasonInventoryUnavailable IdentityErrorReason = "inventory unavailable"
)

// IdentityError reports a node label that could not be mapped to a node name
type IdentityError struct {
	Reason  IdentityErrorReason
	Label   string
	Address string
	Err     error
}

func (e *IdentityError) Error() string {
	switch e.Reason {
	case IdentityReasonNodeNotFound:
		return fmt.Sprintf("node not found for address %s", e.Address)
	case IdentityReasonInventoryUnavailable:
		return fmt.Sprintf("inventory unavailable: %v", e.Err)
	default:
		return fmt.Sprintf("%s: %q", e.Reason, e.Label)
	}
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}
