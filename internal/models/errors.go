package models

import (
	"errors"
	"fmt"
)

// Server error codes the protocol layer reacts to.
const (
	ErrCodeKeyMismatch    = "key"
	ErrCodeRegionRedirect = "region_redirect"
	ErrCodeBadRequest     = "bad_request"
)

// Sentinel errors
var (
	ErrKeyMismatch       = errors.New("server key mismatch")
	ErrRedirectLoop      = errors.New("region redirect loop")
	ErrDeviceNotApproved = errors.New("device not approved")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// APIError is a structured failure returned by the vault service.
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	KeyID      int32  `json:"key_id,omitempty"`
	RegionHost string `json:"region_host,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%s): %s", e.Code, e.Message)
}

// Is lets errors.Is match a key mismatch failure against ErrKeyMismatch.
func (e *APIError) Is(target error) bool {
	return target == ErrKeyMismatch && e.Code == ErrCodeKeyMismatch
}

// ProtocolError reports a response whose shape the client cannot interpret.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol %s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError wraps a network failure or an HTTP status the protocol does
// not model.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
