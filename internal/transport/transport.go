package transport

import (
	"context"

	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
)

// Service endpoints, relative to the session's server base.
const (
	EndpointDeviceToken    = "authentication/get_device_token"
	EndpointPreLogin       = "authentication/pre_login"
	EndpointExecuteCommand = "vault/execute_v2_command"
)

// Executor sends one payload over the encrypted channel.
type Executor interface {
	Execute(ctx context.Context, sess *session.Context, endpoint string, payload []byte) (*Response, error)
}

// Kind tells which variant a Response holds.
type Kind int

const (
	// KindBinary carries the decrypted response payload.
	KindBinary Kind = iota
	// KindJSON is a plaintext JSON document returned with HTTP 200.
	KindJSON
	// KindError is a structured service error.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindJSON:
		return "json"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Response is the outcome of one Execute call. Exactly one of Body, JSON or
// Failure is set, according to Kind.
type Response struct {
	Kind    Kind
	Body    []byte
	JSON    interface{}
	Failure *models.APIError
}

// Binary returns a KindBinary response.
func Binary(body []byte) *Response {
	return &Response{Kind: KindBinary, Body: body}
}

// JSON returns a KindJSON response holding any decoded JSON value.
func JSON(doc interface{}) *Response {
	return &Response{Kind: KindJSON, JSON: doc}
}

// Failure returns a KindError response.
func Failure(apiErr *models.APIError) *Response {
	return &Response{Kind: KindError, Failure: apiErr}
}

// Bytes returns the binary payload. A structured failure is returned as the
// error; a JSON document is a protocol error.
func (r *Response) Bytes() ([]byte, error) {
	switch r.Kind {
	case KindBinary:
		return r.Body, nil
	case KindError:
		return nil, r.Failure
	default:
		return nil, &models.ProtocolError{Op: "response", Reason: "expected binary payload, got " + r.Kind.String()}
	}
}
