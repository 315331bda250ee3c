package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
)

// MockTransport provides a scripted Executor for testing.
type MockTransport struct {
	mu sync.Mutex

	// Queued results per endpoint, consumed in order
	results map[string][]mockResult

	// Request tracking
	Calls []Call
}

// Call records one Execute invocation and the session state it saw.
type Call struct {
	Endpoint    string
	Payload     []byte
	ServerBase  string
	DeviceToken []byte
	KeyID       int32
}

type mockResult struct {
	resp *Response
	err  error
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		results: make(map[string][]mockResult),
	}
}

// Execute records the call and returns the next scripted result.
func (m *MockTransport) Execute(ctx context.Context, sess *session.Context, endpoint string, payload []byte) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sess.EnsureSessionKey(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Call{
		Endpoint:    endpoint,
		Payload:     append([]byte(nil), payload...),
		ServerBase:  sess.ServerBase,
		DeviceToken: append([]byte(nil), sess.DeviceToken...),
		KeyID:       sess.ActiveKeyID,
	})

	queue := m.results[endpoint]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no mock response for %s", endpoint)
	}
	next := queue[0]
	m.results[endpoint] = queue[1:]

	return next.resp, next.err
}

// AddBinary queues a decrypted binary response.
func (m *MockTransport) AddBinary(endpoint string, body []byte) {
	m.add(endpoint, mockResult{resp: Binary(body)})
}

// AddJSON queues a plaintext JSON response.
func (m *MockTransport) AddJSON(endpoint string, doc interface{}) {
	m.add(endpoint, mockResult{resp: JSON(doc)})
}

// AddFailure queues a structured service error.
func (m *MockTransport) AddFailure(endpoint string, apiErr *models.APIError) {
	m.add(endpoint, mockResult{resp: Failure(apiErr)})
}

// AddError queues a transport-level error.
func (m *MockTransport) AddError(endpoint string, err error) {
	m.add(endpoint, mockResult{err: err})
}

func (m *MockTransport) add(endpoint string, r mockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[endpoint] = append(m.results[endpoint], r)
}

// CallsFor returns the recorded calls to endpoint.
func (m *MockTransport) CallsFor(endpoint string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []Call
	for _, c := range m.Calls {
		if c.Endpoint == endpoint {
			calls = append(calls, c)
		}
	}
	return calls
}

// CallCount returns the number of recorded calls.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Pending returns how many scripted results are still queued.
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.results {
		n += len(q)
	}
	return n
}

var (
	_ Executor = (*MockTransport)(nil)
	_ Executor = (*HTTPClient)(nil)
)
