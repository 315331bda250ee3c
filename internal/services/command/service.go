// Package command sends JSON application commands over the encrypted
// transport.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/transport"
)

// Service executes commands on the vault service.
type Service struct {
	transport transport.Executor
	logger    *events.Logger
}

// NewService creates a command service.
func NewService(exec transport.Executor, logger *events.Logger) *Service {
	return &Service{
		transport: exec,
		logger:    logger.WithField("service", "command"),
	}
}

// Execute sends cmd as JSON and returns the decoded response object. The
// command is not interpreted.
func (s *Service) Execute(ctx context.Context, sess *session.Context, cmd interface{}) (map[string]interface{}, error) {
	payload, err := Canonical(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	resp, err := s.transport.Execute(ctx, sess, transport.EndpointExecuteCommand, payload)
	if err != nil {
		return nil, fmt.Errorf("execute command: %w", err)
	}

	var rs map[string]interface{}
	switch resp.Kind {
	case transport.KindBinary:
		if err := json.Unmarshal(resp.Body, &rs); err != nil {
			return nil, &models.ProtocolError{Op: transport.EndpointExecuteCommand, Reason: "response is not a JSON object", Err: err}
		}
		if rs == nil {
			return nil, &models.ProtocolError{Op: transport.EndpointExecuteCommand, Reason: "empty response"}
		}
	case transport.KindJSON:
		doc, ok := resp.JSON.(map[string]interface{})
		if !ok {
			return nil, &models.ProtocolError{Op: transport.EndpointExecuteCommand, Reason: "response is not a JSON object"}
		}
		rs = doc
	default:
		return nil, resp.Failure
	}

	if s.logger.IsDebug() {
		s.logger.WithField("json", indent(payload)).Debug("Request JSON")
		if out, err := Canonical(rs); err == nil {
			s.logger.WithField("json", indent(out)).Debug("Response JSON")
		}
	}

	return rs, nil
}

// Canonical encodes v as compact JSON with object keys sorted. Numbers keep
// their original text.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}

func indent(b []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "    "); err != nil {
		return string(b)
	}
	return buf.String()
}
