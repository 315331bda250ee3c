// Package device enrolls the client with the vault service and caches the
// resulting device token on the session.
package device

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/transport"
	"github.com/TheMichaelB/vaultrest/internal/wire"
)

// Service handles device enrollment.
type Service struct {
	transport     transport.Executor
	clientVersion string
	deviceName    string
	logger        *events.Logger
}

// NewService creates a device service.
func NewService(exec transport.Executor, clientVersion string, logger *events.Logger) *Service {
	return &Service{
		transport:     exec,
		clientVersion: clientVersion,
		logger:        logger.WithField("service", "device"),
	}
}

// SetDeviceName sets the name reported on enrollment. Empty by default.
func (s *Service) SetDeviceName(name string) {
	s.deviceName = name
}

// GetDeviceToken returns the session's device token, enrolling first when
// none is cached.
func (s *Service) GetDeviceToken(ctx context.Context, sess *session.Context) ([]byte, error) {
	if sess.HasDeviceToken() {
		return sess.DeviceToken, nil
	}

	rq := wire.DeviceRequest{
		ClientVersion: s.clientVersion,
		DeviceName:    s.deviceName,
	}

	resp, err := s.transport.Execute(ctx, sess, transport.EndpointDeviceToken, rq.Marshal())
	if err != nil {
		return nil, fmt.Errorf("get device token: %w", err)
	}

	body, err := resp.Bytes()
	if err != nil {
		return nil, err
	}

	var rs wire.DeviceResponse
	if err := rs.Unmarshal(body); err != nil {
		return nil, &models.ProtocolError{Op: transport.EndpointDeviceToken, Reason: "malformed device response", Err: err}
	}

	status := models.DeviceStatus(rs.Status)
	if status != models.DeviceOK {
		s.logger.WithField("status", status.String()).Warn("Device not approved")
		return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotApproved, status)
	}
	if len(rs.EncryptedDeviceToken) == 0 {
		return nil, &models.ProtocolError{Op: transport.EndpointDeviceToken, Reason: "empty device token"}
	}

	sess.DeviceToken = rs.EncryptedDeviceToken
	s.logger.WithField("client_version", s.clientVersion).Debug("Device token obtained")

	return sess.DeviceToken, nil
}
