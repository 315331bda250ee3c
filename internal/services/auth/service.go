package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheMichaelB/vaultrest/internal/creds"
	"github.com/TheMichaelB/vaultrest/internal/crypto"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/services/device"
	"github.com/TheMichaelB/vaultrest/internal/services/totp"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/transport"
	"github.com/TheMichaelB/vaultrest/internal/wire"
)

// maxPreLoginRetries bounds redirect and bad_request handling together.
const maxPreLoginRetries = 1

// ErrNoSalt is returned when login parameters carry no KDF salt.
var ErrNoSalt = errors.New("login parameters contain no salt")

// Service performs the pre-login handshake.
type Service struct {
	transport     transport.Executor
	devices       *device.Service
	totp          *totp.DefaultService
	clientVersion string
	logger        *events.Logger
}

// NewService creates an auth service.
func NewService(exec transport.Executor, devices *device.Service, clientVersion string, logger *events.Logger) *Service {
	return &Service{
		transport:     exec,
		devices:       devices,
		totp:          totp.NewService(),
		clientVersion: clientVersion,
		logger:        logger.WithField("service", "auth"),
	}
}

// PreLogin resolves username to its login parameters. A region redirect or a
// bad_request rejection clears the device token and is retried once; any
// further occurrence is returned to the caller.
func (s *Service) PreLogin(ctx context.Context, sess *session.Context, username string, twoFactorToken []byte) (*models.LoginParameters, error) {
	for depth := 0; ; depth++ {
		deviceToken, err := s.devices.GetDeviceToken(ctx, sess)
		if err != nil {
			return nil, fmt.Errorf("pre-login: %w", err)
		}

		rq := wire.PreLoginRequest{
			AuthRequest: wire.AuthRequest{
				ClientVersion:        s.clientVersion,
				Username:             username,
				EncryptedDeviceToken: deviceToken,
			},
			LoginType:      int32(models.LoginNormal),
			TwoFactorToken: twoFactorToken,
		}

		resp, err := s.transport.Execute(ctx, sess, transport.EndpointPreLogin, rq.Marshal())
		if err != nil {
			return nil, fmt.Errorf("pre-login: %w", err)
		}

		switch resp.Kind {
		case transport.KindBinary:
			params, err := parseLoginParameters(resp.Body)
			if err != nil {
				return nil, err
			}
			s.logger.WithFields(map[string]interface{}{
				"username":      username,
				"login_method":  params.LoginMethod.String(),
				"device_status": params.DeviceStatus.String(),
			}).Debug("Pre-login complete")
			return params, nil
		case transport.KindJSON:
			return nil, &models.ProtocolError{Op: transport.EndpointPreLogin, Reason: "unexpected JSON success response"}
		}

		apiErr := resp.Failure
		canRetry := depth < maxPreLoginRetries

		switch apiErr.Code {
		case models.ErrCodeRegionRedirect:
			if !canRetry {
				return nil, &models.ProtocolError{
					Op:     transport.EndpointPreLogin,
					Reason: fmt.Sprintf("second redirect to %q", apiErr.RegionHost),
					Err:    models.ErrRedirectLoop,
				}
			}
			if err := sess.RedirectTo(apiErr.RegionHost); err != nil {
				return nil, &models.ProtocolError{Op: transport.EndpointPreLogin, Reason: "invalid region redirect", Err: err}
			}
			sess.InvalidateDevice()
			s.logger.WithField("server", sess.ServerBase).Warn("Switching to region")

		case models.ErrCodeBadRequest:
			if !canRetry {
				return nil, apiErr
			}
			sess.InvalidateDevice()
			s.logger.WithError(apiErr).Debug("Pre-login rejected, retrying with a new device token")

		default:
			return nil, apiErr
		}
	}
}

// PreLoginWithCredentials runs PreLogin for c's username, sending a current
// TOTP code when c carries a secret.
func (s *Service) PreLoginWithCredentials(ctx context.Context, sess *session.Context, c *creds.Combined) (*models.LoginParameters, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var token []byte
	if c.Auth.TOTPSecret != "" {
		var err error
		if token, err = s.totp.TwoFactorToken(c.Auth.TOTPSecret); err != nil {
			return nil, fmt.Errorf("generate second factor: %w", err)
		}
	}

	return s.PreLogin(ctx, sess, c.Auth.Username, token)
}

// DeriveAuthKey derives the v2 authentication key from the primary salt in
// params.
func DeriveAuthKey(params *models.LoginParameters, domain, password string) ([]byte, error) {
	salt, ok := params.PrimarySalt()
	if !ok {
		return nil, ErrNoSalt
	}
	return crypto.DeriveKeyV2(domain, password, salt.Salt, int(salt.Iterations))
}

func parseLoginParameters(body []byte) (*models.LoginParameters, error) {
	var rs wire.PreLoginResponse
	if err := rs.Unmarshal(body); err != nil {
		return nil, &models.ProtocolError{Op: transport.EndpointPreLogin, Reason: "malformed pre-login response", Err: err}
	}

	params := &models.LoginParameters{
		DeviceStatus: models.DeviceStatus(rs.DeviceStatus),
		LoginMethod:  models.LoginNormal,
	}
	for _, salt := range rs.Salt {
		params.Salts = append(params.Salts, models.Salt{
			Name:       salt.Name,
			Iterations: salt.Iterations,
			Salt:       salt.Salt,
			Algorithm:  salt.Algorithm,
		})
	}
	if sso := rs.SSOUserInfo; sso != nil {
		params.SSO = &models.SSOInfo{
			CompanyName: sso.CompanyName,
			DomainName:  sso.SSODomainName,
			LoginURL:    sso.LoginURL,
			LogoutURL:   sso.LogoutURL,
		}
		params.LoginMethod = models.LoginSSO
	}

	return params, nil
}
