package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/creds"
	"github.com/TheMichaelB/vaultrest/internal/crypto"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/services/auth"
	"github.com/TheMichaelB/vaultrest/internal/services/command"
	"github.com/TheMichaelB/vaultrest/internal/services/device"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/state"
	"github.com/TheMichaelB/vaultrest/internal/transport"
)

// Client provides the high-level API over one persisted session.
type Client struct {
	Device  *device.Service
	Auth    *auth.Service
	Command *command.Service

	config    *config.Config
	logger    *events.Logger
	transport transport.Executor
	store     state.Store
	profile   string
	session   *session.Guarded
}

// Option customises a Client.
type Option func(*options)

type options struct {
	provider  crypto.Provider
	transport transport.Executor
	store     state.Store
}

// WithProvider replaces the envelope codec, and with it the server key
// registry.
func WithProvider(p crypto.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Executor) Option {
	return func(o *options) { o.transport = t }
}

// WithStore replaces the configured session store.
func WithStore(s state.Store) Option {
	return func(o *options) { o.store = s }
}

// New creates a client for cfg.Session.Profile, restoring any saved session.
func New(cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	locale, err := session.NormalizeLocale(cfg.API.Locale)
	if err != nil {
		return nil, fmt.Errorf("%w: api.locale: %v", models.ErrInvalidConfig, err)
	}

	if o.transport == nil {
		o.transport = transport.NewHTTPClient(cfg, o.provider, logger)
	}
	if o.store == nil {
		if o.store, err = state.Open(cfg, logger); err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
	}

	devices := device.NewService(o.transport, cfg.API.ClientVersion, logger)

	c := &Client{
		Device:    devices,
		Auth:      auth.NewService(o.transport, devices, cfg.API.ClientVersion, logger),
		Command:   command.NewService(o.transport, logger),
		config:    cfg,
		logger:    logger.WithField("profile", cfg.Session.Profile),
		transport: o.transport,
		store:     o.store,
		profile:   cfg.Session.Profile,
	}

	sess := session.New(cfg.API.BaseURL, locale)
	snap, err := c.store.Load(c.profile)
	switch {
	case err == nil:
		sess.Restore(*snap)
		c.logger.WithField("server", sess.ServerBase).Debug("Restored session")
	case errors.Is(err, state.ErrStateNotFound):
	default:
		c.logger.WithError(err).Warn("Ignoring unreadable session state")
	}
	c.session = session.NewGuarded(sess)

	return c, nil
}

// DeviceToken returns the enrolled device token, enrolling if needed.
func (c *Client) DeviceToken(ctx context.Context) ([]byte, error) {
	var token []byte
	err := c.do(func(sess *session.Context) error {
		var err error
		token, err = c.Device.GetDeviceToken(ctx, sess)
		return err
	})
	return token, err
}

// PreLogin resolves username to its login parameters.
func (c *Client) PreLogin(ctx context.Context, username string, twoFactorToken []byte) (*models.LoginParameters, error) {
	var params *models.LoginParameters
	err := c.do(func(sess *session.Context) error {
		var err error
		params, err = c.Auth.PreLogin(ctx, sess, username, twoFactorToken)
		return err
	})
	return params, err
}

// PreLoginConfigured runs pre-login for the account named by the configured
// credential sources.
func (c *Client) PreLoginConfigured(ctx context.Context) (*models.LoginParameters, error) {
	combined, err := creds.Resolve(ctx, &c.config.Auth)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	var params *models.LoginParameters
	err = c.do(func(sess *session.Context) error {
		var err error
		params, err = c.Auth.PreLoginWithCredentials(ctx, sess, combined)
		return err
	})
	return params, err
}

// Execute sends a JSON command.
func (c *Client) Execute(ctx context.Context, cmd interface{}) (map[string]interface{}, error) {
	var rs map[string]interface{}
	err := c.do(func(sess *session.Context) error {
		var err error
		rs, err = c.Command.Execute(ctx, sess, cmd)
		return err
	})
	return rs, err
}

// Session returns the persistable view of the current session.
func (c *Client) Session() session.Snapshot {
	var snap session.Snapshot
	_ = c.session.Do(func(sess *session.Context) error {
		snap = sess.Snapshot()
		return nil
	})
	return snap
}

// ResetSession discards the session key, device token and any region
// redirect, and deletes the saved state.
func (c *Client) ResetSession() error {
	return c.session.Do(func(sess *session.Context) error {
		sess.Reset()
		sess.InvalidateDevice()
		sess.ServerBase = c.config.API.BaseURL
		c.logger.Info("Session reset")
		return c.store.Reset(c.profile)
	})
}

// Profiles lists profiles with saved sessions.
func (c *Client) Profiles() ([]string, error) {
	return c.store.List()
}

// Close releases the session store.
func (c *Client) Close() error {
	return c.store.Close()
}

// do runs fn under the session lock and saves the session afterwards, also
// when fn fails.
func (c *Client) do(fn func(*session.Context) error) error {
	return c.session.Do(func(sess *session.Context) error {
		err := fn(sess)

		snap := sess.Snapshot()
		if serr := c.store.Save(c.profile, &snap); serr != nil {
			c.logger.WithError(serr).Warn("Failed to save session")
		}
		return err
	})
}
