// Package session holds the per-connection protocol state shared by every
// call made against the vault service.
//
// A Context is not safe for concurrent use. Callers that share one across
// goroutines wrap it in a Guarded handle.
package session

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/vaultrest/internal/crypto"
)

// DefaultLocale is sent when the context carries no locale.
const DefaultLocale = "en_US"

// Context is the mutable state of one logical connection.
type Context struct {
	// ServerBase is the service base URL; endpoints are appended verbatim.
	ServerBase string

	Locale string

	// SessionKey wraps every payload; generated on first use.
	SessionKey []byte

	// ActiveKeyID names the registry key wrapping SessionKey. Zero means
	// "not negotiated yet".
	ActiveKeyID int32

	// DeviceToken is the cached enrollment token.
	DeviceToken []byte
}

// New creates a context for a server base and locale.
func New(serverBase, locale string) *Context {
	return &Context{
		ServerBase: serverBase,
		Locale:     locale,
	}
}

// EffectiveLocale returns the locale to send, falling back to DefaultLocale.
func (c *Context) EffectiveLocale() string {
	if c.Locale == "" {
		return DefaultLocale
	}
	return c.Locale
}

// EnsureSessionKey generates the session key if none is set. An existing key
// is never replaced.
func (c *Context) EnsureSessionKey() error {
	if len(c.SessionKey) > 0 {
		return nil
	}
	key, err := crypto.GenerateSessionKey()
	if err != nil {
		return err
	}
	c.SessionKey = key
	return nil
}

// HasDeviceToken reports whether an enrollment token is cached.
func (c *Context) HasDeviceToken() bool {
	return len(c.DeviceToken) > 0
}

// InvalidateDevice drops the cached device token.
func (c *Context) InvalidateDevice() {
	c.DeviceToken = nil
}

// RedirectTo moves the context to another regional host. Scheme and path of
// the current base are kept.
func (c *Context) RedirectTo(host string) error {
	host = strings.TrimSpace(host)
	if err := validateHost(host); err != nil {
		return err
	}

	u, err := url.Parse(c.ServerBase)
	if err != nil || u.Scheme == "" {
		u = &url.URL{Scheme: "https", Path: "/"}
	}
	u.Host = host
	if u.Path == "" {
		u.Path = "/"
	}

	c.ServerBase = u.String()
	return nil
}

// validateHost accepts a bare host name or address with an optional numeric
// port.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("redirect: empty host")
	}
	if strings.ContainsAny(host, "/\\?#@ ") {
		return fmt.Errorf("redirect: %q is not a bare host", host)
	}

	name, port, err := net.SplitHostPort(host)
	if err != nil {
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			return nil
		}
		if strings.Contains(host, ":") {
			return fmt.Errorf("redirect: invalid host %q: %w", host, err)
		}
		return nil
	}
	if name == "" {
		return fmt.Errorf("redirect: %q has no host name", host)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("redirect: invalid port in %q", host)
	}
	return nil
}

// Reset discards the session key and negotiated server key so the next call
// starts a fresh session.
func (c *Context) Reset() {
	c.SessionKey = nil
	c.ActiveKeyID = 0
}

// Snapshot is the persistable part of a context. The session key is never
// included.
type Snapshot struct {
	ServerBase  string    `json:"server_base"`
	Locale      string    `json:"locale"`
	ActiveKeyID int32     `json:"active_key_id"`
	DeviceToken []byte    `json:"device_token,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot captures the current state.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		ServerBase:  c.ServerBase,
		Locale:      c.Locale,
		ActiveKeyID: c.ActiveKeyID,
		DeviceToken: append([]byte(nil), c.DeviceToken...),
		UpdatedAt:   time.Now().UTC(),
	}
}

// Restore applies a snapshot. Empty snapshot fields leave the context as is.
func (c *Context) Restore(s Snapshot) {
	if s.ServerBase != "" {
		c.ServerBase = s.ServerBase
	}
	if s.Locale != "" {
		c.Locale = s.Locale
	}
	if s.ActiveKeyID != 0 {
		c.ActiveKeyID = s.ActiveKeyID
	}
	if len(s.DeviceToken) > 0 {
		c.DeviceToken = append([]byte(nil), s.DeviceToken...)
	}
}

// Guarded serialises access to a shared Context.
type Guarded struct {
	mu  sync.Mutex
	ctx *Context
}

// NewGuarded wraps ctx.
func NewGuarded(ctx *Context) *Guarded {
	return &Guarded{ctx: ctx}
}

// Do runs fn with exclusive access to the context.
func (g *Guarded) Do(fn func(*Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.ctx)
}
