package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/crypto"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/wire"
)

// maxKeyRotations bounds how often a key mismatch may switch the server key
// within one Execute call.
const maxKeyRotations = 1

// HTTPClient handles HTTP communication with the vault service.
type HTTPClient struct {
	client    *http.Client
	codec     crypto.Provider
	userAgent string
	logger    *events.Logger
}

// NewHTTPClient creates an HTTP client. A nil codec uses the production
// server keys.
func NewHTTPClient(cfg *config.Config, codec crypto.Provider, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.Dev.InsecureSkipVerify, //nolint:gosec // dev only
		},
	}

	if !cfg.Dev.DisableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.WithError(err).Warn("Failed to configure HTTP/2")
		}
	}

	if codec == nil {
		codec = crypto.NewProvider(nil)
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.API.Timeout,
			Transport: transport,
			// 3xx is reported to the caller; the envelope is never replayed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		codec:     codec,
		userAgent: cfg.API.UserAgent,
		logger:    logger.WithField("component", "http_client"),
	}
}

// Execute encrypts payload for endpoint, posts it and classifies the reply.
//
// A key mismatch naming a different known key switches the session to that
// key and resends once. Every other outcome is returned to the caller.
func (c *HTTPClient) Execute(ctx context.Context, sess *session.Context, endpoint string, payload []byte) (*Response, error) {
	if err := sess.EnsureSessionKey(); err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	if sess.ActiveKeyID == 0 || !c.codec.HasKey(sess.ActiveKeyID) {
		sess.ActiveKeyID = c.codec.DefaultKeyID()
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, sess, endpoint, payload)
		if err != nil {
			return nil, err
		}

		if resp.Kind != KindError || resp.Failure.Code != models.ErrCodeKeyMismatch {
			return resp, nil
		}

		apiErr := resp.Failure
		if attempt >= maxKeyRotations || apiErr.KeyID == 0 || apiErr.KeyID == sess.ActiveKeyID {
			return nil, apiErr
		}
		if !c.codec.HasKey(apiErr.KeyID) {
			return nil, fmt.Errorf("%w %d: %w", crypto.ErrUnknownKeyID, apiErr.KeyID, apiErr)
		}

		c.logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"from":     sess.ActiveKeyID,
			"to":       apiErr.KeyID,
		}).Debug("Switching server key")

		sess.ActiveKeyID = apiErr.KeyID
	}
}

// send performs a single round trip.
func (c *HTTPClient) send(ctx context.Context, sess *session.Context, endpoint string, payload []byte) (*Response, error) {
	body, err := c.envelope(sess, payload)
	if err != nil {
		return nil, err
	}

	url := sess.ServerBase + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &models.TransportError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "*/*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": http.MethodPost,
		"url":    url,
		"key_id": sess.ActiveKeyID,
		"size":   len(body),
	}).Debug("Sending request")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{URL: url, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.WithFields(map[string]interface{}{
		"status":  resp.StatusCode,
		"size":    len(respBody),
		"headers": resp.Header,
	}).Debug("Received response")

	switch {
	case resp.StatusCode == http.StatusOK:
		if isJSON(resp.Header.Get("Content-Type")) {
			var doc interface{}
			if err := json.Unmarshal(respBody, &doc); err != nil {
				return nil, &models.ProtocolError{Op: endpoint, Reason: "malformed JSON response", Err: err}
			}
			return JSON(doc), nil
		}

		plain, err := c.codec.Open(respBody, sess.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("open %s response: %w", endpoint, err)
		}
		return Binary(plain), nil

	case resp.StatusCode >= http.StatusBadRequest:
		c.logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(respBody),
		}).Debug("Error response")

		apiErr, err := parseAPIError(endpoint, resp.StatusCode, respBody)
		if err != nil {
			return nil, err
		}
		return Failure(apiErr), nil

	default:
		return nil, &models.TransportError{URL: url, StatusCode: resp.StatusCode}
	}
}

// envelope builds the outer request for payload under the session's key.
func (c *HTTPClient) envelope(sess *session.Context, payload []byte) ([]byte, error) {
	wrapped, err := c.codec.WrapSessionKey(sess.ActiveKeyID, sess.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}

	inner := wire.APIRequestPayload{Payload: payload}
	sealed, err := c.codec.Seal(inner.Marshal(), sess.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}

	rq := wire.APIRequest{
		EncryptedTransmissionKey: wrapped,
		PublicKeyID:              sess.ActiveKeyID,
		Locale:                   sess.EffectiveLocale(),
		EncryptedPayload:         sealed,
	}
	return rq.Marshal(), nil
}

func parseAPIError(endpoint string, status int, body []byte) (*models.APIError, error) {
	var apiErr models.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil, &models.ProtocolError{
			Op:     endpoint,
			Reason: fmt.Sprintf("malformed error response (HTTP %d)", status),
			Err:    err,
		}
	}
	if apiErr.Code == "" {
		return nil, &models.ProtocolError{
			Op:     endpoint,
			Reason: fmt.Sprintf("error response without code (HTTP %d)", status),
		}
	}
	apiErr.StatusCode = status
	return &apiErr, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
