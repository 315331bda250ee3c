package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/TheMichaelB/vaultrest/internal/crypto"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/wire"
)

// BasePath is the path prefix every VaultServer serves endpoints under.
const BasePath = "/api/rest/"

// ServerKeyIDs are the key IDs a VaultServer holds private keys for.
var ServerKeyIDs = []int32{1, 2, 3}

var (
	keysOnce    sync.Once
	privateKeys map[int32]*rsa.PrivateKey
	registry    *crypto.Registry
)

// serverKeys generates the shared test key pairs once per test binary.
func serverKeys() (map[int32]*rsa.PrivateKey, *crypto.Registry) {
	keysOnce.Do(func() {
		privateKeys = make(map[int32]*rsa.PrivateKey, len(ServerKeyIDs))
		public := make(map[int32]*rsa.PublicKey, len(ServerKeyIDs))
		for _, id := range ServerKeyIDs {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(fmt.Errorf("generate test key %d: %w", id, err))
			}
			privateKeys[id] = key
			public[id] = &key.PublicKey
		}

		var err error
		registry, err = crypto.NewRegistry(public)
		if err != nil {
			panic(err)
		}
	})
	return privateKeys, registry
}

// Request is a decrypted envelope received by a VaultServer.
type Request struct {
	Endpoint   string
	Host       string
	KeyID      int32
	Locale     string
	SessionKey []byte
	Payload    []byte
}

// Reply describes what a handler sends back. Set one of Payload, JSON, Error
// or Raw.
type Reply struct {
	Status      int
	Payload     []byte           // sealed with the request's session key
	JSON        interface{}      // sent in clear as application/json
	Error       *models.APIError // sent as a structured error body
	Raw         []byte           // sent verbatim
	ContentType string
	Header      map[string]string
}

// Handler produces the reply for one decrypted request.
type Handler func(req Request) Reply

// VaultServer is an in-process fake of the vault service. It opens request
// envelopes with its private keys and seals binary replies.
type VaultServer struct {
	*httptest.Server

	mu       sync.RWMutex
	keys     map[int32]*rsa.PrivateKey
	registry *crypto.Registry
	handlers map[string]Handler
	requests []Request

	// non-zero: reject other key IDs with a key mismatch naming this one
	acceptKeyID int32
}

// NewVaultServer starts a fake vault service closed at test cleanup.
func NewVaultServer(t testing.TB) *VaultServer {
	t.Helper()

	keys, reg := serverKeys()
	vs := &VaultServer{
		keys:     keys,
		registry: reg,
		handlers: make(map[string]Handler),
	}

	vs.Server = httptest.NewServer(http.HandlerFunc(vs.serve))
	t.Cleanup(vs.Close)
	return vs
}

// Registry returns the public keys matching the server's private keys.
func (vs *VaultServer) Registry() *crypto.Registry {
	return vs.registry
}

// Provider returns a codec bound to the server's keys.
func (vs *VaultServer) Provider() *crypto.CryptoProvider {
	return crypto.NewProvider(vs.registry)
}

// BaseURL returns the server base to put into a session.
func (vs *VaultServer) BaseURL() string {
	return vs.URL + BasePath
}

// Host returns host:port, suitable as a region redirect target.
func (vs *VaultServer) Host() string {
	u, _ := url.Parse(vs.URL)
	return u.Host
}

// Handle registers the handler for endpoint.
func (vs *VaultServer) Handle(endpoint string, h Handler) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.handlers[endpoint] = h
}

// AcceptOnlyKey makes the server answer any other key ID with a key mismatch.
func (vs *VaultServer) AcceptOnlyKey(id int32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.acceptKeyID = id
}

// Requests returns the envelopes received so far.
func (vs *VaultServer) Requests() []Request {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	out := make([]Request, len(vs.requests))
	copy(out, vs.requests)
	return out
}

// RequestCount returns the number of envelopes received.
func (vs *VaultServer) RequestCount() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.requests)
}

func (vs *VaultServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, BasePath) {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := vs.open(body)
	if err != nil {
		writeReply(w, Reply{Error: &models.APIError{Code: "bad_request", Message: err.Error()}})
		return
	}
	req.Endpoint = strings.TrimPrefix(r.URL.Path, BasePath)
	req.Host = r.Host

	vs.mu.Lock()
	vs.requests = append(vs.requests, req)
	accept := vs.acceptKeyID
	h, ok := vs.handlers[req.Endpoint]
	vs.mu.Unlock()

	if accept != 0 && req.KeyID != accept {
		writeReply(w, Reply{
			Status: http.StatusUnauthorized,
			Error:  &models.APIError{Code: models.ErrCodeKeyMismatch, Message: "public key mismatch", KeyID: accept},
		})
		return
	}

	if !ok {
		writeReply(w, Reply{
			Status: http.StatusNotFound,
			Error:  &models.APIError{Code: "not_found", Message: "no handler for " + req.Endpoint},
		})
		return
	}

	reply := h(req)
	if reply.Payload != nil {
		sealed, err := crypto.Seal(reply.Payload, req.SessionKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		reply.Raw = sealed
		if reply.ContentType == "" {
			reply.ContentType = "application/octet-stream"
		}
	}
	writeReply(w, reply)
}

// open decrypts an envelope.
func (vs *VaultServer) open(body []byte) (Request, error) {
	var env wire.APIRequest
	if err := env.Unmarshal(body); err != nil {
		return Request{}, err
	}

	req := Request{KeyID: env.PublicKeyID, Locale: env.Locale}

	priv, ok := vs.keys[env.PublicKeyID]
	if !ok {
		// Unknown ID: leave the payload closed, the key check answers it.
		return req, nil
	}

	sessionKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, env.EncryptedTransmissionKey)
	if err != nil {
		return Request{}, fmt.Errorf("unwrap session key: %w", err)
	}
	plain, err := crypto.Open(env.EncryptedPayload, sessionKey)
	if err != nil {
		return Request{}, err
	}

	var inner wire.APIRequestPayload
	if err := inner.Unmarshal(plain); err != nil {
		return Request{}, err
	}

	req.SessionKey = sessionKey
	req.Payload = inner.Payload
	return req, nil
}

func writeReply(w http.ResponseWriter, reply Reply) {
	for k, v := range reply.Header {
		w.Header().Set(k, v)
	}

	status := reply.Status
	body := reply.Raw

	switch {
	case reply.Error != nil:
		if status == 0 {
			status = http.StatusBadRequest
		}
		body, _ = json.Marshal(reply.Error)
		if reply.ContentType == "" {
			reply.ContentType = "application/json"
		}
	case reply.JSON != nil:
		body, _ = json.Marshal(reply.JSON)
		if reply.ContentType == "" {
			reply.ContentType = "application/json; charset=utf-8"
		}
	}

	if status == 0 {
		status = http.StatusOK
	}
	if reply.ContentType != "" {
		w.Header().Set("Content-Type", reply.ContentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
