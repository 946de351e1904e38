package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/otp"
	"admin-auth-service/internal/service"
)

// Minimal in-memory plumbing so the handlers run against the real services.

type memRequests struct {
	mu   sync.Mutex
	rows map[string]*model.VerificationRequest
}

func (s *memRequests) Create(_ context.Context, req *model.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.rows[req.RequestToken] = &clone
	return nil
}

func (s *memRequests) Get(_ context.Context, token string) (*model.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memRequests) Consume(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok || row.Consumed {
		return false, nil
	}
	row.Consumed = true
	return true, nil
}

func (s *memRequests) IncrementAttempts(_ context.Context, token string, from int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok || row.Attempts != from {
		return false, nil
	}
	row.Attempts = from + 1
	return true, nil
}

func (s *memRequests) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	return 0, nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]*model.Session
}

func (s *memSessions) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.rows[session.SessionToken] = &clone
	return nil
}

func (s *memSessions) Get(_ context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memSessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

type captureSender struct {
	mu   sync.Mutex
	code string
}

func (s *captureSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *captureSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

type noopRecorder struct{}

func (noopRecorder) Record(model.SecurityEventType, string, string) {}

type fixture struct {
	server *httptest.Server
	sender *captureSender
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			AdminEmail:  "admin@example.com",
			CodeTTL:     5 * time.Minute,
			SessionTTL:  30 * 24 * time.Hour,
			MaxAttempts: 5,
			CookieName:  "admin_session",
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		KMS: config.KMSConfig{Enabled: false},
	}

	generator := otp.NewGenerator()
	hasher := hashing.NewHasher(&cfg.Hashing)
	encryptor := encryption.NewManager(cfg, nil)
	requests := &memRequests{rows: make(map[string]*model.VerificationRequest)}
	sessions := &memSessions{rows: make(map[string]*model.Session)}
	sender := &captureSender{}
	recorder := noopRecorder{}

	issuer := service.NewOtpIssuer(generator, hasher, encryptor, requests, sender, recorder, cfg)
	verifier := service.NewOtpVerifier(hasher, generator, requests, sessions, nil, recorder, cfg)
	authority := service.NewSessionAuthority(sessions, nil, recorder, cfg)

	authHandler := NewAuthHandler(issuer, verifier, authority, cfg)
	router := NewRouter(authHandler, nil, false)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{server: server, sender: sender, cfg: cfg}
}

func (f *fixture) postJSON(t *testing.T, path string, body interface{}, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var envelope Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func sessionCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignInFlow(t *testing.T) {
	f := newFixture(t)

	// Request a code.
	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{Identity: "admin@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	envelope := decodeResponse(t, resp)
	require.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var issued struct {
		RequestToken string `json:"request_token"`
	}
	require.NoError(t, json.Unmarshal(data, &issued))
	require.NotEmpty(t, issued.RequestToken)

	// The body never carries the code; only the sender saw it.
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "code")
	assert.NotEqual(t, f.sender.lastCode(), issued.RequestToken)

	// Redeem it.
	resp = f.postJSON(t, "/api/v1/auth/otp/verify", verifyBody{
		RequestToken: issued.RequestToken,
		Code:         f.sender.lastCode(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp)

	cookie := sessionCookie(resp, "admin_session")
	require.NotNil(t, cookie, "verify must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)

	// The cookie opens the session endpoint.
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	decodeResponse(t, getResp)

	// Logout revokes it.
	resp = f.postJSON(t, "/api/v1/auth/logout", struct{}{}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp)

	cleared := sessionCookie(resp, "admin_session")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	getResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, getResp.StatusCode)
	getResp.Body.Close()
}

func TestRequestCodeForbiddenIdentity(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{Identity: "intruder@example.com"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	envelope := decodeResponse(t, resp)
	assert.False(t, envelope.Success)
}

func TestRequestCodeNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.Auth.AdminEmail = ""

	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{Identity: "admin@example.com"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestCodeMissingIdentity(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestVerifyUnknownRequestToken(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/otp/verify", verifyBody{RequestToken: "bogus", Code: "123456"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{Identity: "admin@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	envelope := decodeResponse(t, resp)

	data, _ := json.Marshal(envelope.Data)
	var issued struct {
		RequestToken string `json:"request_token"`
	}
	require.NoError(t, json.Unmarshal(data, &issued))

	wrong := "000000"
	if f.sender.lastCode() == wrong {
		wrong = "000001"
	}

	resp = f.postJSON(t, "/api/v1/auth/otp/verify", verifyBody{RequestToken: issued.RequestToken, Code: wrong})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, sessionCookie(resp, "admin_session"))
	resp.Body.Close()
}

func TestVerifyReplayConflicts(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/otp/request", requestCodeBody{Identity: "admin@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	envelope := decodeResponse(t, resp)

	data, _ := json.Marshal(envelope.Data)
	var issued struct {
		RequestToken string `json:"request_token"`
	}
	require.NoError(t, json.Unmarshal(data, &issued))
	code := f.sender.lastCode()

	resp = f.postJSON(t, "/api/v1/auth/otp/verify", verifyBody{RequestToken: issued.RequestToken, Code: code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.postJSON(t, "/api/v1/auth/otp/verify", verifyBody{RequestToken: issued.RequestToken, Code: code})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/v1/auth/logout", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionEndpointWithoutCookie(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/auth/session")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
