package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/model"
)

// In-memory stores with the same conditional-update semantics as the real
// repositories, so the race behavior under test matches production.

type memRequestStore struct {
	mu   sync.Mutex
	rows map[string]*model.VerificationRequest
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{rows: make(map[string]*model.VerificationRequest)}
}

func (s *memRequestStore) Create(_ context.Context, req *model.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.rows[req.RequestToken] = &clone
	return nil
}

func (s *memRequestStore) Get(_ context.Context, token string) (*model.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memRequestStore) Consume(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok || row.Consumed {
		return false, nil
	}
	row.Consumed = true
	return true, nil
}

func (s *memRequestStore) IncrementAttempts(_ context.Context, token string, from int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok || row.Attempts != from {
		return false, nil
	}
	row.Attempts = from + 1
	return true, nil
}

func (s *memRequestStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for token, row := range s.rows {
		if row.ExpiresAt.Before(before) {
			delete(s.rows, token)
			deleted++
		}
	}
	return deleted, nil
}

type memSessionStore struct {
	mu   sync.Mutex
	rows map[string]*model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{rows: make(map[string]*model.Session)}
}

func (s *memSessionStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.rows[session.SessionToken] = &clone
	return nil
}

func (s *memSessionStore) Get(_ context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memSessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

func (s *memSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memSessionCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	fail    bool
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{entries: make(map[string]time.Time)}
}

func (c *memSessionCache) SetSession(token string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache unavailable")
	}
	c.entries[token] = expiresAt
	return nil
}

func (c *memSessionCache) GetSession(token string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return time.Time{}, false, errors.New("cache unavailable")
	}
	expiresAt, ok := c.entries[token]
	return expiresAt, ok, nil
}

func (c *memSessionCache) DeleteSession(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache unavailable")
	}
	delete(c.entries, token)
	return nil
}

// capturingSender records what would have been emailed, optionally failing.
type capturingSender struct {
	mu       sync.Mutex
	identity string
	code     string
	sent     int
	fail     bool
}

func (s *capturingSender) Send(_ context.Context, identity, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp refused")
	}
	s.identity = identity
	s.code = code
	s.sent++
	return nil
}

type recordedEvent struct {
	eventType model.SecurityEventType
	token     string
	detail    string
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *capturingRecorder) Record(eventType model.SecurityEventType, token, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType, token, detail})
}

func (r *capturingRecorder) has(eventType model.SecurityEventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}

// fixedGenerator pins the code so tests can present right and wrong guesses.
type fixedGenerator struct {
	mu      sync.Mutex
	code    string
	counter int
}

func (g *fixedGenerator) GenerateCode() (string, error) {
	return g.code, nil
}

func (g *fixedGenerator) GenerateRequestToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return "req-token-" + string(rune('a'+g.counter-1)), nil
}

func (g *fixedGenerator) GenerateSessionToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return "sess-token-" + string(rune('a'+g.counter-1)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			AdminEmail:     "admin@example.com",
			CodeTTL:        5 * time.Minute,
			SessionTTL:     30 * 24 * time.Hour,
			MaxAttempts:    5,
			CookieName:     "admin_session",
			ReaperInterval: 10 * time.Minute,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		KMS: config.KMSConfig{Enabled: false},
	}
}
