package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

// SessionAuthority answers whether a bearer token names a live admin
// session, and revokes sessions. Validation never extends a session's
// lifetime; the expiry fixed at mint time is final.
type SessionAuthority struct {
	sessions model.SessionStore
	cache    model.SessionCache
	recorder model.EventRecorder
	cfg      *config.Config
}

func NewSessionAuthority(
	sessions model.SessionStore,
	cache model.SessionCache,
	recorder model.EventRecorder,
	cfg *config.Config,
) *SessionAuthority {
	return &SessionAuthority{
		sessions: sessions,
		cache:    cache,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Validate returns the session when the token is known and unexpired, and
// ErrNotFound otherwise. The cache is consulted first; misses fall through
// to the durable store and backfill the cache. Cache failures degrade to
// store reads, never to a denial.
func (s *SessionAuthority) Validate(ctx context.Context, sessionToken string) (*model.Session, error) {
	if sessionToken == "" {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()

	if s.cache != nil {
		expiresAt, found, err := s.cache.GetSession(sessionToken)
		if err != nil {
			util.Warn("Session cache read failed, falling back to store", util.ErrorField(err))
		} else if found {
			if now.After(expiresAt) {
				_ = s.cache.DeleteSession(sessionToken)
				return nil, ErrNotFound
			}
			return &model.Session{
				SessionToken: sessionToken,
				ExpiresAt:    expiresAt,
			}, nil
		}
	}

	session, err := s.sessions.Get(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if !session.Valid(now) {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetSession(session.SessionToken, session.ExpiresAt); err != nil {
			util.Warn("Failed to backfill session cache", util.ErrorField(err))
		}
	}

	return session, nil
}

// Revoke removes a session from the store and the cache. Revoking a token
// that does not exist succeeds; the end state is the same either way.
func (s *SessionAuthority) Revoke(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionToken); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteSession(sessionToken); err != nil {
			util.Warn("Failed to evict revoked session from cache", util.ErrorField(err))
		}
	}

	s.recorder.Record(model.EventSessionRevoked, "", "")
	util.Info("Session revoked")
	return nil
}
