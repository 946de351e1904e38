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

// attemptCASRetries bounds the re-read loop when concurrent verifies race
// on the attempt counter.
const attemptCASRetries = 3

// OtpVerifier redeems verification requests. The consume transition goes
// through the store's conditional update, so of N concurrent verifies with
// the right code exactly one mints a session.
type OtpVerifier struct {
	hasher    CredentialHasher
	generator CodeGenerator
	requests  model.OtpRequestStore
	sessions  model.SessionStore
	cache     model.SessionCache
	recorder  model.EventRecorder
	cfg       *config.Config
}

func NewOtpVerifier(
	hasher CredentialHasher,
	generator CodeGenerator,
	requests model.OtpRequestStore,
	sessions model.SessionStore,
	cache model.SessionCache,
	recorder model.EventRecorder,
	cfg *config.Config,
) *OtpVerifier {
	return &OtpVerifier{
		hasher:    hasher,
		generator: generator,
		requests:  requests,
		sessions:  sessions,
		cache:     cache,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// Verify checks a presented code against its pending request and, on
// success, consumes the request and mints a session. State checks run in a
// fixed order so the caller learns the most specific failure: missing, then
// used, then expired or locked, then wrong code.
func (s *OtpVerifier) Verify(ctx context.Context, requestToken, code string) (*model.Session, error) {
	req, err := s.requests.Get(ctx, requestToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.recorder.Record(model.EventOTPRejected, requestToken, "unknown request token")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load verification request: %w", err)
	}

	now := time.Now().UTC()

	if req.Consumed {
		s.recorder.Record(model.EventOTPRejected, requestToken, "request already used")
		return nil, ErrAlreadyUsed
	}
	if req.Expired(now) {
		s.recorder.Record(model.EventOTPRejected, requestToken, "request expired")
		return nil, ErrExpired
	}
	if req.Attempts >= s.cfg.Auth.MaxAttempts {
		// Locked after too many wrong codes. Reported as expired so a
		// guesser cannot tell lockout from timeout.
		s.recorder.Record(model.EventOTPRejected, requestToken, "attempt limit reached")
		return nil, ErrExpired
	}

	if !s.hasher.Verify(code, requestToken, req.CodeSalt, req.CodeDigest) {
		if err := s.recordFailedAttempt(ctx, requestToken, req.Attempts); err != nil {
			util.Warn("Failed to record verification attempt",
				util.String("request_token", requestToken),
				util.ErrorField(err))
		}
		s.recorder.Record(model.EventOTPRejected, requestToken, "code mismatch")
		return nil, ErrInvalidCode
	}

	consumed, err := s.requests.Consume(ctx, requestToken)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification request: %w", err)
	}
	if !consumed {
		// Another verify with the correct code won the race.
		s.recorder.Record(model.EventOTPRejected, requestToken, "request already used")
		return nil, ErrAlreadyUsed
	}

	session, err := s.mintSession(ctx)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(model.EventOTPVerified, requestToken, "")
	util.Info("Sign-in code verified",
		util.String("request_token", requestToken),
		util.Time("session_expires_at", session.ExpiresAt))

	return session, nil
}

// recordFailedAttempt bumps the attempt counter through a conditional
// update, re-reading on conflict so concurrent wrong guesses each land.
func (s *OtpVerifier) recordFailedAttempt(ctx context.Context, requestToken string, observed int) error {
	attempts := observed
	for i := 0; i < attemptCASRetries; i++ {
		applied, err := s.requests.IncrementAttempts(ctx, requestToken, attempts)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		req, err := s.requests.Get(ctx, requestToken)
		if err != nil {
			return err
		}
		if req.Consumed || req.Attempts >= s.cfg.Auth.MaxAttempts {
			// Counting further is pointless once the request is settled.
			return nil
		}
		attempts = req.Attempts
	}
	return fmt.Errorf("attempt counter contention on request %s", requestToken)
}

func (s *OtpVerifier) mintSession(ctx context.Context) (*model.Session, error) {
	token, err := s.generator.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	now := time.Now().UTC()
	session := &model.Session{
		SessionToken: token,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.cfg.Auth.SessionTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetSession(session.SessionToken, session.ExpiresAt); err != nil {
			util.Warn("Failed to warm session cache", util.ErrorField(err))
		}
	}

	return session, nil
}
