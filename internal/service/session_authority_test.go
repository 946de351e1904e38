package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/model"
)

type authorityFixture struct {
	authority *SessionAuthority
	sessions  *memSessionStore
	cache     *memSessionCache
	recorder  *capturingRecorder
}

func newAuthorityFixture(t *testing.T) *authorityFixture {
	t.Helper()
	sessions := newMemSessionStore()
	cache := newMemSessionCache()
	recorder := &capturingRecorder{}
	return &authorityFixture{
		authority: NewSessionAuthority(sessions, cache, recorder, testConfig()),
		sessions:  sessions,
		cache:     cache,
		recorder:  recorder,
	}
}

func (f *authorityFixture) seedSession(t *testing.T, token string, ttl time.Duration) {
	t.Helper()
	now := time.Now().UTC()
	err := f.sessions.Create(context.Background(), &model.Session{
		SessionToken: token,
		IssuedAt:     now,
		ExpiresAt:    now.Add(ttl),
	})
	require.NoError(t, err)
}

func TestValidateLiveSession(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx := context.Background()
	f.seedSession(t, "sess-1", time.Hour)

	session, err := f.authority.Validate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.SessionToken)

	// Miss backfilled the cache; the next validate is served from it.
	_, found, err := f.cache.GetSession("sess-1")
	require.NoError(t, err)
	assert.True(t, found)

	again, err := f.authority.Validate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", again.SessionToken)
}

func TestValidateUnknownToken(t *testing.T) {
	f := newAuthorityFixture(t)

	session, err := f.authority.Validate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, session)
}

func TestValidateEmptyToken(t *testing.T) {
	f := newAuthorityFixture(t)

	_, err := f.authority.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateExpiredSession(t *testing.T) {
	f := newAuthorityFixture(t)
	f.seedSession(t, "sess-1", -time.Minute)

	session, err := f.authority.Validate(context.Background(), "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, session)
}

func TestValidateNoSlidingWindow(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx := context.Background()
	f.seedSession(t, "sess-1", time.Hour)

	before, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.authority.Validate(ctx, "sess-1")
		require.NoError(t, err)
	}

	after, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt, "validation must not extend the session")
}

func TestValidateCacheFailureFallsThrough(t *testing.T) {
	f := newAuthorityFixture(t)
	f.seedSession(t, "sess-1", time.Hour)
	f.cache.fail = true

	session, err := f.authority.Validate(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.SessionToken)
}

func TestRevoke(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx := context.Background()
	f.seedSession(t, "sess-1", time.Hour)

	_, err := f.authority.Validate(ctx, "sess-1")
	require.NoError(t, err)

	err = f.authority.Revoke(ctx, "sess-1")
	require.NoError(t, err)

	_, err = f.authority.Validate(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, f.recorder.has(model.EventSessionRevoked))
}

func TestRevokeIdempotent(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.authority.Revoke(ctx, "never-existed"))
	assert.NoError(t, f.authority.Revoke(ctx, "never-existed"))
}

func TestReaperSweep(t *testing.T) {
	requests := newMemRequestStore()
	ctx := context.Background()

	now := time.Now().UTC()
	_ = requests.Create(ctx, &model.VerificationRequest{RequestToken: "old", ExpiresAt: now.Add(-time.Hour)})
	_ = requests.Create(ctx, &model.VerificationRequest{RequestToken: "live", ExpiresAt: now.Add(time.Hour)})

	deleted, err := requests.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = requests.Get(ctx, "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = requests.Get(ctx, "live")
	assert.NoError(t, err)
}
