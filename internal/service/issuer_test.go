package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/otp"
)

type issuerFixture struct {
	issuer   *OtpIssuer
	requests *memRequestStore
	sender   *capturingSender
	recorder *capturingRecorder
	hasher   *hashing.Hasher
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()
	cfg := testConfig()
	hasher := hashing.NewHasher(&cfg.Hashing)
	requests := newMemRequestStore()
	sender := &capturingSender{}
	recorder := &capturingRecorder{}
	issuer := NewOtpIssuer(
		otp.NewGenerator(),
		hasher,
		encryption.NewManager(cfg, nil),
		requests,
		sender,
		recorder,
		cfg,
	)
	return &issuerFixture{
		issuer:   issuer,
		requests: requests,
		sender:   sender,
		recorder: recorder,
		hasher:   hasher,
	}
}

func TestRequestCodeHappyPath(t *testing.T) {
	f := newIssuerFixture(t)
	ctx := context.Background()

	result, err := f.issuer.RequestCode(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RequestToken)
	assert.False(t, result.ExpiresAt.IsZero())

	// Code went out, once, to the configured admin.
	assert.Equal(t, 1, f.sender.sent)
	assert.Equal(t, "admin@example.com", f.sender.identity)
	assert.Regexp(t, `^\d{6}$`, f.sender.code)

	// The stored row holds a digest of the delivered code, never the code.
	req, err := f.requests.Get(ctx, result.RequestToken)
	require.NoError(t, err)
	assert.NotContains(t, req.CodeDigest, f.sender.code)
	assert.True(t, f.hasher.Verify(f.sender.code, result.RequestToken, req.CodeSalt, req.CodeDigest))
	assert.Equal(t, 0, req.Attempts)
	assert.False(t, req.Consumed)

	assert.True(t, f.recorder.has(model.EventOTPRequested))
}

func TestRequestCodeIdentityCaseInsensitive(t *testing.T) {
	f := newIssuerFixture(t)

	_, err := f.issuer.RequestCode(context.Background(), "Admin@Example.COM")
	assert.NoError(t, err)
}

func TestRequestCodeWrongIdentity(t *testing.T) {
	f := newIssuerFixture(t)

	result, err := f.issuer.RequestCode(context.Background(), "intruder@example.com")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, result)
	assert.Equal(t, 0, f.sender.sent)
}

func TestRequestCodeNoAdminConfigured(t *testing.T) {
	f := newIssuerFixture(t)
	f.issuer.cfg.Auth.AdminEmail = ""

	_, err := f.issuer.RequestCode(context.Background(), "admin@example.com")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 0, f.sender.sent)
}

func TestRequestCodeDeliveryFailure(t *testing.T) {
	f := newIssuerFixture(t)
	f.sender.fail = true
	ctx := context.Background()

	result, err := f.issuer.RequestCode(ctx, "admin@example.com")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Nil(t, result)
	assert.True(t, f.recorder.has(model.EventOTPSendFailed))
}

func TestRequestCodeUniqueTokensPerIssue(t *testing.T) {
	f := newIssuerFixture(t)
	ctx := context.Background()

	first, err := f.issuer.RequestCode(ctx, "admin@example.com")
	require.NoError(t, err)
	second, err := f.issuer.RequestCode(ctx, "admin@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestToken, second.RequestToken)
}
