package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

// CodeGenerator mints codes and tokens. Satisfied by otp.Generator.
type CodeGenerator interface {
	GenerateCode() (string, error)
	GenerateRequestToken() (string, error)
	GenerateSessionToken() (string, error)
}

// CredentialHasher derives and checks one-way code digests. Satisfied by
// hashing.Hasher.
type CredentialHasher interface {
	GenerateSalt() (string, error)
	Digest(code, requestToken, saltHex string) (string, error)
	Verify(code, requestToken, saltHex, storedDigestHex string) bool
}

// IdentityEncryptor protects the admin identity at rest. Satisfied by
// encryption.Manager.
type IdentityEncryptor interface {
	EncryptIdentity(ctx context.Context, identity string) (*encryption.EncryptedIdentity, error)
}

// IssueResult is what RequestCode hands back to the caller: the opaque
// request token and the window in which it can be redeemed. The code itself
// travels only through the delivery channel.
type IssueResult struct {
	RequestToken string    `json:"request_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OtpIssuer starts sign-in attempts for the single configured administrator.
type OtpIssuer struct {
	generator CodeGenerator
	hasher    CredentialHasher
	encryptor IdentityEncryptor
	requests  model.OtpRequestStore
	sender    model.CodeSender
	recorder  model.EventRecorder
	cfg       *config.Config
}

func NewOtpIssuer(
	generator CodeGenerator,
	hasher CredentialHasher,
	encryptor IdentityEncryptor,
	requests model.OtpRequestStore,
	sender model.CodeSender,
	recorder model.EventRecorder,
	cfg *config.Config,
) *OtpIssuer {
	return &OtpIssuer{
		generator: generator,
		hasher:    hasher,
		encryptor: encryptor,
		requests:  requests,
		sender:    sender,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// RequestCode authorizes the identity, mints and persists a challenge, then
// delivers the code. Delivery happens strictly after the persist so a code
// the admin receives is always redeemable. The plaintext code never appears
// in the return value, the logs, or the audit trail.
func (s *OtpIssuer) RequestCode(ctx context.Context, identity string) (*IssueResult, error) {
	admin := s.cfg.Auth.AdminEmail
	if admin == "" {
		return nil, ErrNotConfigured
	}
	if !strings.EqualFold(strings.TrimSpace(identity), admin) {
		s.recorder.Record(model.EventOTPRejected, "", "identity mismatch on request")
		return nil, ErrForbidden
	}

	code, err := s.generator.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}
	requestToken, err := s.generator.GenerateRequestToken()
	if err != nil {
		return nil, fmt.Errorf("failed to issue request token: %w", err)
	}
	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}
	digest, err := s.hasher.Digest(code, requestToken, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}

	encIdentity, err := s.encryptor.EncryptIdentity(ctx, admin)
	if err != nil {
		return nil, fmt.Errorf("failed to protect identity: %w", err)
	}

	now := time.Now().UTC()
	req := &model.VerificationRequest{
		RequestToken:      requestToken,
		IdentityEncrypted: encIdentity.Ciphertext,
		IdentityDEK:       encIdentity.EncryptedDEK,
		IdentityKeyID:     encIdentity.KeyID,
		CodeDigest:        digest,
		CodeSalt:          salt,
		HashAlgorithm:     hashing.AlgorithmArgon2ID,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.cfg.Auth.CodeTTL),
		Attempts:          0,
		Consumed:          false,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist verification request: %w", err)
	}

	if err := s.sender.Send(ctx, admin, code); err != nil {
		util.Error("Code delivery failed", util.String("request_token", requestToken), util.ErrorField(err))
		s.recorder.Record(model.EventOTPSendFailed, requestToken, "delivery channel error")
		return nil, ErrDeliveryFailed
	}

	s.recorder.Record(model.EventOTPRequested, requestToken, "")
	util.Info("Sign-in code issued",
		util.String("request_token", requestToken),
		util.Time("expires_at", req.ExpiresAt))

	return &IssueResult{
		RequestToken: requestToken,
		ExpiresAt:    req.ExpiresAt,
	}, nil
}
