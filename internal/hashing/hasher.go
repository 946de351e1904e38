package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"

	"admin-auth-service/internal/config"
)

const (
	saltLength   = 16
	digestLength = 32

	// AlgorithmArgon2ID is recorded next to each digest so parameters can
	// change without invalidating rows written under the old scheme.
	AlgorithmArgon2ID = "argon2id-v1"
)

// Hasher derives one-way digests of one-time codes. Each digest is salted
// per request and bound to the request token, so a digest captured from one
// row proves nothing about any other row even when codes collide.
type Hasher struct {
	memoryCost  uint32
	timeCost    uint32
	parallelism uint8
}

func NewHasher(cfg *config.HashingConfig) *Hasher {
	return &Hasher{
		memoryCost:  uint32(cfg.Argon2MemoryCost),
		timeCost:    uint32(cfg.Argon2TimeCost),
		parallelism: uint8(cfg.Argon2Parallelism),
	}
}

// GenerateSalt returns a fresh random salt, hex encoded for storage.
func (h *Hasher) GenerateSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// Digest computes the stored form of a code: argon2id over the code keyed to
// its request token, under the given salt. Deterministic for fixed inputs.
func (h *Hasher) Digest(code, requestToken, saltHex string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	material := []byte(code + ":" + requestToken)
	digest := argon2.IDKey(material, salt, h.timeCost, h.memoryCost, h.parallelism, digestLength)
	return hex.EncodeToString(digest), nil
}

// Verify recomputes the digest for the presented code and compares it to the
// stored one in constant time. Any decode failure verifies as false.
func (h *Hasher) Verify(code, requestToken, saltHex, storedDigestHex string) bool {
	computed, err := h.Digest(code, requestToken, saltHex)
	if err != nil {
		return false
	}
	stored, err := hex.DecodeString(storedDigestHex)
	if err != nil {
		return false
	}
	computedRaw, err := hex.DecodeString(computed)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computedRaw, stored) == 1
}
