package otp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const codeSpace = 1000000 // 6 decimal digits, 000000-999999

// Generator mints one-time codes and opaque tokens. All randomness comes
// from crypto/rand; the code is drawn uniformly over the full 6-digit space
// so no digit position carries bias.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateCode returns a uniformly random 6-digit code, zero-padded.
func (g *Generator) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateRequestToken returns a 128-bit random token, hex encoded. It keys
// a single pending verification request and is safe to hand to the client.
func (g *Generator) GenerateRequestToken() (string, error) {
	return randomHex(16)
}

// GenerateSessionToken returns a 256-bit random bearer token, hex encoded.
func (g *Generator) GenerateSessionToken() (string, error) {
	return randomHex(32)
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
