package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Prefixes make leaked credentials easy to recognize in logs and secret scanners.
const (
	AccessTokenPrefix  = "xat_"
	RefreshTokenPrefix = "xrt_"
	ClientSecretPrefix = "xcs_"
)

const tokenBytes = 32

// generateToken returns 32 random bytes encoded as unpadded base64url, with prefix.
func generateToken(prefix string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the SHA-256 hex digest used to store codes and tokens.
// Lookups are by hash so plaintext values never reach the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashClientSecret hashes a client secret with bcrypt.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// VerifyClientSecret compares secret against a bcrypt hash in constant time.
func VerifyClientSecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// maskID shortens an identifier for logging.
func maskID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:4] + "..." + id[len(id)-4:]
}
