package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PKCE (Proof Key for Code Exchange) - RFC 7636

// PKCE challenge methods
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

const (
	minPKCELength = 43
	maxPKCELength = 128
)

// ClientAuthentication records how the client must prove itself when it
// redeems a code. It is either SecretAuthentication or PKCEAuthentication.
type ClientAuthentication interface {
	isClientAuthentication()
}

// SecretAuthentication requires the registered client secret at exchange.
type SecretAuthentication struct{}

// PKCEAuthentication requires a code_verifier matching Challenge under Method.
type PKCEAuthentication struct {
	Challenge string `json:"challenge"`
	Method    string `json:"method"`
}

func (SecretAuthentication) isClientAuthentication() {}
func (PKCEAuthentication) isClientAuthentication()   {}

// NewClientAuthentication validates the PKCE parameters of an authorization
// request. No challenge and no method means the code is secret-authenticated.
// A challenge without a method defaults to plain (RFC 7636 section 4.3).
func NewClientAuthentication(challenge, method string) (ClientAuthentication, error) {
	if challenge == "" {
		if method != "" {
			return nil, invalidRequest("code_challenge_method requires code_challenge")
		}
		return SecretAuthentication{}, nil
	}
	if method == "" {
		method = PKCEMethodPlain
	}
	if method != PKCEMethodS256 && method != PKCEMethodPlain {
		return nil, invalidRequest("unsupported code_challenge_method %q", method)
	}
	if len(challenge) < minPKCELength || len(challenge) > maxPKCELength {
		return nil, invalidRequest("code_challenge must be between 43 and 128 characters")
	}
	return PKCEAuthentication{Challenge: challenge, Method: method}, nil
}

// Verify checks a code_verifier against the stored challenge.
func (p PKCEAuthentication) Verify(verifier string) bool {
	if len(verifier) < minPKCELength || len(verifier) > maxPKCELength {
		return false
	}
	var computed string
	switch p.Method {
	case PKCEMethodS256:
		computed = S256Challenge(verifier)
	case PKCEMethodPlain:
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(p.Challenge)) == 1
}

// S256Challenge derives the S256 code_challenge for a verifier.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// authenticationRecord is the storage form of ClientAuthentication.
type authenticationRecord struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	Method    string `json:"method,omitempty"`
}

const (
	authTypeSecret = "secret"
	authTypePKCE   = "pkce"
)

// MarshalAuthentication encodes a ClientAuthentication for storage.
func MarshalAuthentication(a ClientAuthentication) ([]byte, error) {
	var rec authenticationRecord
	switch v := a.(type) {
	case SecretAuthentication:
		rec.Type = authTypeSecret
	case PKCEAuthentication:
		rec = authenticationRecord{Type: authTypePKCE, Challenge: v.Challenge, Method: v.Method}
	default:
		return nil, fmt.Errorf("unknown client authentication %T", a)
	}
	return json.Marshal(rec)
}

// UnmarshalAuthentication decodes the storage form written by MarshalAuthentication.
func UnmarshalAuthentication(data []byte) (ClientAuthentication, error) {
	var rec authenticationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode client authentication: %w", err)
	}
	switch rec.Type {
	case authTypeSecret:
		return SecretAuthentication{}, nil
	case authTypePKCE:
		return PKCEAuthentication{Challenge: rec.Challenge, Method: rec.Method}, nil
	default:
		return nil, fmt.Errorf("unknown client authentication type %q", rec.Type)
	}
}
