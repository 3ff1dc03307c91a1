package oauth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 7636 appendix B
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestS256Challenge(t *testing.T) {
	assert.Equal(t, rfcChallenge, S256Challenge(rfcVerifier))
}

func TestNewClientAuthentication(t *testing.T) {
	t.Run("no pkce means secret", func(t *testing.T) {
		auth, err := NewClientAuthentication("", "")
		require.NoError(t, err)
		assert.Equal(t, SecretAuthentication{}, auth)
	})

	t.Run("method defaults to plain", func(t *testing.T) {
		auth, err := NewClientAuthentication(rfcVerifier, "")
		require.NoError(t, err)
		assert.Equal(t, PKCEAuthentication{Challenge: rfcVerifier, Method: PKCEMethodPlain}, auth)
	})

	invalid := []struct {
		name      string
		challenge string
		method    string
	}{
		{"method without challenge", "", PKCEMethodS256},
		{"unknown method", rfcChallenge, "S512"},
		{"challenge too short", "abc", PKCEMethodS256},
		{"challenge too long", strings.Repeat("a", 129), PKCEMethodPlain},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClientAuthentication(tt.challenge, tt.method)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestPKCEAuthentication_Verify(t *testing.T) {
	s256 := PKCEAuthentication{Challenge: rfcChallenge, Method: PKCEMethodS256}
	assert.True(t, s256.Verify(rfcVerifier))
	assert.False(t, s256.Verify(rfcVerifier+"x"))
	assert.False(t, s256.Verify(""))

	plain := PKCEAuthentication{Challenge: rfcVerifier, Method: PKCEMethodPlain}
	assert.True(t, plain.Verify(rfcVerifier))
	assert.False(t, plain.Verify(rfcChallenge))
}

func TestAuthenticationStorageForm(t *testing.T) {
	for _, auth := range []ClientAuthentication{
		SecretAuthentication{},
		PKCEAuthentication{Challenge: rfcChallenge, Method: PKCEMethodS256},
	} {
		data, err := MarshalAuthentication(auth)
		require.NoError(t, err)
		decoded, err := UnmarshalAuthentication(data)
		require.NoError(t, err)
		assert.Equal(t, auth, decoded)
	}

	_, err := UnmarshalAuthentication([]byte(`{"type":"mtls"}`))
	assert.Error(t, err)
}

func TestClientSecretHashing(t *testing.T) {
	hash, err := HashClientSecret("xcs_example")
	require.NoError(t, err)
	assert.True(t, VerifyClientSecret(hash, "xcs_example"))
	assert.False(t, VerifyClientSecret(hash, "xcs_other"))
	assert.False(t, VerifyClientSecret("", "xcs_example"))
}

func TestHashToken_IsStableHex(t *testing.T) {
	h := HashToken("xat_abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("xat_abc"))
	assert.NotEqual(t, h, HashToken("xat_abd"))
}

func TestGenerateToken(t *testing.T) {
	a, err := generateToken(AccessTokenPrefix)
	require.NoError(t, err)
	b, err := generateToken(AccessTokenPrefix)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "xat_"))
	assert.Len(t, a, len("xat_")+43)
	assert.NotEqual(t, a, b)
}

func TestValidateRedirectURI(t *testing.T) {
	valid := []string{
		"https://acme.test/cb",
		"http://localhost:3000/callback",
		"https://acme.test/cb?tenant=1",
		"com.acme.app:/oauth",
	}
	for _, uri := range valid {
		assert.NoError(t, validateRedirectURI(uri), uri)
	}

	invalid := []string{
		"",
		"/relative/cb",
		"https://acme.test/cb#frag",
		"https://*.acme.test/cb",
		" https://acme.test/cb",
		"https:///cb",
	}
	for _, uri := range invalid {
		assert.True(t, IsValidationError(validateRedirectURI(uri)), uri)
	}
}

func TestBuildRedirect_PreservesQuery(t *testing.T) {
	got, err := buildRedirect("https://acme.test/cb?tenant=7", map[string]string{
		"code":  "abc",
		"state": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test/cb?code=abc&tenant=7", got)
}
