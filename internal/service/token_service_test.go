package service

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func newTestTokenService() *TokenService {
	return NewTokenService(testSecret, 30*time.Minute, 30*24*time.Hour)
}

var testSubject = model.SubjectClaims{Username: "alice", Email: "alice@example.com", Status: "active"}

func payloadOf(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestTokenService_AccessToken(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()

	token, err := svc.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)

	claims, err := svc.Verify(token, model.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "active", claims.Status)
	assert.Equal(t, model.TokenTypeAccess, claims.Type)
	assert.Empty(t, claims.Fingerprint)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt, 5*time.Second)

	assert.ElementsMatch(t,
		[]string{"sub", "username", "email", "status", "exp", "iat", "jti", "type"},
		keysOf(payloadOf(t, token)))
}

func TestTokenService_Fingerprint(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()
	client := &model.ClientContext{UserAgent: "curl/8.0", IPAddress: "10.0.0.1"}

	token, err := svc.IssueAccessToken("user-1", testSubject, client)
	require.NoError(t, err)

	claims, err := svc.Verify(token, model.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(client), claims.Fingerprint)
	assert.Len(t, claims.Fingerprint, 64)
	assert.Contains(t, keysOf(payloadOf(t, token)), "fingerprint")

	assert.True(t, MatchesClient(claims, client))
	assert.False(t, MatchesClient(claims, &model.ClientContext{UserAgent: "curl/8.0", IPAddress: "10.0.0.2"}))

	unbound, err := svc.IssueAccessToken("user-1", testSubject, &model.ClientContext{})
	require.NoError(t, err)
	unboundClaims, err := svc.Verify(unbound, model.TokenTypeAccess)
	require.NoError(t, err)
	assert.True(t, MatchesClient(unboundClaims, client))
}

func TestTokenService_TypeMismatch(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()

	access, err := svc.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken("user-1", testSubject)
	require.NoError(t, err)

	_, err = svc.Verify(access, model.TokenTypeRefresh)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = svc.Verify(refresh, model.TokenTypeAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	claims, err := svc.Verify(refresh, model.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, model.TokenTypeRefresh, claims.Type)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), claims.ExpiresAt, 5*time.Second)

	// No expectation accepts either type.
	_, err = svc.Verify(access, "")
	assert.NoError(t, err)
}

func TestTokenService_Expiry(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()
	issued := time.Now().UTC()
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(29 * time.Minute) }
	_, err = svc.Verify(token, model.TokenTypeAccess)
	assert.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(31 * time.Minute) }
	_, err = svc.Verify(token, model.TokenTypeAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestTokenService_RejectsForgedAndMalformed(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()

	other := NewTokenService("another-secret-that-is-long-enough!!", time.Hour, time.Hour)
	forged, err := other.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "type": "access", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "type": "access",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"type": "access", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"wrong secret":  forged,
		"alg none":      noneToken,
		"missing exp":   noExp,
		"missing sub":   noSub,
		"tampered body": forged[:len(forged)-2] + "xx",
	} {
		t.Run(name, func(t *testing.T) {
			claims, err := svc.Verify(token, "")
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, model.ErrTokenInvalid)
		})
	}
}

func TestTokenService_ScopedToken(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()

	token, err := svc.IssueScopedToken("alice@example.com", model.ScopePasswordReset, 15*time.Minute)
	require.NoError(t, err)

	payload := payloadOf(t, token)
	assert.ElementsMatch(t, []string{"sub", "scope", "exp", "iat", "jti"}, keysOf(payload))

	claims, err := svc.VerifyScoped(token, model.ScopePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.UserID)

	_, err = svc.VerifyScoped(token, model.ScopeEmailVerification)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	// A typed token never passes as a scoped one.
	access, err := svc.IssueAccessToken("alice@example.com", testSubject, nil)
	require.NoError(t, err)
	_, err = svc.VerifyScoped(access, "")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = svc.IssueScopedToken("x", "", time.Minute)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = svc.IssueScopedToken("x", "scope", 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestTokenService_UniqueIDs(t *testing.T) {
	t.Parallel()
	svc := newTestTokenService()

	a, err := svc.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)
	b, err := svc.IssueAccessToken("user-1", testSubject, nil)
	require.NoError(t, err)

	assert.NotEqual(t, payloadOf(t, a)["jti"], payloadOf(t, b)["jti"])
}

func TestHashForStorage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashForStorage("abc"), HashForStorage("abc"))
	assert.NotEqual(t, HashForStorage("abc"), HashForStorage("abd"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashForStorage("abc"))
}

func TestNewOpaqueToken(t *testing.T) {
	t.Parallel()

	a, err := NewOpaqueToken()
	require.NoError(t, err)
	b, err := NewOpaqueToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 86)
	assert.NotContains(t, a, "=")
}

func TestTokenService_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, newTestTokenService().Validate())
	assert.Error(t, NewTokenService("", time.Minute, time.Hour).Validate())
	assert.Error(t, NewTokenService(testSecret, 0, time.Hour).Validate())
}

func TestPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "anything"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
