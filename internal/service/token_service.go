package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"atlas-auth/internal/ids"
	"atlas-auth/internal/model"
)

// opaqueTokenBytes is the entropy of a raw refresh value.
const opaqueTokenBytes = 64

type tokenClaims struct {
	Username    string          `json:"username,omitempty"`
	Email       string          `json:"email,omitempty"`
	Status      string          `json:"status,omitempty"`
	Type        model.TokenType `json:"type,omitempty"`
	Scope       string          `json:"scope,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens. It holds no mutable state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken signs an access token for subject. A non-empty client
// context is bound into the token as a fingerprint.
func (s *TokenService) IssueAccessToken(subject string, claims model.SubjectClaims, client *model.ClientContext) (string, error) {
	tc := s.subjectClaims(subject, claims, model.TokenTypeAccess, s.accessTTL)
	if !client.Empty() {
		tc.Fingerprint = Fingerprint(client)
	}
	return s.sign(tc)
}

func (s *TokenService) IssueRefreshToken(subject string, claims model.SubjectClaims) (string, error) {
	return s.sign(s.subjectClaims(subject, claims, model.TokenTypeRefresh, s.refreshTTL))
}

// IssueScopedToken signs a purpose-bound token with a scope claim and no type,
// as used for email verification and password reset links.
func (s *TokenService) IssueScopedToken(subject, scope string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", fmt.Errorf("%w: scope is required", model.ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", model.ErrInvalidInput)
	}

	now := s.now()
	return s.sign(&tokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ids.New(),
		},
	})
}

func (s *TokenService) subjectClaims(subject string, claims model.SubjectClaims, typ model.TokenType, ttl time.Duration) *tokenClaims {
	now := s.now()
	return &tokenClaims{
		Username: claims.Username,
		Email:    claims.Email,
		Status:   claims.Status,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ids.New(),
		},
	}
}

func (s *TokenService) sign(claims *tokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and, when expected is set, the token
// type. Every failure is reported as model.ErrTokenInvalid.
func (s *TokenService) Verify(token string, expected model.TokenType) (*model.AuthClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, model.ErrTokenInvalid
	}

	// The library already rejects expired tokens; compare against the wall
	// clock again so a lenient decode can never let one through.
	if tc.ExpiresAt == nil || !s.now().Before(tc.ExpiresAt.Time) {
		return nil, model.ErrTokenInvalid
	}
	if strings.TrimSpace(tc.Subject) == "" {
		return nil, model.ErrTokenInvalid
	}
	if expected != "" && tc.Type != expected {
		return nil, model.ErrTokenInvalid
	}

	claims := &model.AuthClaims{
		UserID:      tc.Subject,
		Username:    tc.Username,
		Email:       tc.Email,
		Status:      tc.Status,
		Type:        tc.Type,
		Scope:       tc.Scope,
		Fingerprint: tc.Fingerprint,
		TokenID:     tc.ID,
		ExpiresAt:   tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	return claims, nil
}

// VerifyScoped accepts only untyped tokens whose scope matches exactly.
func (s *TokenService) VerifyScoped(token, scope string) (*model.AuthClaims, error) {
	claims, err := s.Verify(token, "")
	if err != nil {
		return nil, err
	}
	if claims.Type != "" || claims.Scope != scope {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

// MatchesClient reports whether claims may be used from client. Tokens
// without a fingerprint are not bound to any client.
func MatchesClient(claims *model.AuthClaims, client *model.ClientContext) bool {
	if claims.Fingerprint == "" {
		return true
	}
	return claims.Fingerprint == Fingerprint(client)
}

// Fingerprint derives a stable one-way digest of the client's user agent and
// address.
func Fingerprint(client *model.ClientContext) string {
	var ua, ip string
	if client != nil {
		ua, ip = client.UserAgent, client.IPAddress
	}
	sum := sha256.Sum256([]byte(ua + "|" + ip))
	return hex.EncodeToString(sum[:])
}

// HashForStorage is the deterministic digest under which refresh values are
// persisted and looked up.
func HashForStorage(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken returns a URL-safe random value suitable as a refresh
// credential.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var errEmptySecret = errors.New("token secret must not be empty")

// Validate reports configuration problems that would make every token forgeable.
func (s *TokenService) Validate() error {
	if len(s.secret) == 0 {
		return errEmptySecret
	}
	if s.accessTTL <= 0 || s.refreshTTL <= 0 {
		return fmt.Errorf("token ttl must be positive (access=%s refresh=%s)", s.accessTTL, s.refreshTTL)
	}
	return nil
}
