package model

import "time"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	ScopeEmailVerification = "email_verification"
	ScopePasswordReset     = "password_reset"
)

// AuthClaims is the verified content of a signed token.
type AuthClaims struct {
	UserID      string    `json:"sub"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	Status      string    `json:"status,omitempty"`
	Type        TokenType `json:"type,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	TokenID     string    `json:"jti"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// SubjectClaims is the user snapshot embedded in access and refresh tokens.
type SubjectClaims struct {
	Username string
	Email    string
	Status   string
}

// RefreshToken is the server-side record of an issued refresh credential.
// Only the one-way hash of the raw value is ever stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
