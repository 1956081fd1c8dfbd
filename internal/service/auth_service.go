package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"atlas-auth/internal/event"
	"atlas-auth/internal/mailer"
	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

const (
	emailVerificationTTL = time.Hour
	passwordResetTTL     = 15 * time.Minute
)

type AuthService struct {
	users       UserStore
	tokens      RefreshTokenStore
	userRoles   UserRoleStore
	engine      *TokenService
	tx          Transactor
	mail        mailer.Mailer
	bus         event.Bus
	frontendURL string
	logger      *slog.Logger
}

type AuthServiceConfig struct {
	Users       UserStore
	Tokens      RefreshTokenStore
	UserRoles   UserRoleStore
	Engine      *TokenService
	Tx          Transactor
	Mailer      mailer.Mailer
	Bus         event.Bus
	FrontendURL string
	Logger      *slog.Logger
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Bus == nil {
		cfg.Bus = event.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tx == nil {
		cfg.Tx = noTx{}
	}
	return &AuthService{
		users:       cfg.Users,
		tokens:      cfg.Tokens,
		userRoles:   cfg.UserRoles,
		engine:      cfg.Engine,
		tx:          cfg.Tx,
		mail:        cfg.Mailer,
		bus:         cfg.Bus,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		logger:      cfg.Logger,
	}
}

// Authenticate resolves identifier as a username or email and checks the
// password. Unknown users, wrong passwords and non-active accounts all yield
// model.ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		CheckPassword("", password)
		return model.User{}, model.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, identifier)
	if errors.Is(err, model.ErrNotFound) {
		CheckPassword("", password)
		s.publish(ctx, event.TypeLoginFailed, "", map[string]string{"identifier": identifier})
		return model.User{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("authenticate: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) || user.Status != model.UserStatusActive {
		s.publish(ctx, event.TypeLoginFailed, user.ID, map[string]string{"identifier": identifier})
		return model.User{}, model.ErrInvalidCredentials
	}

	return user, nil
}

// Login opens a session for an authenticated user. The raw refresh value is
// returned exactly once; only its hash is stored. No tokens are returned
// unless the refresh record was persisted.
func (s *AuthService) Login(ctx context.Context, user model.User, client *model.ClientContext) (model.TokenPair, error) {
	rawRefresh, err := NewOpaqueToken()
	if err != nil {
		return model.TokenPair{}, err
	}

	access, err := s.engine.IssueAccessToken(user.ID, subjectOf(user), client)
	if err != nil {
		return model.TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.engine.RefreshTTL())
	if _, err := s.tokens.Create(ctx, user.ID, HashForStorage(rawRefresh), expiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	s.publish(ctx, event.TypeLoginSucceeded, user.ID, nil)

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.engine.AccessTTL().Seconds()),
	}, nil
}

// LoginWithPassword is Authenticate followed by Login.
func (s *AuthService) LoginWithPassword(ctx context.Context, identifier, password string, client *model.ClientContext) (model.TokenPair, error) {
	user, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return model.TokenPair{}, err
	}
	return s.Login(ctx, user, client)
}

// Refresh exchanges a raw refresh value for a new access token built from the
// user's current record.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, client *model.ClientContext) (model.AccessTokenResponse, error) {
	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return model.AccessTokenResponse{}, model.ErrTokenInvalid
	}

	record, err := s.tokens.FindByHash(ctx, HashForStorage(rawRefresh))
	if errors.Is(err, model.ErrTokenNotFound) {
		s.publish(ctx, event.TypeRefreshRejected, "", nil)
		return model.AccessTokenResponse{}, model.ErrTokenInvalid
	}
	if err != nil {
		return model.AccessTokenResponse{}, fmt.Errorf("refresh: %w", err)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if errors.Is(err, model.ErrNotFound) {
		s.publish(ctx, event.TypeRefreshRejected, record.UserID, nil)
		return model.AccessTokenResponse{}, model.ErrTokenInvalid
	}
	if err != nil {
		return model.AccessTokenResponse{}, fmt.Errorf("refresh: %w", err)
	}
	if user.Status != model.UserStatusActive {
		s.publish(ctx, event.TypeRefreshRejected, user.ID, nil)
		return model.AccessTokenResponse{}, model.ErrTokenInvalid
	}

	access, err := s.engine.IssueAccessToken(user.ID, subjectOf(user), client)
	if err != nil {
		return model.AccessTokenResponse{}, err
	}

	s.publish(ctx, event.TypeTokenRefreshed, user.ID, nil)

	return model.AccessTokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.engine.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the refresh value. Unknown, expired and malformed values are
// accepted silently.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return nil
	}

	removed, err := s.tokens.DeleteByHash(ctx, HashForStorage(rawRefresh))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if removed {
		s.publish(ctx, event.TypeLogout, "", nil)
	}
	return nil
}

// RequestEmailVerification mails a verification link. Unknown and already
// verified addresses are ignored without any observable difference.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	user, found, err := s.lookupByEmail(ctx, email)
	if err != nil || !found || user.EmailVerified {
		return err
	}

	token, err := s.engine.IssueScopedToken(user.Email, model.ScopeEmailVerification, emailVerificationTTL)
	if err != nil {
		return err
	}

	s.send(ctx, mailer.Message{
		Subject:   "Verify your email address",
		Recipient: user.Email,
		Template:  mailer.TemplateVerifyEmail,
		Vars:      map[string]any{"verification_link": s.link("/verify-email", token)},
	})
	s.publish(ctx, event.TypeVerificationSent, user.ID, nil)
	return nil
}

// VerifyEmail marks the token's address as verified. It returns false for
// invalid, expired or wrongly scoped tokens and for accounts that are missing
// or already verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	claims, err := s.engine.VerifyScoped(token, model.ScopeEmailVerification)
	if err != nil {
		return false, nil
	}

	user, found, err := s.lookupByEmail(ctx, claims.UserID)
	if err != nil || !found || user.EmailVerified {
		return false, err
	}

	verified := true
	if _, err := s.users.Update(ctx, user.ID, model.UserUpdate{EmailVerified: &verified}); err != nil {
		return false, fmt.Errorf("verify email: %w", err)
	}

	s.publish(ctx, event.TypeEmailVerified, user.ID, nil)
	return true, nil
}

// ForgotPassword mails a password reset link. Unknown addresses are ignored
// without any observable difference.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, found, err := s.lookupByEmail(ctx, email)
	if err != nil || !found {
		return err
	}

	token, err := s.engine.IssueScopedToken(user.Email, model.ScopePasswordReset, passwordResetTTL)
	if err != nil {
		return err
	}

	s.send(ctx, mailer.Message{
		Subject:   "Password reset request",
		Recipient: user.Email,
		Template:  mailer.TemplateResetPassword,
		Vars:      map[string]any{"reset_link": s.link("/reset-password", token)},
	})
	s.publish(ctx, event.TypePasswordResetSent, user.ID, nil)
	return nil
}

// ResetPassword replaces the password of the token's account and revokes all
// of that user's refresh tokens in one transaction. It returns false for
// invalid, expired or wrongly scoped tokens and for unknown accounts.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return false, err
	}

	claims, err := s.engine.VerifyScoped(token, model.ScopePasswordReset)
	if err != nil {
		return false, nil
	}

	user, found, err := s.lookupByEmail(ctx, claims.UserID)
	if err != nil || !found {
		return false, err
	}

	var revoked int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.Update(ctx, user.ID, model.UserUpdate{PasswordHash: &hash}); err != nil {
			return fmt.Errorf("reset password: %w", err)
		}

		n, err := s.tokens.DeleteByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("revoke sessions after password reset: %w", err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return false, err
	}

	s.publish(ctx, event.TypePasswordReset, user.ID, map[string]int64{"revoked_sessions": revoked})
	return true, nil
}

// Me returns the caller's profile together with every role assignment.
func (s *AuthService) Me(ctx context.Context, userID string) (model.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.UserInfo{}, err
	}

	roles, err := s.userRoles.ListByUser(ctx, userID)
	if err != nil {
		return model.UserInfo{}, fmt.Errorf("load roles: %w", err)
	}

	return model.UserInfo{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
		Roles:         roles,
	}, nil
}

// VerifyAccessToken validates an access token, optionally requiring that it
// was issued to the same client.
func (s *AuthService) VerifyAccessToken(token string, client *model.ClientContext, bindClient bool) (*model.AuthClaims, error) {
	claims, err := s.engine.Verify(token, model.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if bindClient && !MatchesClient(claims, client) {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) lookupByEmail(ctx context.Context, email string) (model.User, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.User{}, false, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("find user by email: %w", err)
	}
	return user, true, nil
}

func (s *AuthService) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (s *AuthService) send(ctx context.Context, msg mailer.Message) {
	if s.mail == nil {
		s.logger.WarnContext(ctx, "no mailer configured; message dropped", "template", msg.Template)
		return
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "send mail failed", "template", msg.Template, "error", err)
	}
}

func (s *AuthService) publish(ctx context.Context, typ event.Type, actorID string, payload any) {
	s.bus.Publish(event.New(typ, tenant.NameFromContext(ctx), actorID, payload))
}

func subjectOf(u model.User) model.SubjectClaims {
	return model.SubjectClaims{Username: u.Username, Email: u.Email, Status: string(u.Status)}
}

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
