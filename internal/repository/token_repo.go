package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"atlas-auth/internal/database"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

var _ service.RefreshTokenStore = (*TokenRepository)(nil)

type TokenRepository struct{}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{}
}

func (r *TokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.RefreshToken{}, err
	}

	rt := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}

	_, err = q.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return model.RefreshToken{}, translate("store refresh token", err)
	}
	return rt, nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.RefreshToken{}, err
	}

	var rt model.RefreshToken
	err = q.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND expires_at > now()`, tokenHash).
		Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return rt, nil
}

func (r *TokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := q.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
