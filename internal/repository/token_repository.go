package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/glasslink/internal/model"
)

// TokenRepository persists refresh tokens by hash. Rows are revoked, never deleted.
type TokenRepository struct {
	db *pgxpool.Pool
}

func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, t *model.RefreshToken) error {
	ctx, span := startSpan(ctx, "INSERT", "refresh_tokens")
	defer span.End()

	if err := insertToken(ctx, r.db, t); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetByHash returns the token row regardless of its state.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	ctx, span := startSpan(ctx, "SELECT", "refresh_tokens")
	defer span.End()

	var t model.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at,
			replaced_by_token_hash, created_by_ip, revoked_by_ip
		FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt,
		&t.ReplacedByTokenHash, &t.CreatedByIP, &t.RevokedByIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &t, nil
}

// Rotate revokes the active token oldHash and inserts next in one transaction.
// ErrNotFound means oldHash was unknown, already revoked, or expired at at.
func (r *TokenRepository) Rotate(ctx context.Context, oldHash string, at time.Time, ip *string, next *model.RefreshToken) error {
	ctx, span := startSpan(ctx, "UPDATE", "refresh_tokens")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_by_ip = $3, replaced_by_token_hash = $4
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2`,
		oldHash, at, ip, next.TokenHash)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := insertToken(ctx, tx, next); err != nil {
		span.RecordError(err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit rotate tx: %w", err)
	}
	return nil
}

// Revoke marks an active token revoked. Unknown or inactive tokens yield ErrNotFound.
func (r *TokenRepository) Revoke(ctx context.Context, hash string, at time.Time, ip *string) error {
	ctx, span := startSpan(ctx, "UPDATE", "refresh_tokens")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_by_ip = $3
		WHERE token_hash = $1 AND revoked_at IS NULL`, hash, at, ip)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertToken(ctx context.Context, db execer, t *model.RefreshToken) error {
	_, err := db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, created_by_ip)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.CreatedByIP)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}
