package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/glasslink/internal/model"
)

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(testDB.Pool)
	ctx := context.Background()
	testDB.Cleanup(ctx)

	u := &model.User{ID: uuid.New(), Email: "Mixed@Example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByEmail(ctx, "mixed@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	dup := &model.User{ID: uuid.New(), Email: "MIXED@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrEmailConflict)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func newToken(userID uuid.UUID, hash string, expires time.Time) *model.RefreshToken {
	return &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: strings.Repeat(hash, 64)[:64],
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	}
}

func TestTokenRepository(t *testing.T) {
	repo := NewTokenRepository(testDB.Pool)
	ctx := context.Background()

	t.Run("rotate revokes old and stores new", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		now := time.Now().UTC()

		old := newToken(owner, "a", now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, old))

		next := newToken(owner, "b", now.Add(time.Hour))
		ip := "198.51.100.1"
		require.NoError(t, repo.Rotate(ctx, old.TokenHash, now, &ip, next))

		stored, err := repo.GetByHash(ctx, old.TokenHash)
		require.NoError(t, err)
		assert.False(t, stored.Active(now))
		require.NotNil(t, stored.ReplacedByTokenHash)
		assert.Equal(t, next.TokenHash, *stored.ReplacedByTokenHash)
		assert.Equal(t, ip, *stored.RevokedByIP)

		fresh, err := repo.GetByHash(ctx, next.TokenHash)
		require.NoError(t, err)
		assert.True(t, fresh.Active(now))
	})

	t.Run("rotate of a revoked token fails and inserts nothing", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		now := time.Now().UTC()

		old := newToken(owner, "c", now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, old))
		require.NoError(t, repo.Revoke(ctx, old.TokenHash, now, nil))

		next := newToken(owner, "d", now.Add(time.Hour))
		assert.ErrorIs(t, repo.Rotate(ctx, old.TokenHash, now, nil, next), ErrNotFound)

		_, err := repo.GetByHash(ctx, next.TokenHash)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rotate of an expired token fails", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		now := time.Now().UTC()

		old := newToken(owner, "e", now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, old))

		err := repo.Rotate(ctx, old.TokenHash, now, nil, newToken(owner, "f", now.Add(time.Hour)))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("revoke twice", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		now := time.Now().UTC()

		tok := newToken(owner, "g", now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, tok))
		require.NoError(t, repo.Revoke(ctx, tok.TokenHash, now, nil))
		assert.ErrorIs(t, repo.Revoke(ctx, tok.TokenHash, now, nil), ErrNotFound)
	})
}
