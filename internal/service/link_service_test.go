package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/repository"
	"github.com/zhejian/glasslink/internal/testutil"
)

const testBaseURL = "http://short.test"

var (
	testDB    *testutil.TestDB
	testCache *testutil.TestCache
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testutil.SetupTestDB(ctx)
	if err != nil {
		panic("failed to setup test database: " + err.Error())
	}

	testCache, err = testutil.SetupTestCache(ctx)
	if err != nil {
		panic("failed to setup test cache: " + err.Error())
	}

	code := m.Run()

	testCache.Teardown(ctx)
	testDB.Teardown(ctx)
	os.Exit(code)
}

func newOwner(t *testing.T, email string) uuid.UUID {
	t.Helper()
	id, err := testDB.CreateUser(context.Background(), email)
	require.NoError(t, err)
	return id
}

func newLinkService(t *testing.T) *LinkService {
	t.Helper()
	codes, err := NewShortCodeGenerator(DefaultCodeLength, nil)
	require.NoError(t, err)
	links := repository.NewCachedLinkRepository(repository.NewLinkRepository(testDB.Pool), testCache.Client, time.Minute, nil)
	return NewLinkService(links, codes, MaxGenAttempts, testBaseURL, nil)
}

func ptr[T any](v T) *T { return &v }

// zeroReader always yields the same code, "0000..."
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestLinkService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newLinkService(t)

	t.Run("generates a code", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		resp, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "example.com/very/long/url"})
		require.NoError(t, err)

		assert.Len(t, resp.ShortCode, DefaultCodeLength)
		assert.Equal(t, testBaseURL+"/"+resp.ShortCode, resp.ShortURL)
		assert.Equal(t, "https://example.com/very/long/url", resp.OriginalURL)
		assert.True(t, resp.IsActive)
		assert.Zero(t, resp.Clicks)
		assert.Nil(t, resp.ExpiresAt)
	})

	t.Run("uses a custom code", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		resp, err := svc.Create(ctx, owner, model.CreateLinkRequest{
			OriginalURL: "https://example.com/custom",
			CustomCode:  ptr(" MyCode1 "),
		})
		require.NoError(t, err)
		assert.Equal(t, "MyCode1", resp.ShortCode)
	})

	t.Run("blank custom code generates one", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		resp, err := svc.Create(ctx, owner, model.CreateLinkRequest{
			OriginalURL: "https://example.com/blank",
			CustomCode:  ptr("   "),
		})
		require.NoError(t, err)
		assert.Len(t, resp.ShortCode, DefaultCodeLength)
	})

	t.Run("custom code already in use", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")
		other := newOwner(t, "b@example.com")

		_, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example", CustomCode: ptr("taken1")})
		require.NoError(t, err)

		_, err = svc.Create(ctx, other, model.CreateLinkRequest{OriginalURL: "https://b.example", CustomCode: ptr("taken1")})
		assert.ErrorIs(t, err, ErrCodeExists)
	})

	t.Run("rejects invalid and reserved custom codes", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		for _, code := range []string{"abc", "has-dash", "Health", "api"} {
			_, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example", CustomCode: ptr(code)})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve, code)
			assert.Contains(t, ve.Fields, "customCode")
		}
	})

	t.Run("rejects expiry in the past", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		_, err := svc.Create(ctx, owner, model.CreateLinkRequest{
			OriginalURL: "https://a.example",
			ExpiresAt:   ptr(time.Now().Add(-time.Minute)),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "expiresAt")
	})

	t.Run("keeps future expiry", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		exp := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
		resp, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example", ExpiresAt: &exp})
		require.NoError(t, err)
		require.NotNil(t, resp.ExpiresAt)
		assert.True(t, exp.Equal(*resp.ExpiresAt))
	})

	t.Run("invalid url", func(t *testing.T) {
		owner := uuid.New()
		_, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "ftp://files.example"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		codes, err := NewShortCodeGenerator(DefaultCodeLength, zeroReader{})
		require.NoError(t, err)
		stuck := NewLinkService(repository.NewLinkRepository(testDB.Pool), codes, 3, testBaseURL, nil)

		first, err := stuck.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example"})
		require.NoError(t, err)
		assert.Equal(t, "00000000", first.ShortCode)

		_, err = stuck.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://b.example"})
		assert.ErrorIs(t, err, ErrCodeGeneration)
	})
}

func TestLinkService_Manage(t *testing.T) {
	ctx := context.Background()
	svc := newLinkService(t)

	t.Run("list is paged and scoped to the owner", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")
		other := newOwner(t, "b@example.com")

		for i := 0; i < 3; i++ {
			_, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example"})
			require.NoError(t, err)
		}
		_, err := svc.Create(ctx, other, model.CreateLinkRequest{OriginalURL: "https://b.example"})
		require.NoError(t, err)

		page, err := svc.List(ctx, owner, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Len(t, page.Items, 2)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.PageSize)

		page, err = svc.List(ctx, owner, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultPageSize, page.PageSize)
		assert.Len(t, page.Items, 3)
	})

	t.Run("other users cannot see or change a link", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")
		other := newOwner(t, "b@example.com")

		created, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example"})
		require.NoError(t, err)

		_, err = svc.Get(ctx, other, created.ID)
		assert.ErrorIs(t, err, ErrLinkNotFound)
		assert.ErrorIs(t, svc.Deactivate(ctx, other, created.ID), ErrLinkNotFound)
		assert.ErrorIs(t, svc.Delete(ctx, other, created.ID), ErrLinkNotFound)

		got, err := svc.Get(ctx, owner, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ShortCode, got.ShortCode)
	})

	t.Run("deactivate keeps the link listed, delete hides it", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newOwner(t, "a@example.com")

		created, err := svc.Create(ctx, owner, model.CreateLinkRequest{OriginalURL: "https://a.example"})
		require.NoError(t, err)

		require.NoError(t, svc.Deactivate(ctx, owner, created.ID))
		got, err := svc.Get(ctx, owner, created.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		require.NoError(t, svc.Delete(ctx, owner, created.ID))
		_, err = svc.Get(ctx, owner, created.ID)
		assert.ErrorIs(t, err, ErrLinkNotFound)
		assert.ErrorIs(t, svc.Delete(ctx, owner, created.ID), ErrLinkNotFound)
	})
}
