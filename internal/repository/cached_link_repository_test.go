package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/glasslink/internal/model"
)

// testDB and testCache are initialized in link_repository_test.go's TestMain

func TestCachedLinkRepository_GetByCode(t *testing.T) {
	ctx := context.Background()
	cacheTTL := 5 * time.Minute

	t.Run("cache miss - fetches from db and caches", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")

		db := NewLinkRepository(testDB.Pool)
		repo := NewCachedLinkRepository(db, testCache.Client, cacheTTL, nil)
		require.NoError(t, db.Create(ctx, newLink(owner, "cachemis")))

		link, err := repo.GetByCode(ctx, "cachemis")
		require.NoError(t, err)
		assert.Equal(t, "cachemis", link.ShortCode)

		_, ok, err := testCache.LinkEntry(ctx, "cachemis")
		require.NoError(t, err)
		assert.True(t, ok, "expected link to be cached after fetch")
	})

	t.Run("cache hit - returns from cache without db query", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")

		db := NewLinkRepository(testDB.Pool)
		repo := NewCachedLinkRepository(db, testCache.Client, cacheTTL, nil)
		require.NoError(t, db.Create(ctx, newLink(owner, "cachehit")))

		_, err := repo.GetByCode(ctx, "cachehit")
		require.NoError(t, err)

		_, err = testDB.Pool.Exec(ctx, "UPDATE short_links SET original_url = 'https://changed.example' WHERE short_code = 'cachehit'")
		require.NoError(t, err)

		link, err := repo.GetByCode(ctx, "cachehit")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/cachehit", link.OriginalURL)
	})

	t.Run("negative caching - caches not found", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		_, err := repo.GetByCode(ctx, "notfound")
		require.ErrorIs(t, err, ErrNotFound)

		cached, ok, err := testCache.LinkEntry(ctx, "notfound")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, notFoundSentinel, cached)
	})

	t.Run("graceful degradation - works when cache is nil", func(t *testing.T) {
		testDB.Cleanup(ctx)
		owner := newUser(t, "a@example.com")

		db := NewLinkRepository(testDB.Pool)
		repo := NewCachedLinkRepository(db, nil, cacheTTL, nil)
		require.NoError(t, db.Create(ctx, newLink(owner, "nocache1")))

		link, err := repo.GetByCode(ctx, "nocache1")
		require.NoError(t, err)
		assert.Equal(t, "nocache1", link.ShortCode)
	})
}

func TestCachedLinkRepository_Writes(t *testing.T) {
	ctx := context.Background()
	cacheTTL := 10 * time.Minute

	t.Run("create overwrites negative cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		_, _ = repo.GetByCode(ctx, "overwrit")
		require.NoError(t, repo.Create(ctx, newLink(owner, "overwrit")))

		cached, _, err := testCache.LinkEntry(ctx, "overwrit")
		require.NoError(t, err)
		assert.NotEqual(t, notFoundSentinel, cached)

		ttl, err := testCache.Client.TTL(ctx, "link:overwrit").Result()
		require.NoError(t, err)
		assert.InDelta(t, cacheTTL.Seconds(), ttl.Seconds(), 1)

		link, err := repo.GetByCode(ctx, "overwrit")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/overwrit", link.OriginalURL)
	})

	t.Run("deactivate invalidates cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		link := newLink(owner, "deact123")
		require.NoError(t, repo.Create(ctx, link))

		_, err := repo.Deactivate(ctx, link.ID, owner)
		require.NoError(t, err)

		got, err := repo.GetByCode(ctx, "deact123")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})

	t.Run("invalidation leaves a short-lived marker", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		link := newLink(owner, "marker12")
		require.NoError(t, repo.Create(ctx, link))
		_, err := repo.Deactivate(ctx, link.ID, owner)
		require.NoError(t, err)

		cached, ok, err := testCache.LinkEntry(ctx, "marker12")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, invalidatedSentinel, cached)

		ttl, err := testCache.Client.TTL(ctx, "link:marker12").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, invalidationHold)
	})

	t.Run("soft delete invalidates cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		owner := newUser(t, "a@example.com")
		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		link := newLink(owner, "delete12")
		require.NoError(t, repo.Create(ctx, link))

		_, err := repo.SoftDelete(ctx, link.ID, owner, time.Now())
		require.NoError(t, err)

		_, err = repo.GetByCode(ctx, "delete12")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("failed delete leaves no cache entry", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, cacheTTL, nil)

		_, err := repo.SoftDelete(ctx, uuid.New(), uuid.New(), time.Now())
		require.ErrorIs(t, err, ErrNotFound)

		keys, err := testCache.LinkKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

type countingStore struct {
	LinkStore
	getByCodeCount atomic.Int32
}

func (c *countingStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	c.getByCodeCount.Add(1)
	time.Sleep(20 * time.Millisecond)
	return c.LinkStore.GetByCode(ctx, code)
}

func TestCachedLinkRepository_SingleFlight(t *testing.T) {
	ctx := context.Background()
	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)
	owner := newUser(t, "a@example.com")

	db := NewLinkRepository(testDB.Pool)
	require.NoError(t, db.Create(ctx, newLink(owner, "sftest12")))
	counter := &countingStore{LinkStore: db}
	repo := NewCachedLinkRepository(counter, testCache.Client, 10*time.Minute, nil)

	const n = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, errs[idx] = repo.GetByCode(ctx, "sftest12")
		}(i)
	}

	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
	assert.Equal(t, int32(1), counter.getByCodeCount.Load(), "expected 1 DB query (singleflight)")
}

// pausingStore holds a lookup between the database read and the cache fill.
type pausingStore struct {
	LinkStore
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	link, err := p.LinkStore.GetByCode(ctx, code)
	p.read <- struct{}{}
	<-p.release
	return link, err
}

func TestCachedLinkRepository_DeactivateDuringMiss(t *testing.T) {
	ctx := context.Background()
	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)
	owner := newUser(t, "a@example.com")

	db := NewLinkRepository(testDB.Pool)
	link := newLink(owner, "racing12")
	require.NoError(t, db.Create(ctx, link))

	paused := &pausingStore{LinkStore: db, read: make(chan struct{}), release: make(chan struct{})}
	repo := NewCachedLinkRepository(paused, testCache.Client, 10*time.Minute, nil)

	done := make(chan *model.ShortLink, 1)
	go func() {
		got, err := repo.GetByCode(ctx, "racing12")
		assert.NoError(t, err)
		done <- got
	}()

	<-paused.read
	_, err := repo.Deactivate(ctx, link.ID, owner)
	require.NoError(t, err)
	close(paused.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.True(t, stale.IsActive, "the in-flight lookup saw the old row")

	fresh := NewCachedLinkRepository(db, testCache.Client, 10*time.Minute, nil)
	got, err := fresh.GetByCode(ctx, "racing12")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "the stale row must not be served from cache")
}
