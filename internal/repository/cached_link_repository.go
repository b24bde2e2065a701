package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/glasslink/internal/model"
	"golang.org/x/sync/singleflight"
)

const (
	notFoundSentinel    = "__NOT_FOUND__"
	invalidatedSentinel = "__INVALIDATED__"

	// invalidationHold outlives any lookup that raced the invalidating write.
	invalidationHold = 30 * time.Second
)

// cachedLink is the routing subset of a link kept in Redis. Counters are never cached.
type cachedLink struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// CachedLinkRepository decorates a LinkStore with a cache-aside Redis layer
// for code lookups. All other calls pass through; writes that change routing
// invalidate the cached entry.
type CachedLinkRepository struct {
	LinkStore
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedLinkRepository wraps db. A nil cache disables caching.
func NewCachedLinkRepository(db LinkStore, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLinkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLinkRepository{LinkStore: db, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(code string) string {
	return "link:" + code
}

// GetByCode with cache-aside pattern and negative caching.
//
// Entries filled on a miss are written with SET NX so they never replace a
// newer value, and invalidation leaves a short-lived marker instead of
// deleting the key. A lookup that read the row before a concurrent
// deactivate therefore cannot put the stale entry back.
func (r *CachedLinkRepository) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	if r.cache == nil {
		return r.LinkStore.GetByCode(ctx, code)
	}

	key := cacheKey(code)
	cached, err := r.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		switch cached {
		case notFoundSentinel:
			return nil, ErrNotFound
		case invalidatedSentinel:
		default:
			var c cachedLink
			if jerr := json.Unmarshal([]byte(cached), &c); jerr == nil {
				return c.toModel(), nil
			}
			r.cache.Del(ctx, key)
		}
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		link, err := r.LinkStore.GetByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			r.fill(ctx, key, notFoundSentinel)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if data, ok := r.encode(ctx, link); ok {
			r.fill(ctx, key, data)
		}
		return link, nil
	})
	if err != nil {
		return nil, err
	}

	link := *v.(*model.ShortLink)
	return &link, nil
}

// Create writes through to the cache, replacing any negative entry.
func (r *CachedLinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	if err := r.LinkStore.Create(ctx, link); err != nil {
		return err
	}
	if r.cache != nil {
		r.store(ctx, link)
	}
	return nil
}

// Deactivate invalidates the cached entry for the link's code.
func (r *CachedLinkRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) (string, error) {
	code, err := r.LinkStore.Deactivate(ctx, id, userID)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, code)
	return code, nil
}

// SoftDelete invalidates the cached entry for the link's code.
func (r *CachedLinkRepository) SoftDelete(ctx context.Context, id, userID uuid.UUID, at time.Time) (string, error) {
	code, err := r.LinkStore.SoftDelete(ctx, id, userID, at)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, code)
	return code, nil
}

func (r *CachedLinkRepository) encode(ctx context.Context, link *model.ShortLink) ([]byte, bool) {
	data, err := json.Marshal(cachedLink{
		ID:          link.ID,
		UserID:      link.UserID,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		IsActive:    link.IsActive,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "cache encode failed", slog.String("code", link.ShortCode), slog.Any("error", err))
		return nil, false
	}
	return data, true
}

// store overwrites the entry; only callers holding freshly committed state use it.
func (r *CachedLinkRepository) store(ctx context.Context, link *model.ShortLink) {
	data, ok := r.encode(ctx, link)
	if !ok {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(link.ShortCode), data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "cache write failed", slog.String("code", link.ShortCode), slog.Any("error", err))
	}
}

// fill writes a value read on a miss unless the key was set meanwhile.
func (r *CachedLinkRepository) fill(ctx context.Context, key string, value any) {
	if err := r.cache.SetNX(ctx, key, value, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "cache fill failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (r *CachedLinkRepository) invalidate(ctx context.Context, code string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(code), invalidatedSentinel, invalidationHold).Err(); err != nil {
		r.logger.WarnContext(ctx, "cache invalidate failed", slog.String("code", code), slog.Any("error", err))
	}
}

func (c *cachedLink) toModel() *model.ShortLink {
	return &model.ShortLink{
		ID:          c.ID,
		UserID:      c.UserID,
		ShortCode:   c.ShortCode,
		OriginalURL: c.OriginalURL,
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
		IsActive:    c.IsActive,
	}
}

var _ LinkStore = (*CachedLinkRepository)(nil)
