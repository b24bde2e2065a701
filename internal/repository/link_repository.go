package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/glasslink/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// LinkStore is the persistence contract for short links.
type LinkStore interface {
	Create(ctx context.Context, link *model.ShortLink) error
	GetByCode(ctx context.Context, code string) (*model.ShortLink, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*model.ShortLink, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.ShortLink, int64, error)
	Deactivate(ctx context.Context, id, userID uuid.UUID) (string, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID, at time.Time) (string, error)
	IncrementClicks(ctx context.Context, id uuid.UUID, at time.Time) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

const linkColumns = `id, user_id, short_code, original_url, created_at, expires_at,
	is_active, clicks, last_accessed_at, deleted_at`

// LinkRepository handles database operations for short links
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a link. A live row with the same code yields ErrCodeConflict.
func (r *LinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	ctx, span := startSpan(ctx, "INSERT", "short_links", attribute.String("short_code", link.ShortCode))
	defer span.End()

	query := `
		INSERT INTO short_links (id, user_id, short_code, original_url, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING clicks
	`
	err := r.db.QueryRow(ctx, query,
		link.ID,
		link.UserID,
		link.ShortCode,
		link.OriginalURL,
		link.CreatedAt,
		link.ExpiresAt,
		link.IsActive,
	).Scan(&link.Clicks)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err, "ux_short_links_short_code") {
			return ErrCodeConflict
		}
		return fmt.Errorf("insert short link: %w", err)
	}
	return nil
}

// GetByCode returns the live (not soft-deleted) link for code.
func (r *LinkRepository) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	ctx, span := startSpan(ctx, "SELECT", "short_links", attribute.String("short_code", code))
	defer span.End()

	query := `SELECT ` + linkColumns + ` FROM short_links WHERE short_code = $1 AND deleted_at IS NULL`
	link, err := scanLink(r.db.QueryRow(ctx, query, code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return link, err
}

// GetForUser returns a live link only if userID owns it.
func (r *LinkRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*model.ShortLink, error) {
	ctx, span := startSpan(ctx, "SELECT", "short_links", attribute.String("link_id", id.String()))
	defer span.End()

	query := `SELECT ` + linkColumns + ` FROM short_links
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	link, err := scanLink(r.db.QueryRow(ctx, query, id, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return link, err
}

// ListByUser returns one page of the owner's live links, newest first, and the total count.
func (r *LinkRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]model.ShortLink, int64, error) {
	ctx, span := startSpan(ctx, "SELECT", "short_links", attribute.Int("offset", offset), attribute.Int("limit", limit))
	defer span.End()

	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM short_links WHERE user_id = $1 AND deleted_at IS NULL`, userID,
	).Scan(&total)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("count short links: %w", err)
	}

	query := `SELECT ` + linkColumns + ` FROM short_links
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.Query(ctx, query, userID, offset, limit)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("list short links: %w", err)
	}
	defer rows.Close()

	links := make([]model.ShortLink, 0, limit)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, err
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("list short links: %w", err)
	}
	return links, total, nil
}

// Deactivate clears the active flag and returns the link's code.
func (r *LinkRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) (string, error) {
	ctx, span := startSpan(ctx, "UPDATE", "short_links", attribute.String("link_id", id.String()))
	defer span.End()

	var code string
	err := r.db.QueryRow(ctx, `
		UPDATE short_links SET is_active = FALSE
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING short_code`, id, userID,
	).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		return "", fmt.Errorf("deactivate short link: %w", err)
	}
	return code, nil
}

// SoftDelete stamps deleted_at and returns the link's code. The row is retained.
func (r *LinkRepository) SoftDelete(ctx context.Context, id, userID uuid.UUID, at time.Time) (string, error) {
	ctx, span := startSpan(ctx, "UPDATE", "short_links", attribute.String("link_id", id.String()))
	defer span.End()

	var code string
	err := r.db.QueryRow(ctx, `
		UPDATE short_links SET deleted_at = $3
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING short_code`, id, userID, at,
	).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		return "", fmt.Errorf("delete short link: %w", err)
	}
	return code, nil
}

// IncrementClicks counts a hit and refreshes last_accessed_at in one statement.
func (r *LinkRepository) IncrementClicks(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := startSpan(ctx, "UPDATE", "short_links", attribute.String("link_id", id.String()))
	defer span.End()

	if err := exec1(ctx, r.db, incrementClicksSQL, id, at); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Touch refreshes last_accessed_at without counting.
func (r *LinkRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := startSpan(ctx, "UPDATE", "short_links", attribute.String("link_id", id.String()))
	defer span.End()

	if err := exec1(ctx, r.db, touchSQL, id, at); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

const (
	incrementClicksSQL = `UPDATE short_links
		SET clicks = clicks + 1, last_accessed_at = GREATEST(COALESCE(last_accessed_at, $2), $2)
		WHERE id = $1`
	touchSQL = `UPDATE short_links
		SET last_accessed_at = GREATEST(COALESCE(last_accessed_at, $2), $2)
		WHERE id = $1`
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// exec1 runs a statement expected to touch exactly one row.
func exec1(ctx context.Context, db execer, sql string, args ...any) error {
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update short link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLink(row pgx.Row) (*model.ShortLink, error) {
	var l model.ShortLink
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.ShortCode,
		&l.OriginalURL,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.IsActive,
		&l.Clicks,
		&l.LastAccessedAt,
		&l.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan short link: %w", err)
	}
	return &l, nil
}

var _ LinkStore = (*LinkRepository)(nil)
