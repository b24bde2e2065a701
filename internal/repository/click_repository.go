package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/glasslink/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// ClickRepository persists click events and the counters they drive.
type ClickRepository struct {
	db *pgxpool.Pool
}

func NewClickRepository(db *pgxpool.Pool) *ClickRepository {
	return &ClickRepository{db: db}
}

// RecordVisit stores ev and counts it against its link unless the same
// visitor already produced a counted click inside window. Duplicates only
// refresh last_accessed_at. Concurrent visits by one fingerprint to one link
// are serialized with a transaction-scoped advisory lock so at most one of
// them is counted.
func (r *ClickRepository) RecordVisit(ctx context.Context, ev *model.ClickEvent, window time.Duration) (bool, error) {
	ctx, span := startSpan(ctx, "INSERT", "click_events",
		attribute.String("link_id", ev.ShortLinkID.String()),
	)
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("begin visit tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lockKey := ev.ShortLinkID.String() + ":" + ev.VisitorHash
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("lock visitor: %w", err)
	}

	if window > 0 {
		var seen bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM click_events
				WHERE short_link_id = $1 AND visitor_hash = $2 AND occurred_at >= $3
			)`, ev.ShortLinkID, ev.VisitorHash, ev.OccurredAt.Add(-window),
		).Scan(&seen)
		if err != nil {
			span.RecordError(err)
			return false, fmt.Errorf("check duplicate visit: %w", err)
		}
		if seen {
			if err := exec1(ctx, tx, touchSQL, ev.ShortLinkID, ev.OccurredAt); err != nil {
				span.RecordError(err)
				return false, err
			}
			if err := tx.Commit(ctx); err != nil {
				return false, fmt.Errorf("commit visit tx: %w", err)
			}
			span.SetAttributes(attribute.Bool("click.counted", false))
			return false, nil
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO click_events (id, short_link_id, occurred_at, ip_address, visitor_hash,
			user_agent, device_type, os, browser, country_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.ShortLinkID, ev.OccurredAt, ev.IPAddress, ev.VisitorHash,
		ev.UserAgent, ev.DeviceType, ev.OS, ev.Browser, ev.CountryCode,
	)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("insert click event: %w", err)
	}

	if err := exec1(ctx, tx, incrementClicksSQL, ev.ShortLinkID, ev.OccurredAt); err != nil {
		span.RecordError(err)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("commit visit tx: %w", err)
	}
	span.SetAttributes(attribute.Bool("click.counted", true))
	return true, nil
}

// Recent returns the newest take events for a link.
func (r *ClickRepository) Recent(ctx context.Context, linkID uuid.UUID, take int) ([]model.ClickEvent, error) {
	ctx, span := startSpan(ctx, "SELECT", "click_events", attribute.String("link_id", linkID.String()))
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, short_link_id, occurred_at, ip_address, visitor_hash, user_agent,
			COALESCE(device_type, 'unknown'), os, browser, country_code
		FROM click_events
		WHERE short_link_id = $1
		ORDER BY occurred_at DESC, id
		LIMIT $2`, linkID, take)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query recent clicks: %w", err)
	}
	defer rows.Close()

	events := make([]model.ClickEvent, 0, take)
	for rows.Next() {
		var e model.ClickEvent
		if err := rows.Scan(&e.ID, &e.ShortLinkID, &e.OccurredAt, &e.IPAddress, &e.VisitorHash,
			&e.UserAgent, &e.DeviceType, &e.OS, &e.Browser, &e.CountryCode); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query recent clicks: %w", err)
	}
	return events, nil
}
