package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// Dimension is a categorical column of click_events that can be broken down.
type Dimension string

const (
	DimensionCountry Dimension = "country"
	DimensionDevice  Dimension = "device"
	DimensionBrowser Dimension = "browser"
	DimensionOS      Dimension = "os"
)

// dimensionExpr whitelists the SQL grouping expression per dimension.
var dimensionExpr = map[Dimension]string{
	DimensionCountry: `COALESCE(NULLIF(country_code, ''), '??')`,
	DimensionDevice:  `COALESCE(NULLIF(device_type, ''), 'unknown')`,
	DimensionBrowser: `COALESCE(NULLIF(browser, ''), 'unknown')`,
	DimensionOS:      `COALESCE(NULLIF(os, ''), 'unknown')`,
}

// DailyCount is the click tally of one UTC calendar day.
type DailyCount struct {
	Day    time.Time
	Clicks int64
	Unique int64
}

// Totals counts events and distinct fingerprints in [from, to).
func (r *ClickRepository) Totals(ctx context.Context, linkID uuid.UUID, from, to time.Time) (clicks, unique int64, err error) {
	ctx, span := startSpan(ctx, "SELECT", "click_events", attribute.String("link_id", linkID.String()))
	defer span.End()

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT visitor_hash)
		FROM click_events
		WHERE short_link_id = $1 AND occurred_at >= $2 AND occurred_at < $3`,
		linkID, from, to,
	).Scan(&clicks, &unique)
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("query click totals: %w", err)
	}
	return clicks, unique, nil
}

// Daily groups events in [from, to) by UTC day. Days without events are absent.
func (r *ClickRepository) Daily(ctx context.Context, linkID uuid.UUID, from, to time.Time) ([]DailyCount, error) {
	ctx, span := startSpan(ctx, "SELECT", "click_events", attribute.String("link_id", linkID.String()))
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT (occurred_at AT TIME ZONE 'UTC')::date AS day, COUNT(*), COUNT(DISTINCT visitor_hash)
		FROM click_events
		WHERE short_link_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		GROUP BY day
		ORDER BY day`,
		linkID, from, to,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query daily clicks: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Day, &d.Clicks, &d.Unique); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan daily clicks: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Top returns the limit most frequent values of dim in [from, to), by count
// descending then key ascending in byte order.
func (r *ClickRepository) Top(ctx context.Context, linkID uuid.UUID, dim Dimension, from, to time.Time, limit int) ([]model.CountItem, error) {
	expr, ok := dimensionExpr[dim]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	ctx, span := startSpan(ctx, "SELECT", "click_events",
		attribute.String("link_id", linkID.String()),
		attribute.String("dimension", string(dim)),
	)
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT (`+expr+`) COLLATE "C" AS k, COUNT(*) AS c
		FROM click_events
		WHERE short_link_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		GROUP BY k
		ORDER BY c DESC, k ASC
		LIMIT $4`,
		linkID, from, to, limit,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query %s breakdown: %w", dim, err)
	}
	defer rows.Close()

	items := make([]model.CountItem, 0, limit)
	for rows.Next() {
		var it model.CountItem
		if err := rows.Scan(&it.Key, &it.Count); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan %s breakdown: %w", dim, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
