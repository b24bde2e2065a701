package model

import (
	"time"

	"github.com/google/uuid"
)

// DailyPoint is one calendar day of the stats series
type DailyPoint struct {
	Day          string `json:"day"` // YYYY-MM-DD, UTC
	Clicks       int64  `json:"clicks"`
	UniqueClicks int64  `json:"uniqueClicks"`
}

// StatsResponse summarizes clicks for a link over an inclusive day range
type StatsResponse struct {
	ShortURLID     uuid.UUID    `json:"shortUrlId"`
	ShortCode      string       `json:"shortCode"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	TotalClicks    int64        `json:"totalClicks"`
	UniqueVisitors int64        `json:"uniqueVisitors"`
	LastAccessedAt *time.Time   `json:"lastAccessedAt,omitempty"`
	Series         []DailyPoint `json:"series"`
}

// CountItem is a single bucket of a breakdown
type CountItem struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// BreakdownResponse lists top categories per dimension
type BreakdownResponse struct {
	ShortURLID uuid.UUID   `json:"shortUrlId"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Countries  []CountItem `json:"countries"`
	Devices    []CountItem `json:"devices"`
	Browsers   []CountItem `json:"browsers"`
	OS         []CountItem `json:"os"`
}
