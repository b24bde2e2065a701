package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/repository"
	"golang.org/x/sync/errgroup"
)

// ClickStore reads aggregated click data.
type ClickStore interface {
	Recent(ctx context.Context, linkID uuid.UUID, take int) ([]model.ClickEvent, error)
	Totals(ctx context.Context, linkID uuid.UUID, from, to time.Time) (int64, int64, error)
	Daily(ctx context.Context, linkID uuid.UUID, from, to time.Time) ([]repository.DailyCount, error)
	Top(ctx context.Context, linkID uuid.UUID, dim repository.Dimension, from, to time.Time, limit int) ([]model.CountItem, error)
}

// AnalyticsServiceInterface defines per-link reporting for an owner
type AnalyticsServiceInterface interface {
	Stats(ctx context.Context, userID, linkID uuid.UUID, from, to *time.Time) (*model.StatsResponse, error)
	Breakdown(ctx context.Context, userID, linkID uuid.UUID, from, to *time.Time) (*model.BreakdownResponse, error)
	RecentClicks(ctx context.Context, userID, linkID uuid.UUID, take int) ([]model.ClickEventResponse, error)
}

type AnalyticsService struct {
	links  repository.LinkStore
	clicks ClickStore
	now    func() time.Time
}

func NewAnalyticsService(links repository.LinkStore, clicks ClickStore) *AnalyticsService {
	return &AnalyticsService{links: links, clicks: clicks, now: time.Now}
}

// DayRange is an inclusive range of UTC calendar days.
type DayRange struct {
	From time.Time
	To   time.Time
}

// ResolveRange fills missing bounds with the trailing 14 days ending today
// (UTC) and swaps inverted bounds.
func ResolveRange(from, to *time.Time, now time.Time) DayRange {
	today := truncateDay(now)
	r := DayRange{From: today.AddDate(0, 0, -(DefaultRangeDays - 1)), To: today}
	if from != nil {
		r.From = truncateDay(*from)
	}
	if to != nil {
		r.To = truncateDay(*to)
	}
	if r.To.Before(r.From) {
		r.From, r.To = r.To, r.From
	}
	return r
}

// Days counts the calendar days in the range, both ends included.
func (r DayRange) Days() int { return int(r.To.Sub(r.From).Hours()/24) + 1 }

func (r DayRange) validate() error {
	if r.Days() > MaxRangeDays {
		return newValidationError("to", fmt.Sprintf("Date range must not exceed %d days.", MaxRangeDays))
	}
	return nil
}

// end is the exclusive instant after the last day.
func (r DayRange) end() time.Time { return r.To.AddDate(0, 0, 1) }

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Stats returns totals and a zero-filled daily series.
func (s *AnalyticsService) Stats(ctx context.Context, userID, linkID uuid.UUID, from, to *time.Time) (*model.StatsResponse, error) {
	link, err := s.links.GetForUser(ctx, linkID, userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	r := ResolveRange(from, to, s.now())
	if err := r.validate(); err != nil {
		return nil, err
	}

	var (
		clicks, unique int64
		daily          []repository.DailyCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clicks, unique, err = s.clicks.Totals(gctx, linkID, r.From, r.end())
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.clicks.Daily(gctx, linkID, r.From, r.end())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byDay := make(map[string]repository.DailyCount, len(daily))
	for _, d := range daily {
		byDay[d.Day.Format(time.DateOnly)] = d
	}

	series := make([]model.DailyPoint, 0, r.Days())
	for day := r.From; !day.After(r.To); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		d := byDay[key]
		series = append(series, model.DailyPoint{Day: key, Clicks: d.Clicks, UniqueClicks: d.Unique})
	}

	return &model.StatsResponse{
		ShortURLID:     link.ID,
		ShortCode:      link.ShortCode,
		From:           r.From.Format(time.DateOnly),
		To:             r.To.Format(time.DateOnly),
		TotalClicks:    clicks,
		UniqueVisitors: unique,
		LastAccessedAt: link.LastAccessedAt,
		Series:         series,
	}, nil
}

// Breakdown returns the top categories of each dimension, queried concurrently.
func (s *AnalyticsService) Breakdown(ctx context.Context, userID, linkID uuid.UUID, from, to *time.Time) (*model.BreakdownResponse, error) {
	if _, err := s.links.GetForUser(ctx, linkID, userID); err != nil {
		return nil, mapNotFound(err)
	}
	r := ResolveRange(from, to, s.now())
	if err := r.validate(); err != nil {
		return nil, err
	}

	resp := &model.BreakdownResponse{
		ShortURLID: linkID,
		From:       r.From.Format(time.DateOnly),
		To:         r.To.Format(time.DateOnly),
	}
	targets := map[repository.Dimension]*[]model.CountItem{
		repository.DimensionCountry: &resp.Countries,
		repository.DimensionDevice:  &resp.Devices,
		repository.DimensionBrowser: &resp.Browsers,
		repository.DimensionOS:      &resp.OS,
	}

	g, gctx := errgroup.WithContext(ctx)
	for dim, dst := range targets {
		dim, dst := dim, dst
		g.Go(func() error {
			items, err := s.clicks.Top(gctx, linkID, dim, r.From, r.end(), BreakdownLimit)
			if err != nil {
				return err
			}
			*dst = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resp, nil
}

// RecentClicks returns up to take events, newest first.
func (s *AnalyticsService) RecentClicks(ctx context.Context, userID, linkID uuid.UUID, take int) ([]model.ClickEventResponse, error) {
	if _, err := s.links.GetForUser(ctx, linkID, userID); err != nil {
		return nil, mapNotFound(err)
	}

	events, err := s.clicks.Recent(ctx, linkID, ClampTake(take))
	if err != nil {
		return nil, err
	}

	out := make([]model.ClickEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, model.ClickEventResponse{
			OccurredAt:  e.OccurredAt,
			IPAddress:   e.IPAddress,
			CountryCode: e.CountryCode,
			DeviceType:  e.DeviceType,
			OS:          e.OS,
			Browser:     e.Browser,
		})
	}
	return out, nil
}

var _ AnalyticsServiceInterface = (*AnalyticsService)(nil)
