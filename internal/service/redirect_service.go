package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VisitRecorder stores click events with duplicate suppression.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, ev *model.ClickEvent, window time.Duration) (bool, error)
}

// ClickPublisher fans counted clicks out to other consumers.
type ClickPublisher interface {
	PublishClick(ctx context.Context, ev model.ClickEvent) error
}

// RedirectServiceInterface defines the public short code surface
type RedirectServiceInterface interface {
	Redirect(ctx context.Context, code string, visit model.Visit) (string, error)
	Resolve(ctx context.Context, code string) (*model.ResolveResponse, error)
}

// AnalyticsOptions control click logging on the redirect path.
type AnalyticsOptions struct {
	StoreClickEvents bool
	StoreFullIP      bool
	DedupWindow      time.Duration
}

// RedirectService resolves short codes and records hits
type RedirectService struct {
	links     repository.LinkStore
	clicks    VisitRecorder
	publisher ClickPublisher
	opts      AnalyticsOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewRedirectService creates a redirect service. publisher may be nil.
func NewRedirectService(links repository.LinkStore, clicks VisitRecorder, publisher ClickPublisher, opts AnalyticsOptions, logger *slog.Logger) *RedirectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectService{
		links:     links,
		clicks:    clicks,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Redirect returns the destination for code and records the hit.
//
// Malformed, reserved, unknown, deleted or inactive codes are ErrLinkNotFound.
// Expired links yield an *ExpiredError.
func (s *RedirectService) Redirect(ctx context.Context, code string, visit model.Visit) (string, error) {
	now := s.now().UTC()

	link, err := s.lookup(ctx, code, now)
	if err != nil {
		s.countOutcome(ctx, err)
		return "", err
	}

	outcome, err := s.record(ctx, link, visit, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// deleted between lookup and update
			return "", ErrLinkNotFound
		}
		return "", err
	}

	redirects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return link.OriginalURL, nil
}

// Resolve previews the destination without touching counters.
func (s *RedirectService) Resolve(ctx context.Context, code string) (*model.ResolveResponse, error) {
	link, err := s.lookup(ctx, code, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &model.ResolveResponse{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ExpiresAt:   link.ExpiresAt,
	}, nil
}

func (s *RedirectService) lookup(ctx context.Context, raw string, now time.Time) (*model.ShortLink, error) {
	code := NormalizeCode(raw)
	if !IsValidCode(code) || IsReservedCode(code) {
		return nil, ErrLinkNotFound
	}

	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if !link.IsActive {
		return nil, ErrLinkNotFound
	}
	if link.Expired(now) {
		return nil, &ExpiredError{ShortCode: link.ShortCode, ExpiresAt: *link.ExpiresAt}
	}
	return link, nil
}

func (s *RedirectService) record(ctx context.Context, link *model.ShortLink, visit model.Visit, now time.Time) (string, error) {
	if !s.opts.StoreClickEvents {
		return outcomeUnlogged, s.links.IncrementClicks(ctx, link.ID, now)
	}

	ua := ParseUserAgent(visit.UserAgent)
	if ua.IsBot {
		return outcomeBot, s.links.Touch(ctx, link.ID, now)
	}

	ev := s.buildEvent(link, visit, ua, now)
	counted, err := s.clicks.RecordVisit(ctx, ev, s.opts.DedupWindow)
	if err != nil {
		return "", err
	}
	if !counted {
		return outcomeDuplicate, nil
	}

	if s.publisher != nil {
		if err := s.publisher.PublishClick(ctx, *ev); err != nil {
			s.logger.WarnContext(ctx, "click publish failed",
				slog.String("link_id", link.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return outcomeCounted, nil
}

func (s *RedirectService) buildEvent(link *model.ShortLink, visit model.Visit, ua UserAgentInfo, now time.Time) *model.ClickEvent {
	ip := parseIP(visit.IP)
	if ip == "" {
		ip = "0.0.0.0"
	}
	stored := ip
	if !s.opts.StoreFullIP {
		stored = MaskIP(ip)
	}

	ev := &model.ClickEvent{
		ID:          uuid.New(),
		ShortLinkID: link.ID,
		ShortCode:   link.ShortCode,
		OccurredAt:  now,
		IPAddress:   &stored,
		VisitorHash: VisitorHash(ip, visit.UserAgent),
		DeviceType:  ua.DeviceType,
		OS:          optional(ua.OS),
		Browser:     optional(ua.Browser),
		CountryCode: visit.CountryCode,
	}
	if visit.UserAgent != "" {
		agent := truncateUserAgent(visit.UserAgent, maxUserAgentLength)
		ev.UserAgent = &agent
	}
	return ev
}

func (s *RedirectService) countOutcome(ctx context.Context, err error) {
	outcome := outcomeNotFound
	if errors.Is(err, ErrLinkExpired) {
		outcome = outcomeExpired
	} else if !errors.Is(err, ErrLinkNotFound) {
		return
	}
	redirects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ RedirectServiceInterface = (*RedirectService)(nil)
