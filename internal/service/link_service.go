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

// LinkServiceInterface defines link management for an authenticated owner
type LinkServiceInterface interface {
	Create(ctx context.Context, userID uuid.UUID, req model.CreateLinkRequest) (*model.LinkResponse, error)
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) (*model.PagedResult[model.LinkResponse], error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.LinkResponse, error)
	Deactivate(ctx context.Context, userID, id uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// LinkService handles creation and management of short links
type LinkService struct {
	links       repository.LinkStore
	codes       *ShortCodeGenerator
	maxAttempts int
	baseURL     string
	logger      *slog.Logger
	now         func() time.Time
}

// NewLinkService creates a link service. maxAttempts bounds code generation retries.
func NewLinkService(links repository.LinkStore, codes *ShortCodeGenerator, maxAttempts int, baseURL string, logger *slog.Logger) *LinkService {
	if maxAttempts < 1 {
		maxAttempts = MaxGenAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{
		links:       links,
		codes:       codes,
		maxAttempts: maxAttempts,
		baseURL:     baseURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates and persists a link. A caller-supplied code gets one
// insert attempt; generated codes are retried on collision.
func (s *LinkService) Create(ctx context.Context, userID uuid.UUID, req model.CreateLinkRequest) (*model.LinkResponse, error) {
	dest, err := NormalizeURL(req.OriginalURL)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, newValidationError("expiresAt", "Expiry must be in the future.")
	}

	var custom string
	if req.CustomCode != nil {
		custom = NormalizeCode(*req.CustomCode)
	}

	if custom != "" {
		if !IsValidCode(custom) {
			return nil, newValidationError("customCode", "Custom code must be 4-32 letters or digits.")
		}
		if IsReservedCode(custom) {
			return nil, newValidationError("customCode", "Custom code is reserved.")
		}

		link := s.newLink(userID, custom, dest, req.ExpiresAt, now)
		if err := s.links.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrCodeConflict) {
				return nil, ErrCodeExists
			}
			return nil, err
		}
		return s.created(ctx, link, "custom"), nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, err
		}

		// fresh entity per attempt so nothing from a failed insert leaks into the next
		link := s.newLink(userID, code, dest, req.ExpiresAt, now)
		err = s.links.Create(ctx, link)
		if err == nil {
			return s.created(ctx, link, "generated"), nil
		}
		if !errors.Is(err, repository.ErrCodeConflict) {
			return nil, err
		}

		codeCollisions.Add(ctx, 1)
		s.logger.DebugContext(ctx, "short code collision, retrying",
			slog.Int("attempt", attempt), slog.String("code", code))
	}

	s.logger.WarnContext(ctx, "short code generation exhausted", slog.Int("attempts", s.maxAttempts))
	return nil, ErrCodeGeneration
}

// List returns one page of the owner's links, newest first.
func (s *LinkService) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (*model.PagedResult[model.LinkResponse], error) {
	page, pageSize = NormalizePage(page, pageSize)

	links, total, err := s.links.ListByUser(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]model.LinkResponse, 0, len(links))
	for i := range links {
		items = append(items, model.NewLinkResponse(&links[i], s.baseURL))
	}
	return &model.PagedResult[model.LinkResponse]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// Get returns a link owned by userID.
func (s *LinkService) Get(ctx context.Context, userID, id uuid.UUID) (*model.LinkResponse, error) {
	link, err := s.links.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	resp := model.NewLinkResponse(link, s.baseURL)
	return &resp, nil
}

// Deactivate stops a link from redirecting. It stays listed.
func (s *LinkService) Deactivate(ctx context.Context, userID, id uuid.UUID) error {
	_, err := s.links.Deactivate(ctx, id, userID)
	return mapNotFound(err)
}

// Delete soft-deletes a link.
func (s *LinkService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	_, err := s.links.SoftDelete(ctx, id, userID, s.now().UTC())
	return mapNotFound(err)
}

func (s *LinkService) newLink(userID uuid.UUID, code, dest string, expiresAt *time.Time, now time.Time) *model.ShortLink {
	var exp *time.Time
	if expiresAt != nil {
		t := expiresAt.UTC()
		exp = &t
	}
	return &model.ShortLink{
		ID:          uuid.New(),
		UserID:      userID,
		ShortCode:   code,
		OriginalURL: dest,
		CreatedAt:   now,
		ExpiresAt:   exp,
		IsActive:    true,
	}
}

func (s *LinkService) created(ctx context.Context, link *model.ShortLink, kind string) *model.LinkResponse {
	linksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("code.kind", kind)))
	s.logger.InfoContext(ctx, "short link created",
		slog.String("link_id", link.ID.String()),
		slog.String("code", link.ShortCode),
	)
	resp := model.NewLinkResponse(link, s.baseURL)
	return &resp
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrLinkNotFound
	}
	return err
}

var _ LinkServiceInterface = (*LinkService)(nil)
