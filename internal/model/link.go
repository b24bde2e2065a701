package model

import (
	"time"

	"github.com/google/uuid"
)

// ShortLink is a persisted short code to destination mapping owned by a user.
type ShortLink struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ShortCode      string
	OriginalURL    string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	Clicks         int64
	LastAccessedAt *time.Time
	DeletedAt      *time.Time
}

// Expired reports whether the link has an expiry at or before now.
func (l *ShortLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// CreateLinkRequest is the body of POST /api/urls
type CreateLinkRequest struct {
	OriginalURL string     `json:"originalUrl" binding:"required,max=2048"`
	CustomCode  *string    `json:"customCode,omitempty" binding:"omitempty,shortcode,notreserved"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// LinkResponse is the public view of a ShortLink
type LinkResponse struct {
	ID             uuid.UUID  `json:"id"`
	ShortCode      string     `json:"shortCode"`
	ShortURL       string     `json:"shortUrl"`
	OriginalURL    string     `json:"originalUrl"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	IsActive       bool       `json:"isActive"`
	Clicks         int64      `json:"clicks"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

// NewLinkResponse builds the view of l with its absolute short URL under baseURL.
func NewLinkResponse(l *ShortLink, baseURL string) LinkResponse {
	return LinkResponse{
		ID:             l.ID,
		ShortCode:      l.ShortCode,
		ShortURL:       baseURL + "/" + l.ShortCode,
		OriginalURL:    l.OriginalURL,
		CreatedAt:      l.CreatedAt,
		ExpiresAt:      l.ExpiresAt,
		IsActive:       l.IsActive,
		Clicks:         l.Clicks,
		LastAccessedAt: l.LastAccessedAt,
	}
}

// PagedResult wraps one page of a listing
type PagedResult[T any] struct {
	Items    []T   `json:"items"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// ResolveResponse previews a destination without counting a click
type ResolveResponse struct {
	ShortCode   string     `json:"shortCode"`
	OriginalURL string     `json:"originalUrl"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}
