package model

import (
	"time"

	"github.com/google/uuid"
)

// ClickEvent is one counted visit to a short link. Written once, never updated.
type ClickEvent struct {
	ID          uuid.UUID `json:"id"`
	ShortLinkID uuid.UUID `json:"shortLinkId"`
	ShortCode   string    `json:"shortCode,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	IPAddress   *string   `json:"ipAddress,omitempty"`
	VisitorHash string    `json:"visitorHash"`
	UserAgent   *string   `json:"userAgent,omitempty"`
	DeviceType  string    `json:"deviceType"`
	OS          *string   `json:"os,omitempty"`
	Browser     *string   `json:"browser,omitempty"`
	CountryCode *string   `json:"countryCode,omitempty"`
}

// Visit describes the client behind a redirect request
type Visit struct {
	IP          string
	UserAgent   string
	CountryCode *string
}

// ClickEventResponse is one row of GET /api/urls/{id}/clicks
type ClickEventResponse struct {
	OccurredAt  time.Time `json:"occurredAt"`
	IPAddress   *string   `json:"ipAddress,omitempty"`
	CountryCode *string   `json:"countryCode,omitempty"`
	DeviceType  string    `json:"deviceType"`
	OS          *string   `json:"os,omitempty"`
	Browser     *string   `json:"browser,omitempty"`
}
