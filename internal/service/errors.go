package service

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrLinkNotFound        = errors.New("short url not found")
	ErrLinkExpired         = errors.New("short url has expired")
	ErrCodeExists          = errors.New("short code already in use")
	ErrCodeGeneration      = errors.New("failed to generate unique short code")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("refresh token is invalid or expired")
	ErrEmailTaken          = errors.New("email already registered")
	ErrValidation          = errors.New("validation failed")
)

// ValidationError carries per-field messages. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExpiredError reports a link that exists but is past its expiry.
type ExpiredError struct {
	ShortCode string
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string { return ErrLinkExpired.Error() }

func (e *ExpiredError) Unwrap() error { return ErrLinkExpired }
