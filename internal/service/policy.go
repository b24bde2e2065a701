package service

import (
	"net/url"
	"strings"
)

const (
	MinCodeLength     = 4
	MaxCodeLength     = 32
	DefaultCodeLength = 8
	MaxGenAttempts    = 8

	MaxURLLength = 2048

	DefaultPageSize = 20
	MaxPageSize     = 100

	DefaultTake = 50
	MaxTake     = 200

	BreakdownLimit   = 20
	DefaultRangeDays = 14
	MaxRangeDays     = 366
)

// reservedCodes collide with root-level routes
var reservedCodes = map[string]struct{}{
	"health":  {},
	"swagger": {},
	"api":     {},
	"metrics": {},
}

// NormalizeCode trims surrounding whitespace.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// IsValidCode reports whether code is 4..32 ASCII letters or digits.
func IsValidCode(code string) bool {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

// IsReservedCode is case-insensitive.
func IsReservedCode(code string) bool {
	_, ok := reservedCodes[strings.ToLower(code)]
	return ok
}

// NormalizeURL assumes https when no scheme is given, then requires an
// absolute http(s) URL with a host of at most MaxURLLength characters.
// Scheme and host are lowercased and default ports dropped.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", newValidationError("originalUrl", "Original URL is required.")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" || u.Hostname() == "" {
		return "", newValidationError("originalUrl", "Original URL must be a valid absolute URL.")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newValidationError("originalUrl", "Only http and https URLs are allowed.")
	}

	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}

	out := u.String()
	if len(out) > MaxURLLength {
		return "", newValidationError("originalUrl", "Original URL must be at most 2048 characters.")
	}
	return out, nil
}

// NormalizePage defaults page to 1 and pageSize to 20, capping pageSize at 100.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ClampTake bounds take to [1, 200].
func ClampTake(take int) int {
	return min(max(take, 1), MaxTake)
}
