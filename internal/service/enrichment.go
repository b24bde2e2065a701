package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxUserAgentLength = 512

// UserAgentInfo is the coarse classification of a User-Agent header.
// Empty OS or Browser means no known token matched.
type UserAgentInfo struct {
	DeviceType string
	OS         string
	Browser    string
	IsBot      bool
}

// ParseUserAgent classifies ua by case-insensitive substring matching.
// Bots short-circuit with no device, OS or browser.
func ParseUserAgent(ua string) UserAgentInfo {
	if strings.TrimSpace(ua) == "" {
		return UserAgentInfo{DeviceType: "unknown"}
	}
	s := strings.ToLower(ua)

	if containsAny(s, "bot", "spider", "crawl", "slurp") {
		return UserAgentInfo{DeviceType: "bot", IsBot: true}
	}

	info := UserAgentInfo{DeviceType: "desktop"}

	switch {
	case strings.Contains(s, "windows"):
		info.OS = "Windows"
	case containsAny(s, "mac os", "macintosh"):
		info.OS = "macOS"
	case strings.Contains(s, "android"):
		info.OS = "Android"
	case containsAny(s, "iphone", "ipad", "ios"):
		info.OS = "iOS"
	case strings.Contains(s, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(s, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(s, "chrome/") && !strings.Contains(s, "chromium"):
		info.Browser = "Chrome"
	case strings.Contains(s, "safari/") && !strings.Contains(s, "chrome/"):
		info.Browser = "Safari"
	case strings.Contains(s, "firefox/"):
		info.Browser = "Firefox"
	case containsAny(s, "opr/", "opera"):
		info.Browser = "Opera"
	}

	switch {
	case containsAny(s, "ipad", "tablet"):
		info.DeviceType = "tablet"
	case containsAny(s, "mobile", "iphone", "android"):
		info.DeviceType = "mobile"
	}

	return info
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// VisitorHash is the lowercase hex SHA-256 of "ip|userAgent".
func VisitorHash(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// geoHeaders are consulted in order; the first non-blank one decides.
var geoHeaders = []string{"CF-IPCountry", "X-Country-Code", "X-Geo-Country"}

// CountryCode reads a proxy-supplied country. Only two-letter codes other
// than the XX/ZZ placeholders are accepted.
func CountryCode(h http.Header) (string, bool) {
	for _, name := range geoHeaders {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		cc := strings.ToUpper(v)
		if len(cc) != 2 || cc == "XX" || cc == "ZZ" {
			return "", false
		}
		return cc, true
	}
	return "", false
}

// ClientIP prefers the first X-Forwarded-For hop, then the peer address.
// Values that do not parse as an IP are skipped, so the result always fits
// the address columns.
func ClientIP(h http.Header, remoteAddr string) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		if ip := parseIP(host); ip != "" {
			return ip
		}
	}
	if ip := parseIP(remoteAddr); ip != "" {
		return ip
	}
	return "0.0.0.0"
}

// parseIP returns the canonical form of s, or "" when s is not an address.
func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// MaskIP zeroes the last IPv4 octet or keeps the first four IPv6 hextets.
func MaskIP(ip string) string {
	if strings.Contains(ip, ".") && !strings.Contains(ip, ":") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + "." + parts[2] + ".0"
		}
		return ip
	}
	if strings.Contains(ip, ":") {
		var kept []string
		for _, p := range strings.Split(ip, ":") {
			if p == "" {
				continue
			}
			kept = append(kept, p)
			if len(kept) == 4 {
				break
			}
		}
		return strings.Join(kept, ":") + "::"
	}
	return ip
}

// truncateUserAgent drops invalid UTF-8 and cuts to at most n bytes on a rune boundary.
func truncateUserAgent(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
