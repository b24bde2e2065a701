package service

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want UserAgentInfo
	}{
		{
			"empty",
			"",
			UserAgentInfo{DeviceType: "unknown"},
		},
		{
			"googlebot",
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			UserAgentInfo{DeviceType: "bot", IsBot: true},
		},
		{
			"chrome on windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			UserAgentInfo{DeviceType: "desktop", OS: "Windows", Browser: "Chrome"},
		},
		{
			"edge on windows",
			"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			UserAgentInfo{DeviceType: "desktop", OS: "Windows", Browser: "Edge"},
		},
		{
			"safari on iphone",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			UserAgentInfo{DeviceType: "mobile", OS: "macOS", Browser: "Safari"},
		},
		{
			"firefox on linux",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			UserAgentInfo{DeviceType: "desktop", OS: "Linux", Browser: "Firefox"},
		},
		{
			"chrome on android",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			UserAgentInfo{DeviceType: "mobile", OS: "Android", Browser: "Chrome"},
		},
		{
			"ipad",
			"Mozilla/5.0 (iPad; CPU OS 17_0) AppleWebKit/605.1.15 Safari/604.1",
			UserAgentInfo{DeviceType: "tablet", OS: "iOS", Browser: "Safari"},
		},
		{
			"curl",
			"curl/8.4.0",
			UserAgentInfo{DeviceType: "desktop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUserAgent(tt.ua))
		})
	}
}

func TestVisitorHash(t *testing.T) {
	h := VisitorHash("203.0.113.7", "ua")
	assert.Len(t, h, 64)
	assert.Equal(t, strings.ToLower(h), h)
	assert.Equal(t, h, VisitorHash("203.0.113.7", "ua"))
	assert.NotEqual(t, h, VisitorHash("203.0.113.8", "ua"))
	assert.NotEqual(t, h, VisitorHash("203.0.113.7", "ua2"))
}

func TestCountryCode(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		ok      bool
	}{
		{"none", nil, "", false},
		{"cloudflare", map[string]string{"CF-IPCountry": "de"}, "DE", true},
		{"fallback header", map[string]string{"X-Geo-Country": "fr"}, "FR", true},
		{"first header wins", map[string]string{"CF-IPCountry": "US", "X-Country-Code": "GB"}, "US", true},
		{"blank is skipped", map[string]string{"CF-IPCountry": "  ", "X-Country-Code": "gb"}, "GB", true},
		{"unknown placeholder", map[string]string{"CF-IPCountry": "XX", "X-Country-Code": "GB"}, "", false},
		{"tor placeholder", map[string]string{"CF-IPCountry": "ZZ"}, "", false},
		{"wrong length", map[string]string{"X-Country-Code": "USA"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			got, ok := CountryCode(h)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientIP(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, "192.0.2.1", ClientIP(h, "192.0.2.1:5555"))
	assert.Equal(t, "0.0.0.0", ClientIP(h, ""))

	h.Set("X-Forwarded-For", " 198.51.100.9 , 10.0.0.1")
	assert.Equal(t, "198.51.100.9", ClientIP(h, "192.0.2.1:5555"))

	h.Set("X-Forwarded-For", "2001:db8::1")
	assert.Equal(t, "2001:db8::1", ClientIP(h, "192.0.2.1:5555"))
}

func TestClientIP_RejectsForgedForwardedFor(t *testing.T) {
	cases := map[string]string{
		"oversized":   strings.Repeat("a", 100),
		"hostname":    "proxy.internal",
		"with port":   "198.51.100.9:443",
		"empty first": " , 198.51.100.9",
		"script":      "<script>",
	}
	for name, xff := range cases {
		t.Run(name, func(t *testing.T) {
			h := http.Header{}
			h.Set("X-Forwarded-For", xff)
			assert.Equal(t, "192.0.2.1", ClientIP(h, "192.0.2.1:5555"))
		})
	}

	t.Run("garbage peer", func(t *testing.T) {
		assert.Equal(t, "0.0.0.0", ClientIP(http.Header{}, strings.Repeat("x", 80)))
	})
}

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "203.0.113.0", MaskIP("203.0.113.77"))
	assert.Equal(t, "2001:db8:85a3:8d3::", MaskIP("2001:db8:85a3:8d3:1319:8a2e:370:7348"))
	assert.Equal(t, "not-an-ip", MaskIP("not-an-ip"))
}

func TestTruncateUserAgent(t *testing.T) {
	assert.Equal(t, "short", truncateUserAgent("short", 10))

	s := strings.Repeat("é", 10) // 2 bytes each
	got := truncateUserAgent(s, 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "éé", got)

	assert.Equal(t, "ab", truncateUserAgent("a\xffb", 10))
}
