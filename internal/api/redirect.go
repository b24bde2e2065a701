package api

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/service"
)

const errorPageName = "error.html"

type errorPage struct {
	Title     string
	Headline  string
	Badge     string
	Code      string
	Message   string
	ExpiresAt string
}

var errorPages = template.Must(template.New(errorPageName).Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <style>
    :root { color-scheme: dark; --card: rgba(255,255,255,0.07); --ring: rgba(255,255,255,0.12); --muted: rgba(255,255,255,0.60); }
    body { margin:0; min-height:100vh; display:grid; place-items:center; background: linear-gradient(180deg, #070A12, #0B1022); font-family: ui-sans-serif, system-ui, sans-serif; color: rgba(255,255,255,0.92); }
    .card { width:min(720px, calc(100% - 32px)); border-radius:24px; background:var(--card); border:1px solid var(--ring); backdrop-filter: blur(18px); padding:28px; }
    .top { display:flex; align-items:center; justify-content:space-between; }
    .badge { font-size:12px; padding:6px 10px; border-radius:999px; border:1px solid var(--ring); color:var(--muted); }
    p, .muted { color:var(--muted); line-height:1.6; }
    .muted { font-size:12px; margin-top:10px; }
    a.btn { display:inline-flex; margin-top:20px; padding:10px 14px; border-radius:16px; text-decoration:none; border:1px solid var(--ring); color:inherit; }
  </style>
</head>
<body>
  <div class="card">
    <div class="top">
      <div style="font-weight:600">GlassLink</div>
      <div class="badge">{{.Badge}}</div>
    </div>
    <h1>{{.Headline}}</h1>
    <p>Code <b>/{{.Code}}</b> {{if .ExpiresAt}}is no longer active.{{else}}is not available.{{end}} {{.Message}}</p>
    {{if .ExpiresAt}}<div class="muted">Expired at: {{.ExpiresAt}} UTC</div>{{end}}
    <a class="btn" href="/">Open dashboard</a>
    <div class="muted">If you believe this is a mistake, contact the owner of this link.</div>
  </div>
</body>
</html>
`))

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")
}

// redirect handles GET /:code
// Response codes:
//   - 302 Found: redirect to the destination
//   - 404 Not Found: unknown, malformed, reserved, inactive or deleted code
//   - 410 Gone: the link has expired
//
// Browsers (Accept: text/html) get an HTML page instead of a problem body.
func (h *Handler) redirect(c *gin.Context) {
	code := c.Param("code")
	visit := model.Visit{
		IP:        service.ClientIP(c.Request.Header, c.Request.RemoteAddr),
		UserAgent: c.Request.UserAgent(),
	}
	if cc, ok := service.CountryCode(c.Request.Header); ok {
		visit.CountryCode = &cc
	}

	dest, err := h.redirects.Redirect(c.Request.Context(), code, visit)
	if err != nil {
		if wantsHTML(c) && h.htmlError(c, code, err) {
			return
		}
		h.fail(c, err)
		return
	}

	c.Redirect(http.StatusFound, dest)
}

// htmlError renders the not found and gone pages. Other errors are left to fail.
func (h *Handler) htmlError(c *gin.Context, code string, err error) bool {
	code = service.NormalizeCode(code)

	var expired *service.ExpiredError
	switch {
	case errors.As(err, &expired):
		_ = c.Error(err)
		c.HTML(http.StatusGone, errorPageName, errorPage{
			Title:     "Link expired",
			Headline:  "This short link has expired",
			Badge:     "410",
			Code:      code,
			Message:   "Short URL has expired.",
			ExpiresAt: expired.ExpiresAt.UTC().Format("2006-01-02 15:04"),
		})
		return true
	case errors.Is(err, service.ErrLinkNotFound):
		_ = c.Error(err)
		c.HTML(http.StatusNotFound, errorPageName, errorPage{
			Title:    "Link not found",
			Headline: "This short link doesn't exist",
			Badge:    "404",
			Code:     code,
			Message:  "Short URL not found.",
		})
		return true
	}
	return false
}

// resolve handles GET /api/public/resolve/:code
// It previews the destination without counting a click.
func (h *Handler) resolve(c *gin.Context) {
	resp, err := h.redirects.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
