package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/middleware"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/service"
)

type listQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

type rangeQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

type clicksQuery struct {
	Take *int `form:"take"`
}

// owner returns the authenticated user and the :id path parameter.
// An unparsable id is reported as not found.
func (h *Handler) owner(c *gin.Context) (userID, id uuid.UUID, ok bool) {
	userID, ok = middleware.UserID(c)
	if !ok {
		middleware.AbortWithProblem(c, middleware.NewProblem(c, http.StatusUnauthorized,
			model.CodeUnauthorized, "Authentication is required."))
		return uuid.Nil, uuid.Nil, false
	}
	if c.Param("id") == "" {
		return userID, uuid.Nil, true
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.notFound(c)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

// createLink handles POST /api/urls
// Response codes:
//   - 201 Created: link created, Location points at GET /api/urls/{id}
//   - 400 Bad Request: invalid body, URL, custom code or expiry
//   - 409 Conflict: custom code in use or generation exhausted
func (h *Handler) createLink(c *gin.Context) {
	userID, _, ok := h.owner(c)
	if !ok {
		return
	}

	var req model.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailed(c, err)
		return
	}

	resp, err := h.links.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Location", "/api/urls/"+resp.ID.String())
	c.JSON(http.StatusCreated, resp)
}

// listLinks handles GET /api/urls?page=&pageSize=
func (h *Handler) listLinks(c *gin.Context) {
	userID, _, ok := h.owner(c)
	if !ok {
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.validationProblem(c, map[string]string{"page": "page and pageSize must be integers."})
		return
	}

	page, err := h.links.List(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getLink handles GET /api/urls/:id
func (h *Handler) getLink(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}

	resp, err := h.links.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// deactivateLink handles POST /api/urls/:id/deactivate
func (h *Handler) deactivateLink(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}

	if err := h.links.Deactivate(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteLink handles DELETE /api/urls/:id
func (h *Handler) deleteLink(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}

	if err := h.links.Delete(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// stats handles GET /api/urls/:id/stats?from=&to=
func (h *Handler) stats(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}
	from, to, ok := h.dayRange(c)
	if !ok {
		return
	}

	resp, err := h.analytics.Stats(c.Request.Context(), userID, id, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// breakdown handles GET /api/urls/:id/breakdown?from=&to=
func (h *Handler) breakdown(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}
	from, to, ok := h.dayRange(c)
	if !ok {
		return
	}

	resp, err := h.analytics.Breakdown(c.Request.Context(), userID, id, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// clicks handles GET /api/urls/:id/clicks?take=
func (h *Handler) clicks(c *gin.Context) {
	userID, id, ok := h.owner(c)
	if !ok {
		return
	}

	var q clicksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.validationProblem(c, map[string]string{"take": "take must be an integer."})
		return
	}
	take := service.DefaultTake
	if q.Take != nil {
		take = *q.Take
	}

	resp, err := h.analytics.RecentClicks(c.Request.Context(), userID, id, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// dayRange parses optional from/to query values as dates or RFC 3339 timestamps.
func (h *Handler) dayRange(c *gin.Context) (from, to *time.Time, ok bool) {
	var q rangeQuery
	_ = c.ShouldBindQuery(&q)

	fields := map[string]string{}
	if from, ok = parseDay(q.From); !ok {
		fields["from"] = "Must be a date (YYYY-MM-DD) or RFC 3339 timestamp."
	}
	if to, ok = parseDay(q.To); !ok {
		fields["to"] = "Must be a date (YYYY-MM-DD) or RFC 3339 timestamp."
	}
	if len(fields) > 0 {
		h.validationProblem(c, fields)
		return nil, nil, false
	}
	return from, to, true
}

func parseDay(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}
