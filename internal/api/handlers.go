package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hray3182/Timeline/internal/auth"
	"github.com/hray3182/Timeline/internal/export"
	"github.com/hray3182/Timeline/internal/manager"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

type extendedPropsRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Completion  bool   `json:"completion"`
	Priority    string `json:"priority"`
}

type eventRequest struct {
	Title         string               `json:"title" binding:"required"`
	Start         time.Time            `json:"start" binding:"required_unless=IsRecommend true"`
	End           *time.Time           `json:"end"`
	ExtendedProps extendedPropsRequest `json:"extendedProps"`
	IsRecommend   bool                 `json:"isRecommend"`
}

func (r *eventRequest) toEvent() models.Event {
	e := models.Event{
		Title: r.Title,
		Start: r.Start,
		ExtendedProps: models.ExtendedProps{
			Description: r.ExtendedProps.Description,
			Category:    r.ExtendedProps.Category,
			Completion:  r.ExtendedProps.Completion,
			Priority:    r.ExtendedProps.Priority,
		},
		IsRecommend: r.IsRecommend,
	}
	if r.End != nil {
		e.End = *r.End
	}
	return e
}

type patchRequest struct {
	Title         *string    `json:"title"`
	Start         *time.Time `json:"start"`
	End           *time.Time `json:"end"`
	ExtendedProps *struct {
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Completion  *bool   `json:"completion"`
		Priority    *string `json:"priority"`
	} `json:"extendedProps"`
	IsRecommend *bool `json:"isRecommend"`
}

func (r *patchRequest) toPatch() models.EventPatch {
	p := models.EventPatch{
		Title:       r.Title,
		Start:       r.Start,
		End:         r.End,
		IsRecommend: r.IsRecommend,
	}
	if r.ExtendedProps != nil {
		p.Description = r.ExtendedProps.Description
		p.Category = r.ExtendedProps.Category
		p.Completion = r.ExtendedProps.Completion
		p.Priority = r.ExtendedProps.Priority
	}
	return p
}

type moveRequest struct {
	Start time.Time  `json:"start" binding:"required"`
	End   *time.Time `json:"end"`
}

type signInRequest struct {
	AccessToken string `json:"accessToken" binding:"required"`
}

var errEndBeforeStart = errors.New("end must not be before start")

func (h *Handler) ListEvents(c *gin.Context) {
	var events []models.Event
	switch view := c.DefaultQuery("view", "all"); view {
	case "all":
		events = h.svc.Search("")
	case "today":
		events = h.svc.Today(h.loc)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be all or today"})
		return
	}

	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		filtered := []models.Event{}
		for _, e := range events {
			if strings.Contains(strings.ToLower(e.Title), q) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	c.JSON(http.StatusOK, events)
}

func (h *Handler) UpcomingEvents(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Upcoming(0))
}

func (h *Handler) GetEvent(c *gin.Context) {
	event, err := h.svc.Get(c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.End != nil && req.End.Before(req.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errEndBeforeStart.Error()})
		return
	}

	var (
		event models.Event
		err   error
	)
	if req.IsRecommend {
		event, err = h.svc.CreateRecommended(c.Request.Context(), req.toEvent())
	} else {
		event, err = h.svc.Create(c.Request.Context(), req.toEvent())
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) EditEvent(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := c.Param("ref")
	current, err := h.svc.Get(ref)
	if err != nil {
		h.fail(c, err)
		return
	}

	patch := req.toPatch()
	merged := current
	patch.Apply(&merged)
	if merged.End.Before(merged.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errEndBeforeStart.Error()})
		return
	}

	event, err := h.svc.Edit(c.Request.Context(), ref, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) MoveEvent(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var end time.Time
	if req.End != nil {
		end = *req.End
		if end.Before(req.Start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errEndBeforeStart.Error()})
			return
		}
	}

	event, err := h.svc.Move(c.Request.Context(), c.Param("ref"), req.Start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("ref")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Sync(c *gin.Context) {
	n, err := h.svc.Sync(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": n})
}

func (h *Handler) ExportJSON(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="events.json"`)
	c.JSON(http.StatusOK, h.svc.Events())
}

func (h *Handler) ExportICS(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="events.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(export.ICS(h.svc.Events(), h.now())))
}

func (h *Handler) Import(c *gin.Context) {
	var events []models.Event
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, e := range events {
		if !e.End.IsZero() && e.End.Before(e.Start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errEndBeforeStart.Error(), "title": e.Title})
			return
		}
	}

	if err := h.svc.Import(c.Request.Context(), events); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(events)})
}

func (h *Handler) GetSession(c *gin.Context) {
	session := h.svc.Session(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"authenticated": session != nil, "session": session})
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.svc.SignIn(c.Request.Context(), req.AccessToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "session": session})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager.ErrNotFound), errors.Is(err, manager.ErrNoSimilarEvent):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNoSession), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
