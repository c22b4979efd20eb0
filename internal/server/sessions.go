package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahalansari/deep-search/internal/store"
	"github.com/labstack/echo/v4"
)

// SessionsHandler serves the archive of finished sessions.
type SessionsHandler struct {
	Store *store.Store
}

type sessionListResponse struct {
	Success  bool                   `json:"success"`
	Sessions []store.SessionSummary `json:"sessions"`
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

func (h *SessionsHandler) available() error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session archive not configured")
	}
	return nil
}

func (h *SessionsHandler) list(c echo.Context) error {
	if err := h.available(); err != nil {
		return err
	}
	limit := 0
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	items, err := h.Store.ListSessions(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []store.SessionSummary{}
	}
	return c.JSON(http.StatusOK, sessionListResponse{Success: true, Sessions: items})
}

func (h *SessionsHandler) get(c echo.Context) error {
	if err := h.available(); err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id required")
	}
	sess, err := h.Store.GetSession(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": sess})
}
