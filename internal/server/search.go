package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ahalansari/deep-search/internal/agent/core"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	deepSearchDefaultDepth = 5
	streamDefaultDepth     = 3
	streamBuffer           = 64
)

// SearchHandler exposes the adaptive and quick search operations.
type SearchHandler struct {
	Service        *core.Service
	StreamEnabled  bool
	RequestTimeout time.Duration
	logger         *log.Logger
}

type deepSearchRequest struct {
	Query    string        `json:"query"`
	MaxDepth *int          `json:"maxDepth"`
	Settings core.Settings `json:"settings"`
}

type deepSearchResponse struct {
	Success bool               `json:"success"`
	Data    core.SessionResult `json:"data"`
}

type quickSearchRequest struct {
	Query    string        `json:"query"`
	Settings core.Settings `json:"settings"`
}

type quickSearchResponse struct {
	Success bool                `json:"success"`
	Results []core.SearchResult `json:"results"`
	Answer  string              `json:"answer"`
}

// streamEvent is one SSE data frame of /api/search-stream.
type streamEvent struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId,omitempty"`
	Message   string              `json:"message,omitempty"`
	Data      *core.SessionResult `json:"data,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.POST("/deep-search", h.deepSearch)
	g.POST("/search", h.quickSearch)
	if h.StreamEnabled {
		g.POST("/search-stream", h.searchStream)
	}
}

var httpLogger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

func (h *SearchHandler) log() *log.Logger {
	if h.logger == nil {
		return httpLogger
	}
	return h.logger
}

func (h *SearchHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.RequestTimeout > 0 {
		return context.WithTimeout(ctx, h.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func isValidation(err error) bool {
	return errors.Is(err, core.ErrEmptyQuery) || errors.Is(err, core.ErrInvalidDepth)
}

func (h *SearchHandler) deepSearch(c echo.Context) error {
	var req deepSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	depth := deepSearchDefaultDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	svc := h.Service.WithSettings(req.Settings)
	h.log().Printf("deep search request: query=%q max_depth=%d settings=%t", req.Query, depth, !req.Settings.IsZero())
	if err := svc.ValidateRequest(req.Query, depth); err != nil {
		return badRequest(err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()
	sess, err := svc.RunSession(ctx, core.SessionRequest{Query: req.Query, MaxDepth: depth}, core.NopProgress{})
	if err != nil {
		if isValidation(err) {
			return badRequest(err)
		}
		return err
	}
	return c.JSON(http.StatusOK, deepSearchResponse{Success: true, Data: sess.SessionResult})
}

func (h *SearchHandler) quickSearch(c echo.Context) error {
	var req quickSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()
	results, answer, err := h.Service.WithSettings(req.Settings).QuickAnswer(ctx, req.Query)
	if err != nil {
		if isValidation(err) {
			return badRequest(err)
		}
		return err
	}
	return c.JSON(http.StatusOK, quickSearchResponse{Success: true, Results: results, Answer: answer})
}

// sseWriter serialises frames to the response and turns every write after
// the client went away into a no-op.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	gone    bool
}

func (s *sseWriter) send(ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.gone = true
		return
	}
	s.flusher.Flush()
}

func (s *sseWriter) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gone
}

func (s *sseWriter) disconnect() {
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()
}

func (h *SearchHandler) searchStream(c echo.Context) error {
	var req deepSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	depth := streamDefaultDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	svc := h.Service.WithSettings(req.Settings)
	if err := svc.ValidateRequest(req.Query, depth); err != nil {
		return badRequest(err)
	}

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	out := &sseWriter{w: resp, flusher: flusher}
	sessionID := uuid.NewString()
	out.send(streamEvent{Type: "session", SessionID: sessionID})

	progress := core.NewChannelProgress(streamBuffer, nil)
	done := make(chan streamEvent, 1)
	// the session keeps running after the client disconnects
	runCtx, cancel := h.withTimeout(context.WithoutCancel(c.Request().Context()))
	go func() {
		defer cancel()
		defer progress.Close()
		sess, err := svc.RunSession(runCtx, core.SessionRequest{ID: sessionID, Query: req.Query, MaxDepth: depth}, progress)
		if err != nil {
			done <- streamEvent{Type: "error", Error: err.Error()}
			return
		}
		done <- streamEvent{Type: "complete", Data: &sess.SessionResult}
	}()

	clientGone := c.Request().Context().Done()
	for msg := range progress.C() {
		select {
		case <-clientGone:
			out.disconnect()
			clientGone = nil
		default:
		}
		out.send(streamEvent{Type: "progress", Message: msg})
	}
	ev := <-done
	out.send(ev)
	if out.closed() {
		h.log().Printf("stream client for session %s disconnected before completion", sessionID)
	}
	return nil
}
