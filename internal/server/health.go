package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ahalansari/deep-search/internal/agent/core"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports backend reachability and runs connection tests
// against arbitrary backend URLs.
type HealthHandler struct {
	Service *core.Service
	Started time.Time
}

type healthServices struct {
	Searxng bool `json:"searxng"`
	AI      bool `json:"ai"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    float64        `json:"uptime"`
	Services  healthServices `json:"services"`
}

type modelsResponse struct {
	Success bool             `json:"success"`
	Models  []core.ModelInfo `json:"models"`
}

type connectionTestRequest struct {
	AIURL     string `json:"aiUrl"`
	TestModel string `json:"testModel"`
}

type searxTestRequest struct {
	SearxURL string `json:"searxUrl"`
}

type statusResponse struct {
	Success bool     `json:"success"`
	Status  string   `json:"status"`
	Engines []string `json:"engines,omitempty"`
}

func (h *HealthHandler) Register(g *echo.Group) {
	g.GET("/health", h.health)
	g.GET("/ai-models", h.listModels)
	g.POST("/ai-models", h.testModel)
	g.POST("/searx-test", h.searxTest)
}

// health probes both backends concurrently. The status only depends on the
// search backend; the completion backend is reported but optional.
func (h *HealthHandler) health(c echo.Context) error {
	ctx := c.Request().Context()
	cfg := h.Service.Config()
	prober := h.Service.Prober()

	var (
		wg       sync.WaitGroup
		services healthServices
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		services.Searxng = prober.ProbeSearx(ctx, cfg.Search.SearxURL) == nil
	}()
	go func() {
		defer wg.Done()
		services.AI = prober.ProbeAI(ctx, cfg.AI.URL) == nil
	}()
	wg.Wait()

	status := "degraded"
	if services.Searxng {
		status = "healthy"
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.Started).Seconds(),
		Services:  services,
	})
}

func (h *HealthHandler) listModels(c echo.Context) error {
	aiURL := strings.TrimSpace(c.QueryParam("aiUrl"))
	if aiURL == "" {
		aiURL = h.Service.Config().AI.URL
	}
	models, err := h.Service.Prober().ListModels(c.Request().Context(), aiURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, modelsResponse{Success: true, Models: models})
}

func (h *HealthHandler) testModel(c echo.Context) error {
	var req connectionTestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if strings.TrimSpace(req.AIURL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "AI URL is required for testing")
	}
	status, err := h.Service.Prober().TestModel(c.Request().Context(), req.AIURL, strings.TrimSpace(req.TestModel))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Success: true, Status: status})
}

func (h *HealthHandler) searxTest(c echo.Context) error {
	var req searxTestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if strings.TrimSpace(req.SearxURL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "SearX URL is required for testing")
	}
	res, err := h.Service.Prober().TestSearx(c.Request().Context(), req.SearxURL)
	if err != nil {
		return err
	}
	engines := res.Engines
	if engines == nil {
		engines = []string{}
	}
	return c.JSON(http.StatusOK, statusResponse{
		Success: true,
		Status:  fmt.Sprintf("SearXNG connection successful! Found %d test results.", res.ResultCount),
		Engines: engines,
	})
}
