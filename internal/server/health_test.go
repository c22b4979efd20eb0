package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSearxStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"a","url":"https://a.example","engine":"google"},
			{"title":"b","url":"https://b.example","engine":"bing"},
			{"title":"c","url":"https://c.example","engine":"google"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAIStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"qwen3-30b"},{"id":"llama-3.1-8b","object":"model","owned_by":"meta"}]}`))
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" OK "}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthReportsBackends(t *testing.T) {
	searx := newSearxStub(t)
	cfg := testConfig()
	cfg.Search.SearxURL = searx.URL
	e := newTestEcho(t, cfg, &stubSearcher{})

	rec := doJSON(e, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || !resp.Services.Searxng || resp.Services.AI {
		t.Fatalf("unexpected health: %+v", resp)
	}

	cfg.Search.SearxURL = "http://127.0.0.1:1"
	cfg.AI.URL = newAIStub(t).URL
	e = newTestEcho(t, cfg, &stubSearcher{})
	rec = doJSON(e, http.MethodGet, "/api/health", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Services.Searxng || !resp.Services.AI {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestListModels(t *testing.T) {
	ai := newAIStub(t)
	e := newTestEcho(t, testConfig(), &stubSearcher{})

	rec := doJSON(e, http.MethodGet, "/api/ai-models?aiUrl="+ai.URL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp modelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != 2 {
		t.Fatalf("expected 2 models, got %+v", resp.Models)
	}
	if resp.Models[0].Object != "model" || resp.Models[0].OwnedBy != "unknown" {
		t.Fatalf("defaults not applied: %+v", resp.Models[0])
	}
	if resp.Models[1].OwnedBy != "meta" {
		t.Fatalf("unexpected owner: %+v", resp.Models[1])
	}
}

func TestListModelsFailureIsServerError(t *testing.T) {
	e := newTestEcho(t, testConfig(), &stubSearcher{})
	rec := doJSON(e, http.MethodGet, "/api/ai-models?aiUrl=http://127.0.0.1:1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || !strings.Contains(resp.Error, "list models") {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestConnectionTest(t *testing.T) {
	ai := newAIStub(t)
	e := newTestEcho(t, testConfig(), &stubSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/ai-models", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without aiUrl, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/ai-models", `{"aiUrl": "`+ai.URL+`"}`)
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "Connection successful! Models endpoint is accessible." {
		t.Fatalf("unexpected status %q", resp.Status)
	}

	rec = doJSON(e, http.MethodPost, "/api/ai-models", `{"aiUrl": "`+ai.URL+`", "testModel": "qwen3-30b"}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != `Connection successful! Model responded: "OK"` {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestSearxTest(t *testing.T) {
	searx := newSearxStub(t)
	e := newTestEcho(t, testConfig(), &stubSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/searx-test", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without searxUrl, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/searx-test", `{"searxUrl": "`+searx.URL+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "SearXNG connection successful! Found 3 test results." {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if strings.Join(resp.Engines, ",") != "bing,google" {
		t.Fatalf("expected sorted distinct engines, got %v", resp.Engines)
	}
}
