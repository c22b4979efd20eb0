package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<html><head><title>Async runtimes compared</title></head><body>
<nav>menu entries</nav>
<article><h1>Async runtimes compared</h1>
<p>Tokio is a multi-threaded work-stealing runtime used by most of the Rust networking ecosystem. It ships timers, IO drivers and a task scheduler.</p>
<p>async-std mirrors the standard library API and favours familiarity. smol is a small runtime composed of independent crates.</p>
<p>Choosing between them depends on ecosystem compatibility more than raw throughput in most services.</p>
</article></body></html>`

func TestExecExtractsReadableText(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := New("DeepSearchBot/1.0", 5*time.Second, 80)
	res, err := f.Exec(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if gotUA != "DeepSearchBot/1.0" {
		t.Fatalf("user agent not forwarded: %q", gotUA)
	}
	if !strings.Contains(res.Text, "Tokio") {
		t.Fatalf("expected article text, got %q", res.Text)
	}
	if n := len([]rune(res.Text)); n > 80 {
		t.Fatalf("text not truncated: %d runes", n)
	}
	if res.Status != http.StatusOK || res.HTMLHash == "" {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
}

func TestExecReportsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	res, err := New("", time.Second, 100).Exec(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected error for 410")
	}
	if res.Status != http.StatusGone {
		t.Fatalf("status = %d", res.Status)
	}
}
