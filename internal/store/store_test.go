package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ahalansari/deep-search/internal/agent/core"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Store{DB: db}, mock
}

func TestSaveSession(t *testing.T) {
	st, mock := newMockStore(t)
	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	sess := core.Session{
		ID:         "sess-1",
		Query:      "rust async runtimes",
		MaxDepth:   3,
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		SessionResult: core.SessionResult{
			Results:             nil,
			ComprehensiveAnswer: "No initial results found.",
			SearchSummary:       core.SearchSummary{TotalResults: 0, SourceBreakdown: map[string]int{}, SearchRounds: 1},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO search_sessions`)).
		WithArgs("sess-1", "rust async runtimes", 3, 1, 0, []byte(`{}`), []byte(`[]`), "No initial results found.", sess.StartedAt, sess.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	st, mock := newMockStore(t)
	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "query", "max_depth", "search_rounds", "total_results", "source_breakdown", "results", "answer", "started_at", "finished_at"}).
		AddRow("sess-1", "tokio", 4, 3, 2, []byte(`{"google":1,"bing":1}`),
			[]byte(`[{"title":"Tokio","content":"runtime","url":"https://tokio.rs","engine":"google","score":1},{"title":"smol","content":"","url":"https://smol.rs","engine":"bing","score":0.5}]`),
			"## Overview", started, started.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM search_sessions WHERE id = $1`)).WithArgs("sess-1").WillReturnRows(rows)

	sess, err := st.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.SearchSummary.SearchRounds != 3 || sess.SearchSummary.SourceBreakdown["bing"] != 1 {
		t.Fatalf("unexpected summary %+v", sess.SearchSummary)
	}
	if len(sess.Results) != 2 || sess.Results[0].URL != "https://tokio.rs" {
		t.Fatalf("unexpected results %+v", sess.Results)
	}
	if sess.ComprehensiveAnswer != "## Overview" {
		t.Fatalf("answer = %q", sess.ComprehensiveAnswer)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM search_sessions WHERE id = $1`)).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := st.GetSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessionsClampsLimit(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "query", "max_depth", "search_rounds", "total_results", "started_at", "finished_at"}).
		AddRow("b", "second", 5, 5, 30, now, now).
		AddRow("a", "first", 2, 1, 0, now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY started_at DESC LIMIT $1`)).WithArgs(200).WillReturnRows(rows)

	list, err := st.ListSessions(context.Background(), 10000)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].SearchRounds != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"migrations/0001_search_sessions.up.sql", "migrations/0001_search_sessions.down.sql"} {
		if _, err := Migrations.ReadFile(name); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}
