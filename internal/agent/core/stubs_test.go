package core

import (
	"context"
	"fmt"
	"sync"
)

// scriptedSearcher returns canned results per query and records every call.
type scriptedSearcher struct {
	mu       sync.Mutex
	byQuery  map[string][]SearchResult
	fallback func(query string, call int) []SearchResult
	calls    []string
}

func (s *scriptedSearcher) Search(ctx context.Context, query string, limit int) SearchOutcome {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	call := len(s.calls)
	s.mu.Unlock()

	var res []SearchResult
	if r, ok := s.byQuery[query]; ok {
		res = r
	} else if s.fallback != nil {
		res = s.fallback(query, call)
	}
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return SearchOutcome{Results: append([]SearchResult{}, res...)}
}

func (s *scriptedSearcher) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// fixedCompleter answers every prompt with the same text.
type fixedCompleter struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []completionCall
}

type completionCall struct {
	system, user string
	temperature  float64
}

func (c *fixedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) CompletionOutcome {
	c.mu.Lock()
	c.calls = append(c.calls, completionCall{systemPrompt, userPrompt, temperature})
	c.mu.Unlock()
	if c.err != nil {
		return CompletionOutcome{Err: c.err}
	}
	return CompletionOutcome{Text: c.text}
}

// alwaysIncompleteJudge suggests two fresh queries every round.
type alwaysIncompleteJudge struct {
	rounds []int
}

func (j *alwaysIncompleteJudge) Evaluate(ctx context.Context, query string, results []SearchResult, round int) Verdict {
	j.rounds = append(j.rounds, round)
	return Verdict{
		IsComplete:       false,
		Reason:           "gaps remain",
		SuggestedQueries: []string{fmt.Sprintf("%s follow-up %da", query, round), fmt.Sprintf("%s follow-up %db", query, round)},
		Confidence:       0.3,
		Source:           VerdictModel,
	}
}

type verdictJudge struct{ v Verdict }

func (j verdictJudge) Evaluate(context.Context, string, []SearchResult, int) Verdict { return j.v }

func makeResults(prefix, engine string, n int) []SearchResult {
	out := make([]SearchResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, SearchResult{
			Title:   fmt.Sprintf("%s title %d", prefix, i),
			Content: fmt.Sprintf("%s snippet %d", prefix, i),
			URL:     fmt.Sprintf("https://%s.example/%d", prefix, i),
			Engine:  engine,
			Score:   1.0 / float64(i+1),
		})
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSink) Emit(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingSink) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
