package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func heuristicCorpus() []SearchResult {
	results := makeResults("doc", "google", 15)
	results[3].Content = "The most recent release changed the scheduler."
	results[7].Content = strings.Repeat("Deep dive into the technical internals of the runtime. ", 5)
	return results
}

func TestHeuristicVerdictCompleteAtRoundThree(t *testing.T) {
	v := HeuristicVerdict("rust async", heuristicCorpus(), 3, 2026)
	if !v.IsComplete || v.Confidence != 0.7 {
		t.Fatalf("expected complete verdict with confidence 0.7, got %+v", v)
	}
	if len(v.SuggestedQueries) != 0 {
		t.Fatalf("complete verdict should not suggest queries: %v", v.SuggestedQueries)
	}
	if v.Source != VerdictHeuristic {
		t.Fatalf("source = %s", v.Source)
	}
}

func TestHeuristicVerdictIncomplete(t *testing.T) {
	cases := map[string]struct {
		results []SearchResult
		round   int
	}{
		"early round":   {heuristicCorpus(), 2},
		"few results":   {heuristicCorpus()[:14], 3},
		"nothing fresh": {makeResults("doc", "google", 20), 4},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := HeuristicVerdict("rust async", tc.results, tc.round, 2026)
			if v.IsComplete || v.Confidence != 0.4 {
				t.Fatalf("expected incomplete verdict with confidence 0.4, got %+v", v)
			}
			want := []string{"rust async latest developments 2026", "rust async technical implementation", "rust async best practices"}
			if strings.Join(v.SuggestedQueries, "|") != strings.Join(want, "|") {
				t.Fatalf("suggested = %v", v.SuggestedQueries)
			}
		})
	}
}

func TestHeuristicTechnicalCheckIsCaseSensitive(t *testing.T) {
	results := heuristicCorpus()
	results[7].Content = strings.ToUpper(results[7].Content)
	if v := HeuristicVerdict("q", results, 3, 2026); v.IsComplete {
		t.Fatalf("upper-case technical content should not count")
	}
}

func TestEvaluateEmptyResultsSkipsModel(t *testing.T) {
	c := &fixedCompleter{text: `{"isComplete": true}`}
	j := NewCompletenessJudge(c, Prompter{}, nil, nil)
	v := j.Evaluate(context.Background(), "go generics", nil, 1)
	if v.IsComplete || v.Confidence != 0 || v.Source != VerdictEmpty {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if got := strings.Join(v.SuggestedQueries, "|"); got != "go generics basics|go generics overview" {
		t.Fatalf("suggested = %q", got)
	}
	if len(c.calls) != 0 {
		t.Fatalf("completion should not be called for empty results")
	}
}

func TestEvaluateFallsBackOnGarbage(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	for name, c := range map[string]*fixedCompleter{
		"prose":    {text: "I think we are done here."},
		"degraded": {err: errors.New("timeout")},
		"bad type": {text: `{"isComplete": "yes", "confidence": 0.9}`},
	} {
		t.Run(name, func(t *testing.T) {
			j := NewCompletenessJudge(c, Prompter{Now: now}, nil, nil)
			v := j.Evaluate(context.Background(), "q", heuristicCorpus(), 3)
			if v.Source != VerdictHeuristic || !v.IsComplete || v.Confidence != 0.7 {
				t.Fatalf("expected heuristic completion, got %+v", v)
			}
		})
	}
}

func TestEvaluateUsesLowTemperatureAndDigest(t *testing.T) {
	c := &fixedCompleter{text: `{"isComplete": false, "reason": "need benchmarks", "suggestedQueries": ["a","b"], "confidence": 0.2}`}
	j := NewCompletenessJudge(c, Prompter{}, nil, nil)
	v := j.Evaluate(context.Background(), "tokio vs async-std", makeResults("r", "bing", 12), 2)
	if v.Source != VerdictModel || v.Reason != "need benchmarks" || len(v.SuggestedQueries) != 2 {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if len(c.calls) != 1 || c.calls[0].temperature != 0.1 {
		t.Fatalf("expected a single call at temperature 0.1, got %+v", c.calls)
	}
	user := c.calls[0].user
	if !strings.Contains(user, "(Round 2)") || !strings.Contains(user, "r title 9: r snippet 9") {
		t.Fatalf("judge prompt missing round or digest:\n%s", user)
	}
	if strings.Contains(user, "r title 10") {
		t.Fatalf("digest should only include the first 10 results")
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	cases := map[string]float64{
		`{"isComplete": false, "confidence": 1.7}`:   1.0,
		`{"isComplete": false, "confidence": -0.3}`:  0.0,
		`{"isComplete": true, "confidence": "high"}`: 0.5,
		`{"isComplete": true}`:                       0.5,
		`{"isComplete": true, "confidence": 0.85}`:   0.85,
		`{"isComplete": true, "confidence": null}`:   0.5,
	}
	for in, want := range cases {
		v, err := ParseVerdict(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if v.Confidence != want {
			t.Fatalf("%s: confidence = %v want %v", in, v.Confidence, want)
		}
	}
}

func TestParseVerdictExtractsBalancedObject(t *testing.T) {
	text := "<think>maybe {isComplete: true}</think>\nHere is my analysis:\n" +
		`{"isComplete": false, "reason": "missing {benchmarks}", "suggestedQueries": ["x bench", 3, " ", "x perf", "x mem", "x cpu"]}` +
		"\nLet me know if {you} need more."
	v, err := ParseVerdict(text)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.IsComplete || v.Reason != "missing {benchmarks}" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if got := strings.Join(v.SuggestedQueries, "|"); got != "x bench|x perf|x mem" {
		t.Fatalf("suggested = %q", got)
	}
}

func TestParseVerdictRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"no json at all",
		`{"isComplete": true`,
		`{"reason": "forgot the flag"}`,
		`{"isComplete": null}`,
		`{"isComplete": 1}`,
	} {
		if _, err := ParseVerdict(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestParseVerdictDefaultReason(t *testing.T) {
	v, err := ParseVerdict(`{"isComplete": true, "reason": ""}`)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Reason != "AI analysis completed" || v.SuggestedQueries == nil {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestDigestTruncates(t *testing.T) {
	results := makeResults("long", "ddg", 3)
	for i := range results {
		results[i].Content = strings.Repeat("é", 1500)
	}
	if n := len([]rune(Digest(results))); n != 2000 {
		t.Fatalf("digest runes = %d", n)
	}
}
