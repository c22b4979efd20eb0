package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/ahalansari/deep-search/internal/agent/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	judgeTemperature   = 0.1
	digestResults      = 10
	digestMaxRunes     = 2000
	maxSuggestedQuery  = 3
	defaultJudgeReason = "AI analysis completed"

	heuristicMinResults    = 15
	heuristicMinRound      = 3
	heuristicTechnicalSize = 200
)

var errNoVerdictJSON = errors.New("no verdict object in response")

// CompletenessJudge asks the completion backend whether the accumulated
// results answer the query and falls back to a fixed heuristic when the
// model's answer is unusable.
type CompletenessJudge struct {
	completer Completer
	prompts   Prompter
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

func NewCompletenessJudge(c Completer, prompts Prompter, logger *log.Logger, tele *telemetry.Telemetry) *CompletenessJudge {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CompletenessJudge{completer: c, prompts: prompts, logger: logger, telemetry: tele}
}

// Evaluate never fails; every error path ends in the heuristic verdict.
func (j *CompletenessJudge) Evaluate(ctx context.Context, query string, results []SearchResult, round int) Verdict {
	ctx, span := tracer.Start(ctx, "judge.evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int("round", round), attribute.Int("results", len(results)))

	v := j.evaluate(ctx, query, results, round)
	span.SetAttributes(attribute.String("verdict.source", string(v.Source)), attribute.Bool("verdict.complete", v.IsComplete))
	j.telemetry.RecordVerdict(string(v.Source), v.IsComplete)
	return v
}

func (j *CompletenessJudge) evaluate(ctx context.Context, query string, results []SearchResult, round int) Verdict {
	if len(results) == 0 {
		return Verdict{
			IsComplete:       false,
			Reason:           "No results found yet",
			SuggestedQueries: []string{query + " basics", query + " overview"},
			Confidence:       0,
			Source:           VerdictEmpty,
		}
	}

	prompt := j.prompts.Judge(query, Digest(results), round)
	out := j.completer.Complete(ctx, j.prompts.System(""), prompt, judgeTemperature)
	if out.Degraded() {
		j.logger.Printf("judge round %d: completion degraded, using heuristic: %v", round, out.Err)
		return HeuristicVerdict(query, results, round, j.prompts.now().Year())
	}
	v, err := ParseVerdict(out.Text)
	if err != nil {
		j.logger.Printf("judge round %d: %v, using heuristic", round, err)
		return HeuristicVerdict(query, results, round, j.prompts.now().Year())
	}
	return v
}

// Digest renders the first results as "title: content" lines, bounded in size.
func Digest(results []SearchResult) string {
	n := len(results)
	if n > digestResults {
		n = digestResults
	}
	lines := make([]string, 0, n)
	for _, r := range results[:n] {
		lines = append(lines, r.Title+": "+r.Content)
	}
	return truncateRunes(strings.Join(lines, "\n"), digestMaxRunes)
}

// HeuristicVerdict is the deterministic fallback used when the model's
// verdict cannot be trusted.
func HeuristicVerdict(query string, results []SearchResult, round, year int) Verdict {
	hasEnough := len(results) >= heuristicMinResults
	hasRecent := false
	hasTechnical := false
	for _, r := range results {
		lower := strings.ToLower(r.Content)
		if strings.Contains(lower, "2024") || strings.Contains(lower, "recent") || strings.Contains(lower, "latest") {
			hasRecent = true
		}
		if utf8.RuneCountInString(r.Content) > heuristicTechnicalSize &&
			(strings.Contains(r.Content, "how") || strings.Contains(r.Content, "technical") || strings.Contains(r.Content, "implementation")) {
			hasTechnical = true
		}
	}

	if hasEnough && hasRecent && hasTechnical && round >= heuristicMinRound {
		return Verdict{
			IsComplete:       true,
			Reason:           "Heuristic analysis suggests sufficient information gathered",
			SuggestedQueries: []string{},
			Confidence:       0.7,
			Source:           VerdictHeuristic,
		}
	}
	return Verdict{
		IsComplete: false,
		Reason:     "Heuristic analysis suggests more information needed",
		SuggestedQueries: []string{
			fmt.Sprintf("%s latest developments %d", query, year),
			query + " technical implementation",
			query + " best practices",
		},
		Confidence: 0.4,
		Source:     VerdictHeuristic,
	}
}

type rawVerdict struct {
	IsComplete       json.RawMessage `json:"isComplete"`
	Reason           json.RawMessage `json:"reason"`
	SuggestedQueries json.RawMessage `json:"suggestedQueries"`
	Confidence       json.RawMessage `json:"confidence"`
	MissingAspects   json.RawMessage `json:"missingAspects"`
}

// ParseVerdict reads a model verdict. The whole response is tried as JSON
// first, then the first brace-balanced object in it. isComplete must be a
// JSON boolean.
func ParseVerdict(text string) (Verdict, error) {
	text = StripThinkBlocks(text)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		span, ok := firstObject(text)
		if !ok {
			return Verdict{}, errNoVerdictJSON
		}
		raw = rawVerdict{}
		if err := json.Unmarshal([]byte(span), &raw); err != nil {
			return Verdict{}, fmt.Errorf("parse verdict: %w", err)
		}
	}

	complete, ok := jsonBool(raw.IsComplete)
	if !ok {
		return Verdict{}, errors.New("verdict isComplete is not a boolean")
	}

	v := Verdict{
		IsComplete:       complete,
		Reason:           defaultJudgeReason,
		SuggestedQueries: stringList(raw.SuggestedQueries, maxSuggestedQuery),
		Confidence:       0.5,
		MissingAspects:   stringList(raw.MissingAspects, 0),
		Source:           VerdictModel,
	}
	var reason string
	if json.Unmarshal(raw.Reason, &reason) == nil && strings.TrimSpace(reason) != "" {
		v.Reason = reason
	}
	if c, ok := jsonNumber(raw.Confidence); ok {
		v.Confidence = clamp01(c)
	}
	return v, nil
}

// firstObject returns the first top-level {...} span, skipping braces inside
// JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func jsonBool(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func jsonNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// stringList keeps the non-blank string entries of a JSON array, up to max
// entries when limit > 0.
func stringList(raw json.RawMessage, limit int) []string {
	out := []string{}
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		s, ok := it.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(s))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
