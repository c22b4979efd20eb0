package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SearchResult is a single normalized hit returned by the search backend.
// The URL is the identity key within a session.
type SearchResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Engine  string  `json:"engine"`
	Score   float64 `json:"score"`
}

// VerdictSource records which path produced a Verdict.
type VerdictSource string

const (
	VerdictEmpty     VerdictSource = "empty"
	VerdictModel     VerdictSource = "model"
	VerdictHeuristic VerdictSource = "heuristic"
)

// Verdict is the judge's decision for one round.
type Verdict struct {
	IsComplete       bool          `json:"isComplete"`
	Reason           string        `json:"reason"`
	SuggestedQueries []string      `json:"suggestedQueries"`
	Confidence       float64       `json:"confidence"`
	MissingAspects   []string      `json:"missingAspects,omitempty"`
	Source           VerdictSource `json:"-"`
}

// SearchSummary is derived once at the end of a session.
type SearchSummary struct {
	TotalResults    int            `json:"totalResults"`
	SourceBreakdown map[string]int `json:"sourceBreakdown"`
	SearchRounds    int            `json:"searchRounds"`
}

// SessionResult is what one adaptive search session produces.
type SessionResult struct {
	Results             []SearchResult `json:"results"`
	ComprehensiveAnswer string         `json:"comprehensiveAnswer"`
	SearchSummary       SearchSummary  `json:"searchSummary"`
}

// Session wraps a SessionResult with the identity and timing of the run.
type Session struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	MaxDepth   int       `json:"maxDepth"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	SessionResult
}

// SearchOutcome is the result of one search round-trip. A failed call is
// represented by Err with an empty result set; it is never raised.
type SearchOutcome struct {
	Results []SearchResult
	Err     error
}

// Degraded reports whether the call failed and fell back to no results.
func (o SearchOutcome) Degraded() bool { return o.Err != nil }

// CompletionOutcome is the result of one completion round-trip.
type CompletionOutcome struct {
	Text string
	Err  error
}

// Degraded reports whether the call failed.
func (o CompletionOutcome) Degraded() bool { return o.Err != nil }

// Content returns the completion text, or the failure sentinel when the call
// did not succeed.
func (o CompletionOutcome) Content() string {
	if o.Err != nil {
		return fmt.Sprintf("%s%v", CompletionFailurePrefix, o.Err)
	}
	return o.Text
}

// CompletionFailurePrefix starts every sentinel string produced by a failed completion.
const CompletionFailurePrefix = "AI response failed: "

// Searcher runs one query against the search backend.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) SearchOutcome
}

// Completer runs one chat completion with a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) CompletionOutcome
}

// Judge decides whether the accumulated evidence answers the query.
type Judge interface {
	Evaluate(ctx context.Context, query string, results []SearchResult, round int) Verdict
}

// SessionArchive persists finished sessions.
type SessionArchive interface {
	SaveSession(ctx context.Context, s Session) error
}

// ProgressStream publishes session events to an external transport.
type ProgressStream interface {
	Publish(ctx context.Context, sessionID, eventType string, payload any) error
}

// Boundary validation errors returned by Service.RunSession.
var (
	ErrEmptyQuery   = errors.New("query is required and must be a string")
	ErrInvalidDepth = errors.New("max depth out of range")
)

// Fixed texts shared by the loop and the HTTP layer.
const (
	NoInitialResultsAnswer = "No initial results found."
	NoResultsAnswer        = "No results found for your query."
	NoContextText          = "No search results available."
)
