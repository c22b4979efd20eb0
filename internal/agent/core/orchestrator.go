package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ahalansari/deep-search/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("deep-search/internal/agent/core")

const (
	defaultInitialLimit   = 8
	defaultFollowupLimit  = 6
	followupsPerVerdict   = 2
	defaultRateLimitDelay = time.Second
)

// Orchestrator runs the adaptive search loop. It holds no per-session state
// and is safe for concurrent sessions.
type Orchestrator struct {
	searcher    Searcher
	judge       Judge
	synthesizer *Synthesizer

	initialLimit  int
	followupLimit int
	delay         time.Duration

	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimits sets the result limits of the initial and follow-up searches.
func WithLimits(initial, followup int) Option {
	return func(o *Orchestrator) {
		if initial > 0 {
			o.initialLimit = initial
		}
		if followup > 0 {
			o.followupLimit = followup
		}
	}
}

// WithRateLimitDelay sets the pause before each follow-up search.
func WithRateLimitDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

func NewOrchestrator(s Searcher, j Judge, synth *Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher:      s,
		judge:         j,
		synthesizer:   synth,
		initialLimit:  defaultInitialLimit,
		followupLimit: defaultFollowupLimit,
		delay:         defaultRateLimitDelay,
		logger:        log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one session. It never returns an error: backend failures
// degrade to empty results, heuristic verdicts or a sentinel answer.
// The number of searches performed never exceeds maxDepth.
func (o *Orchestrator) Run(ctx context.Context, query string, maxDepth int, sink ProgressSink) SessionResult {
	if sink == nil {
		sink = NopProgress{}
	}
	ctx, span := tracer.Start(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(attribute.String("query", query), attribute.Int("max_depth", maxDepth))
	start := time.Now()

	round := 1
	sink.Emit(fmt.Sprintf("Starting AI-driven adaptive search for: %q", query))
	sink.Emit(fmt.Sprintf("Round %d: Initial search", round))

	initial := o.searcher.Search(ctx, query, o.initialLimit)
	if len(initial.Results) == 0 {
		o.logger.Printf("no initial results for %q", query)
		o.telemetry.RecordSession("no_results", round, 0, time.Since(start))
		return SessionResult{
			Results:             []SearchResult{},
			ComprehensiveAnswer: NoInitialResultsAnswer,
			SearchSummary:       SearchSummary{TotalResults: 0, SourceBreakdown: map[string]int{}, SearchRounds: round},
		}
	}

	results := append([]SearchResult(nil), initial.Results...)
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.URL] = struct{}{}
	}
	sink.Emit(fmt.Sprintf("Found %d results", len(initial.Results)))

	keepGoing := true
	for keepGoing && round < maxDepth {
		verdict := o.judge.Evaluate(ctx, query, results, round)
		if verdict.IsComplete {
			sink.Emit("AI determined search is complete: " + verdict.Reason)
			break
		}
		if len(verdict.SuggestedQueries) == 0 {
			sink.Emit("AI found no further search directions")
			break
		}

		followups := verdict.SuggestedQueries
		if len(followups) > followupsPerVerdict {
			followups = followups[:followupsPerVerdict]
		}
		for _, q := range followups {
			if round >= maxDepth {
				break
			}
			sink.Emit(fmt.Sprintf("Round %d: AI-suggested search - %q", round+1, q))
			if err := o.wait(ctx); err != nil {
				o.logger.Printf("session for %q interrupted: %v", query, err)
				keepGoing = false
				break
			}
			round++
			out := o.searcher.Search(ctx, q, o.followupLimit)
			if len(out.Results) == 0 {
				sink.Emit("No new results found")
				continue
			}
			added := 0
			for _, r := range out.Results {
				if _, dup := seen[r.URL]; dup {
					continue
				}
				seen[r.URL] = struct{}{}
				results = append(results, r)
				added++
			}
			sink.Emit(fmt.Sprintf("Found %d new results", added))
		}
	}

	if round >= maxDepth {
		sink.Emit(fmt.Sprintf("Reached maximum search depth (%d)", maxDepth))
	}

	sink.Emit(fmt.Sprintf("AI analyzing %d total results", len(results)))
	answer := o.synthesizer.Synthesize(ctx, query, results, round)

	summary := SearchSummary{
		TotalResults:    len(results),
		SourceBreakdown: SourceBreakdown(results),
		SearchRounds:    round,
	}
	sink.Emit(fmt.Sprintf("Adaptive search completed with %d rounds", round))

	span.SetAttributes(attribute.Int("rounds", round), attribute.Int("results", len(results)))
	o.telemetry.RecordSession("answered", round, len(results), time.Since(start))
	o.logger.Printf("session for %q finished: rounds=%d results=%d took=%s", query, round, len(results), time.Since(start).Round(time.Millisecond))

	return SessionResult{Results: results, ComprehensiveAnswer: answer, SearchSummary: summary}
}

// QuickSearch runs a single search without the judge loop.
func (o *Orchestrator) QuickSearch(ctx context.Context, query string, limit int) []SearchResult {
	return o.searcher.Search(ctx, query, limit).Results
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
