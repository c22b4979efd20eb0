package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/ahalansari/deep-search/internal/agent/telemetry"
	"github.com/google/uuid"
)

const streamBuffer = 64

// Settings are per-request overrides of the backend configuration. Zero
// values keep the configured setting.
type Settings struct {
	AIURL              string   `json:"aiUrl,omitempty"`
	SearxURL           string   `json:"searxUrl,omitempty"`
	SelectedModel      string   `json:"selectedModel,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxTokens          *int     `json:"maxTokens,omitempty"`
	Timeout            int      `json:"timeout,omitempty"` // milliseconds
	SystemPromptPrefix string   `json:"systemPromptPrefix,omitempty"`
}

// IsZero reports whether s overrides nothing.
func (s Settings) IsZero() bool {
	return s == Settings{}
}

// Apply returns cfg with the overrides applied.
func (s Settings) Apply(cfg config.Config) config.Config {
	if v := strings.TrimSpace(s.AIURL); v != "" {
		cfg.AI.URL = v
	}
	if v := strings.TrimSpace(s.SearxURL); v != "" {
		cfg.Search.SearxURL = v
	}
	if v := strings.TrimSpace(s.SelectedModel); v != "" {
		cfg.AI.Model = v
	}
	if s.Temperature != nil {
		cfg.AI.Temperature = *s.Temperature
	}
	if s.MaxTokens != nil && *s.MaxTokens != 0 {
		cfg.AI.MaxTokens = *s.MaxTokens
	}
	if s.Timeout > 0 {
		cfg.AI.Timeout = time.Duration(s.Timeout) * time.Millisecond
	}
	if s.SystemPromptPrefix != "" {
		cfg.AI.SystemPromptPrefix = s.SystemPromptPrefix
	}
	cfg.Search = cfg.Search.Normalize()
	cfg.AI = cfg.AI.Normalize()
	return cfg
}

// SessionRequest starts one adaptive search session.
type SessionRequest struct {
	ID       string
	Query    string
	MaxDepth int
}

// Service is the entry point used by the HTTP layer and the CLI.
type Service struct {
	cfg       config.Config
	telemetry *telemetry.Telemetry
	archive   SessionArchive
	stream    ProgressStream
	fetcher   PageFetcher
	clients   *ClientPool
	now       func() time.Time

	// fixed backends bypass construction from cfg
	fixedSearcher  Searcher
	fixedCompleter Completer

	searcher    Searcher
	judge       Judge
	synthesizer *Synthesizer
	orch        *Orchestrator
	prober      *Prober

	logger *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithArchive stores every finished session.
func WithArchive(a SessionArchive) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// WithProgressStream republishes progress on an external stream.
func WithProgressStream(p ProgressStream) ServiceOption {
	return func(s *Service) { s.stream = p }
}

func WithServiceTelemetry(t *telemetry.Telemetry) ServiceOption {
	return func(s *Service) { s.telemetry = t }
}

// WithPageFetcher enables enrichment of thin search snippets.
func WithPageFetcher(f PageFetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithBackends replaces the HTTP search and completion clients.
func WithBackends(searcher Searcher, completer Completer) ServiceOption {
	return func(s *Service) {
		s.fixedSearcher = searcher
		s.fixedCompleter = completer
	}
}

// WithClock sets the clock used for prompts and session timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(cfg config.Config, opts ...ServiceOption) *Service {
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.clients = NewClientPool(cfg.Breaker)
	s.build()
	return s
}

func (s *Service) build() {
	s.logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	searchLog := log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	aiLog := log.New(log.Writer(), "[AI] ", log.LstdFlags)
	judgeLog := log.New(log.Writer(), "[JUDGE] ", log.LstdFlags)
	orchLog := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)

	s.searcher = s.fixedSearcher
	if s.searcher == nil {
		search := s.cfg.Search.Normalize()
		sc := NewSearchClient(search, s.cfg.Breaker, searchLog, s.telemetry).
			WithHTTPClient(s.clients.Get("searxng", search.SearxURL, search.Timeout, searchLog))
		if s.fetcher != nil && s.cfg.Fetch.Enabled {
			sc.WithFetcher(s.fetcher, s.cfg.Fetch.TopK)
		}
		s.searcher = sc
	}
	completer := s.fixedCompleter
	if completer == nil {
		ai := s.cfg.AI.Normalize()
		cc := NewCompletionClient(ai, s.cfg.Breaker, aiLog, s.telemetry).
			WithHTTPClient(s.clients.Get("completion", ai.URL, ai.Timeout, aiLog))
		cc.SetDebug(s.cfg.General.DebugEnabled())
		completer = cc
	}

	prompts := Prompter{Prefix: s.cfg.AI.SystemPromptPrefix, Now: s.now}
	s.judge = NewCompletenessJudge(completer, prompts, judgeLog, s.telemetry)
	s.synthesizer = NewSynthesizer(completer, prompts, s.cfg.AI.Temperature)
	s.orch = NewOrchestrator(s.searcher, s.judge, s.synthesizer,
		WithLimits(s.cfg.Search.InitialLimit, s.cfg.Search.FollowupLimit),
		WithRateLimitDelay(s.cfg.Search.RateLimitDelay),
		WithLogger(orchLog),
		WithTelemetry(s.telemetry),
	)
	s.prober = NewProber(s.cfg.Search.UserAgent)
}

// WithSettings returns a Service using the overridden backend settings.
// Archive, stream, telemetry and backend breakers are shared with s.
func (s *Service) WithSettings(settings Settings) *Service {
	if settings.IsZero() {
		return s
	}
	cp := &Service{
		cfg:            settings.Apply(s.cfg),
		telemetry:      s.telemetry,
		archive:        s.archive,
		stream:         s.stream,
		fetcher:        s.fetcher,
		clients:        s.clients,
		now:            s.now,
		fixedSearcher:  s.fixedSearcher,
		fixedCompleter: s.fixedCompleter,
	}
	cp.build()
	return cp
}

// Config returns the effective configuration.
func (s *Service) Config() config.Config { return s.cfg }

// Prober returns the connectivity checker.
func (s *Service) Prober() *Prober { return s.prober }

// ValidateRequest checks the session boundary rules.
func (s *Service) ValidateRequest(query string, maxDepth int) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	lo, hi := s.cfg.Session.MinMaxDepth, s.cfg.Session.MaxMaxDepth
	if maxDepth < lo || maxDepth > hi {
		return fmt.Errorf("%w: must be between %d and %d", ErrInvalidDepth, lo, hi)
	}
	return nil
}

// RunSession validates req and runs one adaptive search session. The only
// errors returned are validation errors.
func (s *Service) RunSession(ctx context.Context, req SessionRequest, sink ProgressSink) (Session, error) {
	if req.MaxDepth == 0 {
		req.MaxDepth = s.cfg.Session.DefaultMaxDepth
	}
	if err := s.ValidateRequest(req.Query, req.MaxDepth); err != nil {
		return Session{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	sess := Session{ID: req.ID, Query: req.Query, MaxDepth: req.MaxDepth, StartedAt: s.now().UTC()}
	s.logger.Printf("session %s started: query=%q max_depth=%d", sess.ID, sess.Query, sess.MaxDepth)

	var streamSink *StreamProgress
	if s.stream != nil {
		streamSink = NewStreamProgress(context.WithoutCancel(ctx), s.stream, sess.ID, streamBuffer, s.telemetry.ProgressDropped, s.logger)
	}
	var progress ProgressSink = NewMultiProgress(s.logger, sink, optionalSink(streamSink))

	sess.SessionResult = s.orch.Run(ctx, req.Query, req.MaxDepth, progress)
	sess.FinishedAt = s.now().UTC()

	// persistence outlives a cancelled request
	bg := context.WithoutCancel(ctx)
	if streamSink != nil {
		streamSink.Close()
		if err := s.stream.Publish(bg, sess.ID, EventComplete, sess); err != nil {
			s.logger.Printf("publish completion for %s: %v", sess.ID, err)
		}
	}
	if s.archive != nil {
		if err := s.archive.SaveSession(bg, sess); err != nil {
			s.logger.Printf("archive session %s: %v", sess.ID, err)
		}
	}
	return sess, nil
}

func optionalSink(p *StreamProgress) ProgressSink {
	if p == nil {
		return nil
	}
	return p
}

// QuickSearch runs a single search without the judge loop.
func (s *Service) QuickSearch(ctx context.Context, query string) []SearchResult {
	return s.orch.QuickSearch(ctx, query, s.cfg.Search.QuickLimit)
}

// Answer asks the completion backend to answer query from searchContext.
func (s *Service) Answer(ctx context.Context, query, searchContext string) string {
	return s.synthesizer.Answer(ctx, query, searchContext)
}

// QuickAnswer runs QuickSearch and answers from the "title: content" lines
// of its results.
func (s *Service) QuickAnswer(ctx context.Context, query string) ([]SearchResult, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", ErrEmptyQuery
	}
	results := s.QuickSearch(ctx, query)
	if len(results) == 0 {
		return []SearchResult{}, NoResultsAnswer, nil
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Title+": "+r.Content)
	}
	return results, s.Answer(ctx, query, strings.Join(lines, "\n")), nil
}
