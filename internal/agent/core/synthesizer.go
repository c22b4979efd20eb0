package core

import "context"

const synthesisTemperature = 0.3

// Synthesizer produces the final answer text. Its output is never parsed.
type Synthesizer struct {
	completer   Completer
	prompts     Prompter
	temperature float64
}

// NewSynthesizer uses temperature for one-shot answers.
func NewSynthesizer(c Completer, prompts Prompter, temperature float64) *Synthesizer {
	return &Synthesizer{completer: c, prompts: prompts, temperature: temperature}
}

// Synthesize answers query from the accumulated results of a session.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []SearchResult, rounds int) string {
	prompt := s.prompts.Synthesis(query, rounds, len(results))
	out := s.completer.Complete(ctx, s.prompts.System(CompileContext(results)), prompt, synthesisTemperature)
	return out.Content()
}

// Answer is the one-shot answer used by quick searches.
func (s *Synthesizer) Answer(ctx context.Context, query, searchContext string) string {
	return s.completer.Complete(ctx, s.prompts.System(searchContext), query, s.temperature).Content()
}
