package core

import (
	"fmt"
	"strings"
)

const (
	contextPerEngine    = 5
	contextSnippetRunes = 200
)

// CompileContext renders results grouped by engine, in the order engines
// were first seen, with at most five entries per engine.
func CompileContext(results []SearchResult) string {
	if len(results) == 0 {
		return NoContextText
	}

	var order []string
	groups := make(map[string][]SearchResult)
	for _, r := range results {
		engine := engineName(r)
		if _, ok := groups[engine]; !ok {
			order = append(order, engine)
		}
		groups[engine] = append(groups[engine], r)
	}

	var parts []string
	for _, engine := range order {
		parts = append(parts, fmt.Sprintf("\n=== %s RESULTS ===", strings.ToUpper(engine)))
		group := groups[engine]
		if len(group) > contextPerEngine {
			group = group[:contextPerEngine]
		}
		for i, r := range group {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, r.Title))
			if r.Content != "" {
				parts = append(parts, "   "+truncateRunes(r.Content, contextSnippetRunes)+"...")
			}
			parts = append(parts, "   URL: "+r.URL, "")
		}
	}
	return strings.Join(parts, "\n")
}

// SourceBreakdown counts results per engine.
func SourceBreakdown(results []SearchResult) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		out[engineName(r)]++
	}
	return out
}

func engineName(r SearchResult) string {
	if r.Engine == "" {
		return "unknown"
	}
	return r.Engine
}
