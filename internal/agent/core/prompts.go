package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Prompter renders every prompt sent to the completion backend.
type Prompter struct {
	// Prefix is prepended to the system prompt when set.
	Prefix string
	// Now is the clock used for date context; time.Now when nil.
	Now func() time.Time
}

func (p Prompter) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// System builds the research-assistant system prompt around searchContext.
func (p Prompter) System(searchContext string) string {
	date := p.now().UTC().Format("Monday, January 2, 2006")
	var b strings.Builder
	if p.Prefix != "" {
		b.WriteString(p.Prefix)
		b.WriteString("\n\n")
	}
	b.WriteString("You are an expert research assistant with access to comprehensive search data.\n")
	fmt.Fprintf(&b, "Today's date is %s. Use this temporal context when analyzing information, especially when discussing recent developments, trends, or time-sensitive topics.\n\n", date)
	b.WriteString("Search Context:\n")
	b.WriteString(searchContext)
	b.WriteString(`

Guidelines:
- Synthesize information from multiple sources
- Cite key facts and findings
- Identify any conflicting information
- Provide comprehensive coverage of the topic
- Structure your response clearly with sections using Markdown formatting
- Use proper Markdown syntax for headers (##), lists (-), bold (**text**), italic (*text*), and code blocks (` + "```" + `)
- When mentioning dates or timeframes, consider the current date context
- Distinguish between recent and older information based on the current date`)
	return b.String()
}

// Judge asks for a structured completeness verdict over digest.
func (p Prompter) Judge(query, digest string, round int) string {
	return fmt.Sprintf(`As an AI research assistant, analyze if we have sufficient information to comprehensively answer: "%s"

Current search results (Round %d):
%s

Please analyze and respond in this exact JSON format:
{
  "isComplete": boolean,
  "reason": "Brief explanation of why search is complete or needs more info",
  "suggestedQueries": ["query1", "query2", "query3"],
  "confidence": number between 0-1,
  "missingAspects": ["aspect1", "aspect2"]
}

Guidelines for determining completeness:
- isComplete = true if we have comprehensive coverage of the topic
- isComplete = false if missing key information, recent updates, or important perspectives
- suggestedQueries should target specific gaps in knowledge
- confidence should reflect how well the current results answer the original query
- Consider: technical details, recent developments, different viewpoints, practical applications

Be decisive - lean towards continuing search if there are any significant gaps.`, query, round, digest)
}

// Synthesis asks for the final section-structured answer.
func (p Prompter) Synthesis(query string, rounds, results int) string {
	date := p.now().Format("January 2, 2006")
	return fmt.Sprintf(`Based on my adaptive AI-driven search research, provide a comprehensive answer to: "%s"

I conducted %d rounds of intelligent search, gathering %d results from multiple sources.

Consider:
- Key facts and findings from multiple sources
- Recent developments and current state (remember today is %s)
- Different perspectives or approaches
- Technical details and practical implications
- Any limitations or conflicting information
- The adaptive nature of this search means the information should be comprehensive

FORMAT YOUR RESPONSE IN MARKDOWN with the following structure:
## Overview
Brief summary of the topic

## Key Findings
- Important facts and discoveries
- Recent developments (with temporal context)

## Technical Details
Specific technical information, code examples if relevant

## Different Perspectives
Various viewpoints or approaches

## Conclusion
Summary and implications

Use proper Markdown formatting including:
- Headers (##, ###)
- Bold (**text**) for emphasis
- Lists (- item) for better organization
- Code blocks (`+"```"+`) for technical content
- Links when referencing sources`, query, rounds, results, date)
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkBlocks removes <think>...</think> reasoning emitted by some models.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}
