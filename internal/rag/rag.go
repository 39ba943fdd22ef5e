// Package rag assigns Red/Amber/Green status to projects from their
// evidence timeline.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/model"
)

const ragPrompt = `You are assessing the delivery health of a UK infrastructure project.

Project: %s
Description: %s

Evidence timeline:
%s
Classify the project as Red (serious delays, overruns, cancellation risk), Amber (some concerns or uncertainty) or Green (on track).
Respond with exactly one word: Red, Amber or Green.`

// Provisional applies the deterministic rule: two or more negative items
// is Red, exactly one is Amber, none is Green.
func Provisional(items []model.Evidence) model.RAGStatus {
	switch n := CountNegative(items); {
	case n >= 2:
		return model.Red
	case n == 1:
		return model.Amber
	default:
		return model.Green
	}
}

// CountNegative counts negative-sentiment items.
func CountNegative(items []model.Evidence) int {
	n := 0
	for _, e := range items {
		if e.IsNegative() {
			n++
		}
	}
	return n
}

// Scorer is the two-tier RAG classifier.
type Scorer struct {
	gen llm.Generator
}

// NewScorer creates a scorer.
func NewScorer(gen llm.Generator) *Scorer {
	return &Scorer{gen: gen}
}

// Score classifies a project. Only the ambiguous Amber tier of the
// deterministic rule is escalated to the LLM; any failure there is Amber.
func (s *Scorer) Score(ctx context.Context, p *model.Project) model.RAGStatus {
	provisional := Provisional(p.Evidence)
	if provisional != model.Amber {
		return provisional
	}

	resp, err := s.gen.GenerateContent(ctx, "RAG: "+p.Name, llm.Request{
		Task:      llm.TaskRAG,
		Prompt:    fmt.Sprintf(ragPrompt, p.Name, p.Description, Narrative(p.Evidence)),
		MaxTokens: 16,
		Meta:      map[string]string{"title": p.Name, "provisional": string(provisional)},
	})
	if err != nil {
		zap.S().Warnf("RAG classification for %s failed, defaulting to Amber: %v", p.Name, err)
		return model.Amber
	}
	return model.ParseRAG(resp.Text)
}

// Narrative renders the evidence timeline oldest first.
func Narrative(items []model.Evidence) string {
	sorted := append([]model.Evidence(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EvidenceDate < sorted[j].EvidenceDate
	})

	if len(sorted) == 0 {
		return "(no evidence found)\n"
	}
	var b strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&b, "- [%s] %s (%s)", e.EvidenceDate, e.Title, e.Source)
		if e.Sentiment != "" {
			fmt.Fprintf(&b, " [%s]", e.Sentiment)
		}
		b.WriteString("\n")
		if e.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", e.Summary)
		}
		if e.RawText != "" {
			fmt.Fprintf(&b, "  \"%s\"\n", truncate(e.RawText, 600))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
