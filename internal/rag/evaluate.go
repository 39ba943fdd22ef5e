package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/model"
)

const evaluatePrompt = `You are assessing the delivery health of a UK infrastructure project.

Project: %s
Description: %s
Area: %s
Evidence-based provisional status: %s

Evidence timeline:
%s
Decide the RAG status: Red (serious delays, overruns, cancellation risk), Amber (some concerns or uncertainty) or Green (on track).
Also give your best estimate of where the project is located.

Respond with ONLY this JSON:
{
    "status": "Red" | "Amber" | "Green",
    "rationale": "Two or three sentences citing the evidence",
    "location": {
        "latitude": 53.8,
        "longitude": -1.5,
        "description": "Site description",
        "source": "How the location was determined",
        "confidence": "LOW" | "MEDIUM" | "HIGH"
    }
}

Use null for location if you cannot determine it.`

// Evaluation is the combined status, rationale and location judgement.
type Evaluation struct {
	Status    model.RAGStatus
	Rationale string
	Location  *model.Location
	// Fallback is set when the deterministic rule was used.
	Fallback bool
}

// Evaluator runs the richer one-call evaluation used by the pipeline.
type Evaluator struct {
	gen      llm.Generator
	fallback llm.Kind
}

// NewEvaluator creates an evaluator. Quota failures on the primary backend
// are retried once on the plain chat backend.
func NewEvaluator(gen llm.Generator) *Evaluator {
	return &Evaluator{gen: gen, fallback: llm.OpenAI}
}

type evaluateResponse struct {
	Status    string `json:"status"`
	Rationale string `json:"rationale"`
	Location  *struct {
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		Description string   `json:"description"`
		Source      string   `json:"source"`
		Confidence  string   `json:"confidence"`
	} `json:"location"`
}

// Evaluate asks for status, rationale and location in one structured call.
// When the call cannot be completed the deterministic rule decides. An
// operator abort or a cancelled context is returned instead.
func (e *Evaluator) Evaluate(ctx context.Context, p *model.Project) (*Evaluation, error) {
	provisional := Provisional(p.Evidence)
	area := p.Region
	if area == "" {
		area = p.Authority
	}
	req := llm.Request{
		Task:      llm.TaskEvaluate,
		Prompt:    fmt.Sprintf(evaluatePrompt, p.Name, p.Description, area, provisional, Narrative(p.Evidence)),
		WebSearch: true,
		Meta:      map[string]string{"title": p.Name, "provisional": string(provisional)},
	}
	label := "Evaluate: " + p.Name

	var parsed evaluateResponse
	_, err := llm.GenerateJSON(ctx, e.gen, label, req, &parsed)
	if errors.Is(err, llm.ErrAborted) {
		return nil, err
	}
	if err != nil && llm.IsQuotaError(err) && e.canFallback() {
		zap.S().Warnf("%s: quota exhausted, falling back to %s", label, e.fallback)
		req.Provider = e.fallback
		req.WebSearch = false
		req.JSON = true
		parsed = evaluateResponse{}
		_, err = llm.GenerateJSON(ctx, e.gen, label+" (fallback)", req, &parsed)
	}
	if err != nil && (ctx.Err() != nil || errors.Is(err, llm.ErrAborted)) {
		return nil, err
	}
	if err != nil {
		zap.S().Warnf("%s: evaluation failed, using evidence rule: %v", label, err)
		return &Evaluation{
			Status:    provisional,
			Rationale: fmt.Sprintf("Status derived from evidence sentiment: %d negative of %d items.", CountNegative(p.Evidence), len(p.Evidence)),
			Fallback:  true,
		}, nil
	}

	eval := &Evaluation{
		Status:    model.ParseRAG(parsed.Status),
		Rationale: strings.TrimSpace(parsed.Rationale),
	}
	if loc := parsed.Location; loc != nil && loc.Latitude != nil && loc.Longitude != nil {
		conf := model.ParseConfidence(loc.Confidence)
		if conf == "" {
			conf = model.ConfidenceLow
		}
		eval.Location = &model.Location{
			Latitude:    *loc.Latitude,
			Longitude:   *loc.Longitude,
			Description: loc.Description,
			Source:      loc.Source,
			Confidence:  conf,
		}
	}
	return eval, nil
}

// canFallback reports whether the plain backend is registered and is not
// the one that just failed.
func (e *Evaluator) canFallback() bool {
	if a, ok := e.gen.(interface{ Active() llm.Kind }); ok && a.Active() == e.fallback {
		return false
	}
	if r, ok := e.gen.(interface {
		Provider(llm.Kind) (llm.Provider, bool)
	}); ok {
		_, registered := r.Provider(e.fallback)
		return registered
	}
	return true
}
