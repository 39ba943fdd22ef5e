package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/TobiSchelling/infratracker/internal/budget"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/model"
)

// quotaGenerator fails every request that is not pinned to the plain backend.
type quotaGenerator struct {
	reply string
	reqs  []llm.Request
}

func (q *quotaGenerator) GenerateContent(_ context.Context, _ string, req llm.Request) (*llm.Response, error) {
	q.reqs = append(q.reqs, req)
	if req.Provider != llm.OpenAI {
		return nil, &llm.HTTPError{StatusCode: http.StatusPaymentRequired, Body: "insufficient credits"}
	}
	return &llm.Response{Text: q.reply, Provider: llm.OpenAI}, nil
}

func TestEvaluateParsesStructuredAnswer(t *testing.T) {
	gen := &countingGenerator{reply: `{"status": "Red", "rationale": "Costs doubled.", "location": {"latitude": 51.5, "longitude": -0.1, "description": "London", "confidence": "medium"}}`}
	e := NewEvaluator(gen)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Negative")}

	eval, err := e.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Status != model.Red || eval.Rationale != "Costs doubled." || eval.Fallback {
		t.Errorf("unexpected evaluation %+v", eval)
	}
	if eval.Location == nil || eval.Location.Confidence != model.ConfidenceMedium {
		t.Errorf("unexpected location %+v", eval.Location)
	}
	if !gen.reqs[0].WebSearch || gen.reqs[0].Meta["provisional"] != "Amber" {
		t.Errorf("unexpected request %+v", gen.reqs[0])
	}
}

func TestEvaluateFallsBackOnQuota(t *testing.T) {
	gen := &quotaGenerator{reply: `{"status": "Green", "rationale": "On track.", "location": null}`}
	e := NewEvaluator(gen)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Positive")}

	eval, err := e.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Status != model.Green || eval.Location != nil || eval.Fallback {
		t.Errorf("unexpected evaluation %+v", eval)
	}
	if len(gen.reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(gen.reqs))
	}
	if fb := gen.reqs[1]; fb.Provider != llm.OpenAI || fb.WebSearch {
		t.Errorf("expected plain backend fallback, got %+v", fb)
	}
}

func TestEvaluateUsesRuleWhenUnparseable(t *testing.T) {
	gen := &countingGenerator{reply: "I cannot answer that."}
	e := NewEvaluator(gen)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Negative", "Negative")}

	eval, err := e.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Status != model.Red || !eval.Fallback {
		t.Errorf("expected rule-based Red, got %+v", eval)
	}
	if len(gen.reqs) != 2 {
		t.Errorf("expected one strict JSON retry, got %d requests", len(gen.reqs))
	}
}

func TestEvaluateMockFollowsProvisional(t *testing.T) {
	rt := llm.NewRuntime(llm.Options{Guard: budget.NewGuard(0, true)})
	e := NewEvaluator(rt)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Negative", "Negative")}

	eval, err := e.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Status != model.Red || eval.Rationale == "" {
		t.Errorf("unexpected mock evaluation %+v", eval)
	}
}

// abortingFallbackGenerator hits quota on the primary backend and is
// aborted by the operator on the plain one.
type abortingFallbackGenerator struct {
	reqs []llm.Request
}

func (a *abortingFallbackGenerator) GenerateContent(_ context.Context, _ string, req llm.Request) (*llm.Response, error) {
	a.reqs = append(a.reqs, req)
	if req.Provider != llm.OpenAI {
		return nil, &llm.HTTPError{StatusCode: http.StatusPaymentRequired, Body: "insufficient credits"}
	}
	return nil, fmt.Errorf("%w: %w", llm.ErrAborted, &llm.HTTPError{StatusCode: http.StatusTooManyRequests})
}

// creditlessProvider is a search backend that always reports exhausted credits.
type creditlessProvider struct {
	calls int
}

func (c *creditlessProvider) Kind() llm.Kind     { return llm.Gemini }
func (c *creditlessProvider) IsConfigured() bool { return true }
func (c *creditlessProvider) SetAPIKey(string)   {}

func (c *creditlessProvider) Generate(context.Context, string, llm.Request) (string, error) {
	c.calls++
	return "", &llm.HTTPError{StatusCode: http.StatusPaymentRequired, Body: "insufficient credits"}
}

func TestEvaluateReturnsOperatorAbort(t *testing.T) {
	gen := &countingGenerator{err: fmt.Errorf("%w: %w", llm.ErrAborted, errors.New("429 rate limit"))}
	e := NewEvaluator(gen)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Negative")}

	eval, err := e.Evaluate(context.Background(), p)
	if !errors.Is(err, llm.ErrAborted) {
		t.Fatalf("expected ErrAborted, got eval=%+v err=%v", eval, err)
	}
	if len(gen.reqs) != 1 {
		t.Errorf("expected no fallback request after abort, got %d requests", len(gen.reqs))
	}
}

func TestEvaluateReturnsAbortOnFallbackBackend(t *testing.T) {
	gen := &abortingFallbackGenerator{}
	e := NewEvaluator(gen)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Positive")}

	eval, err := e.Evaluate(context.Background(), p)
	if !errors.Is(err, llm.ErrAborted) {
		t.Fatalf("expected ErrAborted, got eval=%+v err=%v", eval, err)
	}
	if len(gen.reqs) != 2 {
		t.Errorf("expected primary and fallback requests, got %d", len(gen.reqs))
	}
}

func TestEvaluateSkipsUnregisteredFallback(t *testing.T) {
	search := &creditlessProvider{}
	rt := llm.NewRuntime(llm.Options{Policy: &llm.AutoPause{}}, search)
	e := NewEvaluator(rt)
	p := &model.Project{Name: "Tunnel", Evidence: evidenceWith("Negative", "Negative")}

	eval, err := e.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if eval.Status != model.Red || !eval.Fallback {
		t.Errorf("expected rule-based Red, got %+v", eval)
	}
	if search.calls != 1 {
		t.Errorf("expected a single search attempt, got %d", search.calls)
	}
}
