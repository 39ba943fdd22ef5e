package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/infratracker/internal/budget"
)

// fakeProvider returns queued errors before succeeding.
type fakeProvider struct {
	mu     sync.Mutex
	kind   Kind
	errs   []error
	text   string
	calls  int
	keys   []string
	models []string
}

func (f *fakeProvider) Kind() Kind         { return f.kind }
func (f *fakeProvider) IsConfigured() bool { return true }
func (f *fakeProvider) SetAPIKey(k string) {
	f.mu.Lock()
	f.keys = append(f.keys, k)
	f.mu.Unlock()
}

func (f *fakeProvider) Generate(_ context.Context, model string, _ Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.text, nil
}

func newTestRuntime(policy RecoveryPolicy, guard *budget.Guard, providers ...Provider) *Runtime {
	rt := NewRuntime(Options{Active: Gemini, Guard: guard, Policy: policy}, providers...)
	rt.sleep = func(context.Context, time.Duration) error { return nil }
	return rt
}

func TestRuntimeBudgetExhaustedFallsBackToMock(t *testing.T) {
	real := &fakeProvider{kind: Gemini, text: `{"real": true}`}
	rt := newTestRuntime(nil, budget.NewGuard(1, false), real)

	first, err := rt.GenerateContent(context.Background(), "one", Request{Task: TaskRAG})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Mocked() {
		t.Error("first call should reach the real provider")
	}

	second, err := rt.GenerateContent(context.Background(), "two", Request{Task: TaskRAG})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Mocked() {
		t.Error("second call should be served by the mock backend")
	}
	if second.Text != "Amber" {
		t.Errorf("expected mock RAG answer Amber, got %q", second.Text)
	}
	if real.calls != 1 {
		t.Errorf("expected 1 real call, got %d", real.calls)
	}
}

func TestRuntimeNoLLMNeverCallsProvider(t *testing.T) {
	real := &fakeProvider{kind: Gemini, text: "x"}
	rt := newTestRuntime(nil, budget.NewGuard(10, true), real)
	for i := 0; i < 3; i++ {
		resp, err := rt.GenerateContent(context.Background(), "x", Request{Task: TaskEvidence})
		if err != nil || !resp.Mocked() {
			t.Fatalf("expected mock response, got %v %v", resp, err)
		}
	}
	if real.calls != 0 {
		t.Errorf("provider called %d times in no-LLM mode", real.calls)
	}
}

func TestRuntimeRateLimitPausesAndRetries(t *testing.T) {
	real := &fakeProvider{kind: Gemini, text: "done", errs: []error{
		&HTTPError{StatusCode: 429, Body: "slow down"},
		errors.New("RESOURCE_EXHAUSTED: try later"),
	}}
	policy := &AutoPause{Pause: time.Minute, MaxRetries: 5, MaxQuotaRetries: 1}
	rt := newTestRuntime(policy, nil, real)

	resp, err := rt.GenerateContent(context.Background(), "retry", Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "done" || real.calls != 3 {
		t.Errorf("expected success on third attempt, got %q after %d calls", resp.Text, real.calls)
	}
}

func TestRuntimeAutoPauseGivesUpWithOriginalError(t *testing.T) {
	orig := &HTTPError{StatusCode: 402, Body: "insufficient credits"}
	real := &fakeProvider{kind: Gemini, errs: []error{orig, orig, orig}}
	policy := &AutoPause{MaxRetries: 5, MaxQuotaRetries: 1}
	rt := newTestRuntime(policy, nil, real)

	_, err := rt.GenerateContent(context.Background(), "quota", Request{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 402 {
		t.Fatalf("expected original 402 error, got %v", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) || errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if real.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", real.calls)
	}
}

func TestRuntimeNewKeyDecision(t *testing.T) {
	real := &fakeProvider{kind: Gemini, text: "ok", errs: []error{errors.New("rate limit exceeded")}}
	policy := NewScripted(Decision{Action: ActionNewKey, Key: "fresh-key"})
	rt := newTestRuntime(policy, nil, real)

	if _, err := rt.GenerateContent(context.Background(), "key", Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(real.keys) != 1 || real.keys[0] != "fresh-key" {
		t.Errorf("expected key swap, got %v", real.keys)
	}
	if len(policy.Incidents) != 1 || policy.Incidents[0].Class != ClassRateLimit {
		t.Errorf("unexpected incidents %+v", policy.Incidents)
	}
}

func TestRuntimeSwitchProviderRedispatches(t *testing.T) {
	gemini := &fakeProvider{kind: Gemini, errs: []error{&HTTPError{StatusCode: 429}}}
	openai := &fakeProvider{kind: OpenAI, text: "from openai"}
	policy := NewScripted(Decision{Action: ActionSwitch})
	rt := NewRuntime(Options{
		Active: Gemini,
		Policy: policy,
		Models: ModelResolver{Overrides: map[Kind]string{OpenAI: "chat-model"}},
	}, gemini, openai)

	resp, err := rt.GenerateContent(context.Background(), "switch", Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != OpenAI || resp.Text != "from openai" {
		t.Errorf("expected openai response, got %+v", resp)
	}
	if openai.models[0] != "chat-model" {
		t.Errorf("expected openai model resolution, got %q", openai.models[0])
	}
	if rt.Active() != OpenAI {
		t.Errorf("expected active provider to follow the switch, got %s", rt.Active())
	}
}

func TestRuntimeAbortPropagates(t *testing.T) {
	real := &fakeProvider{kind: Gemini, errs: []error{&HTTPError{StatusCode: 429}}}
	rt := newTestRuntime(NewScripted(Decision{Action: ActionAbort}), nil, real)
	_, err := rt.GenerateContent(context.Background(), "abort", Request{})
	if !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}
}

func TestRuntimeNonThrottleErrorReturnsImmediately(t *testing.T) {
	real := &fakeProvider{kind: Gemini, errs: []error{errors.New("boom")}}
	policy := NewScripted()
	rt := newTestRuntime(policy, nil, real)
	if _, err := rt.GenerateContent(context.Background(), "boom", Request{}); err == nil {
		t.Fatal("expected error")
	}
	if len(policy.Incidents) != 0 {
		t.Error("policy should not be consulted for ordinary errors")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{&HTTPError{StatusCode: 429}, ClassRateLimit},
		{&HTTPError{StatusCode: 402}, ClassQuota},
		{errors.New("Rate limit reached for requests"), ClassRateLimit},
		{errors.New("You exceeded your current quota"), ClassRateLimit},
		{errors.New("Error 429, RESOURCE_EXHAUSTED"), ClassRateLimit},
		{errors.New("insufficient balance"), ClassQuota},
		{errors.New("not enough credits"), ClassQuota},
		{errors.New("billing hard limit"), ClassQuota},
		{errors.New("connection reset"), ClassNone},
		{nil, ClassNone},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestIsQuotaError(t *testing.T) {
	quota := &HTTPError{StatusCode: 402, Body: "insufficient credits"}
	cases := []struct {
		err  error
		want bool
	}{
		{quota, true},
		{fmt.Errorf("%w: %w", ErrRetriesExhausted, quota), true},
		{fmt.Errorf("%w: %w", ErrAborted, quota), false},
		{&HTTPError{StatusCode: 429}, false},
		{errors.New("connection reset"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsQuotaError(c.err); got != c.want {
			t.Errorf("IsQuotaError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestModelResolution(t *testing.T) {
	m := ModelResolver{
		Overrides:   map[Kind]string{OpenAI: "override-model"},
		Environment: "development",
		Defaults: map[Kind]map[string]string{
			Gemini: {"development": "gemini-dev", "production": "gemini-prod"},
		},
	}
	if got := m.Resolve(Gemini, "per-request"); got != "per-request" {
		t.Errorf("request override ignored: %q", got)
	}
	if got := m.Resolve(OpenAI, ""); got != "override-model" {
		t.Errorf("configured override ignored: %q", got)
	}
	if got := m.Resolve(Gemini, ""); got != "gemini-dev" {
		t.Errorf("environment default ignored: %q", got)
	}
	m.Environment = "staging"
	if got := m.Resolve(Gemini, ""); got != fallbackModels[Gemini] {
		t.Errorf("expected hardcoded fallback, got %q", got)
	}
}

func TestOpenAIProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "INFRATRACKER_TEST_UNSET_KEY")
	p.SetAPIKey("test-key")
	_, err := p.Generate(context.Background(), "m", Request{Prompt: "hi"})
	if Classify(err) != ClassRateLimit {
		t.Errorf("expected rate limit classification, got %v", err)
	}
}

func TestOpenAIProviderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Green"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "INFRATRACKER_TEST_UNSET_KEY")
	p.SetAPIKey("k")
	text, err := p.Generate(context.Background(), "m", Request{Prompt: "hi", JSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Green" {
		t.Errorf("expected Green, got %q", text)
	}
}
