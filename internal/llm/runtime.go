package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/budget"
)

const maxProviderSwitches = 2

// Observer receives one event per backend call.
type Observer interface {
	LLMCall(provider, outcome string)
}

// Options configures a Runtime.
type Options struct {
	Active   Kind
	Models   ModelResolver
	Guard    *budget.Guard
	Policy   RecoveryPolicy
	Observer Observer
}

// Runtime owns the backend clients, their keys and the active backend.
// Every external call goes through the budget guard; refused calls are
// served by the mock backend so callers never branch on mock-ness.
type Runtime struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
	active    Kind

	models   ModelResolver
	guard    *budget.Guard
	policy   RecoveryPolicy
	observer Observer
	mock     Provider

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRuntime wires providers behind one call surface.
func NewRuntime(opts Options, providers ...Provider) *Runtime {
	r := &Runtime{
		providers: make(map[Kind]Provider),
		active:    opts.Active,
		models:    opts.Models,
		guard:     opts.Guard,
		policy:    opts.Policy,
		observer:  opts.Observer,
		mock:      NewMockProvider(),
		sleep:     sleepContext,
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Kind()] = p
		}
	}
	if r.guard == nil {
		r.guard = budget.Unlimited()
	}
	if r.policy == nil {
		r.policy = NewAutoPause()
	}
	if _, ok := r.providers[r.active]; !ok {
		for _, k := range []Kind{Gemini, OpenAI} {
			if _, ok := r.providers[k]; ok {
				r.active = k
				break
			}
		}
	}
	return r
}

// Guard returns the budget guard shared by all call sites.
func (r *Runtime) Guard() *budget.Guard { return r.guard }

// Active returns the backend new requests go to.
func (r *Runtime) Active() Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Provider returns the registered backend for kind.
func (r *Runtime) Provider(kind Kind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// SetAPIKey hot-swaps the key of a backend.
func (r *Runtime) SetAPIKey(kind Kind, key string) error {
	p, ok := r.Provider(kind)
	if !ok {
		return fmt.Errorf("provider %s not registered", kind)
	}
	p.SetAPIKey(key)
	return nil
}

// GenerateContent sends req to a backend, recovering from rate-limit and
// quota errors per the recovery policy.
func (r *Runtime) GenerateContent(ctx context.Context, label string, req Request) (*Response, error) {
	if !r.guard.Consume(label) || len(r.providers) == 0 {
		r.observe(Mock, "mock")
		return r.generateMock(ctx, req)
	}

	kind := req.Provider
	if kind == "" || kind == Mock {
		kind = r.Active()
	}

	for switches := 0; ; switches++ {
		model := r.models.Resolve(kind, req.Model)
		text, err := r.dispatch(ctx, label, kind, model, req)

		var sw *SwitchProviderError
		if errors.As(err, &sw) && switches < maxProviderSwitches {
			zap.S().Warnf("Switching provider %s -> %s for %s", sw.From, sw.To, label)
			r.mu.Lock()
			r.active = sw.To
			r.mu.Unlock()
			kind = sw.To
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Response{Text: text, Provider: kind, Model: model}, nil
	}
}

func (r *Runtime) dispatch(ctx context.Context, label string, kind Kind, model string, req Request) (string, error) {
	p, ok := r.Provider(kind)
	if !ok {
		return "", fmt.Errorf("provider %s not registered", kind)
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		text, err := p.Generate(ctx, model, req)
		if err == nil {
			r.observe(kind, "ok")
			zap.S().Debugf("[%s] %s completed in %v (%d chars)", kind, label, time.Since(start), len(text))
			return text, nil
		}

		class := Classify(err)
		if class == ClassNone {
			r.observe(kind, "error")
			return "", err
		}
		r.observe(kind, "throttled")
		zap.S().Warnf("[%s] %s: %s error on attempt %d: %v", kind, label, class, attempt, err)

		decision := r.policy.Recover(ctx, Incident{
			Label:    label,
			Provider: kind,
			Class:    class,
			Attempt:  attempt,
			Err:      err,
		})

		switch decision.Action {
		case ActionRetry:
			zap.S().Infof("Pausing %v before retrying %s", decision.Pause, label)
			if sleepErr := r.sleep(ctx, decision.Pause); sleepErr != nil {
				return "", fmt.Errorf("%w: %w", sleepErr, err)
			}
		case ActionNewKey:
			p.SetAPIKey(decision.Key)
			zap.S().Infof("Retrying %s with a new %s API key", label, kind)
		case ActionSwitch:
			to, ok := r.alternate(kind)
			if !ok {
				zap.S().Warnf("No alternate provider for %s, aborting %s", kind, label)
				return "", fmt.Errorf("%w: %w", ErrAborted, err)
			}
			return "", &SwitchProviderError{From: kind, To: to, Cause: err}
		case ActionGiveUp:
			zap.S().Warnf("Giving up on %s after %d attempts", label, attempt)
			return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		default:
			return "", fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}
}

func (r *Runtime) alternate(kind Kind) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range []Kind{Gemini, OpenAI} {
		if k == kind {
			continue
		}
		if _, ok := r.providers[k]; ok {
			return k, true
		}
	}
	return "", false
}

func (r *Runtime) generateMock(ctx context.Context, req Request) (*Response, error) {
	text, err := r.mock.Generate(ctx, fallbackModels[Mock], req)
	if err != nil {
		return nil, err
	}
	return &Response{Text: text, Provider: Mock, Model: fallbackModels[Mock]}, nil
}

func (r *Runtime) observe(kind Kind, outcome string) {
	if r.observer != nil {
		r.observer.LLMCall(string(kind), outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
