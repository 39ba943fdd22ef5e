package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// DefaultPause is how long the non-interactive policy waits before retrying.
const DefaultPause = 60 * time.Second

// Action is a recovery decision.
type Action int

const (
	ActionAbort Action = iota
	ActionRetry
	ActionNewKey
	ActionSwitch
	// ActionGiveUp ends recovery without an operator decision.
	ActionGiveUp
)

// Incident describes a rate-limit or quota failure awaiting a decision.
type Incident struct {
	Label    string
	Provider Kind
	Class    ErrorClass
	Attempt  int
	Err      error
}

// Decision is what the runtime should do next. Pause applies to ActionRetry,
// Key to ActionNewKey.
type Decision struct {
	Action Action
	Pause  time.Duration
	Key    string
}

// RecoveryPolicy decides how to recover from rate-limit and quota errors.
type RecoveryPolicy interface {
	Recover(ctx context.Context, inc Incident) Decision
}

// AutoPause pauses and retries without operator input, giving up after
// MaxRetries attempts for rate limits and MaxQuotaRetries for quota errors.
type AutoPause struct {
	Pause           time.Duration
	MaxRetries      int
	MaxQuotaRetries int
}

// NewAutoPause returns the policy used when no terminal is attached.
func NewAutoPause() *AutoPause {
	return &AutoPause{Pause: DefaultPause, MaxRetries: 5, MaxQuotaRetries: 2}
}

func (a *AutoPause) Recover(_ context.Context, inc Incident) Decision {
	limit := a.MaxRetries
	if inc.Class == ClassQuota {
		limit = a.MaxQuotaRetries
	}
	if inc.Attempt > limit {
		return Decision{Action: ActionGiveUp}
	}
	return Decision{Action: ActionRetry, Pause: a.Pause}
}

// InteractivePrompt asks the operator on a terminal.
type InteractivePrompt struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewInteractivePrompt reads answers from in and writes prompts to out.
func NewInteractivePrompt(in io.Reader, out io.Writer) *InteractivePrompt {
	return &InteractivePrompt{in: bufio.NewReader(in), out: out}
}

func (p *InteractivePrompt) Recover(_ context.Context, inc Incident) Decision {
	// Workers share one terminal.
	p.mu.Lock()
	defer p.mu.Unlock()

	switch inc.Class {
	case ClassQuota:
		fmt.Fprintf(p.out, "\n%s reports insufficient credits or billing problems during %s:\n  %v\n", inc.Provider, inc.Label, inc.Err)
	default:
		fmt.Fprintf(p.out, "\n%s rate limit hit during %s (attempt %d):\n  %v\n", inc.Provider, inc.Label, inc.Attempt, inc.Err)
	}

	for {
		fmt.Fprint(p.out, "[k] enter a new API key  [p] pause and retry  [s] switch provider  [a] abort: ")
		answer, err := p.readLine()
		if err != nil {
			return Decision{Action: ActionAbort}
		}

		switch strings.ToLower(answer) {
		case "k", "key":
			fmt.Fprint(p.out, "New API key: ")
			key, err := p.readLine()
			if err != nil || key == "" {
				continue
			}
			return Decision{Action: ActionNewKey, Key: key}
		case "p", "pause":
			fmt.Fprintf(p.out, "Pause for how many seconds? [%d]: ", int(DefaultPause.Seconds()))
			secs, err := p.readLine()
			if err != nil {
				return Decision{Action: ActionAbort}
			}
			pause := DefaultPause
			if n, convErr := strconv.Atoi(secs); convErr == nil && n >= 0 {
				pause = time.Duration(n) * time.Second
			}
			return Decision{Action: ActionRetry, Pause: pause}
		case "s", "switch":
			return Decision{Action: ActionSwitch}
		case "a", "abort":
			return Decision{Action: ActionAbort}
		}
	}
}

func (p *InteractivePrompt) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Scripted replays a fixed list of decisions, then aborts.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	Incidents []Incident
}

// NewScripted returns a policy that answers with decisions in order.
func NewScripted(decisions ...Decision) *Scripted {
	return &Scripted{decisions: decisions}
}

func (s *Scripted) Recover(_ context.Context, inc Incident) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Incidents = append(s.Incidents, inc)
	if len(s.decisions) == 0 {
		return Decision{Action: ActionAbort}
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d
}

// SelectPolicy prompts when stdin is a terminal and pauses automatically otherwise.
func SelectPolicy(in *os.File, out io.Writer) RecoveryPolicy {
	if in != nil && (isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
		return NewInteractivePrompt(in, out)
	}
	return NewAutoPause()
}
