package discovery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

const (
	// MinPerLocale is the floor of the per-locale request size.
	MinPerLocale = 25
	// ExclusionWindow is how many recent titles are sent as exclusions.
	ExclusionWindow = 60
	// MaxExtraAttempts bounds the extra passes per locale.
	MaxExtraAttempts    = 3
	minShortfallRequest = 10
)

// Locator is the single-locale discovery primitive.
type Locator interface {
	Discover(ctx context.Context, loc locale.Locale, minResults int, exclude []string, focus string) (*Result, error)
}

// AggregateResult holds the outcome of a multi-locale discovery run.
type AggregateResult struct {
	Projects []model.Candidate
	Calls    int
	Failures int
	Target   int
}

// Aggregator spreads a global project target across locales.
type Aggregator struct {
	locator  Locator
	themeIdx int
}

// NewAggregator creates an aggregator over a single-locale primitive.
func NewAggregator(l Locator) *Aggregator {
	return &Aggregator{locator: l}
}

// PerLocaleTarget is max(25, ceil(total/locales)).
func PerLocaleTarget(total, locales int) int {
	if locales <= 0 {
		locales = 1
	}
	per := (total + locales - 1) / locales
	if per < MinPerLocale {
		per = MinPerLocale
	}
	return per
}

// Collect runs one pass per locale, then up to MaxExtraAttempts
// round-robin passes targeting the shortfall, then a final pass with no
// focus theme. It stops once minTotal unique projects are collected.
// Ending under target is logged, not returned as an error. exclude seeds
// the exclusion hint (e.g. titles already known from connectors).
func (a *Aggregator) Collect(ctx context.Context, locales []locale.Locale, minTotal int, exclude []string) (*AggregateResult, error) {
	res := &AggregateResult{Target: PerLocaleTarget(minTotal, len(locales))}
	seen := dedupe.NewSet()
	recent := append([]string(nil), exclude...)

	run := func(loc locale.Locale, target int, focus string) error {
		res.Calls++
		out, err := a.locator.Discover(ctx, loc, target, window(recent), focus)
		if err != nil {
			if errors.Is(err, llm.ErrAborted) || ctx.Err() != nil {
				return err
			}
			zap.S().Errorf("Discovery for %s failed: %v", loc.Name, err)
			res.Failures++
			return nil
		}
		if out.Failed {
			res.Failures++
		}
		added := 0
		for _, p := range out.Projects {
			if !seen.Add(p.Title) {
				continue
			}
			res.Projects = append(res.Projects, p)
			recent = append(recent, p.Title)
			added++
		}
		zap.S().Infof("Discovery %s (%s): %d returned, %d new, %d total", loc.Name, focusLabel(focus), len(out.Projects), added, len(res.Projects))
		return nil
	}

	for _, loc := range locales {
		if err := run(loc, res.Target, a.nextTheme()); err != nil {
			return res, err
		}
	}

	for attempt := 1; attempt <= MaxExtraAttempts && len(res.Projects) < minTotal; attempt++ {
		for _, loc := range locales {
			if len(res.Projects) >= minTotal {
				break
			}
			if err := run(loc, shortfall(minTotal, len(res.Projects)), a.nextTheme()); err != nil {
				return res, err
			}
		}
	}

	for _, loc := range locales {
		if len(res.Projects) >= minTotal {
			break
		}
		if err := run(loc, shortfall(minTotal, len(res.Projects)), ""); err != nil {
			return res, err
		}
	}

	if len(res.Projects) < minTotal {
		zap.S().Warnf("Discovery finished under target: %d of %d projects after %d calls", len(res.Projects), minTotal, res.Calls)
	} else {
		zap.S().Infof("Discovery reached target: %d projects after %d calls", len(res.Projects), res.Calls)
	}
	return res, nil
}

func (a *Aggregator) nextTheme() string {
	t := Themes[a.themeIdx%len(Themes)]
	a.themeIdx++
	return t
}

func window(titles []string) []string {
	if len(titles) <= ExclusionWindow {
		return titles
	}
	return titles[len(titles)-ExclusionWindow:]
}

func shortfall(target, have int) int {
	s := target - have
	if s < minShortfallRequest {
		s = minShortfallRequest
	}
	return s
}

func focusLabel(focus string) string {
	if focus == "" {
		return "any theme"
	}
	return focus
}
