package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TobiSchelling/infratracker/internal/budget"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

type call struct {
	locale  string
	target  int
	focus   string
	exclude int
}

// fakeLocator returns perCall projects per call. With fresh set, every
// call yields new titles; otherwise each locale repeats the same list.
type fakeLocator struct {
	perCall int
	fresh   bool
	err     error
	calls   []call
}

func (f *fakeLocator) Discover(_ context.Context, loc locale.Locale, minResults int, exclude []string, focus string) (*Result, error) {
	f.calls = append(f.calls, call{locale: loc.Name, target: minResults, focus: focus, exclude: len(exclude)})
	if f.err != nil {
		return nil, f.err
	}
	res := &Result{}
	for i := 0; i < f.perCall; i++ {
		title := fmt.Sprintf("%s project %d", loc.Name, i)
		if f.fresh {
			title = fmt.Sprintf("%s project %d-%d", loc.Name, len(f.calls), i)
		}
		res.Projects = append(res.Projects, model.Candidate{Title: title, Region: loc.Region})
	}
	return res, nil
}

var twoLocales = []locale.Locale{
	{Name: "North East", Region: "North East"},
	{Name: "Wales", Region: "Wales"},
}

func TestPerLocaleTarget(t *testing.T) {
	cases := []struct{ total, locales, want int }{
		{100, 2, 50},
		{100, 12, 25},
		{30, 1, 30},
		{101, 2, 51},
		{10, 0, 25},
	}
	for _, c := range cases {
		if got := PerLocaleTarget(c.total, c.locales); got != c.want {
			t.Errorf("PerLocaleTarget(%d, %d) = %d, want %d", c.total, c.locales, got, c.want)
		}
	}
}

func TestCollectStopsOnceTargetReached(t *testing.T) {
	f := &fakeLocator{perCall: 60, fresh: true}
	agg := NewAggregator(f)

	res, err := agg.Collect(context.Background(), twoLocales, 100, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []call{
		{locale: "North East", target: 50, focus: "roads", exclude: 0},
		{locale: "Wales", target: 50, focus: "rail", exclude: 60},
	}
	if diff := cmp.Diff(want, f.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if len(res.Projects) != 120 || res.Calls != 2 {
		t.Errorf("expected 120 projects from 2 calls, got %d from %d", len(res.Projects), res.Calls)
	}
}

func TestCollectBoundedExtraAttempts(t *testing.T) {
	f := &fakeLocator{perCall: 10}
	agg := NewAggregator(f)

	res, err := agg.Collect(context.Background(), twoLocales, 100, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	// one pass, three extra passes, one final pass, each over both locales
	if len(f.calls) != 10 {
		t.Fatalf("expected 10 calls, got %d", len(f.calls))
	}
	if len(res.Projects) != 20 {
		t.Errorf("expected 20 unique projects, got %d", len(res.Projects))
	}
	for i, c := range f.calls[:8] {
		if c.focus != Themes[i%len(Themes)] {
			t.Errorf("call %d: expected theme %q, got %q", i, Themes[i%len(Themes)], c.focus)
		}
	}
	for _, c := range f.calls[8:] {
		if c.focus != "" {
			t.Errorf("expected final round without theme, got %q", c.focus)
		}
	}
	if f.calls[2].target != 80 {
		t.Errorf("expected extra pass to target the shortfall of 80, got %d", f.calls[2].target)
	}
}

func TestCollectExclusionWindow(t *testing.T) {
	f := &fakeLocator{perCall: 30, fresh: true}
	agg := NewAggregator(f)
	seed := []string{"Seed A", "Seed B"}

	if _, err := agg.Collect(context.Background(), twoLocales[:1], 1000, seed); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if f.calls[0].exclude != 2 {
		t.Errorf("expected seeded exclusions on first call, got %d", f.calls[0].exclude)
	}
	for _, c := range f.calls {
		if c.exclude > ExclusionWindow {
			t.Errorf("exclusion hint exceeded window: %d", c.exclude)
		}
	}
	if last := f.calls[len(f.calls)-1]; last.exclude != ExclusionWindow {
		t.Errorf("expected full window on last call, got %d", last.exclude)
	}
}

func TestCollectPropagatesAbort(t *testing.T) {
	f := &fakeLocator{err: fmt.Errorf("%w: operator", llm.ErrAborted)}
	agg := NewAggregator(f)

	_, err := agg.Collect(context.Background(), twoLocales, 100, nil)
	if !errors.Is(err, llm.ErrAborted) {
		t.Errorf("expected aborted error, got %v", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected collection to stop after abort, got %d calls", len(f.calls))
	}
}

func TestCollectSoftErrors(t *testing.T) {
	f := &fakeLocator{err: errors.New("boom")}
	agg := NewAggregator(f)

	res, err := agg.Collect(context.Background(), twoLocales, 5, nil)
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if res.Failures != res.Calls || res.Calls != 10 {
		t.Errorf("expected every call to fail softly, got %d failures of %d", res.Failures, res.Calls)
	}
}

func TestDiscoverMockWestYorkshire(t *testing.T) {
	rt := llm.NewRuntime(llm.Options{Guard: budget.NewGuard(0, true)})
	d := NewDiscoverer(rt)
	locales := locale.Resolve("West Yorkshire")

	res, err := d.Discover(context.Background(), locales[0], 5, nil, "")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(res.Projects) != llm.MockProjectCount {
		t.Fatalf("expected %d mock projects, got %d", llm.MockProjectCount, len(res.Projects))
	}
	for _, p := range res.Projects {
		if p.Region != "Yorkshire and the Humber" {
			t.Errorf("expected region on %q, got %q", p.Title, p.Region)
		}
	}
}

func TestDiscoverUnknownThemeDropped(t *testing.T) {
	gen := &recordingGenerator{}
	d := NewDiscoverer(gen)

	if _, err := d.Discover(context.Background(), locale.Locale{Name: "Wales", Region: "Wales"}, 5, []string{"Old Scheme"}, "spaceports"); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if gen.req.Meta["focus"] != "" {
		t.Errorf("expected unknown theme dropped, got %q", gen.req.Meta["focus"])
	}
	if !gen.req.WebSearch {
		t.Error("expected web search enabled")
	}
}

type recordingGenerator struct {
	req llm.Request
}

func (r *recordingGenerator) GenerateContent(_ context.Context, _ string, req llm.Request) (*llm.Response, error) {
	r.req = req
	return &llm.Response{Text: `{"projects": [{"title": "Cardiff Crossrail", "region": "wales"}], "summary": "one"}`}, nil
}
