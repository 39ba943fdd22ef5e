package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/budget"
	"github.com/TobiSchelling/infratracker/internal/connector"
	"github.com/TobiSchelling/infratracker/internal/database"
	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/discovery"
	"github.com/TobiSchelling/infratracker/internal/evidence"
	"github.com/TobiSchelling/infratracker/internal/fetch"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/metrics"
	"github.com/TobiSchelling/infratracker/internal/model"
	"github.com/TobiSchelling/infratracker/internal/rag"
	"github.com/TobiSchelling/infratracker/internal/staging"
)

// RAG modes.
const (
	ModeEvaluate = "evaluate"
	ModeScore    = "score"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	Source     string
	Steps      []StepResult
	Projects   []model.Project
	Processed  int
	Failed     int
	StagedPath string
	Budget     string
}

// Options are the per-run knobs, resolved from config and flags.
type Options struct {
	Locale      string
	MinFetch    int
	Limit       int
	Concurrency int
	MaxEvidence int
	Stage       bool
	RAGMode     string
	// Since filters connector records by their updatedAt.
	Since *time.Time
}

// Deps are the collaborators a run uses. Store may be nil when staging.
type Deps struct {
	Generator  llm.Generator
	Guard      *budget.Guard
	Store      database.Store
	Connectors []connector.Connector
	Stager     *staging.Stager
	Fetcher    *fetch.ExcerptFetcher
	Metrics    *metrics.Metrics
}

// Pipeline runs discovery, evidence gathering, RAG evaluation and
// persistence for one batch.
type Pipeline struct {
	opts Options
	deps Deps

	discoverer discovery.Locator
	gatherer   *evidence.Gatherer
	evaluator  *rag.Evaluator
	scorer     *rag.Scorer
	now        func() time.Time

	mu       sync.Mutex
	existing map[string]string
}

// New creates a new pipeline.
func New(opts Options, deps Deps) *Pipeline {
	if deps.Guard == nil {
		deps.Guard = budget.Unlimited()
	}
	if opts.RAGMode == "" {
		opts.RAGMode = ModeEvaluate
	}
	return &Pipeline{
		opts:       opts,
		deps:       deps,
		discoverer: discovery.NewDiscoverer(deps.Generator),
		gatherer:   evidence.NewGatherer(deps.Generator),
		evaluator:  rag.NewEvaluator(deps.Generator),
		scorer:     rag.NewScorer(deps.Generator),
		now:        time.Now,
	}
}

// Run executes one batch: connectors, discovery, merge, the worker pool
// and finally staging when requested.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if !p.opts.Stage && p.deps.Store == nil {
		return nil, fmt.Errorf("no datastore configured and staging disabled")
	}

	locales := locale.Resolve(p.opts.Locale)
	r := &Result{RunID: uuid.NewString(), Source: locale.Label(locales)}
	zap.S().Infof("Run %s for %s: %d locale(s), %s", r.RunID, r.Source, len(locales), p.deps.Guard.Summary())

	// Step 1: Connectors
	zap.S().Info("Step 1/5: Fetching connector projects...")
	fromConnectors := connector.FetchAll(ctx, p.deps.Connectors, p.opts.Since)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Connectors",
		Summary: fmt.Sprintf("%d projects from %d connectors", len(fromConnectors), len(p.deps.Connectors)),
	})

	// Step 2: Discovery
	exclude := make([]string, 0, len(fromConnectors))
	for _, c := range fromConnectors {
		exclude = append(exclude, c.Title)
	}
	var discovered []model.Candidate
	if p.opts.MinFetch > 0 {
		zap.S().Info("Step 2/5: Discovering projects...")
		agg, err := discovery.NewAggregator(p.discoverer).Collect(ctx, locales, p.opts.MinFetch, exclude)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Discovery", Err: err})
			return r, fmt.Errorf("discovery: %w", err)
		}
		discovered = agg.Projects
		r.Steps = append(r.Steps, StepResult{
			Name:    "Discovery",
			Summary: fmt.Sprintf("%d unique projects from %d calls (%d failed, per-locale target %d)", len(agg.Projects), agg.Calls, agg.Failures, agg.Target),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Discovery", Summary: "Skipped (min-fetch 0)"})
	}

	// Step 3: Merge
	zap.S().Info("Step 3/5: Merging candidates...")
	candidates := dedupe.MergeCandidates(fromConnectors, discovered)
	merged := len(candidates)
	if p.opts.Limit > 0 && len(candidates) > p.opts.Limit {
		candidates = candidates[:p.opts.Limit]
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("%d candidates after dedupe, %d queued", merged, len(candidates)),
	})

	// Step 4: Process
	zap.S().Infof("Step 4/5: Processing %d projects with %d workers...", len(candidates), ClampConcurrency(p.opts.Concurrency))
	if p.deps.Store != nil && !p.opts.Stage {
		existing, err := p.deps.Store.ExistingTitles(ctx)
		if err != nil {
			return r, fmt.Errorf("loading existing titles: %w", err)
		}
		p.existing = existing
	}

	var projectsMu sync.Mutex
	failed, err := runPool(ctx, candidates, p.opts.Concurrency,
		func(c model.Candidate) string { return c.Title },
		func(ctx context.Context, c model.Candidate) error {
			project, err := p.process(ctx, c)
			if err != nil {
				return err
			}
			projectsMu.Lock()
			r.Projects = append(r.Projects, *project)
			projectsMu.Unlock()
			return nil
		})
	r.Processed = len(r.Projects)
	r.Failed = failed
	r.Steps = append(r.Steps, StepResult{
		Name:    "Process",
		Summary: fmt.Sprintf("%d processed, %d failed", r.Processed, r.Failed),
		Err:     err,
	})
	if err != nil {
		return r, err
	}

	// Step 5: Stage
	if p.opts.Stage {
		zap.S().Info("Step 5/5: Staging results...")
		path, err := p.deps.Stager.Stage(r.Projects, r.Source)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Stage", Err: err})
			return r, err
		}
		r.StagedPath = path
		r.Steps = append(r.Steps, StepResult{Name: "Stage", Summary: "Staged to " + path})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Stage", Summary: "Skipped (committed directly)"})
	}

	r.Budget = p.deps.Guard.Summary()
	zap.S().Infof("Run complete: %d processed, %d failed. %s", r.Processed, r.Failed, r.Budget)
	return r, nil
}

// DryRun shows what would be done without calling out or writing.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	locales := locale.Resolve(p.opts.Locale)
	r := &Result{Source: locale.Label(locales)}

	names := make([]string, 0, len(p.deps.Connectors))
	for _, c := range p.deps.Connectors {
		names = append(names, c.Name())
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Connectors",
		Summary: fmt.Sprintf("[dry-run] Would read %d connectors: %s", len(names), strings.Join(names, ", ")),
	})
	r.Steps = append(r.Steps, StepResult{
		Name: "Discovery",
		Summary: fmt.Sprintf("[dry-run] Would discover %d projects over %d locales (per-locale target %d)",
			p.opts.MinFetch, len(locales), discovery.PerLocaleTarget(p.opts.MinFetch, len(locales))),
	})

	known := "unknown"
	if p.deps.Store != nil {
		if titles, err := p.deps.Store.ExistingTitles(ctx); err == nil {
			known = fmt.Sprintf("%d", len(titles))
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Process",
		Summary: fmt.Sprintf("[dry-run] %d workers, %s projects already stored, %s", ClampConcurrency(p.opts.Concurrency), known, p.deps.Guard.Summary()),
	})
	if p.opts.Stage {
		r.Steps = append(r.Steps, StepResult{Name: "Stage", Summary: "[dry-run] Would stage to " + p.deps.Stager.Dir()})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Stage", Summary: "[dry-run] Would commit directly"})
	}
	return r
}

func (p *Pipeline) process(ctx context.Context, c model.Candidate) (*model.Project, error) {
	area := c.Region
	if c.LocalAuthority != "" {
		area = c.LocalAuthority
		if c.Region != "" {
			area += ", " + c.Region
		}
	}

	gathered, err := p.gatherer.Gather(ctx, c.Title, c.Description, area, p.opts.MaxEvidence)
	if err != nil {
		return nil, err
	}

	items := dedupe.Evidence(append(append([]model.Evidence(nil), c.Evidence...), gathered.Evidence...))
	if p.deps.Fetcher != nil {
		p.deps.Fetcher.Enrich(ctx, items)
	}

	project := &model.Project{
		ID:          model.Slugify(c.Title),
		Authority:   c.LocalAuthority,
		Name:        c.Title,
		Description: c.Description,
		StatusLabel: c.Status,
		Region:      c.Region,
		Source:      c.Source,
		URL:         c.URL,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		Evidence:    items,
		LastUpdated: p.now().UTC(),
	}
	if project.Latitude != nil && project.Longitude != nil {
		project.LocationSource = c.Source
		project.LocationConfidence = model.ConfidenceMedium
	} else {
		project.Latitude, project.Longitude = nil, nil
		project.ApplyLocation(gathered.ProjectLocation)
	}

	if p.opts.RAGMode == ModeScore {
		project.RAGStatus = p.scorer.Score(ctx, project)
		project.StatusRationale = gathered.Summary
	} else {
		eval, err := p.evaluator.Evaluate(ctx, project)
		if err != nil {
			return nil, err
		}
		project.RAGStatus = eval.Status
		project.StatusRationale = eval.Rationale
		if project.StatusRationale == "" {
			project.StatusRationale = gathered.Summary
		}
		if project.Latitude == nil {
			project.ApplyLocation(eval.Location)
		}
	}

	p.recordEvidence(items)
	p.deps.Metrics.ProjectProcessed(string(project.RAGStatus))

	if !p.opts.Stage {
		if err := p.persist(ctx, project); err != nil {
			return nil, err
		}
	}

	zap.L().Info("project processed",
		zap.String("project", project.Name),
		zap.String("status", string(project.RAGStatus)),
		zap.Int("evidence", len(items)),
	)
	return project, nil
}

// persist adopts the id of an equivalently titled stored project so a
// re-run updates rather than duplicates it.
func (p *Pipeline) persist(ctx context.Context, project *model.Project) error {
	key := dedupe.NormalizeTitle(project.Name)
	p.mu.Lock()
	if id, ok := p.existing[key]; ok {
		project.ID = id
	} else if p.existing != nil {
		p.existing[key] = project.ID
	}
	p.mu.Unlock()

	if _, err := database.SaveProject(ctx, p.deps.Store, project); err != nil {
		return fmt.Errorf("saving %s: %w", project.Name, err)
	}
	return nil
}

func (p *Pipeline) recordEvidence(items []model.Evidence) {
	counts := make(map[string]int)
	for _, e := range items {
		origin := e.GatheredBy
		if i := strings.Index(origin, ":"); i >= 0 {
			origin = origin[:i]
		}
		if origin == "" {
			origin = model.GatheredByAI
		}
		counts[origin]++
	}
	for origin, n := range counts {
		p.deps.Metrics.EvidenceGathered(origin, n)
	}
}
