package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/budget"
	"github.com/TobiSchelling/infratracker/internal/connector"
	"github.com/TobiSchelling/infratracker/internal/database"
	"github.com/TobiSchelling/infratracker/internal/fetch"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/metrics"
	"github.com/TobiSchelling/infratracker/internal/pipeline"
	"github.com/TobiSchelling/infratracker/internal/staging"
)

// --- run command ---

var (
	dryRun        bool
	runLocale     string
	minFetch      int
	limit         int
	concurrency   int
	maxLLMCalls   int
	noLLM         bool
	connectors    []string
	stage         bool
	modelOverride string
	provider      string
	ragMode       string
	since         string
	fetchExcerpts bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch: connectors -> discovery -> merge -> evidence + RAG -> store or stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyLLMFlags(cmd)

		var cutoff *time.Time
		if since != "" {
			t, err := time.Parse("2006-01-02", since)
			if err != nil {
				return fmt.Errorf("invalid --since %q, want YYYY-MM-DD: %w", since, err)
			}
			cutoff = &t
		}

		opts := pipelineOptions(cmd)
		opts.Since = cutoff

		b, err := newBatch(opts, nil)
		if err != nil {
			return err
		}
		defer b.close()

		var result *pipeline.Result
		if dryRun {
			result = b.pipe.DryRun(cmd.Context())
		} else {
			result, err = b.pipe.Run(cmd.Context())
		}
		printResult(result)
		if err != nil {
			return err
		}

		if !dryRun {
			if result.StagedPath != "" {
				fmt.Println("\nBatch staged. Review it, then run 'infratracker commit-staged'.")
			} else {
				fmt.Println("\nRun complete! Run 'infratracker serve' to view the dashboard.")
			}
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	f.StringVar(&since, "since", "", "Only take connector records updated on or after this date (YYYY-MM-DD)")
	addBatchFlags(runCmd)
}

// addBatchFlags registers the flags shared by run and loop.
func addBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runLocale, "locale", "", "Locale to search: a region, sub-region or UK-wide (default from config)")
	f.IntVar(&minFetch, "min-fetch", 0, "Minimum unique projects to discover (default from config)")
	f.IntVar(&limit, "limit", 0, "Process at most this many projects (0 = all)")
	f.IntVar(&concurrency, "concurrency", 0, "Concurrent workers, 1-10 (default from config)")
	f.IntVar(&maxLLMCalls, "max-llm-calls", 0, "LLM call budget for the batch (0 = unlimited)")
	f.BoolVar(&noLLM, "no-llm", false, "Disable LLM calls and use offline responses")
	f.StringSliceVar(&connectors, "connector", nil, "Connectors to run by name (default: every enabled one)")
	f.BoolVar(&stage, "stage", false, "Write results to a staging file instead of the datastore")
	f.StringVar(&modelOverride, "model", "", "Model override for the active provider")
	f.StringVar(&provider, "provider", "", "LLM provider: gemini or openai")
	f.StringVar(&ragMode, "rag-mode", "", "RAG mode: evaluate or score")
	f.BoolVar(&fetchExcerpts, "fetch-excerpts", false, "Download source pages to fill empty evidence excerpts")
}

// applyLLMFlags folds provider flags into the loaded config.
func applyLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("provider") {
		cfg.LLM.Provider = provider
	}
	if f.Changed("model") {
		if llm.ParseKind(cfg.LLM.Provider) == llm.OpenAI {
			cfg.LLM.OpenAI.Model = modelOverride
		} else {
			cfg.LLM.Gemini.Model = modelOverride
		}
	}
	if f.Changed("max-llm-calls") {
		cfg.LLM.MaxCalls = maxLLMCalls
	}
	if f.Changed("no-llm") {
		cfg.LLM.NoLLM = noLLM
	}
	if llm.ParseKind(cfg.LLM.Provider) == llm.Mock {
		cfg.LLM.NoLLM = true
	}
}

// pipelineOptions merges config defaults with explicitly set flags.
func pipelineOptions(cmd *cobra.Command) pipeline.Options {
	f := cmd.Flags()
	opts := pipeline.Options{
		Locale:      cfg.Discovery.Locale,
		MinFetch:    cfg.Discovery.MinFetch,
		Limit:       cfg.Discovery.Limit,
		Concurrency: cfg.Pipeline.Concurrency,
		MaxEvidence: cfg.Evidence.MaxItems,
		Stage:       cfg.Pipeline.Staging,
		RAGMode:     cfg.Pipeline.RAGMode,
	}
	if f.Changed("locale") {
		opts.Locale = runLocale
	}
	if f.Changed("min-fetch") {
		opts.MinFetch = minFetch
	}
	if f.Changed("limit") {
		opts.Limit = limit
	}
	if f.Changed("concurrency") {
		opts.Concurrency = concurrency
	}
	if f.Changed("stage") {
		opts.Stage = stage
	}
	if f.Changed("rag-mode") {
		opts.RAGMode = ragMode
	}
	if f.Changed("fetch-excerpts") {
		cfg.Evidence.FetchExcerpts = fetchExcerpts
	}
	return opts
}

// batch is one wired pipeline plus the resources it holds open.
type batch struct {
	pipe *pipeline.Pipeline
	db   *database.DB
}

func (b *batch) close() {
	if b.db != nil {
		b.db.Close()
	}
}

// newBatch wires a pipeline with a fresh LLM budget. The datastore is only
// opened when results are committed directly.
func newBatch(opts pipeline.Options, m *metrics.Metrics) (*batch, error) {
	switch opts.RAGMode {
	case "", pipeline.ModeEvaluate, pipeline.ModeScore:
	default:
		return nil, fmt.Errorf("unknown rag mode %q, want %s or %s", opts.RAGMode, pipeline.ModeEvaluate, pipeline.ModeScore)
	}

	conns, err := connector.FromConfig(cfg.Connectors, connectors)
	if err != nil {
		return nil, err
	}

	guard := budget.NewGuard(cfg.LLM.MaxCalls, cfg.LLM.NoLLM)
	deps := pipeline.Deps{
		Generator:  newRuntime(guard, m),
		Guard:      guard,
		Connectors: conns,
		Stager:     staging.NewStager(cfg.StagingPath()),
		Metrics:    m,
	}
	if cfg.Evidence.FetchExcerpts {
		deps.Fetcher = fetch.NewExcerptFetcher(0)
	}

	b := &batch{}
	if !opts.Stage {
		b.db, err = openDB()
		if err != nil {
			return nil, err
		}
		deps.Store = b.db
	}
	b.pipe = pipeline.New(opts, deps)
	return b, nil
}

// newRuntime registers every provider that has an API key.
func newRuntime(guard *budget.Guard, m *metrics.Metrics) *llm.Runtime {
	var providers []llm.Provider
	if g := llm.NewGeminiProvider(cfg.LLM.Gemini.APIKeyEnv); g.IsConfigured() {
		providers = append(providers, g)
	}
	if o := llm.NewOpenAIProvider(cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.APIKeyEnv); o.IsConfigured() {
		providers = append(providers, o)
	}
	if len(providers) == 0 && !guard.Disabled() {
		zap.S().Warnf("No LLM API key set (%s, %s); using offline responses",
			cfg.LLM.Gemini.APIKeyEnv, cfg.LLM.OpenAI.APIKeyEnv)
	}

	opts := llm.Options{
		Active: llm.ParseKind(cfg.LLM.Provider),
		Models: llm.ModelResolver{
			Overrides: map[llm.Kind]string{
				llm.Gemini: cfg.LLM.Gemini.Model,
				llm.OpenAI: cfg.LLM.OpenAI.Model,
			},
			Environment: cfg.LLM.Environment,
			Defaults: map[llm.Kind]map[string]string{
				llm.Gemini: cfg.LLM.Gemini.Models,
				llm.OpenAI: cfg.LLM.OpenAI.Models,
			},
		},
		Guard:  guard,
		Policy: llm.SelectPolicy(os.Stdin, os.Stderr),
	}
	if m != nil {
		opts.Observer = m
	}
	return llm.NewRuntime(opts, providers...)
}

func printResult(result *pipeline.Result) {
	if result == nil {
		return
	}
	fmt.Printf("\nSource: %s\n", result.Source)
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	if result.Budget != "" {
		fmt.Printf("\n%s\n", result.Budget)
	}
}

// --- loop command ---

var (
	loopInterval   time.Duration
	incrementalMin int
	iterations     int
	metricsAddr    string
)

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Run a backfill batch, then incremental batches on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyLLMFlags(cmd)
		ctx := cmd.Context()

		interval := cfg.Pipeline.LoopInterval
		if cmd.Flags().Changed("interval") {
			interval = loopInterval
		}
		if interval <= 0 {
			return fmt.Errorf("loop interval must be positive, got %v", interval)
		}

		m := metrics.New()
		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: m.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.S().Errorf("Metrics server: %v", err)
				}
			}()
			defer srv.Close()
			zap.S().Infof("Serving metrics on http://%s/metrics", metricsAddr)
		}

		opts := pipelineOptions(cmd)
		var lastStart *time.Time
		for pass := 0; iterations == 0 || pass <= iterations; pass++ {
			start := time.Now().UTC()
			if pass > 0 {
				opts.MinFetch = incrementalMin
				opts.Since = lastStart
			}
			kind := "Backfill"
			if pass > 0 {
				kind = fmt.Sprintf("Incremental pass %d", pass)
			}
			zap.S().Infof("%s starting (min-fetch %d)", kind, opts.MinFetch)

			if err := runBatch(ctx, opts, m); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, llm.ErrAborted) {
					return err
				}
				zap.S().Errorf("%s failed: %v", kind, err)
			}
			lastStart = &start

			if iterations != 0 && pass == iterations {
				break
			}
			zap.S().Infof("Next pass in %v", interval)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		return nil
	},
}

func init() {
	f := loopCmd.Flags()
	f.DurationVar(&loopInterval, "interval", 24*time.Hour, "Time between incremental passes (default from config)")
	f.IntVar(&incrementalMin, "incremental-min", 10, "Discovery target for incremental passes")
	f.IntVar(&iterations, "iterations", 0, "Incremental passes to run before exiting (0 = until interrupted)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. 127.0.0.1:9090")
	addBatchFlags(loopCmd)
}

func runBatch(ctx context.Context, opts pipeline.Options, m *metrics.Metrics) error {
	b, err := newBatch(opts, m)
	if err != nil {
		return err
	}
	defer b.close()

	result, err := b.pipe.Run(ctx)
	printResult(result)
	return err
}
