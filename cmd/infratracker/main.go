package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/config"
	"github.com/TobiSchelling/infratracker/internal/database"
	"github.com/TobiSchelling/infratracker/internal/logging"
	"github.com/TobiSchelling/infratracker/internal/metrics"
	"github.com/TobiSchelling/infratracker/internal/model"
	"github.com/TobiSchelling/infratracker/internal/server"
	"github.com/TobiSchelling/infratracker/internal/staging"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	flushLogs  func()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if flushLogs != nil {
		flushLogs()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "infratracker",
	Short:   "UK infrastructure project tracker",
	Long:    "infratracker discovers UK infrastructure projects, gathers dated evidence about them and rates their delivery health Red/Amber/Green.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		flushLogs, err = logging.Install(level, cfg.RunLogPath())
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		zap.S().Debugf("Loaded config from %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(commitStagedCmd)
	rootCmd.AddCommand(migrateBackendCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("infratracker", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/infratracker/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the datastore, LLM provider and connectors.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show datastore and staging status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		staged, err := staging.List(cfg.StagingPath())
		if err != nil {
			return err
		}

		if db.Driver() == database.SQLite {
			fmt.Printf("Datastore: %s (sqlite)\n\n", db.Path())
		} else {
			fmt.Printf("Datastore: %s\n\n", db.Driver())
		}
		fmt.Println("Projects:")
		fmt.Printf("  Total: %d\n", stats.Projects)
		for _, status := range []model.RAGStatus{model.Red, model.Amber, model.Green} {
			fmt.Printf("  %s: %d\n", status, stats.ByRAG[status])
		}
		fmt.Printf("\nEvidence items: %d\n", stats.Evidence)
		fmt.Printf("Regions: %d, local authorities: %d\n", stats.Regions, stats.Authorities)
		fmt.Printf("\nStaged files pending: %d (%s)\n", len(staged), cfg.StagingPath())
		return nil
	},
}

// --- commit-staged command ---

var commitStagedCmd = &cobra.Command{
	Use:   "commit-staged [files...]",
	Short: "Commit staged batches to the datastore",
	Long:  "Commit staged batches to the datastore. Without arguments every file in the staging directory is committed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			var err error
			files, err = staging.List(cfg.StagingPath())
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			fmt.Printf("No staged files in %s\n", cfg.StagingPath())
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := staging.Commit(cmd.Context(), db, files)
		if err != nil {
			return err
		}

		fmt.Println("\nCommit complete:")
		fmt.Printf("  Files: %d\n", result.Files)
		fmt.Printf("  Committed: %d\n", result.Committed)
		fmt.Printf("  Skipped (already present): %d\n", result.Skipped)
		fmt.Printf("  New evidence items: %d\n", result.Evidence)
		if result.Errors > 0 {
			fmt.Printf("  Errors: %d\n", result.Errors)
		}
		return nil
	},
}

// --- migrate-backend command ---

var (
	toDriver string
	toDSN    string
)

var migrateBackendCmd = &cobra.Command{
	Use:   "migrate-backend",
	Short: "Copy all data from the configured datastore into another one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if toDSN == "" {
			return fmt.Errorf("--to-dsn is required")
		}
		src, err := openDB()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := database.Open(toDriver, toDSN)
		if err != nil {
			return fmt.Errorf("opening target datastore: %w", err)
		}
		defer dst.Close()

		result, err := database.Copy(cmd.Context(), src, dst)
		if err != nil {
			return err
		}

		fmt.Printf("\nCopied %s -> %s:\n", src.Driver(), dst.Driver())
		fmt.Printf("  Regions: %d\n", result.Regions)
		fmt.Printf("  Local authorities: %d\n", result.Authorities)
		fmt.Printf("  Projects: %d\n", result.Projects)
		fmt.Printf("  New evidence items: %d\n", result.Evidence)
		return nil
	},
}

func init() {
	migrateBackendCmd.Flags().StringVar(&toDriver, "to-driver", database.Postgres, "Target driver (sqlite or postgres)")
	migrateBackendCmd.Flags().StringVar(&toDSN, "to-dsn", "", "Target connection string or sqlite path")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), db, metrics.New().Handler(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dsn, err := cfg.DatabaseDSN()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg.Database.Driver, dsn)
}
