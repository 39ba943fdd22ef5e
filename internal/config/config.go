package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

const (
	databaseURLEnv = "DATABASE_URL"
	environmentEnv = "INFRATRACKER_ENV"
	modelEnv       = "INFRATRACKER_MODEL"
)

type Config struct {
	Database   Database    `yaml:"database"`
	LLM        LLM         `yaml:"llm"`
	Discovery  Discovery   `yaml:"discovery"`
	Evidence   Evidence    `yaml:"evidence"`
	Pipeline   Pipeline    `yaml:"pipeline"`
	Connectors []Connector `yaml:"connectors"`
	Output     Output      `yaml:"output"`
	Server     Server      `yaml:"server"`
	Logging    Logging     `yaml:"logging"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
}

type LLM struct {
	Provider    string         `yaml:"provider"`
	Environment string         `yaml:"environment"`
	MaxCalls    int            `yaml:"max_calls"`
	NoLLM       bool           `yaml:"no_llm"`
	Gemini      ProviderConfig `yaml:"gemini"`
	OpenAI      ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKeyEnv string            `yaml:"api_key_env"`
	BaseURL   string            `yaml:"base_url"`
	Model     string            `yaml:"model"`
	Models    map[string]string `yaml:"models"`
}

type Discovery struct {
	Locale   string `yaml:"locale"`
	MinFetch int    `yaml:"min_fetch"`
	Limit    int    `yaml:"limit"`
}

type Evidence struct {
	MaxItems      int  `yaml:"max_items"`
	FetchExcerpts bool `yaml:"fetch_excerpts"`
}

type Pipeline struct {
	Concurrency  int           `yaml:"concurrency"`
	Staging      bool          `yaml:"staging"`
	StagingDir   string        `yaml:"staging_dir"`
	LoopInterval time.Duration `yaml:"loop_interval"`
	// RAGMode is "evaluate" (status, rationale and location in one call)
	// or "score" (negative-evidence rule, LLM only for ambiguous cases).
	RAGMode string `yaml:"rag_mode"`
}

// Connector configures one supplementary data source.
type Connector struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Path    string `yaml:"path"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled treats a missing enabled flag as true.
func (c Connector) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	RunLog string `yaml:"run_log"`
}

// ConfigDir returns the XDG config directory for infratracker.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "infratracker")
}

// DataDir returns the XDG data directory for infratracker.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "infratracker")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/infratracker/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'infratracker init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{Driver: "sqlite", DSNEnv: databaseURLEnv},
		LLM: LLM{
			Provider:    "gemini",
			Environment: "production",
			Gemini:      ProviderConfig{APIKeyEnv: "GEMINI_API_KEY"},
			OpenAI: ProviderConfig{
				APIKeyEnv: "OPENROUTER_API_KEY",
				BaseURL:   "https://openrouter.ai/api/v1",
			},
		},
		Discovery: Discovery{Locale: "UK-wide", MinFetch: 100},
		Evidence:  Evidence{MaxItems: 8},
		Pipeline: Pipeline{
			Concurrency:  3,
			StagingDir:   "staging",
			LoopInterval: 24 * time.Hour,
			RAGMode:      "evaluate",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Database.DSNEnv != "" {
		if v := os.Getenv(c.Database.DSNEnv); v != "" {
			c.Database.DSN = v
		}
	}
	if v := os.Getenv(environmentEnv); v != "" {
		c.LLM.Environment = v
	}
	if v := os.Getenv(modelEnv); v != "" {
		switch strings.ToLower(c.LLM.Provider) {
		case "openai", "openrouter", "chat":
			c.LLM.OpenAI.Model = v
		default:
			c.LLM.Gemini.Model = v
		}
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabaseDSN returns the connection string for the configured driver.
// The sqlite driver falls back to a file in the data directory; other
// drivers require an explicit DSN.
func (c *Config) DatabaseDSN() (string, error) {
	if c.Database.DSN != "" {
		return c.Database.DSN, nil
	}
	if c.Database.Driver == "" || c.Database.Driver == "sqlite" {
		return filepath.Join(c.GetDataDir(), "infratracker.db"), nil
	}
	return "", fmt.Errorf("no connection string for %s database; set database.dsn or %s", c.Database.Driver, c.Database.DSNEnv)
}

// RunLogPath returns the run log file location.
func (c *Config) RunLogPath() string {
	if c.Logging.RunLog != "" {
		return c.Logging.RunLog
	}
	return filepath.Join(c.GetDataDir(), "logs", "run.log")
}

// StagingPath returns the staging directory, relative paths resolved against the data dir.
func (c *Config) StagingPath() string {
	dir := c.Pipeline.StagingDir
	if dir == "" {
		dir = "staging"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.GetDataDir(), dir)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
