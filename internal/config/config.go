// Package config loads a simulation configuration directory: vocabularies,
// run settings and exchange templates from YAML, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/exchange"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// File names inside a configuration directory.
const (
	TraitsFile           = "traits.yaml"
	RelationshipsFile    = "relationships.yaml"
	SettingsFile         = "config.yaml"
	ExchangesFile        = "exchanges.yaml"
	ExchangesExampleFile = "exchanges_example.yaml"
)

// Settings holds run parameters from config.yaml.
type Settings struct {
	// N is the number of agents to build.
	N int `json:"n" yaml:"n"`

	// Seed feeds every random source of a run.
	Seed int64 `json:"seed" yaml:"seed"`

	// Ticks is the default tick count for step and run.
	Ticks int `json:"ticks" yaml:"ticks"`

	// LogLevel is "info" (default), "debug" or "trace".
	LogLevel string `json:"log_level" yaml:"log_level"`

	// DBPath is the SQLite file for saved simulations.
	DBPath string `json:"db_path" yaml:"db_path"`

	// APIPort is the HTTP port for the run command; 0 disables the API.
	APIPort int `json:"api_port" yaml:"api_port"`

	// GoalsPerAgent random relationship goals are given to each agent by
	// the new command.
	GoalsPerAgent int `json:"goals_per_agent" yaml:"goals_per_agent"`

	// Preferences is every agent's desire weight per relationship type.
	Preferences map[string]float64 `json:"preferences" yaml:"preferences"`

	// AdminKey guards mutating API routes. Environment only.
	AdminKey string `json:"-" yaml:"-"`
}

// Vocabulary is the content of traits.yaml or relationships.yaml.
type Vocabulary struct {
	Probabilities Weights             `yaml:"probabilities"`
	Opposites     map[string]NameList `yaml:"opposites"`
}

// OppositeMap flattens Opposites for the builder.
func (v Vocabulary) OppositeMap() map[string][]string {
	out := make(map[string][]string, len(v.Opposites))
	for k, names := range v.Opposites {
		out[k] = []string(names)
	}
	return out
}

// Config is a loaded configuration directory.
type Config struct {
	Dir           string
	Settings      Settings
	Traits        Vocabulary
	Relationships Vocabulary
	Exchanges     []*exchange.Template
	ExchangesPath string
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		N:        5,
		Seed:     1,
		Ticks:    10,
		LogLevel: "info",
		DBPath:   "cifsim.db",
		APIPort:  8080,
	}
}

// Load reads every file of a configuration directory, applies environment
// overrides and validates the result.
// Order: defaults -> config.yaml -> environment variables
func Load(dir string) (*Config, error) {
	cfg := &Config{Dir: dir, Settings: DefaultSettings()}

	if err := readYAML(filepath.Join(dir, SettingsFile), &cfg.Settings, true); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, TraitsFile), &cfg.Traits, false); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, RelationshipsFile), &cfg.Relationships, false); err != nil {
		return nil, err
	}

	cfg.ExchangesPath = exchangesPath(dir)
	templates, err := LoadExchanges(cfg.ExchangesPath)
	if err != nil {
		return nil, err
	}
	cfg.Exchanges = templates

	applyEnvOverrides(&cfg.Settings)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads the env file named by CIFSIM_ENV (default .env) and its
// .secret sidecar. Missing files are ignored.
func LoadEnv() {
	envFile := os.Getenv("CIFSIM_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")
}

// exchangesPath prefers exchanges.yaml and falls back to the example file
// when it is missing or empty.
func exchangesPath(dir string) string {
	p := filepath.Join(dir, ExchangesFile)
	if info, err := os.Stat(p); err == nil && info.Size() > 0 {
		return p
	}
	return filepath.Join(dir, ExchangesExampleFile)
}

func readYAML(path string, into any, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Validate checks that the configuration can build a simulation.
func (c *Config) Validate() error {
	if c.Settings.N < 1 {
		return fmt.Errorf("%w: n must be at least 1, got %d", ErrInvalid, c.Settings.N)
	}
	if c.Settings.Ticks < 0 {
		return fmt.Errorf("%w: ticks must be non-negative, got %d", ErrInvalid, c.Settings.Ticks)
	}
	if c.Settings.GoalsPerAgent < 0 {
		return fmt.Errorf("%w: goals_per_agent must be non-negative, got %d", ErrInvalid, c.Settings.GoalsPerAgent)
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Settings.LogLevel] {
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug, trace)", ErrInvalid, c.Settings.LogLevel)
	}
	if len(c.Traits.Probabilities) == 0 {
		return fmt.Errorf("%w: %s has no probabilities", ErrInvalid, TraitsFile)
	}
	if len(c.Relationships.Probabilities) == 0 {
		return fmt.Errorf("%w: %s has no probabilities", ErrInvalid, RelationshipsFile)
	}
	for _, w := range append(append(Weights{}, c.Traits.Probabilities...), c.Relationships.Probabilities...) {
		if w.Probability < 0 || w.Probability > 1 {
			return fmt.Errorf("%w: %q probability %g outside [0,1]", ErrInvalid, w.Name, w.Probability)
		}
	}
	for rel, w := range c.Settings.Preferences {
		if !c.Relationships.Probabilities.Has(rel) {
			return fmt.Errorf("%w: preference for unknown relationship %q", ErrInvalid, rel)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: preference %s=%g outside [0,1]", ErrInvalid, rel, w)
		}
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("%w: %s has no exchanges", ErrInvalid, filepath.Base(c.ExchangesPath))
	}
	return nil
}

// ToBuildConfig returns the builder input for this configuration. names
// must hold at least Settings.N entries.
func (c *Config) ToBuildConfig(names []string) engine.BuildConfig {
	return engine.BuildConfig{
		Traits:                []engine.Weighted(c.Traits.Probabilities),
		Relationships:         []engine.Weighted(c.Relationships.Probabilities),
		Exchanges:             c.Exchanges,
		Names:                 names,
		Count:                 c.Settings.N,
		TraitOpposites:        c.Traits.OppositeMap(),
		RelationshipOpposites: c.Relationships.OppositeMap(),
	}
}

// applyEnvOverrides applies environment variable overrides to the settings.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("CIFSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Seed = n
		}
	}
	if v := os.Getenv("CIFSIM_DB"); v != "" {
		s.DBPath = v
	}
	if v := os.Getenv("CIFSIM_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("CIFSIM_GOALS_PER_AGENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.GoalsPerAgent = n
		}
	}
	if v := os.Getenv("CIFSIM_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.APIPort = n
		}
	}
	s.AdminKey = os.Getenv("CIFSIM_ADMIN_KEY")
}
