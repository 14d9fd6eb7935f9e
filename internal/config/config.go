// Package config loads hoofctx configuration.
//
// Configuration is a single YAML file, by default ~/.hoofctx/config.yaml.
// Values in the file are layered over Default(), and Normalize clamps every
// field to its documented bounds, so a partial or sloppy file still yields a
// usable configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/lexicon"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/rules"
)

// DirName is the per-user directory holding the config file and database.
const DirName = ".hoofctx"

// Config is the complete hoofctx configuration.
type Config struct {
	// DatabasePath is the SQLite file. Empty means DirName/hoofctx.db in the
	// home directory.
	DatabasePath string `yaml:"database_path"`

	Bundle     BundleConfig     `yaml:"bundle"`
	Rules      RulesConfig      `yaml:"rules"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Persona    PersonaConfig    `yaml:"persona"`
	ActiveWork ActiveWorkConfig `yaml:"active_work"`
	Directory  DirectoryConfig  `yaml:"directory"`

	// Lexicon overrides the embedded word lists. Non-empty lists replace the
	// defaults.
	Lexicon lexicon.Lexicon `yaml:"lexicon"`
}

// BundleConfig sizes context bundles.
type BundleConfig struct {
	DefaultBudget int                `yaml:"default_budget"`
	Split         budget.Percentages `yaml:"split"`
}

// RulesConfig controls global-rule selection.
type RulesConfig struct {
	Mode            rules.SelectionMode `yaml:"mode"`
	Routing         rules.RoutingConfig `yaml:"routing"`
	RecommendMax    int                 `yaml:"recommend_max"`
	WarnThreshold   int                 `yaml:"warn_threshold"`
	SummaryEnabled  bool                `yaml:"summary_enabled"`
	SummaryMinCount int                 `yaml:"summary_min_count"`
}

// RetrievalConfig controls memory search.
type RetrievalConfig struct {
	Boosts retrieval.Boosts `yaml:"boosts"`
}

// PersonaConfig overrides persona weight tables per persona.
type PersonaConfig struct {
	Weights persona.Tables `yaml:"weights"`
}

// ActiveWorkConfig controls active-work inference and the sweep.
type ActiveWorkConfig struct {
	// Policy applies to workspaces without their own stored policy.
	Policy model.ActiveWorkPolicy `yaml:"policy"`
	// SweepConcurrency is how many projects the sweep recomputes at once.
	SweepConcurrency int `yaml:"sweep_concurrency"`
	// DebugCandidates is how many candidates debug bundles show.
	DebugCandidates int `yaml:"debug_candidates"`
}

// DirectoryConfig controls workspace and project lookups.
type DirectoryConfig struct {
	// CacheTTL is how long resolved workspaces stay cached. Zero disables
	// the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Bounds.
const (
	maxPercent          = 100
	maxSliceMin         = 5000
	maxTopK             = 50
	minDebugCandidates  = 8
	maxDebugCandidates  = 12
	maxSweepConcurrency = 32
	maxWeight           = 10
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bundle: BundleConfig{
			DefaultBudget: 4000,
			Split:         budget.DefaultPercentages(),
		},
		Rules: RulesConfig{
			Mode: rules.ModeScore,
			Routing: rules.RoutingConfig{
				Enabled:  true,
				Mode:     rules.RoutingHybrid,
				TopK:     5,
				MinScore: 0.15,
			},
			RecommendMax:    12,
			WarnThreshold:   20,
			SummaryEnabled:  true,
			SummaryMinCount: 8,
		},
		Retrieval: RetrievalConfig{
			Boosts: retrieval.Boosts{
				Subpath: 0.15,
				Types: map[string]float64{
					model.MemoryDecision:   0.05,
					model.MemoryConstraint: 0.05,
				},
			},
		},
		ActiveWork: ActiveWorkConfig{
			Policy:           model.DefaultActiveWorkPolicy(),
			SweepConcurrency: 1,
			DebugCandidates:  10,
		},
		Directory: DirectoryConfig{CacheTTL: 5 * time.Minute},
	}
}

// DefaultPath returns ~/.hoofctx/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// Load reads the config file at path over Default() and normalizes it. An
// empty path means DefaultPath, where a missing file is not an error; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.Normalize()
		return cfg, nil
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize clamps every value to its bounds and replaces invalid enums
// with defaults.
func (c *Config) Normalize() {
	def := Default()

	c.Bundle.DefaultBudget = budget.ClampTotal(c.Bundle.DefaultBudget)
	s := &c.Bundle.Split
	if s.WorkspaceRules <= 0 && s.UserRules <= 0 && s.ProjectSnapshot <= 0 && s.Retrieval <= 0 {
		floor := s.Min
		*s = def.Bundle.Split
		if floor > 0 {
			s.Min = floor
		}
	}
	s.WorkspaceRules = clampFloat(s.WorkspaceRules, 0, maxPercent)
	s.UserRules = clampFloat(s.UserRules, 0, maxPercent)
	s.ProjectSnapshot = clampFloat(s.ProjectSnapshot, 0, maxPercent)
	s.Retrieval = clampFloat(s.Retrieval, 0, maxPercent)
	if s.Min <= 0 {
		s.Min = def.Bundle.Split.Min
	}
	s.Min = clampInt(s.Min, 1, maxSliceMin)

	r := &c.Rules
	r.Mode = rules.ParseSelectionMode(string(r.Mode))
	r.Routing.Mode = rules.ParseRoutingMode(string(r.Routing.Mode))
	if r.Routing.TopK <= 0 {
		r.Routing.TopK = def.Rules.Routing.TopK
	}
	r.Routing.TopK = clampInt(r.Routing.TopK, 1, maxTopK)
	r.Routing.MinScore = clampFloat(r.Routing.MinScore, 0, 1)
	r.RecommendMax = max(r.RecommendMax, 0)
	r.WarnThreshold = max(r.WarnThreshold, 0)
	r.SummaryMinCount = max(r.SummaryMinCount, 1)

	b := &c.Retrieval.Boosts
	b.Subpath = clampFloat(b.Subpath, 0, 1)
	for k, v := range b.Types {
		b.Types[k] = clampFloat(v, 0, 1)
	}

	if len(c.Persona.Weights) > 0 {
		tables := make(persona.Tables, len(c.Persona.Weights))
		for name, w := range c.Persona.Weights {
			p, ok := persona.Parse(string(name))
			if !ok {
				continue
			}
			for k, v := range w {
				w[k] = clampFloat(v, 0, maxWeight)
			}
			tables[p] = w
		}
		c.Persona.Weights = tables
	}

	a := &c.ActiveWork
	a.Policy = a.Policy.Normalize()
	a.SweepConcurrency = clampInt(a.SweepConcurrency, 1, maxSweepConcurrency)
	if a.DebugCandidates == 0 {
		a.DebugCandidates = def.ActiveWork.DebugCandidates
	}
	a.DebugCandidates = clampInt(a.DebugCandidates, minDebugCandidates, maxDebugCandidates)

	if c.Directory.CacheTTL < 0 {
		c.Directory.CacheTTL = 0
	}
}

// ResolveDatabasePath returns DatabasePath, defaulting to the home
// directory.
func (c *Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, DirName, "hoofctx.db"), nil
}

// Words returns the embedded lexicon with the configured overrides.
func (c *Config) Words() *lexicon.Lexicon {
	return lexicon.Default().Merge(c.Lexicon)
}

// PersonaTables returns the default weight tables with overrides applied.
func (c *Config) PersonaTables() persona.Tables {
	return persona.DefaultTables().Merge(c.Persona.Weights)
}

// RuleOptions returns the selection options shared by every scope.
func (c *Config) RuleOptions() rules.Options {
	return rules.Options{
		Mode:            c.Rules.Mode,
		Routing:         c.Rules.Routing,
		RecommendMax:    c.Rules.RecommendMax,
		WarnThreshold:   c.Rules.WarnThreshold,
		SummaryEnabled:  c.Rules.SummaryEnabled,
		SummaryMinCount: c.Rules.SummaryMinCount,
	}
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
