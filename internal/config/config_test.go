package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/rules"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsNormalized(t *testing.T) {
	cfg := Default()
	before := *cfg
	cfg.Normalize()
	assert.Equal(t, before.Bundle, cfg.Bundle)
	assert.Equal(t, before.Rules, cfg.Rules)
	assert.Equal(t, before.ActiveWork, cfg.ActiveWork)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
database_path: /tmp/ctx.db
bundle:
  default_budget: 8000
rules:
  mode: recent
  routing:
    top_k: 3
active_work:
  policy:
    stale_days: 7
    auto_close_enabled: false
directory:
  cache_ttl: 30s
persona:
  weights:
    reviewer:
      constraint: 2.5
lexicon:
  trunk_branches: [main, release]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ctx.db", cfg.DatabasePath)
	assert.Equal(t, 8000, cfg.Bundle.DefaultBudget)
	assert.Equal(t, 25.0, cfg.Bundle.Split.WorkspaceRules, "unset split keeps defaults")
	assert.Equal(t, rules.ModeRecent, cfg.Rules.Mode)
	assert.Equal(t, 3, cfg.Rules.Routing.TopK)
	assert.True(t, cfg.Rules.Routing.Enabled, "unset routing.enabled keeps default")
	assert.Equal(t, 7, cfg.ActiveWork.Policy.StaleDays)
	assert.False(t, cfg.ActiveWork.Policy.AutoCloseEnabled)
	assert.Equal(t, 45, cfg.ActiveWork.Policy.AutoCloseDays)
	assert.Equal(t, 30*time.Second, cfg.Directory.CacheTTL)

	tables := cfg.PersonaTables()
	assert.Equal(t, 2.5, tables.For(persona.Reviewer).For("constraint"))
	assert.Equal(t, 1.6, tables.For(persona.Architect).For("decision"))

	words := cfg.Words()
	assert.True(t, words.IsTrunkBranch("release"))
	assert.True(t, words.IsStopWord("the"), "stop words keep defaults")
}

func TestLoad_MissingDefaultPathIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Bundle.DefaultBudget)
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "bundle: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestNormalize_Clamps(t *testing.T) {
	cfg := Default()
	cfg.Bundle.DefaultBudget = 10
	cfg.Bundle.Split.Retrieval = 250
	cfg.Bundle.Split.Min = -4
	cfg.Rules.Mode = "bogus"
	cfg.Rules.Routing.Mode = "psychic"
	cfg.Rules.Routing.TopK = 1000
	cfg.Rules.Routing.MinScore = 3
	cfg.Rules.SummaryMinCount = 0
	cfg.ActiveWork.Policy.StaleDays = 99999
	cfg.ActiveWork.SweepConcurrency = 0
	cfg.ActiveWork.DebugCandidates = 50
	cfg.Directory.CacheTTL = -time.Second
	cfg.Persona.Weights = persona.Tables{"wizard": {"note": 2}, persona.Author: {"note": -1}}

	cfg.Normalize()

	assert.Equal(t, 300, cfg.Bundle.DefaultBudget)
	assert.Equal(t, 100.0, cfg.Bundle.Split.Retrieval)
	assert.Equal(t, 80, cfg.Bundle.Split.Min)
	assert.Equal(t, rules.ModeScore, cfg.Rules.Mode)
	assert.Equal(t, rules.RoutingHybrid, cfg.Rules.Routing.Mode)
	assert.Equal(t, 50, cfg.Rules.Routing.TopK)
	assert.Equal(t, 1.0, cfg.Rules.Routing.MinScore)
	assert.Equal(t, 1, cfg.Rules.SummaryMinCount)
	assert.Equal(t, 3650, cfg.ActiveWork.Policy.StaleDays)
	assert.Equal(t, 1, cfg.ActiveWork.SweepConcurrency)
	assert.Equal(t, 12, cfg.ActiveWork.DebugCandidates)
	assert.Equal(t, time.Duration(0), cfg.Directory.CacheTTL)
	assert.NotContains(t, cfg.Persona.Weights, persona.Persona("wizard"))
	assert.Equal(t, 0.0, cfg.Persona.Weights[persona.Author]["note"])
}

func TestNormalize_AllZeroSplitGetsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Bundle.Split.WorkspaceRules = 0
	cfg.Bundle.Split.UserRules = 0
	cfg.Bundle.Split.ProjectSnapshot = 0
	cfg.Bundle.Split.Retrieval = 0
	cfg.Bundle.Split.Min = 120
	cfg.Normalize()
	assert.Equal(t, 35.0, cfg.Bundle.Split.Retrieval)
	assert.Equal(t, 120, cfg.Bundle.Split.Min)
}

func TestRuleOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.RuleOptions()
	assert.Equal(t, cfg.Rules.Routing, opts.Routing)
	assert.Equal(t, 12, opts.RecommendMax)
	assert.True(t, opts.SummaryEnabled)
}

func TestResolveDatabasePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	p, err := Default().ResolveDatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DirName, "hoofctx.db"), p)
}
