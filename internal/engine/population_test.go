package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
)

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BuildConfig)
	}{
		{"no traits", func(c *BuildConfig) { c.Traits = nil }},
		{"no relationships", func(c *BuildConfig) { c.Relationships = nil }},
		{"no exchanges", func(c *BuildConfig) { c.Exchanges = nil }},
		{"zero agents", func(c *BuildConfig) { c.Count = 0 }},
		{"too few names", func(c *BuildConfig) { c.Count = 4; c.Names = c.Names[:3] }},
		{"bad probability", func(c *BuildConfig) { c.Traits[0].Probability = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3)
			tt.mutate(&cfg)
			sim, err := Build(cfg, rand.New(rand.NewSource(1)))
			assert.ErrorIs(t, err, ErrConfig)
			assert.Nil(t, sim)
		})
	}
}

func TestBuild_KindAndGrumpyNeverBoth(t *testing.T) {
	cfg := testConfig(6)
	cfg.Traits = []Weighted{{"kind", 1.0}, {"grumpy", 1.0}}

	for seed := int64(0); seed < 100; seed++ {
		sim, err := Build(cfg, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		for _, a := range sim.Agents {
			k := a.Beliefs.Get(kind, a.ID, predicate.NoAgent)
			g := a.Beliefs.Get(predicate.Trait("grumpy"), a.ID, predicate.NoAgent)
			assert.False(t, k == 1.0 && g == 1.0, "seed %d: %s holds both", seed, a.Name)
			assert.True(t, k == 1.0 || g == 1.0, "seed %d: %s holds neither", seed, a.Name)
		}
	}
}

func TestBuild_OppositesListedOnOneSideOnly(t *testing.T) {
	cfg := testConfig(4)
	cfg.Traits = []Weighted{{"kind", 1.0}, {"grumpy", 1.0}}
	cfg.TraitOpposites = map[string][]string{"grumpy": {"kind"}}

	for seed := int64(0); seed < 50; seed++ {
		sim, err := Build(cfg, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		for _, a := range sim.Agents {
			assert.Len(t, a.Traits(), 1, "seed %d", seed)
		}
	}
}

func TestBuild_RelationshipsForOrderedPairs(t *testing.T) {
	cfg := testConfig(4)
	cfg.Relationships = []Weighted{{"ally", 1.0}}

	sim, err := Build(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, sim.Agents, 4)

	for i, a := range sim.Agents {
		assert.Equal(t, predicate.AgentID(i+1), a.ID)
		assert.Equal(t, cfg.Names[i], a.Name)
		for _, b := range sim.Agents {
			if a.ID == b.ID {
				assert.Empty(t, a.RelationshipsAbout(a.ID, a.ID))
				continue
			}
			assert.Equal(t, 1.0, a.Beliefs.Get(ally, a.ID, b.ID))
			assert.Equal(t, 0.5, a.Beliefs.Get(ally, b.ID, a.ID), "agents only seed beliefs about their own relations")
		}
	}
}

func TestBuild_ZeroProbabilityNeverAssigned(t *testing.T) {
	cfg := testConfig(3)
	cfg.Traits = []Weighted{{"kind", 0}}
	cfg.Relationships = []Weighted{{"ally", 0}}

	sim, err := Build(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Zero(t, sim.Stats.BeliefsHeld)
}

func TestBuild_Vocabulary(t *testing.T) {
	sim := buildTest(t, 2, 1)
	assert.Equal(t, []string{"kind", "grumpy"}, sim.Vocabulary.Traits)
	assert.Equal(t, []string{"ally", "enemy"}, sim.Vocabulary.Relationships)
	assert.Equal(t, []string{"kind"}, sim.Vocabulary.TraitOpposites["grumpy"])
	assert.Equal(t, []string{"ally"}, sim.Vocabulary.RelationshipOpposites["enemy"])
}

func TestBuild_DoesNotShareExchangeSlice(t *testing.T) {
	cfg := testConfig(2)
	sim, err := Build(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	sim.AddTemplate(&exchange.Template{Name: "extra"})
	assert.Len(t, cfg.Exchanges, 1)
}

func TestSymmetrize(t *testing.T) {
	got := symmetrize(map[string][]string{
		"kind":  {"grumpy", "cruel", "kind"},
		"cruel": {"kind"},
	})
	assert.ElementsMatch(t, []string{"grumpy", "cruel"}, got["kind"])
	assert.Equal(t, []string{"kind"}, got["grumpy"])
	assert.Equal(t, []string{"kind"}, got["cruel"])
}
