// Population builder: creates the roster and seeds initial beliefs with
// mutual-exclusion ("opposite") rules.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
)

// ErrConfig is returned for unusable build inputs.
var ErrConfig = errors.New("invalid build configuration")

// Weighted is a vocabulary entry with its seeding probability.
type Weighted struct {
	Name        string  `json:"name" yaml:"name"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// BuildConfig holds everything Build needs.
type BuildConfig struct {
	Traits                []Weighted
	Relationships         []Weighted
	Exchanges             []*exchange.Template
	Names                 []string
	Count                 int
	TraitOpposites        map[string][]string
	RelationshipOpposites map[string][]string
}

// Validate checks the configuration without building anything.
func (c *BuildConfig) Validate() error {
	switch {
	case len(c.Traits) == 0:
		return fmt.Errorf("%w: at least one trait is required", ErrConfig)
	case len(c.Relationships) == 0:
		return fmt.Errorf("%w: at least one relationship is required", ErrConfig)
	case len(c.Exchanges) == 0:
		return fmt.Errorf("%w: at least one exchange template is required", ErrConfig)
	case c.Count < 1:
		return fmt.Errorf("%w: at least one agent is required, got %d", ErrConfig, c.Count)
	case len(c.Names) < c.Count:
		return fmt.Errorf("%w: %d names for %d agents", ErrConfig, len(c.Names), c.Count)
	}
	for _, w := range slices.Concat(c.Traits, c.Relationships) {
		if w.Probability < 0 || w.Probability > 1 {
			return fmt.Errorf("%w: %q probability %g outside [0,1]", ErrConfig, w.Name, w.Probability)
		}
	}
	return nil
}

// Build creates a simulation with Count agents named from Names (IDs start at
// 1) and seeds their beliefs.
//
// Traits are visited per agent in shuffled order; a trait is skipped when any
// of its opposites is already believed above 0.5, otherwise it is assigned at
// 1.0 with its configured probability. Relationships are seeded the same way
// for every ordered pair of distinct agents. Opposite maps are made symmetric
// first, so listing an exclusion on one side excludes in both directions.
func Build(cfg BuildConfig, rng *rand.Rand) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	traitOpp := symmetrize(cfg.TraitOpposites)
	relOpp := symmetrize(cfg.RelationshipOpposites)

	roster := make([]*agents.Agent, cfg.Count)
	for i := range roster {
		roster[i] = agents.New(predicate.AgentID(i+1), cfg.Names[i])
	}

	for _, a := range roster {
		seed(a.Beliefs, cfg.Traits, traitOpp, predicate.Trait, a.ID, predicate.NoAgent, rng)
	}
	for _, a := range roster {
		for _, b := range roster {
			if a.ID == b.ID {
				continue
			}
			seed(a.Beliefs, cfg.Relationships, relOpp, predicate.Relationship, a.ID, b.ID, rng)
		}
	}

	vocab := Vocabulary{
		Traits:                names(cfg.Traits),
		Relationships:         names(cfg.Relationships),
		TraitOpposites:        traitOpp,
		RelationshipOpposites: relOpp,
	}
	sim := NewSimulation(roster, slices.Clone(cfg.Exchanges), vocab)

	slog.Info("population built",
		"run_id", sim.RunID,
		"agents", len(roster),
		"traits", len(vocab.Traits),
		"relationships", len(vocab.Relationships),
		"templates", len(sim.Templates),
		"beliefs", sim.Stats.BeliefsHeld,
	)
	return sim, nil
}

func seed(store *belief.Store, vocab []Weighted, opposites map[string][]string,
	tmpl func(string) predicate.Template, subject, target predicate.AgentID, rng *rand.Rand) {
	order := slices.Clone(vocab)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, w := range order {
		excluded := false
		for _, opp := range opposites[w.Name] {
			if store.Get(tmpl(opp), subject, target) > 0.5 {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		if rng.Float64() < w.Probability {
			store.Add(tmpl(w.Name).Instantiate(subject, target), 1.0)
		}
	}
}

// symmetrize returns a copy of m where b ∈ m[a] implies a ∈ m[b].
func symmetrize(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	add := func(a, b string) {
		if a != b && !slices.Contains(out[a], b) {
			out[a] = append(out[a], b)
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, a := range keys {
		for _, b := range m[a] {
			add(a, b)
			add(b, a)
		}
	}
	return out
}

func names(ws []Weighted) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Name
	}
	return out
}
