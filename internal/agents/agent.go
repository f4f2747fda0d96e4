package agents

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/inference"
	"github.com/talgya/npc-cif/internal/predicate"
)

// EstimateBeliefAbout returns a private clone of the beliefs a holds whose
// subject is other. It stands in for what a thinks other believes.
func (a *Agent) EstimateBeliefAbout(other predicate.AgentID) *belief.Store {
	return a.Beliefs.About(other)
}

// DesireFormation scores every playable (target, template) pair and returns
// the candidates ordered by descending score.
func (a *Agent) DesireFormation(targets []*Agent, templates []*exchange.Template) ([]Volition, error) {
	var volitions []Volition

	for _, r := range targets {
		if r.ID == a.ID {
			continue
		}
		estimate := a.EstimateBeliefAbout(r.ID)
		for _, tpl := range templates {
			ex := tpl.Instantiate(a.ID, r.ID)
			if !ex.IsPlayable(a.Beliefs) {
				continue
			}

			pi, err := ex.InitiatorProbability(a.Beliefs)
			if err != nil {
				return nil, fmt.Errorf("%s desire for %s: %w", a.Name, ex, err)
			}
			pr, err := ex.ResponderProbability(estimate)
			if err != nil {
				return nil, fmt.Errorf("%s desire for %s: %w", a.Name, ex, err)
			}

			score := pi * pr * max(a.desireWeight(ex.Intent.Template.Subtype, r.Name), MinDesireMultiplier)
			volitions = append(volitions, Volition{Exchange: ex, Score: score})
		}
	}

	sort.SliceStable(volitions, func(i, j int) bool {
		return volitions[i].Score > volitions[j].Score
	})
	return volitions, nil
}

// desireWeight is the relation preference plus every matching goal's value.
func (a *Agent) desireWeight(relType, targetName string) float64 {
	w := a.Preferences[relType]
	for _, g := range a.Goals {
		if g.RelationType == relType && g.TargetName == targetName {
			w += g.Value
		}
	}
	return w
}

// SelectIntent picks uniformly among the candidates tied for the top score.
// Returns nil when there are none.
func SelectIntent(volitions []Volition, rng *rand.Rand) *exchange.Exchange {
	if len(volitions) == 0 {
		return nil
	}

	best := volitions[0].Score
	for _, v := range volitions[1:] {
		if v.Score > best {
			best = v.Score
		}
	}

	var ties []*exchange.Exchange
	for _, v := range volitions {
		if v.Score == best {
			ties = append(ties, v.Exchange)
		}
	}
	return ties[rng.Intn(len(ties))]
}

// Perform resolves ex against responderStore and applies its effects to a's
// own beliefs.
func (a *Agent) Perform(ex *exchange.Exchange, responderStore *belief.Store) error {
	return ex.Perform(a.Beliefs, responderStore)
}

// Iterate runs one decision cycle: desire formation, selection and perform.
// responderStores supplies the responders' real stores; a target missing from
// it is read live. Returns nil when nothing is playable.
func (a *Agent) Iterate(targets []*Agent, templates []*exchange.Template, responderStores map[predicate.AgentID]*belief.Store, rng *rand.Rand) (*exchange.Exchange, error) {
	volitions, err := a.DesireFormation(targets, templates)
	if err != nil {
		return nil, err
	}
	ex := SelectIntent(volitions, rng)
	if ex == nil {
		return nil, nil
	}

	store, ok := responderStores[ex.Responder]
	if !ok {
		for _, t := range targets {
			if t.ID == ex.Responder {
				store = t.Beliefs
				break
			}
		}
	}
	if err := a.Perform(ex, store); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name, err)
	}
	return ex, nil
}

// ObserveExchanges revises a's beliefs from a batch of resolved exchanges and
// returns the number of beliefs written. Exchanges a took part in are skipped.
func (a *Agent) ObserveExchanges(done []*exchange.Exchange) int {
	written := 0
	for _, ex := range done {
		if ex.Involves(a.ID) {
			continue
		}
		n, err := inference.Observe(a.Beliefs, ex)
		if err != nil {
			slog.Warn("skipping belief update", "agent", a.Name, "exchange", ex.Name(), "error", err)
			continue
		}
		written += n
	}
	return written
}

// Traits returns a's single-arity beliefs about itself.
func (a *Agent) Traits() []belief.Belief {
	return a.Beliefs.TraitsAbout(a.ID)
}

// TraitsAbout returns a's single-arity beliefs about other.
func (a *Agent) TraitsAbout(other predicate.AgentID) []belief.Belief {
	return a.Beliefs.TraitsAbout(other)
}

// RelationshipsAbout returns a's relational beliefs about the ordered pair.
func (a *Agent) RelationshipsAbout(subject, target predicate.AgentID) []belief.Belief {
	return a.Beliefs.RelationshipsAbout(subject, target)
}
