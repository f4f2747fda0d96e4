// Simulation ties the roster, the exchange library and the log together and
// advances them one tick at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/logging"
	"github.com/talgya/npc-cif/internal/metrics"
	"github.com/talgya/npc-cif/internal/predicate"
)

// Simulation holds the complete model state.
type Simulation struct {
	RunID      string
	Agents     []*agents.Agent
	AgentIndex map[predicate.AgentID]*agents.Agent
	Templates  []*exchange.Template // mutable library, read-only during a tick
	Vocabulary Vocabulary
	Log        []*exchange.Exchange // append-only
	LastTick   uint64               // Most recent tick processed

	Stats   SimStats
	Metrics *metrics.Recorder
}

// SimStats tracks per-tick aggregates.
type SimStats struct {
	Exchanges   int `json:"exchanges"`
	Accepted    int `json:"accepted"`
	Rejected    int `json:"rejected"`
	Revisions   int `json:"revisions"`
	BeliefsHeld int `json:"beliefs_held"`
}

// NewSimulation creates a Simulation from built components.
func NewSimulation(ag []*agents.Agent, templates []*exchange.Template, vocab Vocabulary) *Simulation {
	index := make(map[predicate.AgentID]*agents.Agent, len(ag))
	for _, a := range ag {
		index[a.ID] = a
	}
	sim := &Simulation{
		RunID:      uuid.New().String(),
		Agents:     ag,
		AgentIndex: index,
		Templates:  templates,
		Vocabulary: vocab,
	}
	sim.updateStats()
	return sim
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// Agent returns the agent with the given ID, or nil.
func (s *Simulation) Agent(id predicate.AgentID) *agents.Agent {
	return s.AgentIndex[id]
}

// AgentByName returns the first agent with the given name, or nil.
func (s *Simulation) AgentByName(name string) *agents.Agent {
	for _, a := range s.Agents {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Template returns the library template with the given name, or nil.
func (s *Simulation) Template(name string) *exchange.Template {
	for _, t := range s.Templates {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Step advances the simulation by one tick and returns the exchanges
// performed. Every decision reads the belief stores as they were at tick
// start. On error all stores are restored and the log is left untouched.
func (s *Simulation) Step(rng *rand.Rand) ([]*exchange.Exchange, error) {
	tick := s.LastTick + 1

	frozen := make(map[predicate.AgentID]*belief.Store, len(s.Agents))
	for _, a := range s.Agents {
		frozen[a.ID] = a.Beliefs.Clone()
	}

	var done []*exchange.Exchange
	for _, a := range s.Agents {
		ex, err := a.Iterate(s.Agents, s.Templates, frozen, rng)
		if err != nil {
			s.rollback(frozen)
			return nil, fmt.Errorf("tick %d: %w", tick, err)
		}
		if ex == nil {
			continue
		}
		ex.Tick = tick
		done = append(done, ex)
		slog.Log(context.Background(), logging.LevelTrace, "exchange",
			"tick", tick,
			"name", ex.Name(),
			"initiator", a.Name,
			"responder", s.AgentIndex[ex.Responder].Name,
			"outcome", ex.Outcome().String(),
		)
	}

	revisions := 0
	for _, a := range s.Agents {
		revisions += a.ObserveExchanges(done)
	}

	s.Log = append(s.Log, done...)
	s.LastTick = tick

	s.Stats = SimStats{Exchanges: len(done), Revisions: revisions}
	for _, ex := range done {
		if ex.Outcome() == exchange.OutcomeAccepted {
			s.Stats.Accepted++
		} else {
			s.Stats.Rejected++
		}
	}
	s.updateStats()
	s.Metrics.Tick(s.Stats.Accepted, s.Stats.Rejected, revisions)

	slog.Debug("tick",
		"tick", tick,
		"exchanges", s.Stats.Exchanges,
		"accepted", s.Stats.Accepted,
		"rejected", s.Stats.Rejected,
		"revisions", revisions,
	)
	return done, nil
}

// rollback restores every agent's store to its tick-start clone.
func (s *Simulation) rollback(frozen map[predicate.AgentID]*belief.Store) {
	for _, a := range s.Agents {
		a.Beliefs = frozen[a.ID]
	}
}

// ExchangesBetween returns the logged exchanges between a and b in either
// direction.
func (s *Simulation) ExchangesBetween(a, b predicate.AgentID) []*exchange.Exchange {
	var out []*exchange.Exchange
	for _, ex := range s.Log {
		if (ex.Initiator == a && ex.Responder == b) || (ex.Initiator == b && ex.Responder == a) {
			out = append(out, ex)
		}
	}
	return out
}

// AddTemplate appends a template to the library.
func (s *Simulation) AddTemplate(t *exchange.Template) {
	s.Templates = append(s.Templates, t)
}

// RemoveTemplate drops the named template from the library. Logged exchanges
// keep their reference.
func (s *Simulation) RemoveTemplate(name string) bool {
	for i, t := range s.Templates {
		if t.Name == name {
			s.Templates = append(s.Templates[:i], s.Templates[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Simulation) updateStats() {
	held := 0
	for _, a := range s.Agents {
		held += a.Beliefs.Len()
	}
	s.Stats.BeliefsHeld = held
	s.Metrics.SetAgents(len(s.Agents))
}
