// Package agents provides the NPC data model: identity, an owned belief store,
// relation preferences and goals, plus the decision operations that turn
// beliefs into social exchanges.
package agents

import (
	"errors"
	"fmt"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
)

// MinDesireMultiplier keeps a zero preference from eliminating a candidate.
const MinDesireMultiplier = 1e-3

// ErrPreferenceRange is returned for relation preferences outside [0,1].
var ErrPreferenceRange = errors.New("relation preference must be in [0,1]")

// Goal biases desire toward a relation type with a named target.
type Goal struct {
	TargetName   string  `json:"target_name"`
	RelationType string  `json:"relation_type"`
	Value        float64 `json:"value"`
}

func (g Goal) String() string {
	return fmt.Sprintf("%s with %s (%.2f)", g.RelationType, g.TargetName, g.Value)
}

// Volition is a scored candidate exchange.
type Volition struct {
	Exchange *exchange.Exchange
	Score    float64
}

// Agent is an NPC. Other agents are referenced only by ID; the belief store
// is owned exclusively by its agent.
type Agent struct {
	ID          predicate.AgentID  `json:"id"`
	Name        string             `json:"name"`
	Beliefs     *belief.Store      `json:"beliefs"`
	Preferences map[string]float64 `json:"preferences,omitempty"`
	Goals       []Goal             `json:"goals,omitempty"`
}

// New creates an agent with an empty belief store.
func New(id predicate.AgentID, name string) *Agent {
	return &Agent{
		ID:          id,
		Name:        name,
		Beliefs:     belief.NewStore(),
		Preferences: make(map[string]float64),
	}
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s (ID: %d)", a.Name, a.ID)
}
