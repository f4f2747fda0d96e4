package agents

import (
	"fmt"
	"log/slog"
	"math/rand"
)

// AddGoal appends a goal.
func (a *Agent) AddGoal(g Goal) {
	a.Goals = append(a.Goals, g)
}

// RemoveGoal removes the first goal equal to g. Reports whether one was found.
func (a *Agent) RemoveGoal(g Goal) bool {
	for i, have := range a.Goals {
		if have == g {
			a.Goals = append(a.Goals[:i], a.Goals[i+1:]...)
			return true
		}
	}
	slog.Warn("goal not found", "agent", a.Name, "goal", g.String())
	return false
}

// ClearGoals drops every goal.
func (a *Agent) ClearGoals() {
	a.Goals = nil
	slog.Debug("goals cleared", "agent", a.Name)
}

// AddRandomGoals adds n goals, each toward a random other agent and
// relationship type, with a value drawn uniformly from [0.1, 1.0).
func (a *Agent) AddRandomGoals(others []*Agent, relationships []string, n int, rng *rand.Rand) {
	var targets []*Agent
	for _, o := range others {
		if o.ID != a.ID {
			targets = append(targets, o)
		}
	}
	if len(targets) == 0 || len(relationships) == 0 {
		return
	}

	for range n {
		g := Goal{
			TargetName:   targets[rng.Intn(len(targets))].Name,
			RelationType: relationships[rng.Intn(len(relationships))],
			Value:        0.1 + rng.Float64()*0.9,
		}
		a.AddGoal(g)
		slog.Debug("goal added", "agent", a.Name, "goal", g.String())
	}
}

// SetRelationPreference sets the desire weight for a relation type.
func (a *Agent) SetRelationPreference(relType string, w float64) error {
	if w < 0 || w > 1 {
		return fmt.Errorf("%s %s=%g: %w", a.Name, relType, w, ErrPreferenceRange)
	}
	if a.Preferences == nil {
		a.Preferences = make(map[string]float64)
	}
	a.Preferences[relType] = w
	return nil
}

// SetRelationPreferences sets several preferences. Nothing is written if any
// weight is out of range.
func (a *Agent) SetRelationPreferences(prefs map[string]float64) error {
	for relType, w := range prefs {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s %s=%g: %w", a.Name, relType, w, ErrPreferenceRange)
		}
	}
	for relType, w := range prefs {
		if err := a.SetRelationPreference(relType, w); err != nil {
			return err
		}
	}
	return nil
}
