package rules

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/predicate"
)

// Rule evaluation errors. Both specific errors wrap ErrRuleEvaluation.
var (
	ErrRuleEvaluation = errors.New("rule evaluation")
	ErrNoConditions   = fmt.Errorf("%w: rule has no conditions", ErrRuleEvaluation)
	ErrConditionRange = fmt.Errorf("%w: condition value outside [0,1]", ErrRuleEvaluation)
)

// Logistic is the sigmoid 1/(1+e^-x).
func Logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Rule is a named conjunction of conditions with a real weight.
type Rule struct {
	Name       string
	Conditions []Condition
	Weight     float64
}

// Probability is the product of all condition outputs.
func (r *Rule) Probability(store *belief.Store, subject, target predicate.AgentID) (float64, error) {
	if len(r.Conditions) == 0 {
		return 0, fmt.Errorf("rule %q: %w", r.Name, ErrNoConditions)
	}
	prob := 1.0
	for i, c := range r.Conditions {
		v := c.Evaluate(store, subject, target)
		if v < 0 || v > 1 || math.IsNaN(v) {
			return 0, fmt.Errorf("rule %q condition %d = %g: %w", r.Name, i, v, ErrConditionRange)
		}
		prob *= v
	}
	return prob, nil
}

// InfluenceRuleSet is one side's psychological model for an exchange.
type InfluenceRuleSet struct {
	Name  string
	Rules []*Rule
}

// NewInfluenceRuleSet creates a rule set from the given rules.
func NewInfluenceRuleSet(name string, rules ...*Rule) *InfluenceRuleSet {
	return &InfluenceRuleSet{Name: name, Rules: rules}
}

// Add appends rules to the set. Only call during configuration.
func (irs *InfluenceRuleSet) Add(rules ...*Rule) {
	irs.Rules = append(irs.Rules, rules...)
}

// ExpectedValue is the weighted sum of rule probabilities.
func (irs *InfluenceRuleSet) ExpectedValue(store *belief.Store, subject, target predicate.AgentID) (float64, error) {
	sum := 0.0
	for _, r := range irs.Rules {
		p, err := r.Probability(store, subject, target)
		if err != nil {
			return 0, fmt.Errorf("rule set %q: %w", irs.Name, err)
		}
		sum += r.Weight * p
	}
	return sum, nil
}

// AcceptanceProbability is Logistic(ExpectedValue + bias), in (0,1).
func (irs *InfluenceRuleSet) AcceptanceProbability(store *belief.Store, subject, target predicate.AgentID, bias float64) (float64, error) {
	ev, err := irs.ExpectedValue(store, subject, target)
	if err != nil {
		return 0, err
	}
	return Logistic(ev + bias), nil
}

// Templates returns the distinct predicate templates read by any condition
// of any rule, in first-seen order. Conditions that read nothing are skipped.
func (irs *InfluenceRuleSet) Templates() []predicate.Template {
	var out []predicate.Template
	seen := make(map[predicate.Template]bool)
	for _, r := range irs.Rules {
		for _, c := range r.Conditions {
			t := c.Template()
			if t.IsZero() || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
