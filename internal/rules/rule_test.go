package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/predicate"
)

func TestRule_ProbabilityIsProduct(t *testing.T) {
	r := &Rule{Name: "r", Conditions: []Condition{Constant{0.2}, Constant{0.5}}, Weight: 1.0}
	p, err := r.Probability(belief.NewStore(), 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, p, 1e-12)
}

func TestRule_ProbabilityErrors(t *testing.T) {
	tests := []struct {
		name string
		rule *Rule
		want error
	}{
		{"no conditions", &Rule{Name: "empty", Weight: 1}, ErrNoConditions},
		{"above one", &Rule{Name: "hi", Conditions: []Condition{Constant{1.5}}, Weight: 1}, ErrConditionRange},
		{"below zero", &Rule{Name: "lo", Conditions: []Condition{Constant{-0.1}}, Weight: 1}, ErrConditionRange},
		{"nan", &Rule{Name: "nan", Conditions: []Condition{Constant{math.NaN()}}, Weight: 1}, ErrConditionRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rule.Probability(belief.NewStore(), 1, 2)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrRuleEvaluation)
		})
	}
}

func TestInfluenceRuleSet_AcceptanceProbability(t *testing.T) {
	r1 := &Rule{Name: "r1", Conditions: []Condition{Constant{1.0}}, Weight: 1.0}
	r2 := &Rule{Name: "r2", Conditions: []Condition{Constant{0.5}}, Weight: 2.0}
	irs := NewInfluenceRuleSet("irs", r1, r2)
	store := belief.NewStore()

	ev, err := irs.ExpectedValue(store, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ev, 1e-12)

	p, err := irs.AcceptanceProbability(store, 1, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/(1.0+math.Exp(-2.0)), p, 1e-12)

	biased, err := irs.AcceptanceProbability(store, 1, 2, -2.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, biased, 1e-12)
}

func TestInfluenceRuleSet_PropagatesRuleErrors(t *testing.T) {
	irs := NewInfluenceRuleSet("bad", &Rule{Name: "empty", Weight: 1})
	_, err := irs.AcceptanceProbability(belief.NewStore(), 1, 2, 0)
	assert.ErrorIs(t, err, ErrNoConditions)
}

func TestInfluenceRuleSet_Add(t *testing.T) {
	irs := NewInfluenceRuleSet("irs")
	r := &Rule{Name: "r", Conditions: []Condition{Constant{1}}, Weight: 1}
	irs.Add(r)
	assert.Contains(t, irs.Rules, r)
}

func TestInfluenceRuleSet_Templates(t *testing.T) {
	ally := predicate.Relationship("ally")
	kind := predicate.Trait("kind")
	irs := NewInfluenceRuleSet("irs",
		&Rule{Name: "a", Conditions: []Condition{Has{ally}, Constant{1}}, Weight: 1},
		&Rule{Name: "b", Conditions: []Condition{HasNot{ally}, Has{kind}}, Weight: 1},
	)
	assert.Equal(t, []predicate.Template{ally, kind}, irs.Templates())
}

func TestHasNot_InvertsStoredProbability(t *testing.T) {
	store := belief.NewStore()
	kind := predicate.Trait("kind")
	store.Add(kind.Instantiate(1, predicate.NoAgent), 0.7)

	c := HasNot{Predicate: kind}
	assert.InDelta(t, 0.3, c.Evaluate(store, 1, predicate.NoAgent), 1e-12)

	r := &Rule{Name: "r", Conditions: []Condition{c}, Weight: 1}
	p, err := r.Probability(store, 1, predicate.NoAgent)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, p, 1e-12)
}

func TestHas_ReadsStoreWithDefault(t *testing.T) {
	store := belief.NewStore()
	ally := predicate.Relationship("ally")
	assert.Equal(t, 0.5, Has{ally}.Evaluate(store, 1, 2))
	store.Update(ally.Instantiate(1, 2), 0.9)
	assert.Equal(t, 0.9, Has{ally}.Evaluate(store, 1, 2))
}

func TestConditionSpecs_RoundTrip(t *testing.T) {
	ally := predicate.Relationship("ally")
	for _, c := range []Condition{Has{ally}, HasNot{ally}, Constant{0.25}} {
		spec, err := Describe(c)
		require.NoError(t, err)
		got, err := Decode(spec)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

type scaled struct{ factor float64 }

func (s scaled) Evaluate(*belief.Store, predicate.AgentID, predicate.AgentID) float64 {
	return s.factor
}

func (s scaled) Template() predicate.Template { return predicate.Template{} }
func (s scaled) Spec() ConditionSpec         { return ConditionSpec{Kind: "scaled", Value: s.factor} }

func TestRegister_CustomConditionKind(t *testing.T) {
	Register("scaled", func(s ConditionSpec) (Condition, error) { return scaled{s.Value}, nil })
	assert.Contains(t, Kinds(), "scaled")

	c, err := Decode(ConditionSpec{Kind: "scaled", Value: 0.4})
	require.NoError(t, err)
	r := &Rule{Name: "r", Conditions: []Condition{c, Constant{0.5}}, Weight: 1}
	p, err := r.Probability(belief.NewStore(), 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p, 1e-12)

	_, err = Decode(ConditionSpec{Kind: "nope"})
	assert.Error(t, err)
	_, err = Decode(ConditionSpec{Kind: KindHas})
	assert.Error(t, err)
}
