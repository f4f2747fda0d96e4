package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
	"github.com/talgya/npc-cif/internal/rules"
)

var (
	ally = predicate.Relationship("ally")
	kind = predicate.Trait("kind")
)

func rule(name string, w float64, conds ...rules.Condition) *rules.Rule {
	return &rules.Rule{Name: name, Weight: w, Conditions: conds}
}

func resolved(t *testing.T, tmpl *exchange.Template, accepted bool) *exchange.Exchange {
	t.Helper()
	return exchange.Restore(tmpl, 1, 2, 1, accepted)
}

func template(ini, res *rules.InfluenceRuleSet) *exchange.Template {
	return &exchange.Template{
		Name:          "ex",
		Preconditions: []rules.Condition{rules.Constant{Value: 1}},
		Intent:        predicate.Template{Kind: "action", Subtype: "test", Arity: predicate.Relational},
		Initiator:     ini,
		Responder:     res,
	}
}

func TestEstimateLikelihood_MixedRules(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs",
		rule("r1", 1.0, rules.Has{Predicate: ally}),
		rule("r2", 0.5, rules.HasNot{Predicate: ally}),
	)
	p := rules.Logistic(1.0 - 0.5)

	tests := []struct {
		name               string
		predTrue, accepted bool
		want               float64
	}{
		{"true accepted", true, true, p},
		{"true rejected", true, false, 1 - p},
		{"false accepted", false, true, 1 - p},
		{"false rejected", false, false, p},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateLikelihood(irs, ally, tt.predTrue, tt.accepted), 1e-12)
		})
	}
}

func TestEstimateLikelihood_NoRelevantRules(t *testing.T) {
	assert.Equal(t, 0.5, EstimateLikelihood(rules.NewInfluenceRuleSet("irs"), kind, true, true))

	irs := rules.NewInfluenceRuleSet("irs", rule("c", 3, rules.Constant{Value: 1}), rule("a", 1, rules.Has{Predicate: ally}))
	assert.Equal(t, 0.5, EstimateLikelihood(irs, kind, true, false))
}

func TestPosterior_ZeroDenominatorSkips(t *testing.T) {
	got, ok := Posterior(0.3, 0, 0)
	assert.False(t, ok)
	assert.Equal(t, 0.3, got)

	got, ok = Posterior(0.5, 0.8, 0.2)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, got, 1e-12)
}

func TestObserve_AcceptedUninformedObserver(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs", rule("rule", 0.8, rules.Has{Predicate: ally}))
	observer := belief.NewStore()

	n, err := Observe(observer, resolved(t, template(irs, irs), true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := rules.Logistic(0.8)
	assert.InDelta(t, want, observer.Get(ally, 1, 2), 1e-12)
	assert.InDelta(t, want, observer.Get(ally, 2, 1), 1e-12)
}

func TestObserve_RejectedUninformedObserver(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs", rule("rule", 0.8, rules.Has{Predicate: ally}))
	observer := belief.NewStore()

	_, err := Observe(observer, resolved(t, template(irs, irs), false))
	require.NoError(t, err)

	p := rules.Logistic(0.8)
	assert.InDelta(t, p, observer.Get(ally, 1, 2), 1e-12, "initiating is a positive signal")
	assert.InDelta(t, 1-p, observer.Get(ally, 2, 1), 1e-12)
}

func TestObserve_InformedPriors(t *testing.T) {
	irsI := rules.NewInfluenceRuleSet("i",
		rule("i1", 0.8, rules.Has{Predicate: ally}),
		rule("i2", 0.2, rules.HasNot{Predicate: ally}),
	)
	irsR := rules.NewInfluenceRuleSet("r", rule("r1", 0.5, rules.Has{Predicate: ally}))

	observer := belief.NewStore()
	observer.Add(ally.Instantiate(1, 2), 0.3)
	observer.Add(ally.Instantiate(2, 1), 0.7)

	_, err := Observe(observer, resolved(t, template(irsI, irsR), false))
	require.NoError(t, err)

	li := rules.Logistic(0.8 - 0.2)
	wantI := (li * 0.3) / (li*0.3 + (1-li)*0.7)
	lr := rules.Logistic(0.5)
	wantR := ((1 - lr) * 0.7) / ((1-lr)*0.7 + lr*0.3)

	assert.InDelta(t, wantI, observer.Get(ally, 1, 2), 1e-12)
	assert.InDelta(t, wantR, observer.Get(ally, 2, 1), 1e-12)
}

func TestObserve_SingleArityOmitsTarget(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs", rule("kind", 1.0, rules.Has{Predicate: kind}))
	observer := belief.NewStore()

	_, err := Observe(observer, resolved(t, template(irs, rules.NewInfluenceRuleSet("none")), true))
	require.NoError(t, err)

	require.Equal(t, 1, observer.Len())
	b := observer.Beliefs()[0]
	assert.Equal(t, predicate.AgentID(1), b.Predicate.Subject)
	assert.Equal(t, predicate.NoAgent, b.Predicate.Target)
	assert.InDelta(t, rules.Logistic(1.0), b.Probability, 1e-12)
}

func TestObserve_ConstantConditionsWriteNothing(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs", rule("c", 2, rules.Constant{Value: 1}))
	observer := belief.NewStore()

	n, err := Observe(observer, resolved(t, template(irs, irs), true))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, observer.Len())
}

func TestObserve_Unresolved(t *testing.T) {
	irs := rules.NewInfluenceRuleSet("irs", rule("rule", 0.8, rules.Has{Predicate: ally}))
	ex := template(irs, irs).Instantiate(1, 2)

	_, err := Observe(belief.NewStore(), ex)
	assert.ErrorIs(t, err, ErrUnresolved)
}
