// Package inference provides signal interpolation: the Bayesian update an
// observer applies to its beliefs about two agents after witnessing the public
// outcome of an exchange between them.
package inference

import (
	"errors"
	"fmt"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
	"github.com/talgya/npc-cif/internal/rules"
)

// ErrUnresolved is returned when an exchange without an outcome is observed.
var ErrUnresolved = errors.New("exchange has no acceptance status")

// EstimateLikelihood returns P(observation | predicate truth) under irs.
// Matching conditions contribute sign×weight; the sum goes through the
// logistic. With no matching condition the likelihood is 0.5.
func EstimateLikelihood(irs *rules.InfluenceRuleSet, t predicate.Template, predicateTrue, wasAccepted bool) float64 {
	sum := 0.0
	matched := false
	for _, r := range irs.Rules {
		for _, c := range r.Conditions {
			if !t.Matches(c.Template()) {
				continue
			}
			pol, ok := c.(rules.Polarity)
			if !ok {
				continue
			}
			sum += pol.Sign() * r.Weight
			matched = true
		}
	}
	if !matched {
		return 0.5
	}

	p := rules.Logistic(sum)
	if predicateTrue == wasAccepted {
		return p
	}
	return 1 - p
}

// Posterior applies Bayes' rule. ok is false when the denominator is exactly
// zero, in which case the prior must be left unchanged.
func Posterior(prior, likelihoodTrue, likelihoodFalse float64) (posterior float64, ok bool) {
	num := likelihoodTrue * prior
	den := num + likelihoodFalse*(1-prior)
	if den == 0 {
		return prior, false
	}
	return num / den, true
}

// Observe revises observer's beliefs about the participants of ex and returns
// the number of beliefs written.
//
// The initiator side always reads as a positive signal: the initiator chose
// to act, which is public. The responder side reads the exchange outcome.
func Observe(observer *belief.Store, ex *exchange.Exchange) (int, error) {
	accepted, resolved := ex.Accepted()
	if !resolved {
		return 0, fmt.Errorf("%s(%d→%d): %w", ex.Name(), ex.Initiator, ex.Responder, ErrUnresolved)
	}

	n := revise(observer, ex.Template.Initiator, ex.Initiator, ex.Responder, true)
	n += revise(observer, ex.Template.Responder, ex.Responder, ex.Initiator, accepted)
	return n, nil
}

func revise(observer *belief.Store, irs *rules.InfluenceRuleSet, subject, target predicate.AgentID, signal bool) int {
	written := 0
	for _, t := range irs.Templates() {
		lTrue := EstimateLikelihood(irs, t, true, signal)
		lFalse := EstimateLikelihood(irs, t, false, signal)

		prior := observer.Get(t, subject, target)
		post, ok := Posterior(prior, lTrue, lFalse)
		if !ok {
			continue
		}
		observer.Update(t.Instantiate(subject, target), post)
		written++
	}
	return written
}
