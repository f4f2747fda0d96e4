// Package exchange provides social exchange templates and their per-pair
// instances. A template is immutable and shared; an Exchange adds only the
// participants, the playability check result and the one-shot outcome.
package exchange

import (
	"errors"
	"fmt"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/predicate"
	"github.com/talgya/npc-cif/internal/rules"
)

// Default thresholds.
const (
	DefaultPlayabilityThreshold = 0.4
	DefaultAcceptanceThreshold  = 0.5
)

// ErrAlreadyResolved is returned when Perform is called twice.
var ErrAlreadyResolved = errors.New("exchange already resolved")

// Template is the read-only definition of an exchange.
type Template struct {
	Name          string
	Text          string // "<initiator> {Text} <responder>"
	Preconditions []rules.Condition
	Intent        predicate.Template
	Initiator     *rules.InfluenceRuleSet
	Responder     *rules.InfluenceRuleSet
	Effects       Effects
}

// Instantiate binds the template to a concrete pair.
func (t *Template) Instantiate(initiator, responder predicate.AgentID) *Exchange {
	return &Exchange{
		Template:  t,
		Initiator: initiator,
		Responder: responder,
		Intent:    t.Intent.Instantiate(initiator, responder),
		Threshold: DefaultPlayabilityThreshold,
	}
}

// State is the lifecycle position of an exchange instance.
type State uint8

const (
	StateProposed State = iota
	StatePlayable
	StateUnplayable
	StateResolved
)

func (s State) String() string {
	switch s {
	case StatePlayable:
		return "playable"
	case StateUnplayable:
		return "unplayable"
	case StateResolved:
		return "resolved"
	default:
		return "proposed"
	}
}

// Outcome is the tri-state acceptance flag.
type Outcome uint8

const (
	OutcomeUnset Outcome = iota
	OutcomeAccepted
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unset"
	}
}

// Exchange is a template bound to an (initiator, responder) pair.
type Exchange struct {
	Template  *Template
	Initiator predicate.AgentID
	Responder predicate.AgentID
	Intent    predicate.Predicate
	Tick      uint64
	Threshold float64 // playability threshold

	state   State
	outcome Outcome
}

// Restore rebuilds a resolved exchange, e.g. from a snapshot.
func Restore(t *Template, initiator, responder predicate.AgentID, tick uint64, accepted bool) *Exchange {
	ex := t.Instantiate(initiator, responder)
	ex.Tick = tick
	ex.state = StateResolved
	ex.outcome = OutcomeRejected
	if accepted {
		ex.outcome = OutcomeAccepted
	}
	return ex
}

// Name returns the template name.
func (e *Exchange) Name() string { return e.Template.Name }

// State returns the lifecycle state.
func (e *Exchange) State() State { return e.state }

// Outcome returns the acceptance flag.
func (e *Exchange) Outcome() Outcome { return e.outcome }

// Accepted reports the outcome and whether the exchange has resolved.
func (e *Exchange) Accepted() (accepted, resolved bool) {
	return e.outcome == OutcomeAccepted, e.outcome != OutcomeUnset
}

// Involves reports whether id is the initiator or the responder.
func (e *Exchange) Involves(id predicate.AgentID) bool {
	return e.Initiator == id || e.Responder == id
}

// IsPlayable reports whether every precondition, evaluated with (initiator,
// responder) against store, reaches the playability threshold.
func (e *Exchange) IsPlayable(store *belief.Store) bool {
	playable := true
	for _, c := range e.Template.Preconditions {
		if c.Evaluate(store, e.Initiator, e.Responder) < e.Threshold {
			playable = false
			break
		}
	}
	if e.state != StateResolved {
		e.state = StateUnplayable
		if playable {
			e.state = StatePlayable
		}
	}
	return playable
}

// InitiatorProbability is the initiator's desire using its own beliefs.
func (e *Exchange) InitiatorProbability(store *belief.Store) (float64, error) {
	return e.Template.Initiator.AcceptanceProbability(store, e.Initiator, e.Responder, 0)
}

// ResponderProbability is the initiator's estimate of the responder's
// acceptance. estimate is the initiator's model of the responder's beliefs,
// not the responder's real store.
func (e *Exchange) ResponderProbability(estimate *belief.Store) (float64, error) {
	return e.Template.Responder.AcceptanceProbability(estimate, e.Responder, e.Initiator, 0)
}

// ResponderAccepts evaluates the responder's true acceptance against its own
// store.
func (e *Exchange) ResponderAccepts(store *belief.Store, threshold float64) (bool, error) {
	p, err := e.Template.Responder.AcceptanceProbability(store, e.Responder, e.Initiator, 0)
	if err != nil {
		return false, err
	}
	return p >= threshold, nil
}

// Perform resolves the exchange against the responder's real beliefs and
// applies the matching effects to store, normally the initiator's own.
func (e *Exchange) Perform(store, responderStore *belief.Store) error {
	if e.outcome != OutcomeUnset {
		return fmt.Errorf("%s(%d→%d): %w", e.Template.Name, e.Initiator, e.Responder, ErrAlreadyResolved)
	}
	ok, err := e.ResponderAccepts(responderStore, DefaultAcceptanceThreshold)
	if err != nil {
		return fmt.Errorf("%s: responder acceptance: %w", e.Template.Name, err)
	}
	if ok {
		e.Template.Effects.ApplyAccept(store, e.Initiator, e.Responder)
		e.outcome = OutcomeAccepted
	} else {
		e.Template.Effects.ApplyReject(store, e.Initiator, e.Responder)
		e.outcome = OutcomeRejected
	}
	e.state = StateResolved
	return nil
}

func (e *Exchange) String() string {
	return fmt.Sprintf("%s(%d→%d, %s)", e.Template.Name, e.Initiator, e.Responder, e.outcome)
}
