package exchange

import (
	"fmt"
	"sync"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/predicate"
)

// Effect mutates a belief store once an exchange resolves.
type Effect interface {
	Apply(store *belief.Store, subject, target predicate.AgentID)
	Spec() EffectSpec
}

// Built-in effect kinds.
const (
	EffectAdd    = "add"
	EffectRemove = "remove"
)

// EffectSpec is the declarative, serialisable form of an effect.
type EffectSpec struct {
	Kind        string             `json:"kind"`
	Predicate   predicate.Template `json:"predicate"`
	Probability float64            `json:"probability"`
}

// AddPredicate records the predicate at a fixed probability (default 1.0).
type AddPredicate struct {
	Predicate   predicate.Template
	Probability float64
}

// NewAddPredicate returns an add effect at probability 1.0.
func NewAddPredicate(t predicate.Template) AddPredicate {
	return AddPredicate{Predicate: t, Probability: 1.0}
}

func (e AddPredicate) Apply(store *belief.Store, subject, target predicate.AgentID) {
	store.Update(e.Predicate.Instantiate(subject, target), e.Probability)
}

func (e AddPredicate) Spec() EffectSpec {
	return EffectSpec{Kind: EffectAdd, Predicate: e.Predicate, Probability: e.Probability}
}

// RemovePredicate records disbelief in the predicate (default 0.0). The key
// stays in the store; a 0.0 belief is not the same as an unknown one.
type RemovePredicate struct {
	Predicate   predicate.Template
	Probability float64
}

// NewRemovePredicate returns a remove effect at probability 0.0.
func NewRemovePredicate(t predicate.Template) RemovePredicate {
	return RemovePredicate{Predicate: t}
}

func (e RemovePredicate) Apply(store *belief.Store, subject, target predicate.AgentID) {
	store.Update(e.Predicate.Instantiate(subject, target), e.Probability)
}

func (e RemovePredicate) Spec() EffectSpec {
	return EffectSpec{Kind: EffectRemove, Predicate: e.Predicate, Probability: e.Probability}
}

// EffectDecodeFunc builds an effect from its spec.
type EffectDecodeFunc func(EffectSpec) (Effect, error)

var (
	effectsMu sync.RWMutex
	effects   = map[string]EffectDecodeFunc{
		EffectAdd: func(s EffectSpec) (Effect, error) {
			return AddPredicate{Predicate: s.Predicate, Probability: s.Probability}, nil
		},
		EffectRemove: func(s EffectSpec) (Effect, error) {
			return RemovePredicate{Predicate: s.Predicate, Probability: s.Probability}, nil
		},
	}
)

// RegisterEffect makes an effect kind decodable.
func RegisterEffect(kind string, fn EffectDecodeFunc) {
	effectsMu.Lock()
	defer effectsMu.Unlock()
	effects[kind] = fn
}

// DecodeEffect builds an effect from a spec using the registered decoder.
func DecodeEffect(spec EffectSpec) (Effect, error) {
	effectsMu.RLock()
	fn, ok := effects[spec.Kind]
	effectsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown effect kind %q", spec.Kind)
	}
	if spec.Probability < 0 || spec.Probability > 1 {
		return nil, fmt.Errorf("effect %s %s: probability %g outside [0,1]", spec.Kind, spec.Predicate, spec.Probability)
	}
	return fn(spec)
}

// Effects holds the accept and reject effect lists of an exchange.
type Effects struct {
	Accept []Effect
	Reject []Effect
}

// ApplyAccept runs every accept effect against store.
func (e Effects) ApplyAccept(store *belief.Store, initiator, responder predicate.AgentID) {
	for _, eff := range e.Accept {
		eff.Apply(store, initiator, responder)
	}
}

// ApplyReject runs every reject effect against store.
func (e Effects) ApplyReject(store *belief.Store, initiator, responder predicate.AgentID) {
	for _, eff := range e.Reject {
		eff.Apply(store, initiator, responder)
	}
}
