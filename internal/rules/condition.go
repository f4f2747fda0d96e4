// Package rules provides belief conditions, weighted rules and influence
// rule sets: the logistic scoring model each side of an exchange uses to
// decide whether to desire or accept it.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/predicate"
)

// Condition maps a belief store and a (subject, target) pair to a value that
// should lie in [0,1].
type Condition interface {
	Evaluate(store *belief.Store, subject, target predicate.AgentID) float64
	// Template returns the predicate template the condition reads, or the
	// zero template when it reads none.
	Template() predicate.Template
}

// Polarity is implemented by conditions whose truth moves acceptance in a
// fixed direction. Sign is +1 when the predicate being true raises the rule
// probability and -1 when it lowers it.
type Polarity interface {
	Sign() float64
}

// Has returns the stored probability of a predicate.
type Has struct {
	Predicate predicate.Template
}

func (c Has) Evaluate(store *belief.Store, subject, target predicate.AgentID) float64 {
	return store.Get(c.Predicate, subject, target)
}

func (c Has) Template() predicate.Template { return c.Predicate }

func (c Has) Sign() float64 { return 1 }

// HasNot returns one minus the stored probability of a predicate.
type HasNot struct {
	Predicate predicate.Template
}

func (c HasNot) Evaluate(store *belief.Store, subject, target predicate.AgentID) float64 {
	return 1 - store.Get(c.Predicate, subject, target)
}

func (c HasNot) Template() predicate.Template { return c.Predicate }

func (c HasNot) Sign() float64 { return -1 }

// Constant ignores state and returns a fixed calibration value.
type Constant struct {
	Value float64
}

func (c Constant) Evaluate(*belief.Store, predicate.AgentID, predicate.AgentID) float64 {
	return c.Value
}

func (c Constant) Template() predicate.Template { return predicate.Template{} }

// Built-in condition kinds.
const (
	KindHas      = "has"
	KindHasNot   = "has_not"
	KindConstant = "constant"
)

// ConditionSpec is the declarative, serialisable form of a condition.
type ConditionSpec struct {
	Kind      string              `json:"kind"`
	Predicate *predicate.Template `json:"predicate,omitempty"`
	Value     float64             `json:"value,omitempty"`
}

// Describer is implemented by conditions that can render themselves as a spec.
type Describer interface {
	Spec() ConditionSpec
}

func (c Has) Spec() ConditionSpec {
	t := c.Predicate
	return ConditionSpec{Kind: KindHas, Predicate: &t}
}

func (c HasNot) Spec() ConditionSpec {
	t := c.Predicate
	return ConditionSpec{Kind: KindHasNot, Predicate: &t}
}

func (c Constant) Spec() ConditionSpec {
	return ConditionSpec{Kind: KindConstant, Value: c.Value}
}

// DecodeFunc builds a condition from its spec.
type DecodeFunc func(ConditionSpec) (Condition, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]DecodeFunc{}
)

func init() {
	Register(KindHas, func(s ConditionSpec) (Condition, error) {
		if s.Predicate == nil {
			return nil, fmt.Errorf("condition %q: missing predicate", s.Kind)
		}
		return Has{Predicate: *s.Predicate}, nil
	})
	Register(KindHasNot, func(s ConditionSpec) (Condition, error) {
		if s.Predicate == nil {
			return nil, fmt.Errorf("condition %q: missing predicate", s.Kind)
		}
		return HasNot{Predicate: *s.Predicate}, nil
	})
	Register(KindConstant, func(s ConditionSpec) (Condition, error) {
		return Constant{Value: s.Value}, nil
	})
}

// Register makes a condition kind decodable. Registering a kind twice
// replaces the earlier decoder.
func Register(kind string, fn DecodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = fn
}

// Kinds returns the registered condition kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Decode builds a condition from a spec using the registered decoder.
func Decode(spec ConditionSpec) (Condition, error) {
	registryMu.RLock()
	fn, ok := registry[spec.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown condition kind %q", spec.Kind)
	}
	return fn(spec)
}

// Describe renders a condition as a spec.
func Describe(c Condition) (ConditionSpec, error) {
	d, ok := c.(Describer)
	if !ok {
		return ConditionSpec{}, fmt.Errorf("condition %T cannot be described", c)
	}
	return d.Spec(), nil
}
