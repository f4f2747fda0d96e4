// Package predicate provides the typed facts agents hold beliefs about.
// A Template names a fact ("trait:kind", "relationship:ally"); a Predicate
// binds a template to one agent or an ordered pair of agents.
package predicate

import "fmt"

// AgentID is a stable handle for an agent. Predicates refer to agents only
// through handles, never through the agent record itself.
type AgentID uint64

// NoAgent marks the absent target of a single-arity predicate.
const NoAgent AgentID = 0

// Standard namespaces.
const (
	KindTrait        = "trait"
	KindRelationship = "relationship"
)

// Arity says whether a predicate is about one agent or about an ordered pair.
type Arity uint8

const (
	Single     Arity = 0
	Relational Arity = 1
)

func (a Arity) String() string {
	if a == Single {
		return "single"
	}
	return "relational"
}

// Template is an immutable (kind, subtype, arity) triple.
type Template struct {
	Kind    string `json:"kind"`
	Subtype string `json:"subtype"`
	Arity   Arity  `json:"arity"`
}

// Trait returns the single-arity template for a trait name.
func Trait(name string) Template {
	return Template{Kind: KindTrait, Subtype: name, Arity: Single}
}

// Relationship returns the relational template for a relationship name.
func Relationship(name string) Template {
	return Template{Kind: KindRelationship, Subtype: name, Arity: Relational}
}

// Matches reports whether all three fields are equal.
func (t Template) Matches(other Template) bool {
	return t == other
}

// IsZero reports whether t is the zero template (reads no fact).
func (t Template) IsZero() bool {
	return t == Template{}
}

// IsSingle reports whether t is about a single agent.
func (t Template) IsSingle() bool {
	return t.Arity == Single
}

// Instantiate binds t to subject and, for relational templates, target.
func (t Template) Instantiate(subject, target AgentID) Predicate {
	if t.IsSingle() {
		target = NoAgent
	}
	return Predicate{Template: t, Subject: subject, Target: target}
}

func (t Template) String() string {
	return t.Kind + ":" + t.Subtype
}

// Predicate is a template bound to a subject and optional target.
type Predicate struct {
	Template Template `json:"template"`
	Subject  AgentID  `json:"subject"`
	Target   AgentID  `json:"target,omitempty"`
}

// Key is the composite index key of a predicate.
type Key struct {
	Kind    string
	Subtype string
	Arity   Arity
	Subject AgentID
	Target  AgentID
}

// KeyFor builds the index key for template t about subject (and target).
// The target is ignored for single-arity templates.
func KeyFor(t Template, subject, target AgentID) Key {
	if t.IsSingle() {
		target = NoAgent
	}
	return Key{Kind: t.Kind, Subtype: t.Subtype, Arity: t.Arity, Subject: subject, Target: target}
}

// Key returns the composite index key of p.
func (p Predicate) Key() Key {
	return KeyFor(p.Template, p.Subject, p.Target)
}

// Equal compares kind, subtype, subject and target. The originating
// template's arity is not part of identity.
func (p Predicate) Equal(other Predicate) bool {
	return p.Template.Kind == other.Template.Kind &&
		p.Template.Subtype == other.Template.Subtype &&
		p.Subject == other.Subject &&
		p.Target == other.Target
}

// MatchesTemplate reports whether p was bound from a template equal to t.
func (p Predicate) MatchesTemplate(t Template) bool {
	return p.Template.Matches(t)
}

func (p Predicate) String() string {
	if p.Template.IsSingle() {
		return fmt.Sprintf("%s(%d)", p.Template, p.Subject)
	}
	return fmt.Sprintf("%s(%d,%d)", p.Template, p.Subject, p.Target)
}
