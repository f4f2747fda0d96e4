// Package belief provides the per-agent confidence map over predicates.
// An absent belief is a first-class "unknown" state read as 0.5, never an error.
package belief

import (
	"encoding/json"

	"github.com/talgya/npc-cif/internal/predicate"
)

// Unknown is the probability returned for facts the store holds no belief about.
const Unknown = 0.5

// Belief is an agent's subjective probability that a predicate holds.
type Belief struct {
	Predicate   predicate.Predicate `json:"predicate"`
	Probability float64             `json:"probability"`
	Origin      predicate.Template  `json:"origin"`
}

// Store maps composite predicate keys to beliefs. At most one belief is held
// per key; iteration follows insertion order.
type Store struct {
	beliefs []*Belief
	index   map[predicate.Key]*Belief
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[predicate.Key]*Belief)}
}

// FromBeliefs builds a store from a belief list. Later duplicates overwrite
// earlier ones.
func FromBeliefs(list []Belief) *Store {
	s := NewStore()
	for _, b := range list {
		s.set(b.Predicate, b.Probability, b.Origin)
	}
	return s
}

// Get returns the stored probability for template t about subject/target,
// or Unknown if no belief is held.
func (s *Store) Get(t predicate.Template, subject, target predicate.AgentID) float64 {
	if s == nil {
		return Unknown
	}
	if b, ok := s.index[predicate.KeyFor(t, subject, target)]; ok {
		return b.Probability
	}
	return Unknown
}

// Lookup is Get with an explicit presence flag.
func (s *Store) Lookup(t predicate.Template, subject, target predicate.AgentID) (float64, bool) {
	if s == nil {
		return Unknown, false
	}
	b, ok := s.index[predicate.KeyFor(t, subject, target)]
	if !ok {
		return Unknown, false
	}
	return b.Probability, true
}

// Update overwrites the probability of an existing belief about p or inserts
// a new one.
func (s *Store) Update(p predicate.Predicate, probability float64) {
	s.set(p, probability, p.Template)
}

// Add records a belief about p. It is the builder-facing alias of Update.
func (s *Store) Add(p predicate.Predicate, probability float64) {
	s.Update(p, probability)
}

func (s *Store) set(p predicate.Predicate, probability float64, origin predicate.Template) {
	if s.index == nil {
		s.index = make(map[predicate.Key]*Belief)
	}
	key := p.Key()
	if b, ok := s.index[key]; ok {
		b.Probability = probability
		return
	}
	if p.Template.IsSingle() {
		p.Target = predicate.NoAgent
	}
	b := &Belief{Predicate: p, Probability: probability, Origin: origin}
	s.beliefs = append(s.beliefs, b)
	s.index[key] = b
}

// Remove deletes every belief whose predicate has the given kind and subtype,
// regardless of subject and target. It returns the number removed.
func (s *Store) Remove(kind, subtype string) int {
	if s == nil {
		return 0
	}
	kept := s.beliefs[:0]
	removed := 0
	for _, b := range s.beliefs {
		if b.Predicate.Template.Kind == kind && b.Predicate.Template.Subtype == subtype {
			delete(s.index, b.Predicate.Key())
			removed++
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(s.beliefs); i++ {
		s.beliefs[i] = nil
	}
	s.beliefs = kept
	return removed
}

// Contains reports whether a belief about p is held.
func (s *Store) Contains(p predicate.Predicate) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[p.Key()]
	return ok
}

// Len returns the number of beliefs held.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.beliefs)
}

// Beliefs returns a copy of all beliefs in insertion order.
func (s *Store) Beliefs() []Belief {
	if s == nil {
		return nil
	}
	out := make([]Belief, len(s.beliefs))
	for i, b := range s.beliefs {
		out[i] = *b
	}
	return out
}

// TraitsAbout returns all single-arity beliefs about subject.
func (s *Store) TraitsAbout(subject predicate.AgentID) []Belief {
	if s == nil {
		return nil
	}
	var out []Belief
	for _, b := range s.beliefs {
		if b.Predicate.Template.IsSingle() && b.Predicate.Subject == subject {
			out = append(out, *b)
		}
	}
	return out
}

// RelationshipsAbout returns all relational beliefs about the ordered pair.
func (s *Store) RelationshipsAbout(subject, target predicate.AgentID) []Belief {
	if s == nil {
		return nil
	}
	var out []Belief
	for _, b := range s.beliefs {
		p := b.Predicate
		if !p.Template.IsSingle() && p.Subject == subject && p.Target == target {
			out = append(out, *b)
		}
	}
	return out
}

// About returns a cloned sub-view holding only beliefs whose subject is
// subject. Mutating the view never touches s.
func (s *Store) About(subject predicate.AgentID) *Store {
	view := NewStore()
	if s == nil {
		return view
	}
	for _, b := range s.beliefs {
		if b.Predicate.Subject == subject {
			view.set(b.Predicate, b.Probability, b.Origin)
		}
	}
	return view
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	c := NewStore()
	if s == nil {
		return c
	}
	c.beliefs = make([]*Belief, 0, len(s.beliefs))
	for _, b := range s.beliefs {
		cp := *b
		c.beliefs = append(c.beliefs, &cp)
		c.index[cp.Predicate.Key()] = &cp
	}
	return c
}

// MarshalJSON encodes the store as its ordered belief list.
func (s *Store) MarshalJSON() ([]byte, error) {
	list := s.Beliefs()
	if list == nil {
		list = []Belief{}
	}
	return json.Marshal(list)
}

// UnmarshalJSON rebuilds the store and its index from a belief list.
func (s *Store) UnmarshalJSON(data []byte) error {
	var list []Belief
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = *FromBeliefs(list)
	return nil
}
