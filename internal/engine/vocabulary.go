package engine

import (
	"log/slog"
	"slices"

	"github.com/talgya/npc-cif/internal/predicate"
)

// Vocabulary is the registered set of trait and relationship subtypes with
// their mutually exclusive opposites.
type Vocabulary struct {
	Traits                []string            `json:"traits"`
	Relationships         []string            `json:"relationships"`
	TraitOpposites        map[string][]string `json:"trait_opposites,omitempty"`
	RelationshipOpposites map[string][]string `json:"relationship_opposites,omitempty"`
}

// HasTrait reports whether name is a registered trait.
func (v *Vocabulary) HasTrait(name string) bool {
	return slices.Contains(v.Traits, name)
}

// HasRelationship reports whether name is a registered relationship.
func (v *Vocabulary) HasRelationship(name string) bool {
	return slices.Contains(v.Relationships, name)
}

// AddTrait registers a trait. Any opposites given replace its opposite set.
func (s *Simulation) AddTrait(name string, opposites ...string) {
	v := &s.Vocabulary
	if !v.HasTrait(name) {
		v.Traits = append(v.Traits, name)
	}
	if len(opposites) > 0 {
		if v.TraitOpposites == nil {
			v.TraitOpposites = make(map[string][]string)
		}
		v.TraitOpposites[name] = slices.Clone(opposites)
	}
}

// RemoveTrait unregisters a trait and purges it from every agent's beliefs.
// Returns the number of beliefs removed.
func (s *Simulation) RemoveTrait(name string) int {
	v := &s.Vocabulary
	v.Traits = slices.DeleteFunc(v.Traits, func(t string) bool { return t == name })
	delete(v.TraitOpposites, name)
	return s.purge(predicate.KindTrait, name)
}

// AddRelationship registers a relationship. Any opposites given replace its
// opposite set.
func (s *Simulation) AddRelationship(name string, opposites ...string) {
	v := &s.Vocabulary
	if !v.HasRelationship(name) {
		v.Relationships = append(v.Relationships, name)
	}
	if len(opposites) > 0 {
		if v.RelationshipOpposites == nil {
			v.RelationshipOpposites = make(map[string][]string)
		}
		v.RelationshipOpposites[name] = slices.Clone(opposites)
	}
}

// RemoveRelationship unregisters a relationship and purges it from every
// agent's beliefs. Returns the number of beliefs removed.
func (s *Simulation) RemoveRelationship(name string) int {
	v := &s.Vocabulary
	v.Relationships = slices.DeleteFunc(v.Relationships, func(r string) bool { return r == name })
	delete(v.RelationshipOpposites, name)
	return s.purge(predicate.KindRelationship, name)
}

func (s *Simulation) purge(kind, subtype string) int {
	removed := 0
	for _, a := range s.Agents {
		removed += a.Beliefs.Remove(kind, subtype)
	}
	s.updateStats()
	slog.Info("vocabulary entry removed", "kind", kind, "subtype", subtype, "beliefs_purged", removed)
	return removed
}
