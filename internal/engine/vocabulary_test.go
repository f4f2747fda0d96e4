package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/npc-cif/internal/predicate"
)

func TestVocabulary_AddTrait(t *testing.T) {
	sim := buildTest(t, 2, 1)

	sim.AddTrait("brave", "cowardly")
	sim.AddTrait("brave")
	assert.Equal(t, []string{"kind", "grumpy", "brave"}, sim.Vocabulary.Traits)
	assert.Equal(t, []string{"cowardly"}, sim.Vocabulary.TraitOpposites["brave"])

	sim.AddRelationship("rival", "ally")
	assert.True(t, sim.Vocabulary.HasRelationship("rival"))
	assert.Equal(t, []string{"ally"}, sim.Vocabulary.RelationshipOpposites["rival"])
}

func TestVocabulary_RemovePurgesBeliefs(t *testing.T) {
	sim := buildTest(t, 3, 1)
	for _, a := range sim.Agents {
		a.Beliefs.Update(kind.Instantiate(a.ID, predicate.NoAgent), 0.9)
		a.Beliefs.Update(ally.Instantiate(a.ID, a.ID%3+1), 0.7)
	}

	removed := sim.RemoveTrait("kind")
	assert.Equal(t, 3, removed)
	assert.False(t, sim.Vocabulary.HasTrait("kind"))
	assert.NotContains(t, sim.Vocabulary.TraitOpposites, "kind")
	for _, a := range sim.Agents {
		_, ok := a.Beliefs.Lookup(kind, a.ID, predicate.NoAgent)
		assert.False(t, ok)
	}

	assert.GreaterOrEqual(t, sim.RemoveRelationship("ally"), 3)
	assert.False(t, sim.Vocabulary.HasRelationship("ally"))
	for _, a := range sim.Agents {
		_, ok := a.Beliefs.Lookup(ally, a.ID, a.ID%3+1)
		assert.False(t, ok)
		for _, b := range a.Beliefs.Beliefs() {
			assert.NotEqual(t, "ally", b.Predicate.Template.Subtype, "%s still holds %s", a.Name, b.Predicate)
		}
	}
}
