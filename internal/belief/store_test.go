package belief

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cif/internal/predicate"
)

func TestStore_GetUnknownDefaultsToHalf(t *testing.T) {
	s := NewStore()
	tests := []struct {
		name    string
		tmpl    predicate.Template
		subject predicate.AgentID
		target  predicate.AgentID
	}{
		{"trait", predicate.Trait("kind"), 1, predicate.NoAgent},
		{"relationship", predicate.Relationship("ally"), 1, 2},
		{"unknown kind", predicate.Template{Kind: "mood", Subtype: "calm"}, 7, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.5, s.Get(tt.tmpl, tt.subject, tt.target))
		})
	}

	var nilStore *Store
	assert.Equal(t, 0.5, nilStore.Get(predicate.Trait("kind"), 1, 0))
}

func TestStore_UpdateRoundTrip(t *testing.T) {
	s := NewStore()
	kind := predicate.Trait("kind")
	p := kind.Instantiate(1, predicate.NoAgent)

	s.Add(p, 0.7)
	assert.Equal(t, 0.7, s.Get(kind, 1, predicate.NoAgent))
	assert.True(t, s.Contains(p))

	s.Update(p, 0.3)
	assert.Equal(t, 0.3, s.Get(kind, 1, predicate.NoAgent))
	assert.Equal(t, 1, s.Len(), "update must not duplicate the key")

	brave := predicate.Trait("brave")
	assert.Equal(t, 0.5, s.Get(brave, 1, predicate.NoAgent))
}

func TestStore_SingleArityIgnoresTarget(t *testing.T) {
	s := NewStore()
	kind := predicate.Trait("kind")
	s.Update(kind.Instantiate(1, 2), 0.9)

	assert.Equal(t, 0.9, s.Get(kind, 1, predicate.NoAgent))
	assert.Equal(t, 0.9, s.Get(kind, 1, 5))
	assert.Equal(t, predicate.NoAgent, s.Beliefs()[0].Predicate.Target)
}

func TestStore_RemoveByKindAndSubtype(t *testing.T) {
	s := NewStore()
	ally := predicate.Relationship("ally")
	kind := predicate.Trait("kind")
	s.Update(ally.Instantiate(1, 2), 1)
	s.Update(ally.Instantiate(2, 1), 1)
	s.Update(kind.Instantiate(1, 0), 1)

	removed := s.Remove(predicate.KindRelationship, "ally")

	assert.Equal(t, 2, removed)
	assert.Equal(t, 0.5, s.Get(ally, 1, 2))
	assert.Equal(t, 0.5, s.Get(ally, 2, 1))
	assert.False(t, s.Contains(ally.Instantiate(1, 2)))
	require.Len(t, s.Beliefs(), 1)
	assert.Equal(t, kind, s.Beliefs()[0].Predicate.Template)
}

func TestStore_RemoveKeepsZeroProbabilityDistinct(t *testing.T) {
	s := NewStore()
	ally := predicate.Relationship("ally")
	p := ally.Instantiate(1, 2)

	s.Update(p, 0.0)
	assert.True(t, s.Contains(p))
	assert.Equal(t, 0.0, s.Get(ally, 1, 2))
}

func TestStore_Queries(t *testing.T) {
	s := NewStore()
	s.Update(predicate.Trait("kind").Instantiate(1, 0), 1)
	s.Update(predicate.Trait("brave").Instantiate(2, 0), 1)
	s.Update(predicate.Relationship("ally").Instantiate(1, 2), 1)
	s.Update(predicate.Relationship("rival").Instantiate(1, 3), 1)

	traits := s.TraitsAbout(1)
	require.Len(t, traits, 1)
	assert.Equal(t, "kind", traits[0].Predicate.Template.Subtype)

	rels := s.RelationshipsAbout(1, 2)
	require.Len(t, rels, 1)
	assert.Equal(t, "ally", rels[0].Predicate.Template.Subtype)
	assert.Empty(t, s.RelationshipsAbout(2, 1))
}

func TestStore_AboutIsIsolatedClone(t *testing.T) {
	s := NewStore()
	kind := predicate.Trait("kind")
	ally := predicate.Relationship("ally")
	s.Update(kind.Instantiate(2, 0), 0.8)
	s.Update(ally.Instantiate(2, 1), 0.6)
	s.Update(ally.Instantiate(1, 2), 0.4)

	view := s.About(2)
	assert.Equal(t, 2, view.Len())
	assert.Equal(t, 0.5, view.Get(ally, 1, 2))

	view.Update(kind.Instantiate(2, 0), 0.1)
	assert.Equal(t, 0.8, s.Get(kind, 2, 0))
}

func TestStore_CloneIsDeep(t *testing.T) {
	s := NewStore()
	kind := predicate.Trait("kind")
	s.Update(kind.Instantiate(1, 0), 0.8)

	c := s.Clone()
	c.Update(kind.Instantiate(1, 0), 0.2)
	c.Update(predicate.Trait("brave").Instantiate(1, 0), 1)

	assert.Equal(t, 0.8, s.Get(kind, 1, 0))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, c.Len())
}

func TestStore_JSONRoundTrip(t *testing.T) {
	s := NewStore()
	s.Update(predicate.Trait("kind").Instantiate(1, 0), 0.1+0.2)
	s.Update(predicate.Relationship("ally").Instantiate(1, 2), 0.6899744811276125)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got Store
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.Beliefs(), got.Beliefs())
	assert.Equal(t, 0.1+0.2, got.Get(predicate.Trait("kind"), 1, 0))
}

func TestStore_NilReadsAreEmpty(t *testing.T) {
	var s *Store
	ally := predicate.Relationship("ally")

	assert.NotPanics(t, func() {
		_, ok := s.Lookup(ally, 1, 2)
		assert.False(t, ok)
		assert.False(t, s.Contains(ally.Instantiate(1, 2)))
		assert.Zero(t, s.Len())
		assert.Nil(t, s.Beliefs())
		assert.Zero(t, s.Remove("relationship", "ally"))
		assert.Nil(t, s.TraitsAbout(1))
		assert.Nil(t, s.RelationshipsAbout(1, 2))

		view := s.About(1)
		require.NotNil(t, view)
		assert.Zero(t, view.Len())
		view.Update(ally.Instantiate(1, 2), 0.9)
		assert.Equal(t, 1, view.Len())

		assert.Zero(t, s.Clone().Len())
	})
}
