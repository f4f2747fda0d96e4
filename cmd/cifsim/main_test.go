package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/npc-cif/internal/persistence"
)

// execute runs cifsim with args against the shipped configs and a temp db.
func execute(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CIFSIM_ENV", filepath.Join(t.TempDir(), "none.env"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", filepath.Join("..", "..", "configs"), "--db", db}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "x.db"), "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": "`+version+`"}`, out)
}

func TestNewStepShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sim.db")

	out, err := execute(t, db, "new", "-n", "4", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Built 4 agents")

	_, err = execute(t, db, "new")
	assert.ErrorContains(t, err, "--force")

	out, err = execute(t, db, "step", "--ticks", "3", "--json")
	require.NoError(t, err)
	var step struct {
		Tick uint64 `json:"tick"`
		Log  int    `json:"log"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &step))
	assert.Equal(t, uint64(3), step.Tick)

	_, err = execute(t, db, "step", "--ticks", "2")
	require.NoError(t, err)

	store, err := persistence.Open(db)
	require.NoError(t, err)
	sim, err := store.LoadSimulation()
	require.NoError(t, err)
	store.Close()
	assert.Equal(t, uint64(5), sim.LastTick)

	out, err = execute(t, db, "show", "agent", "1")
	require.NoError(t, err)
	assert.Contains(t, out, sim.Agent(1).Name)

	out, err = execute(t, db, "show", "log", "--json", "--limit", "0")
	require.NoError(t, err)
	var log []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Len(t, log, len(sim.Log))

	_, err = execute(t, db, "show", "agent", "nobody")
	assert.Error(t, err)
}

// Stepping 2+3 ticks in two invocations matches 5 in one.
func TestStep_SplitMatchesSingle(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")
	for _, db := range []string{a, b} {
		_, err := execute(t, db, "new", "-n", "4", "--seed", "9")
		require.NoError(t, err)
	}

	_, err := execute(t, a, "step", "--ticks", "5")
	require.NoError(t, err)
	_, err = execute(t, b, "step", "--ticks", "1")
	require.NoError(t, err)
	_, err = execute(t, b, "step", "--ticks", "4")
	require.NoError(t, err)

	load := func(path string) string {
		store, err := persistence.Open(path)
		require.NoError(t, err)
		defer store.Close()
		sim, err := store.LoadSimulation()
		require.NoError(t, err)
		snap, err := persistence.Capture(sim)
		require.NoError(t, err)
		snap.RunID = ""
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		return string(data)
	}
	// Run IDs differ per build; everything else must match.
	assert.Equal(t, load(a), load(b))
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src.db"), filepath.Join(dir, "dst.db")
	snap := filepath.Join(dir, "snap.json")

	_, err := execute(t, src, "new", "-n", "3")
	require.NoError(t, err)
	_, err = execute(t, src, "step", "--ticks", "2")
	require.NoError(t, err)

	_, err = execute(t, src, "export", snap)
	require.NoError(t, err)
	out, err := execute(t, dst, "import", snap)
	require.NoError(t, err)
	assert.Contains(t, out, "tick 2")

	sim, err := persistence.LoadFile(snap)
	require.NoError(t, err)
	store, err := persistence.Open(dst)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.LoadSimulation()
	require.NoError(t, err)
	assert.Equal(t, sim.RunID, got.RunID)
	assert.Len(t, got.Log, len(sim.Log))
}

func TestStep_WithoutSimulation(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "empty.db"), "step")
	assert.ErrorIs(t, err, persistence.ErrNoSnapshot)
}

func TestNew_GoalsPreferencesAndSeed(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sim.db")
	out, err := execute(t, db, "new", "-n", "4", "--seed", "11")
	require.NoError(t, err)
	assert.Contains(t, out, "and 8 goals")

	_, err = execute(t, db, "step", "--ticks", "2")
	require.NoError(t, err)

	store, err := persistence.Open(db)
	require.NoError(t, err)
	defer store.Close()

	seed, err := store.GetMeta(metaSeed)
	require.NoError(t, err)
	assert.Equal(t, "11", seed, "the seed outlives later saves")

	sim, err := store.LoadSimulation()
	require.NoError(t, err)
	for _, a := range sim.Agents {
		assert.Len(t, a.Goals, 2, a.Name)
		assert.Equal(t, map[string]float64{"friend": 0.8, "trusts": 0.6}, a.Preferences)
		for _, g := range a.Goals {
			assert.NotEqual(t, a.Name, g.TargetName)
			assert.True(t, sim.Vocabulary.HasRelationship(g.RelationType), g.RelationType)
		}
	}
}
