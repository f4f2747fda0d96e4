package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

var (
	// ErrNoSnapshot is returned when no saved simulation exists.
	ErrNoSnapshot = errors.New("no saved simulation")

	// ErrSnapshot is returned for structurally inconsistent snapshots.
	ErrSnapshot = errors.New("invalid snapshot")
)

// Snapshot is a structural copy of a simulation. Templates are stored once in
// a table; the library and the log refer to them by index.
type Snapshot struct {
	Version    int               `json:"version"`
	RunID      string            `json:"run_id"`
	LastTick   uint64            `json:"last_tick"`
	Vocabulary engine.Vocabulary `json:"vocabulary"`
	Templates  []exchange.Spec   `json:"templates"`
	Library    []int             `json:"library"`
	Agents     []AgentRecord     `json:"agents"`
	Log        []LogRecord       `json:"log"`
}

// AgentRecord is one agent with its full belief store.
type AgentRecord struct {
	ID          predicate.AgentID  `json:"id"`
	Name        string             `json:"name"`
	Beliefs     []belief.Belief    `json:"beliefs"`
	Preferences map[string]float64 `json:"preferences,omitempty"`
	Goals       []agents.Goal      `json:"goals,omitempty"`
}

// LogRecord is one resolved exchange.
type LogRecord struct {
	Template  int               `json:"template"`
	Initiator predicate.AgentID `json:"initiator"`
	Responder predicate.AgentID `json:"responder"`
	Tick      uint64            `json:"tick"`
	Accepted  bool              `json:"accepted"`
}

// Capture copies sim into a snapshot.
func Capture(sim *engine.Simulation) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    SnapshotVersion,
		RunID:      sim.RunID,
		LastTick:   sim.LastTick,
		Vocabulary: sim.Vocabulary,
	}

	index := make(map[*exchange.Template]int)
	intern := func(t *exchange.Template) (int, error) {
		if i, ok := index[t]; ok {
			return i, nil
		}
		spec, err := exchange.Describe(t)
		if err != nil {
			return 0, err
		}
		i := len(snap.Templates)
		snap.Templates = append(snap.Templates, spec)
		index[t] = i
		return i, nil
	}

	for _, t := range sim.Templates {
		i, err := intern(t)
		if err != nil {
			return nil, fmt.Errorf("capture template: %w", err)
		}
		snap.Library = append(snap.Library, i)
	}

	for _, a := range sim.Agents {
		snap.Agents = append(snap.Agents, AgentRecord{
			ID:          a.ID,
			Name:        a.Name,
			Beliefs:     a.Beliefs.Beliefs(),
			Preferences: a.Preferences,
			Goals:       a.Goals,
		})
	}

	for _, ex := range sim.Log {
		i, err := intern(ex.Template)
		if err != nil {
			return nil, fmt.Errorf("capture log: %w", err)
		}
		accepted, resolved := ex.Accepted()
		if !resolved {
			return nil, fmt.Errorf("%w: unresolved exchange %s in log", ErrSnapshot, ex)
		}
		snap.Log = append(snap.Log, LogRecord{
			Template:  i,
			Initiator: ex.Initiator,
			Responder: ex.Responder,
			Tick:      ex.Tick,
			Accepted:  accepted,
		})
	}
	return snap, nil
}

// Restore rebuilds a simulation from the snapshot.
func (s *Snapshot) Restore() (*engine.Simulation, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSnapshot, s.Version, SnapshotVersion)
	}

	templates := make([]*exchange.Template, len(s.Templates))
	for i, spec := range s.Templates {
		t, err := exchange.FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: template %d: %w", ErrSnapshot, i, err)
		}
		templates[i] = t
	}
	lookup := func(i int) (*exchange.Template, error) {
		if i < 0 || i >= len(templates) {
			return nil, fmt.Errorf("%w: template index %d out of range", ErrSnapshot, i)
		}
		return templates[i], nil
	}

	library := make([]*exchange.Template, 0, len(s.Library))
	for _, i := range s.Library {
		t, err := lookup(i)
		if err != nil {
			return nil, err
		}
		library = append(library, t)
	}

	roster := make([]*agents.Agent, 0, len(s.Agents))
	for _, rec := range s.Agents {
		a := agents.New(rec.ID, rec.Name)
		a.Beliefs = belief.FromBeliefs(rec.Beliefs)
		for k, v := range rec.Preferences {
			a.Preferences[k] = v
		}
		a.Goals = append(a.Goals, rec.Goals...)
		roster = append(roster, a)
	}

	sim := engine.NewSimulation(roster, library, s.Vocabulary)
	sim.RunID = s.RunID
	sim.LastTick = s.LastTick

	for _, rec := range s.Log {
		t, err := lookup(rec.Template)
		if err != nil {
			return nil, err
		}
		if sim.Agent(rec.Initiator) == nil || sim.Agent(rec.Responder) == nil {
			return nil, fmt.Errorf("%w: log refers to unknown agent %d or %d", ErrSnapshot, rec.Initiator, rec.Responder)
		}
		sim.Log = append(sim.Log, exchange.Restore(t, rec.Initiator, rec.Responder, rec.Tick, rec.Accepted))
	}
	return sim, nil
}

// Encode writes sim as an indented JSON snapshot.
func Encode(w io.Writer, sim *engine.Simulation) error {
	snap, err := Capture(sim)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Decode reads a JSON snapshot and restores it.
func Decode(r io.Reader) (*engine.Simulation, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	return snap.Restore()
}

// SaveFile writes a JSON snapshot of sim to path.
func SaveFile(path string, sim *engine.Simulation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := Encode(f, sim); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Close()
}

// LoadFile restores a simulation from a JSON snapshot file.
func LoadFile(path string) (*engine.Simulation, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoSnapshot)
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
