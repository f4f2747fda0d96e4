// Package persistence stores simulations in SQLite and as JSON snapshots.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
)

// Meta keys owned by SaveSimulation.
const (
	metaVersion    = "snapshot_version"
	metaRunID      = "run_id"
	metaLastTick   = "last_tick"
	metaVocabulary = "vocabulary_json"
)

// DB wraps a SQLite connection for simulation persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		pos INTEGER NOT NULL,
		name TEXT NOT NULL,
		preferences_json TEXT NOT NULL DEFAULT '{}',
		goals_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS beliefs (
		agent_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		subtype TEXT NOT NULL,
		arity INTEGER NOT NULL,
		subject INTEGER NOT NULL,
		target INTEGER NOT NULL,
		probability REAL NOT NULL,
		origin_kind TEXT NOT NULL,
		origin_subtype TEXT NOT NULL,
		origin_arity INTEGER NOT NULL,
		PRIMARY KEY (agent_id, seq)
	);

	CREATE TABLE IF NOT EXISTS templates (
		idx INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		library_pos INTEGER,
		spec_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		seq INTEGER PRIMARY KEY,
		template_idx INTEGER NOT NULL,
		initiator INTEGER NOT NULL,
		responder INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		accepted INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_tick ON exchanges(tick);
	CREATE INDEX IF NOT EXISTS idx_exchanges_pair ON exchanges(initiator, responder);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type agentRow struct {
	ID          predicate.AgentID `db:"id"`
	Name        string            `db:"name"`
	Preferences string            `db:"preferences_json"`
	Goals       string            `db:"goals_json"`
}

type beliefRow struct {
	AgentID       predicate.AgentID `db:"agent_id"`
	Kind          string            `db:"kind"`
	Subtype       string            `db:"subtype"`
	Arity         predicate.Arity   `db:"arity"`
	Subject       predicate.AgentID `db:"subject"`
	Target        predicate.AgentID `db:"target"`
	Probability   float64           `db:"probability"`
	OriginKind    string            `db:"origin_kind"`
	OriginSubtype string            `db:"origin_subtype"`
	OriginArity   predicate.Arity   `db:"origin_arity"`
}

type templateRow struct {
	Idx        int           `db:"idx"`
	LibraryPos sql.NullInt64 `db:"library_pos"`
	Spec       string        `db:"spec_json"`
}

type exchangeRow struct {
	Template  int               `db:"template_idx"`
	Initiator predicate.AgentID `db:"initiator"`
	Responder predicate.AgentID `db:"responder"`
	Tick      uint64            `db:"tick"`
	Accepted  bool              `db:"accepted"`
}

// SaveSimulation replaces the stored simulation with sim in one transaction.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	snap, err := Capture(sim)
	if err != nil {
		return err
	}
	slog.Info("saving simulation", "run", snap.RunID, "tick", snap.LastTick, "agents", len(snap.Agents), "log", len(snap.Log))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"agents", "beliefs", "templates", "exchanges"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	// Keys stored with SaveMeta survive a save.
	if _, err := tx.Exec("DELETE FROM world_meta WHERE key IN (?, ?, ?, ?)",
		metaVersion, metaRunID, metaLastTick, metaVocabulary); err != nil {
		return fmt.Errorf("clear world_meta: %w", err)
	}

	if err := saveAgents(tx, snap.Agents); err != nil {
		return err
	}
	if err := saveTemplates(tx, snap); err != nil {
		return err
	}
	if err := saveLog(tx, snap.Log); err != nil {
		return err
	}

	vocab, err := json.Marshal(snap.Vocabulary)
	if err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	meta := map[string]string{
		metaVersion:    strconv.Itoa(snap.Version),
		metaRunID:      snap.RunID,
		metaLastTick:   strconv.FormatUint(snap.LastTick, 10),
		metaVocabulary: string(vocab),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("simulation saved")
	return nil
}

func saveAgents(tx *sqlx.Tx, records []AgentRecord) error {
	agentStmt, err := tx.Preparex(`INSERT INTO agents (id, pos, name, preferences_json, goals_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer agentStmt.Close()

	beliefStmt, err := tx.Preparex(`INSERT INTO beliefs
		(agent_id, seq, kind, subtype, arity, subject, target, probability,
		 origin_kind, origin_subtype, origin_arity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer beliefStmt.Close()

	for pos, rec := range records {
		prefs := rec.Preferences
		if prefs == nil {
			prefs = map[string]float64{}
		}
		prefsJSON, _ := json.Marshal(prefs)
		goalsJSON, _ := json.Marshal(rec.Goals)
		if _, err := agentStmt.Exec(int64(rec.ID), pos, rec.Name, string(prefsJSON), string(goalsJSON)); err != nil {
			return fmt.Errorf("insert agent %d: %w", rec.ID, err)
		}

		for seq, b := range rec.Beliefs {
			p := b.Predicate
			_, err := beliefStmt.Exec(
				int64(rec.ID), seq, p.Template.Kind, p.Template.Subtype, int(p.Template.Arity),
				int64(p.Subject), int64(p.Target), b.Probability,
				b.Origin.Kind, b.Origin.Subtype, int(b.Origin.Arity),
			)
			if err != nil {
				return fmt.Errorf("insert belief %d/%d: %w", rec.ID, seq, err)
			}
		}
	}
	return nil
}

func saveTemplates(tx *sqlx.Tx, snap *Snapshot) error {
	libraryPos := make(map[int]int, len(snap.Library))
	for pos, idx := range snap.Library {
		libraryPos[idx] = pos
	}

	stmt, err := tx.Preparex(`INSERT INTO templates (idx, name, library_pos, spec_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for idx, spec := range snap.Templates {
		specJSON, err := json.Marshal(spec)
		if err != nil {
			return fmt.Errorf("encode template %q: %w", spec.Name, err)
		}
		var pos sql.NullInt64
		if p, ok := libraryPos[idx]; ok {
			pos = sql.NullInt64{Int64: int64(p), Valid: true}
		}
		if _, err := stmt.Exec(idx, spec.Name, pos, string(specJSON)); err != nil {
			return fmt.Errorf("insert template %q: %w", spec.Name, err)
		}
	}
	return nil
}

func saveLog(tx *sqlx.Tx, log []LogRecord) error {
	stmt, err := tx.Preparex(`INSERT INTO exchanges
		(seq, template_idx, initiator, responder, tick, accepted)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, rec := range log {
		if _, err := stmt.Exec(seq, rec.Template, int64(rec.Initiator), int64(rec.Responder), int64(rec.Tick), rec.Accepted); err != nil {
			return fmt.Errorf("insert exchange %d: %w", seq, err)
		}
	}
	return nil
}

// HasSimulation reports whether a simulation has been saved.
func (db *DB) HasSimulation() (bool, error) {
	_, err := db.GetMeta(metaRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// LoadSimulation restores the stored simulation. It returns ErrNoSnapshot
// when nothing has been saved.
func (db *DB) LoadSimulation() (*engine.Simulation, error) {
	snap, err := db.loadSnapshot()
	if err != nil {
		return nil, err
	}
	sim, err := snap.Restore()
	if err != nil {
		return nil, err
	}
	slog.Info("simulation loaded", "run", sim.RunID, "tick", sim.LastTick, "agents", len(sim.Agents))
	return sim, nil
}

func (db *DB) loadSnapshot() (*Snapshot, error) {
	runID, err := db.GetMeta(metaRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{RunID: runID}
	if snap.Version, err = db.metaInt(metaVersion); err != nil {
		return nil, err
	}
	tick, err := db.GetMeta(metaLastTick)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", metaLastTick, err)
	}
	if snap.LastTick, err = strconv.ParseUint(tick, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSnapshot, metaLastTick, err)
	}
	vocab, err := db.GetMeta(metaVocabulary)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", metaVocabulary, err)
	}
	if err := json.Unmarshal([]byte(vocab), &snap.Vocabulary); err != nil {
		return nil, fmt.Errorf("%w: vocabulary: %w", ErrSnapshot, err)
	}

	if snap.Agents, err = db.loadAgents(); err != nil {
		return nil, err
	}
	if err := db.loadTemplates(snap); err != nil {
		return nil, err
	}

	var rows []exchangeRow
	if err := db.conn.Select(&rows,
		"SELECT template_idx, initiator, responder, tick, accepted FROM exchanges ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load exchanges: %w", err)
	}
	for _, r := range rows {
		snap.Log = append(snap.Log, LogRecord(r))
	}
	return snap, nil
}

func (db *DB) loadAgents() ([]AgentRecord, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows,
		"SELECT id, name, preferences_json, goals_json FROM agents ORDER BY pos"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	var beliefs []beliefRow
	if err := db.conn.Select(&beliefs,
		`SELECT agent_id, kind, subtype, arity, subject, target, probability,
		        origin_kind, origin_subtype, origin_arity
		 FROM beliefs ORDER BY agent_id, seq`); err != nil {
		return nil, fmt.Errorf("load beliefs: %w", err)
	}
	byAgent := make(map[predicate.AgentID][]belief.Belief, len(rows))
	for _, r := range beliefs {
		byAgent[r.AgentID] = append(byAgent[r.AgentID], belief.Belief{
			Predicate: predicate.Predicate{
				Template: predicate.Template{Kind: r.Kind, Subtype: r.Subtype, Arity: r.Arity},
				Subject:  r.Subject,
				Target:   r.Target,
			},
			Probability: r.Probability,
			Origin:      predicate.Template{Kind: r.OriginKind, Subtype: r.OriginSubtype, Arity: r.OriginArity},
		})
	}

	records := make([]AgentRecord, 0, len(rows))
	for _, r := range rows {
		rec := AgentRecord{ID: r.ID, Name: r.Name, Beliefs: byAgent[r.ID]}
		if err := json.Unmarshal([]byte(r.Preferences), &rec.Preferences); err != nil {
			return nil, fmt.Errorf("%w: agent %d preferences: %w", ErrSnapshot, r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Goals), &rec.Goals); err != nil {
			return nil, fmt.Errorf("%w: agent %d goals: %w", ErrSnapshot, r.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (db *DB) loadTemplates(snap *Snapshot) error {
	var rows []templateRow
	if err := db.conn.Select(&rows, "SELECT idx, library_pos, spec_json FROM templates ORDER BY idx"); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	type entry struct{ pos, idx int }
	var library []entry
	for i, r := range rows {
		if r.Idx != i {
			return fmt.Errorf("%w: template table has a gap at %d", ErrSnapshot, i)
		}
		var spec exchange.Spec
		if err := json.Unmarshal([]byte(r.Spec), &spec); err != nil {
			return fmt.Errorf("%w: template %d: %w", ErrSnapshot, r.Idx, err)
		}
		snap.Templates = append(snap.Templates, spec)
		if r.LibraryPos.Valid {
			library = append(library, entry{pos: int(r.LibraryPos.Int64), idx: r.Idx})
		}
	}

	snap.Library = make([]int, len(library))
	for _, e := range library {
		if e.pos < 0 || e.pos >= len(library) {
			return fmt.Errorf("%w: library position %d out of range", ErrSnapshot, e.pos)
		}
		snap.Library[e.pos] = e.idx
	}
	return nil
}

// SaveMeta stores a key-value pair in the metadata table.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a value from the metadata table. A missing key returns
// sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func (db *DB) metaInt(key string) (int, error) {
	s, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", key, err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSnapshot, key, err)
	}
	return n, nil
}

// ExchangeCount returns the number of logged exchanges, optionally limited
// to those at or after tick since.
func (db *DB) ExchangeCount(since uint64) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM exchanges WHERE tick >= ?", int64(since))
	return n, err
}
