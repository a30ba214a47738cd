package relationship

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS system_states (
	persona_id  TEXT NOT NULL,
	version     INTEGER NOT NULL,
	state_json  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (persona_id, version)
);

CREATE TABLE IF NOT EXISTS active_states (
	persona_id  TEXT PRIMARY KEY,
	version     INTEGER NOT NULL
);
`

// #endregion schema

// #region stale-error

// StaleVersionError signals an optimistic-concurrency conflict: the caller
// committed against a version that is no longer current. Callers retry once
// with the refreshed state, then surface the failure.
type StaleVersionError struct {
	PersonaID string
	Expected  int64
	Current   int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale state version for %s: have %d, current is %d",
		e.PersonaID, e.Expected, e.Current)
}

// IsStale reports whether err is a version conflict.
func IsStale(err error) bool {
	var sv *StaleVersionError
	return errors.As(err, &sv)
}

// #endregion stale-error

// #region store

// Store persists versioned SystemState snapshots in SQLite, one live version
// per persona with full history.
type Store struct {
	db *sql.DB
}

// NewStore runs migrations and returns a store over the shared database.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate system states: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region ensure-initial

// EnsureInitial creates the version-1 state for a persona if none exists,
// and returns the current state either way.
func (s *Store) EnsureInitial(personaID string, now time.Time) (SystemState, error) {
	cur, err := s.Current(personaID)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return SystemState{}, err
	}

	init := Initial(personaID, now)
	if err := s.insert(init, true); err != nil {
		return SystemState{}, err
	}
	return init, nil
}

// #endregion ensure-initial

// #region current

// Current reads the active state version for a persona.
func (s *Store) Current(personaID string) (SystemState, error) {
	var version int64
	err := s.db.QueryRow(
		`SELECT version FROM active_states WHERE persona_id = ?`, personaID,
	).Scan(&version)
	if err != nil {
		return SystemState{}, fmt.Errorf("get active state for %s: %w", personaID, err)
	}
	return s.Version(personaID, version)
}

// Version retrieves a specific state version.
func (s *Store) Version(personaID string, version int64) (SystemState, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT state_json FROM system_states WHERE persona_id = ? AND version = ?`,
		personaID, version,
	).Scan(&stateJSON)
	if err != nil {
		return SystemState{}, fmt.Errorf("get state %s v%d: %w", personaID, version, err)
	}

	var st SystemState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return SystemState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}

// #endregion current

// #region save

// Save commits a new state version atomically. basedOn must be the version
// the caller read; a mismatch returns StaleVersionError and commits nothing.
func (s *Store) Save(next SystemState, basedOn int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.SaveTx(tx, next, basedOn); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveTx runs Save's version check and writes inside the caller's
// transaction, so other writes can share the turn's commit point. The
// caller owns commit and rollback.
func (s *Store) SaveTx(tx *sql.Tx, next SystemState, basedOn int64) error {
	var current int64
	err := tx.QueryRow(
		`SELECT version FROM active_states WHERE persona_id = ?`, next.PersonaID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("check active version: %w", err)
	}
	if current != basedOn {
		return &StaleVersionError{PersonaID: next.PersonaID, Expected: basedOn, Current: current}
	}
	if next.Meta.Version <= current {
		return fmt.Errorf("save state: version %d does not advance %d", next.Meta.Version, current)
	}

	stateJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO system_states (persona_id, version, state_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		next.PersonaID, next.Meta.Version, string(stateJSON),
		next.Meta.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert state version: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE active_states SET version = ? WHERE persona_id = ?`,
		next.Meta.Version, next.PersonaID,
	)
	if err != nil {
		return fmt.Errorf("update active version: %w", err)
	}
	return nil
}

// insert writes a state version and optionally seeds the active pointer.
func (s *Store) insert(st SystemState, seedActive bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO system_states (persona_id, version, state_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		st.PersonaID, st.Meta.Version, string(stateJSON),
		st.Meta.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert state version: %w", err)
	}
	if seedActive {
		_, err = tx.Exec(
			`INSERT INTO active_states (persona_id, version) VALUES (?, ?)
			 ON CONFLICT(persona_id) DO NOTHING`,
			st.PersonaID, st.Meta.Version,
		)
		if err != nil {
			return fmt.Errorf("seed active version: %w", err)
		}
	}
	return tx.Commit()
}

// #endregion save

// #region history

// History returns the most recent versions for a persona, newest first.
func (s *Store) History(personaID string, limit int) ([]SystemState, error) {
	rows, err := s.db.Query(
		`SELECT state_json FROM system_states
		 WHERE persona_id = ? ORDER BY version DESC LIMIT ?`,
		personaID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list state history: %w", err)
	}
	defer rows.Close()

	var out []SystemState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		var st SystemState
		if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// #endregion history
