// Package provenance records every turn's fusion decision for later audit.
package provenance

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS turn_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	persona_id   TEXT NOT NULL,
	version      INTEGER NOT NULL,
	trigger_type TEXT NOT NULL,
	record_json  TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_log_persona
	ON turn_log (persona_id, created_at);
`

// Migrate creates the turn_log table.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate turn log: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-decision

// LogDecision writes a turn entry to the turn_log table.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (persona_id, version, trigger_type, record_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.PersonaID,
		entry.Version,
		entry.TriggerType,
		nullIfEmpty(entry.RecordJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region recent

// Recent returns the latest entries for a persona, newest first.
func Recent(db *sql.DB, personaID string, limit int) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT persona_id, version, trigger_type, COALESCE(record_json, ''),
		        decision, COALESCE(reason, ''), created_at
		 FROM turn_log WHERE persona_id = ?
		 ORDER BY id DESC LIMIT ?`,
		personaID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turn log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt string
		)
		if err := rows.Scan(&e.PersonaID, &e.Version, &e.TriggerType,
			&e.RecordJSON, &e.Decision, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn log row: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse turn log timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
