package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	persona_id    TEXT NOT NULL,
	message       TEXT NOT NULL,
	response      TEXT NOT NULL,
	emotion       TEXT NOT NULL,
	intensity     REAL NOT NULL,
	valence       REAL NOT NULL,
	embedding     BLOB NOT NULL,
	significance  REAL NOT NULL,
	context_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	deleted       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_persona
	ON memories (persona_id, created_at);
`

// #endregion schema

// ErrNotFound is returned when a memory id does not exist or was deleted.
var ErrNotFound = errors.New("memory not found")

// #region store

// Store is the append-only memory log. Writes are independent rows keyed by
// fresh ids, so concurrent writers never conflict.
type Store struct {
	db *sql.DB
}

// NewStore runs migrations and returns a store over the shared database.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate memories: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region write

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Store appends a record and returns its id. The embedding must be a valid
// unit vector; degenerate embeddings are rejected rather than stored.
func (s *Store) Store(m Memory) (string, error) {
	return s.StoreTx(s.db, m)
}

// StoreTx appends a record inside the caller's transaction, letting the
// append share a commit point with other writes. The caller owns commit
// and rollback.
func (s *Store) StoreTx(ex execer, m Memory) (string, error) {
	if vector.IsDegenerate(m.Embedding) {
		return "", fmt.Errorf("store memory: %w", vector.ErrDegenerate)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Context == nil {
		m.Context = map[string]string{}
	}

	contextJSON, err := json.Marshal(m.Context)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	_, err = ex.Exec(
		`INSERT INTO memories
		 (id, persona_id, message, response, emotion, intensity, valence,
		  embedding, significance, context_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PersonaID, m.Message, m.Response, string(m.Emotion),
		m.Intensity, m.Valence, vector.Encode(m.Embedding), m.Significance,
		string(contextJSON), m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return m.ID, nil
}

// Delete soft-deletes a record. Returns false if the id was absent or
// already deleted.
func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE memories SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	return n > 0, nil
}

// #endregion write

// #region read

// Get retrieves a single live record by id.
func (s *Store) Get(id string) (Memory, error) {
	row := s.db.QueryRow(
		`SELECT id, persona_id, message, response, emotion, intensity, valence,
		        embedding, significance, context_json, created_at
		 FROM memories WHERE id = ? AND deleted = 0`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Memory{}, ErrNotFound
	}
	return m, err
}

// Retrieve ranks a persona's live records by cosine similarity to the query
// embedding, applying the option filters before ranking.
func (s *Store) Retrieve(personaID string, query vector.Vec, opts RetrieveOptions) ([]Scored, error) {
	if vector.IsDegenerate(query) {
		return nil, fmt.Errorf("retrieve memories: %w", vector.ErrDegenerate)
	}

	q := `SELECT id, persona_id, message, response, emotion, intensity, valence,
	             embedding, significance, context_json, created_at
	      FROM memories WHERE persona_id = ? AND deleted = 0 AND significance >= ?`
	args := []any{personaID, opts.MinSignificance}
	if !opts.Since.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}
	if !opts.Until.IsZero() {
		q += ` AND created_at <= ?`
		args = append(args, opts.Until.UTC().Format(time.RFC3339Nano))
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{Memory: m, Relevance: vector.Cosine(query, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// All returns every live record for a persona at or above minSignificance,
// oldest first. Used by the consolidation pass, which needs the whole
// embedding set but skips low-significance noise.
func (s *Store) All(personaID string, minSignificance float64) ([]Memory, error) {
	rows, err := s.db.Query(
		`SELECT id, persona_id, message, response, emotion, intensity, valence,
		        embedding, significance, context_json, created_at
		 FROM memories WHERE persona_id = ? AND deleted = 0 AND significance >= ?
		 ORDER BY created_at ASC`,
		personaID, minSignificance)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// #endregion read

// #region scan

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (Memory, error) {
	var (
		m           Memory
		emoLabel    string
		embedding   []byte
		contextJSON string
		createdAt   string
	)
	err := row.Scan(&m.ID, &m.PersonaID, &m.Message, &m.Response, &emoLabel,
		&m.Intensity, &m.Valence, &embedding, &m.Significance, &contextJSON, &createdAt)
	if err != nil {
		return Memory{}, err
	}

	m.Emotion = emotion.Emotion(emoLabel)
	m.Embedding, err = vector.Decode(embedding)
	if err != nil {
		return Memory{}, fmt.Errorf("embedding for %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(contextJSON), &m.Context); err != nil {
		return Memory{}, fmt.Errorf("unmarshal context for %s: %w", m.ID, err)
	}
	m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Memory{}, fmt.Errorf("parse created_at for %s: %w", m.ID, err)
	}
	return m, nil
}

// #endregion scan
