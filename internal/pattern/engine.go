package pattern

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/persona-core/internal/memory"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS cluster_snapshots (
	persona_id    TEXT PRIMARY KEY,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region engine

// Engine runs consolidation passes and serves the active cluster set. At most
// one pass runs per persona; concurrent requests coalesce onto the in-flight
// pass and share its result.
type Engine struct {
	db       *sql.DB
	memories *memory.Store
	config   Config
	group    singleflight.Group
}

// NewEngine runs migrations and returns an engine over the shared database.
func NewEngine(db *sql.DB, memories *memory.Store, config Config) (*Engine, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate cluster snapshots: %w", err)
	}
	return &Engine{db: db, memories: memories, config: config}, nil
}

// #endregion engine

// #region active

// Active returns the current cluster snapshot for a persona. A persona that
// has never consolidated has no clusters.
func (e *Engine) Active(personaID string) ([]Cluster, error) {
	var snapshotJSON string
	err := e.db.QueryRow(
		`SELECT snapshot_json FROM cluster_snapshots WHERE persona_id = ?`, personaID,
	).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster snapshot: %w", err)
	}
	return decodeSnapshot(snapshotJSON)
}

// #endregion active

// #region consolidate

// Consolidate runs a clustering pass over the persona's full memory set and
// atomically replaces its cluster snapshot. Calls made while a pass is in
// flight return that pass's result instead of starting another.
func (e *Engine) Consolidate(personaID string, now time.Time) ([]Cluster, error) {
	v, err, _ := e.group.Do(personaID, func() (any, error) {
		return e.consolidate(personaID, now)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Cluster), nil
}

func (e *Engine) consolidate(personaID string, now time.Time) ([]Cluster, error) {
	records, err := e.memories.All(personaID, e.config.MinSignificance)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	if len(records) < e.config.MinSamples {
		return nil, &InsufficientSamplesError{
			PersonaID: personaID,
			Have:      len(records),
			Need:      e.config.MinSamples,
		}
	}

	points := make([]point, len(records))
	for i, m := range records {
		points[i] = point{id: m.ID, vec: m.Embedding}
	}
	labels := dbscan(points, e.config.Eps, e.config.MinSamples)

	previous, err := e.Active(personaID)
	if err != nil {
		return nil, err
	}

	clusters := buildClusters(points, labels, previous, now)
	if err := e.saveSnapshot(personaID, clusters, now); err != nil {
		return nil, err
	}
	return clusters, nil
}

// buildClusters groups labeled points into clusters with centroids and
// stability scores. Noise points form no cluster.
func buildClusters(points []point, labels []int, previous []Cluster, now time.Time) []Cluster {
	maxLabel := 0
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}

	var out []Cluster
	for label := 1; label <= maxLabel; label++ {
		var (
			members []string
			sum     vector.Vec
		)
		for i, l := range labels {
			if l != label {
				continue
			}
			members = append(members, points[i].id)
			sum = vector.Add(sum, points[i].vec)
		}

		centroid, err := vector.Normalize(sum)
		if err != nil {
			// Members cancelled out exactly; no usable direction.
			continue
		}
		out = append(out, Cluster{
			ID:        uuid.NewString(),
			Centroid:  centroid,
			Members:   members,
			Stability: stability(members, previous),
			FormedAt:  now,
		})
	}
	return out
}

// stability is the fraction of the cluster's members that belonged to its
// best-matching cluster in the previous pass. Entirely new clusters score 0.
func stability(members []string, previous []Cluster) float64 {
	if len(members) == 0 {
		return 0
	}
	current := make(map[string]bool, len(members))
	for _, id := range members {
		current[id] = true
	}

	best := 0
	for _, prev := range previous {
		overlap := 0
		for _, id := range prev.Members {
			if current[id] {
				overlap++
			}
		}
		if overlap > best {
			best = overlap
		}
	}
	return float64(best) / float64(len(members))
}

// #endregion consolidate

// #region snapshot

// saveSnapshot replaces the persona's cluster set in a single upsert, so
// readers see either the old set or the new one, never a mix.
func (e *Engine) saveSnapshot(personaID string, clusters []Cluster, now time.Time) error {
	for i := range clusters {
		clusters[i].CentroidBlob = vector.Encode(clusters[i].Centroid)
	}
	snapshotJSON, err := json.Marshal(clusters)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = e.db.Exec(
		`INSERT INTO cluster_snapshots (persona_id, snapshot_json, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(persona_id) DO UPDATE SET
		 	snapshot_json = excluded.snapshot_json,
		 	created_at = excluded.created_at`,
		personaID, string(snapshotJSON), now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save cluster snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(snapshotJSON string) ([]Cluster, error) {
	var clusters []Cluster
	if err := json.Unmarshal([]byte(snapshotJSON), &clusters); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	for i := range clusters {
		centroid, err := vector.Decode(clusters[i].CentroidBlob)
		if err != nil {
			return nil, fmt.Errorf("centroid for cluster %s: %w", clusters[i].ID, err)
		}
		clusters[i].Centroid = centroid
	}
	return clusters, nil
}

// #endregion snapshot
