// Package pattern discovers recurring behavioral patterns by density-based
// clustering over memory embeddings.
package pattern

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region cluster

// Cluster is one adaptation cluster: a recurring region of embedding space
// with the memories that formed it. Cluster sets are replaced wholesale on
// each consolidation pass, never patched.
type Cluster struct {
	ID        string     `json:"id"`
	Centroid  vector.Vec `json:"-"`
	Members   []string   `json:"members"`
	Stability float64    `json:"stability"`
	FormedAt  time.Time  `json:"formed_at"`

	// CentroidBlob carries the centroid through JSON snapshots.
	CentroidBlob []byte `json:"centroid"`
}

// #endregion cluster

// #region config

// Config holds the density-clustering parameters.
type Config struct {
	// Eps is the maximum cosine distance for two embeddings to be reachable.
	Eps float64
	// MinSamples is the minimum neighborhood size for a core point.
	MinSamples int
	// MinSignificance excludes low-significance memories from the
	// clustering input. They stay in the log; they just never seed or
	// join a cluster.
	MinSignificance float64
}

// DefaultConfig returns the default clustering parameters.
func DefaultConfig() Config {
	return Config{
		Eps:             0.3,
		MinSamples:      3,
		MinSignificance: 0.3,
	}
}

// #endregion config

// #region errors

// InsufficientSamplesError reports a consolidation request over too few
// memories to form any cluster. The pass is a no-op, not a failure of the
// turn that triggered it.
type InsufficientSamplesError struct {
	PersonaID string
	Have      int
	Need      int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("consolidation for %s needs %d memories, have %d",
		e.PersonaID, e.Need, e.Have)
}

// #endregion errors
