// Package memory persists immutable interaction records with embeddings and
// serves similarity retrieval over them.
package memory

import (
	"time"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region record

// Memory is one completed interaction. Records are immutable once written:
// corrections arrive as new records, removal is a soft delete.
type Memory struct {
	ID           string
	PersonaID    string
	Message      string
	Response     string
	Emotion      emotion.Emotion
	Intensity    float64
	Valence      float64
	Embedding    vector.Vec
	Significance float64
	Context      map[string]string
	CreatedAt    time.Time
}

// #endregion record

// #region retrieve-options

// RetrieveOptions filters and bounds a similarity query.
type RetrieveOptions struct {
	Limit           int
	Since           time.Time // zero = no lower bound
	Until           time.Time // zero = no upper bound
	MinSignificance float64
}

// Scored pairs a memory with its relevance to the query embedding.
type Scored struct {
	Memory    Memory
	Relevance float64
}

// #endregion retrieve-options
