package fuse

import (
	"fmt"

	"github.com/danielpatrickdp/persona-core/internal/theory"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region config

// Config holds fusion weights and stability thresholds. None of the defaults
// are validated optima; everything is overridable from the YAML config.
type Config struct {
	MinMagnitude  float64 // clamp floor for the raw fused magnitude
	MaxMagnitude  float64 // clamp ceiling
	MaxDelta      float64 // max Euclidean step from the previous control vector
	MinSimilarity float64 // reject fusion below this cosine to the previous vector

	MinAlignment      float64 // theories below this are failing
	MaintenanceFactor float64 // weight factor for passing theories
	ConflictCosine    float64 // adjustment pairs below this cosine conflict

	EmotionalBase float64 // base weight of the emotional component
	TheoryBase    float64 // base weight of the theory component
	ClusterBias   float64 // weight factor per active adaptation cluster
	GapHalfLifeHr float64 // interaction gap halving the emotional weight
	MaturityCount float64 // interaction count where theory weight saturates
}

// DefaultConfig returns fusion defaults.
func DefaultConfig() Config {
	return Config{
		MinMagnitude:      0.1,
		MaxMagnitude:      1.0,
		MaxDelta:          0.5,
		MinSimilarity:     0.5,
		MinAlignment:      0.6,
		MaintenanceFactor: 0.2,
		ConflictCosine:    -0.3,
		EmotionalBase:     0.6,
		TheoryBase:        0.3,
		ClusterBias:       0.1,
		GapHalfLifeHr:     48,
		MaturityCount:     100,
	}
}

// #endregion config

// #region inputs

// Emotional is the council's contribution to fusion.
type Emotional struct {
	Vector    vector.Vec // unit direction
	Intensity float64    // [0,1] overall magnitude
}

// ClusterBias is one active adaptation cluster's pull.
type ClusterBias struct {
	Centroid  vector.Vec
	Stability float64 // [0,1]
}

// Context carries the relationship situation that shapes component weights.
type Context struct {
	Stage            string
	InteractionCount int
	HoursSinceLast   float64
	PrevControl      vector.Vec // zero on the first turn
}

// #endregion inputs

// #region result

// Conflict records a resolved theory adjustment conflict. The lower-weight
// theory's push was dropped; the concern is surfaced, not fatal.
type Conflict struct {
	Kept    theory.Kind
	Dropped theory.Kind
	Cosine  float64
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("theory adjustments conflict: kept %s, dropped %s (cosine %.2f)", c.Kept, c.Dropped, c.Cosine)
}

// Result is the fused control vector with diagnostics.
type Result struct {
	Vector    vector.Vec // unit-norm control vector
	Degraded  bool       // true when fusion fell back to the previous vector
	Conflicts []Conflict
	Weights   ComponentWeights
}

// ComponentWeights records the renormalized weight given to each component.
type ComponentWeights struct {
	Emotional float64
	Theory    float64
	Cluster   float64
}

// #endregion result
