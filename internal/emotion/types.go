package emotion

import (
	"time"

	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region emotion

// Emotion identifies one signal producer category.
type Emotion string

const (
	Joy      Emotion = "joy"
	Sadness  Emotion = "sadness"
	Anger    Emotion = "anger"
	Fear     Emotion = "fear"
	Disgust  Emotion = "disgust"
	Surprise Emotion = "surprise"
	Neutral  Emotion = "neutral"
)

// Priority is the fixed producer ordering. It determines both processing
// order and dominance tie-breaks, independent of registration order.
var Priority = []Emotion{Joy, Sadness, Anger, Fear, Disgust, Surprise, Neutral}

var valences = map[Emotion]float64{
	Joy:      0.8,
	Sadness:  -0.6,
	Anger:    -0.7,
	Fear:     -0.5,
	Disgust:  -0.6,
	Surprise: 0.2,
	Neutral:  0,
}

// Valence maps an emotion to its pleasantness in [-1,1].
func Valence(e Emotion) float64 {
	return valences[e]
}

// #endregion emotion

// #region agent-state

// AgentState is the per-producer mutable state. Owned exclusively by its
// producer; other components read copies only.
type AgentState struct {
	Influence  float64
	Confidence float64
	Energy     float64
	LastActive time.Time
}

// DefaultAgentState mirrors the initial state of a fresh producer.
func DefaultAgentState() AgentState {
	return AgentState{
		Influence:  0.5,
		Confidence: 0.5,
		Energy:     1.0,
	}
}

// #endregion agent-state

// #region context

// Context is the shared read-only input for a turn's fan-out.
type Context struct {
	PrevControl vector.Vec // previous system control vector (zero on first turn)
	Stage       string
	Trust       float64
	Traits      map[string]float64
	Now         time.Time
}

// #endregion context

// #region proposal

// Proposal is one producer's output for a turn.
type Proposal struct {
	Emotion    Emotion
	Vector     vector.Vec // unit direction for this emotion
	Intensity  float64    // [0,1] strength read from the message
	Influence  float64    // [0,1] weight after momentum rescaling
	Confidence float64    // [0,1]
	State      AgentState // producer state after this invocation
}

// #endregion proposal

// #region config

// Config holds producer tuning. All values are overridable from the
// top-level YAML config.
type Config struct {
	EnergyDecay    float64 // multiplicative per invocation
	EnergyFloor    float64
	RecoveryPerHr  float64 // time-based energy recovery between invocations
	MomentumFloor  float64 // minimum momentum factor for divergent producers
	MomentumWeight float64 // how strongly momentum rescales influence
}

// DefaultConfig returns producer defaults.
func DefaultConfig() Config {
	return Config{
		EnergyDecay:    0.9,
		EnergyFloor:    0.1,
		RecoveryPerHr:  0.2,
		MomentumFloor:  0.1,
		MomentumWeight: 0.5,
	}
}

// #endregion config
