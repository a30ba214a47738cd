package relationship

import (
	"time"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/theory"
)

// #region stage

// Stage is the ordered relationship phase. Progression is strictly forward,
// one stage per update, unless an explicit regression event is recorded.
type Stage string

const (
	StageInitial     Stage = "initial"
	StageDeveloping  Stage = "developing"
	StageEstablished Stage = "established"
	StageClose       Stage = "close"
	StageIntimate    Stage = "intimate"
)

// StageOrder is the canonical progression.
var StageOrder = []Stage{StageInitial, StageDeveloping, StageEstablished, StageClose, StageIntimate}

// stageIndex returns the position of s in StageOrder, or 0 for unknown.
func stageIndex(s Stage) int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// Next returns the following stage, or s itself at the top of the ladder.
func (s Stage) Next() Stage {
	i := stageIndex(s)
	if i+1 >= len(StageOrder) {
		return s
	}
	return StageOrder[i+1]
}

// StageGate is the entry requirement for advancing into a stage.
type StageGate struct {
	MinTrust        float64 `yaml:"min_trust"`
	MinInteractions int     `yaml:"min_interactions"`
}

// #endregion stage

// #region system-state

// EmotionalState is the emotional sub-state.
type EmotionalState struct {
	Primary   emotion.Emotion `json:"primary"`
	Secondary emotion.Emotion `json:"secondary,omitempty"`
	Intensity float64         `json:"intensity"`
}

// PsychState is the psychological sub-state.
type PsychState struct {
	Traits      map[string]float64      `json:"traits"`
	ActiveAdapt []string                `json:"active_adaptations,omitempty"`
	Alignments  map[theory.Kind]float64 `json:"alignments"`
}

// RelationState is the relationship sub-state.
type RelationState struct {
	Stage           Stage   `json:"stage"`
	Trust           float64 `json:"trust"`
	ConnectionDepth float64 `json:"connection_depth"`
}

// Meta is the bookkeeping block.
type Meta struct {
	Version          int64     `json:"version"` // strictly increasing per persona
	UpdatedAt        time.Time `json:"updated_at"`
	Stability        float64   `json:"stability"`
	InteractionCount int       `json:"interaction_count"`
}

// SystemState is one persona's complete live state. Values are immutable
// snapshots: every mutation produces a new version, never an in-place edit,
// so concurrent updates surface as version conflicts instead of lost writes.
type SystemState struct {
	PersonaID  string         `json:"persona_id"`
	Emotional  EmotionalState `json:"emotional"`
	Psych      PsychState     `json:"psychological"`
	Relation   RelationState  `json:"relationship"`
	Meta       Meta           `json:"meta"`
	Regression *Regression    `json:"regression,omitempty"` // set on the version that regressed
}

// Regression records an explicit stage regression event.
type Regression struct {
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Initial returns the first state version for a persona.
func Initial(personaID string, now time.Time) SystemState {
	return SystemState{
		PersonaID: personaID,
		Emotional: EmotionalState{Primary: emotion.Neutral},
		Psych: PsychState{
			Traits:     map[string]float64{},
			Alignments: map[theory.Kind]float64{},
		},
		Relation: RelationState{Stage: StageInitial},
		Meta: Meta{
			Version:   1,
			UpdatedAt: now,
			Stability: 1,
		},
	}
}

// #endregion system-state

// #region update-request

// UpdateRequest is one turn's requested state change. StabilityRequirement
// damps the whole update: 1 freezes the state, 0 applies it at full strength.
type UpdateRequest struct {
	TrustDelta           float64
	ConnectionDelta      float64
	PrimaryEmotion       emotion.Emotion
	SecondaryEmotion     emotion.Emotion
	EmotionalIntensity   float64
	TraitDeltas          map[string]float64
	Alignments           map[theory.Kind]float64
	ActiveAdaptations    []string
	StabilityRequirement float64
	Now                  time.Time
}

// Metrics reports what an update actually did.
type Metrics struct {
	Coherence      float64
	EffectiveScale float64
	StageAdvanced  bool
	TrustApplied   float64
}

// #endregion update-request

// #region config

// Config holds decay rates and stage gates.
type Config struct {
	// Hourly exponential decay rates.
	IntensityDecayPerHr  float64
	ConnectionDecayPerHr float64

	// Gates keyed by the stage being entered.
	Gates map[Stage]StageGate
}

// DefaultConfig returns the default decay rates and stage gates.
func DefaultConfig() Config {
	return Config{
		IntensityDecayPerHr:  0.01,
		ConnectionDecayPerHr: 0.005,
		Gates: map[Stage]StageGate{
			StageDeveloping:  {MinTrust: 0.2, MinInteractions: 5},
			StageEstablished: {MinTrust: 0.4, MinInteractions: 20},
			StageClose:       {MinTrust: 0.6, MinInteractions: 50},
			StageIntimate:    {MinTrust: 0.8, MinInteractions: 100},
		},
	}
}

// #endregion config
