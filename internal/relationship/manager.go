package relationship

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/persona-core/internal/theory"
)

// #region manager

// Manager evolves SystemState snapshots. Apply is pure: it never mutates its
// input and returns a fresh version, so the store's optimistic versioning can
// detect concurrent writers.
type Manager struct {
	config Config
}

// NewManager creates a Manager.
func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// #endregion manager

// #region apply

// Apply computes the next state version from the current one.
//
// Order is fixed: time decay, damped deltas, coherence clamping, stage gate,
// version bump. StabilityRequirement scales every delta inversely (1 freezes
// the state); coherence penalizes updates that would leave the sub-states in
// disagreement, e.g. low trust at a high intimacy stage.
func (m *Manager) Apply(cur SystemState, req UpdateRequest) (SystemState, Metrics, error) {
	if req.StabilityRequirement < 0 || req.StabilityRequirement > 1 {
		return SystemState{}, Metrics{}, fmt.Errorf("stability requirement %f out of [0,1]", req.StabilityRequirement)
	}

	next := clone(cur)

	// 1. Time decay since the last update.
	hours := req.Now.Sub(cur.Meta.UpdatedAt).Hours()
	if hours > 0 {
		next.Emotional.Intensity *= math.Exp(-m.config.IntensityDecayPerHr * hours)
		next.Relation.ConnectionDepth *= math.Exp(-m.config.ConnectionDecayPerHr * hours)
	}

	// 2. Damped deltas. Trust additionally resists gains at high levels.
	damping := 1 - req.StabilityRequirement
	coherence := m.coherence(next)
	scale := damping * (0.5 + 0.5*coherence) // 3. coherence clamps magnitude

	trustDelta := req.TrustDelta * scale
	if trustDelta > 0 {
		trustDelta *= 1 - math.Sqrt(next.Relation.Trust)
	}
	next.Relation.Trust = clamp01(next.Relation.Trust + trustDelta)
	next.Relation.ConnectionDepth = clamp01(next.Relation.ConnectionDepth + req.ConnectionDelta*scale)

	if req.PrimaryEmotion != "" {
		next.Emotional.Secondary = next.Emotional.Primary
		next.Emotional.Primary = req.PrimaryEmotion
	}
	if req.SecondaryEmotion != "" {
		next.Emotional.Secondary = req.SecondaryEmotion
	}
	next.Emotional.Intensity = clamp01(next.Emotional.Intensity + (req.EmotionalIntensity-next.Emotional.Intensity)*scale)

	for k, d := range req.TraitDeltas {
		next.Psych.Traits[k] = clamp01(next.Psych.Traits[k] + d*scale)
	}
	for k, a := range req.Alignments {
		next.Psych.Alignments[k] = clamp01(a)
	}
	if req.ActiveAdaptations != nil {
		next.Psych.ActiveAdapt = append([]string(nil), req.ActiveAdaptations...)
	}

	next.Meta.InteractionCount++

	// 4. Stage gate: advance at most one stage, only when trust, interaction
	// count and current stability all clear the bar.
	advanced := false
	target := next.Relation.Stage.Next()
	if target != next.Relation.Stage {
		gate := m.config.Gates[target]
		if next.Relation.Trust >= gate.MinTrust &&
			next.Meta.InteractionCount >= gate.MinInteractions &&
			cur.Meta.Stability >= req.StabilityRequirement {
			next.Relation.Stage = target
			advanced = true
		}
	}

	// 5. Version bump and bookkeeping.
	next.Meta.Version = cur.Meta.Version + 1
	next.Meta.UpdatedAt = req.Now
	next.Meta.Stability = m.coherence(next)
	next.Regression = nil

	return next, Metrics{
		Coherence:      coherence,
		EffectiveScale: scale,
		StageAdvanced:  advanced,
		TrustApplied:   trustDelta,
	}, nil
}

// #endregion apply

// #region regress

// Regress records an explicit stage regression. This is the only path by
// which a stage moves backward.
func (m *Manager) Regress(cur SystemState, to Stage, reason string, req UpdateRequest) (SystemState, error) {
	if stageIndex(to) >= stageIndex(cur.Relation.Stage) {
		return SystemState{}, fmt.Errorf("regress: %s is not behind %s", to, cur.Relation.Stage)
	}
	next := clone(cur)
	next.Relation.Stage = to
	next.Regression = &Regression{
		From:   cur.Relation.Stage,
		To:     to,
		Reason: reason,
		At:     req.Now,
	}
	next.Meta.Version = cur.Meta.Version + 1
	next.Meta.UpdatedAt = req.Now
	next.Meta.Stability = m.coherence(next)
	return next, nil
}

// #endregion regress

// #region coherence

// coherence measures agreement between the relationship and emotional
// sub-states in [0,1]. Trust far below the midpoint expected at the current
// stage is incoherent, as is deep connection without trust.
func (m *Manager) coherence(s SystemState) float64 {
	expected := stageMidTrust(s.Relation.Stage, m.config)
	trustGap := math.Abs(s.Relation.Trust - expected)

	depthGap := 0.0
	if s.Relation.ConnectionDepth > s.Relation.Trust {
		depthGap = s.Relation.ConnectionDepth - s.Relation.Trust
	}

	c := 1 - trustGap - 0.5*depthGap
	return clamp01(c)
}

// stageMidTrust is the trust level a stage is calibrated around: halfway
// between its own gate and the next stage's gate.
func stageMidTrust(s Stage, cfg Config) float64 {
	lo := 0.0
	if g, ok := cfg.Gates[s]; ok {
		lo = g.MinTrust
	}
	hi := 1.0
	if g, ok := cfg.Gates[s.Next()]; ok && s.Next() != s {
		hi = g.MinTrust
	}
	return (lo + hi) / 2
}

// #endregion coherence

// #region helpers

func clone(s SystemState) SystemState {
	out := s
	out.Psych.Traits = make(map[string]float64, len(s.Psych.Traits))
	for k, v := range s.Psych.Traits {
		out.Psych.Traits[k] = v
	}
	out.Psych.Alignments = make(map[theory.Kind]float64, len(s.Psych.Alignments))
	for k, v := range s.Psych.Alignments {
		out.Psych.Alignments[k] = v
	}
	out.Psych.ActiveAdapt = append([]string(nil), s.Psych.ActiveAdapt...)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
