package emotion

import (
	"sync"

	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region producer

// Producer is a single emotion's stateful signal unit. Each Produce call
// mutates only this producer's own AgentState. The state is guarded so that
// a Produce call abandoned by a caller on timeout can finish safely while
// the next turn is already underway.
type Producer struct {
	emotion Emotion
	basis   vector.Vec
	config  Config

	mu    sync.Mutex
	state AgentState
}

// NewProducer creates a producer for one emotion category.
func NewProducer(e Emotion, config Config) *Producer {
	return &Producer{
		emotion: e,
		basis:   basisFor(e),
		state:   DefaultAgentState(),
		config:  config,
	}
}

// Emotion returns the producer's category.
func (p *Producer) Emotion() Emotion { return p.emotion }

// State returns a copy of the producer's current state.
func (p *Producer) State() AgentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DampInfluence scales the producer's influence, used by the council when
// dominance transfers away from this producer.
func (p *Producer) DampInfluence(factor float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Influence = clamp01(p.state.Influence * factor)
}

// #endregion producer

// #region produce

// Produce computes this emotion's proposal for a turn.
//
// Energy decays multiplicatively on every invocation regardless of message
// content, and recovers with elapsed idle time since the last invocation.
// Influence is rescaled by momentum: cosine similarity between the proposed
// direction and the previous control vector. Divergent producers are damped
// down to the configured floor, never discarded.
func (p *Producer) Produce(message string, ctx Context) Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Time-based recovery before this turn's fatigue is applied.
	if !p.state.LastActive.IsZero() && ctx.Now.After(p.state.LastActive) {
		idleHours := ctx.Now.Sub(p.state.LastActive).Hours()
		p.state.Energy = clamp01(p.state.Energy + idleHours*p.config.RecoveryPerHr)
	}
	p.state.Energy *= p.config.EnergyDecay
	if p.state.Energy < p.config.EnergyFloor {
		p.state.Energy = p.config.EnergyFloor
	}

	intensity := lexicalIntensity(p.emotion, message)
	if w, ok := ctx.Traits[string(p.emotion)]; ok {
		// Personality traits bias how readily each emotion activates.
		intensity = clamp01(intensity * (0.5 + w))
	}

	momentum := 1.0
	if !vector.IsDegenerate(ctx.PrevControl) {
		cos := vector.Cosine(p.basis, ctx.PrevControl)
		momentum = 0.5 + 0.5*cos // [0,1]
		if momentum < p.config.MomentumFloor {
			momentum = p.config.MomentumFloor
		}
	}

	raw := 0.5*intensity + 0.5*p.state.Influence
	scale := 1 - p.config.MomentumWeight + p.config.MomentumWeight*momentum
	influence := clamp01(raw * scale * p.state.Energy)

	confidence := 0.5
	if intensity > 0 && p.emotion != Neutral {
		confidence = clamp01(0.4 + 0.6*intensity)
	}

	p.state.Influence = influence
	p.state.Confidence = confidence
	p.state.LastActive = ctx.Now

	return Proposal{
		Emotion:    p.emotion,
		Vector:     p.basis,
		Intensity:  intensity,
		Influence:  influence,
		Confidence: confidence,
		State:      p.state,
	}
}

// #endregion produce

// #region basis

// basisFor derives the fixed unit direction for an emotion category.
func basisFor(e Emotion) vector.Vec {
	return vector.Basis("emotion:" + string(e))
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

// #endregion basis
