package council

import (
	"sort"
	"sync"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region types

// Result is the council's aggregated output for one turn.
type Result struct {
	Vector        vector.Vec // unit direction of the aggregate emotional signal
	Intensity     float64    // [0,1] overall emotional intensity
	Dominant      emotion.Emotion
	Confidence    float64 // dominant producer's confidence
	LowConfidence bool    // set when the council fell back to the previous vector
}

// Config holds council tuning.
type Config struct {
	// TransferDamp scales the outgoing dominant producer's influence when
	// dominance moves to a different emotion.
	TransferDamp float64
}

// DefaultConfig returns council defaults.
func DefaultConfig() Config {
	return Config{TransferDamp: 0.8}
}

// #endregion types

// #region council

// Council owns the full set of emotion producers and deterministically
// aggregates their proposals. Producer order is the fixed priority order,
// never insertion order, so identical inputs always aggregate identically.
type Council struct {
	producers map[emotion.Emotion]*emotion.Producer
	config    Config

	mu      sync.Mutex
	current emotion.Emotion
}

// New creates a council with one producer per emotion in priority order.
func New(produceCfg emotion.Config, cfg Config) *Council {
	producers := make(map[emotion.Emotion]*emotion.Producer, len(emotion.Priority))
	for _, e := range emotion.Priority {
		producers[e] = emotion.NewProducer(e, produceCfg)
	}
	return &Council{
		producers: producers,
		current:   emotion.Neutral,
		config:    cfg,
	}
}

// Producers returns the producer set in fixed priority order.
func (c *Council) Producers() []*emotion.Producer {
	out := make([]*emotion.Producer, 0, len(emotion.Priority))
	for _, e := range emotion.Priority {
		out = append(out, c.producers[e])
	}
	return out
}

// Dominant returns the emotion currently holding control.
func (c *Council) Dominant() emotion.Emotion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// #endregion council

// #region aggregate

// priorityIndex maps an emotion to its tie-break rank.
func priorityIndex(e emotion.Emotion) int {
	for i, p := range emotion.Priority {
		if p == e {
			return i
		}
	}
	return len(emotion.Priority)
}

// Aggregate combines producer proposals into one emotional vector.
//
// Dominance goes to the highest influence×confidence product, ties broken by
// fixed priority order. The aggregate direction is the influence-weighted sum
// of proposal vectors with weights renormalized to sum to 1, then unit
// normalized. If every proposal reports zero influence the council falls back
// to prevEmotional unchanged and flags low confidence.
func (c *Council) Aggregate(proposals []emotion.Proposal, prevEmotional vector.Vec) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := make([]emotion.Proposal, len(proposals))
	copy(ordered, proposals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityIndex(ordered[i].Emotion) < priorityIndex(ordered[j].Emotion)
	})

	var totalInfluence float64
	for _, p := range ordered {
		totalInfluence += p.Influence
	}
	if totalInfluence == 0 {
		return Result{
			Vector:        prevEmotional,
			Intensity:     0,
			Dominant:      c.current,
			Confidence:    0,
			LowConfidence: true,
		}
	}

	dominant := ordered[0]
	for _, p := range ordered[1:] {
		if p.Influence*p.Confidence > dominant.Influence*dominant.Confidence {
			dominant = p
		}
	}

	vecs := make([]vector.Vec, len(ordered))
	weights := make([]float64, len(ordered))
	var intensity float64
	for i, p := range ordered {
		vecs[i] = p.Vector
		weights[i] = p.Influence
		intensity += p.Intensity * (p.Influence / totalInfluence)
	}

	sum, err := vector.WeightedSum(vecs, weights)
	if err != nil {
		// All weights zero is handled above; a degenerate sum means the
		// proposals cancelled exactly. Treat as the pathological case.
		return Result{
			Vector:        prevEmotional,
			Dominant:      c.current,
			LowConfidence: true,
		}
	}
	unit, err := vector.Normalize(sum)
	if err != nil {
		return Result{
			Vector:        prevEmotional,
			Dominant:      c.current,
			LowConfidence: true,
		}
	}

	c.transferControl(dominant.Emotion)

	return Result{
		Vector:     unit,
		Intensity:  clamp01(intensity),
		Dominant:   dominant.Emotion,
		Confidence: dominant.Confidence,
	}
}

// transferControl damps the outgoing dominant producer when control moves.
// Caller holds c.mu.
func (c *Council) transferControl(next emotion.Emotion) {
	if next == c.current {
		return
	}
	if prev, ok := c.producers[c.current]; ok {
		prev.DampInfluence(c.config.TransferDamp)
	}
	c.current = next
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

// #endregion aggregate
