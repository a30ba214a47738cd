package turn

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/relationship"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region request-result

// Request is one user turn.
type Request struct {
	PersonaID string
	Message   string
	Now       time.Time

	// StabilityRequirement damps the state update; zero applies it fully.
	StabilityRequirement float64
}

// Result is the complete outcome of a processed turn.
type Result struct {
	Response string
	State    relationship.SystemState
	Control  vector.Vec

	Dominant  emotion.Emotion
	Intensity float64

	Metrics Metrics
}

// Metrics is the per-turn diagnostic block.
type Metrics struct {
	Confidence float64
	Stability  float64
	Coherence  float64
	Degraded   bool
	TimedOut   []emotion.Emotion
	Conflicts  int
	Retried    bool
}

// #endregion request-result

// #region errors

// ProducerTimeoutError reports a producer that missed its budget. The
// producer contributes zero influence for the turn; the turn itself
// continues.
type ProducerTimeoutError struct {
	Emotion emotion.Emotion
	Budget  time.Duration
}

func (e *ProducerTimeoutError) Error() string {
	return fmt.Sprintf("producer %s exceeded %v budget", e.Emotion, e.Budget)
}

// #endregion errors
