// Package generate talks to the external text-generation service. The model
// call itself is a black box; this package only shapes the prompt context and
// moves bytes.
package generate

import (
	"context"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region interfaces

// PromptContext carries everything the generation call is steered by.
type PromptContext struct {
	Message         string
	DominantEmotion emotion.Emotion
	Intensity       float64
	Stage           string
	Control         vector.Vec
	Guidance        []string // theory concerns worth steering around
	Memories        []string // relevant past exchanges, most relevant first
}

// Generator produces response text from a prompt context.
type Generator interface {
	Generate(ctx context.Context, pc PromptContext) (string, error)
}

// Embedder turns text into a unit embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (vector.Vec, error)
}

// #endregion interfaces
