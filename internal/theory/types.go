package theory

import (
	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region kind

// Kind identifies one psychological theory. The set is closed: new theories
// are added by extending this enum and Builtin(), never by runtime injection.
type Kind string

const (
	Attachment            Kind = "attachment"
	SocialPenetration     Kind = "social_penetration"
	UncertaintyReduction  Kind = "uncertainty_reduction"
	EmotionalIntelligence Kind = "emotional_intelligence"
)

// Kinds is the fixed validator ordering.
var Kinds = []Kind{Attachment, SocialPenetration, UncertaintyReduction, EmotionalIntelligence}

// #endregion kind

// #region severity

// Severity ranks a concern.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "unknown"
}

// #endregion severity

// #region interaction

// Interaction is the proposed exchange a validator scores. Validators see
// only this shared read-only input, never each other's state.
type Interaction struct {
	Message          string
	Draft            string // candidate response draft, may be empty pre-generation
	Emotion          emotion.Emotion
	Intensity        float64
	Stage            string
	Trust            float64
	InteractionCount int
}

// #endregion interaction

// #region rule

// Rule is one validation predicate with its concern metadata. Predicates are
// plain functions compiled into the variant set.
type Rule struct {
	Name         string
	Severity     Severity
	SuggestedFix string
	Check        func(Interaction) bool // true = rule satisfied
}

// DevelopmentStage is an ordered stage with entry requirements.
type DevelopmentStage struct {
	Name            string
	MinTrust        float64
	MinInteractions int
}

// #endregion rule

// #region theory

// Theory is a named rule set with principles, development stages, and a
// fusion weight.
type Theory struct {
	Kind       Kind
	Name       string
	Principles []string
	Rules      []Rule
	Stages     []DevelopmentStage
	Weight     float64 // [0,1] influence on fusion
}

// #endregion theory

// #region result

// Concern is a single validation finding.
type Concern struct {
	Type         string
	Severity     Severity
	SuggestedFix string
}

// Result is one theory's verdict on a proposed interaction.
type Result struct {
	Kind          Kind
	Alignment     float64   // [0,1]
	Concerns      []Concern // ranked by severity, highest first
	Adjustment    vector.Vec
	HasAdjustment bool
	Weight        float64 // theory weight at validation time
}

// Failing reports whether the theory fell below the alignment minimum.
// Failing theories push fusion at full theory weight; passing theories
// contribute at a reduced maintenance weight.
func (r Result) Failing(minAlignment float64) bool {
	return r.Alignment < minAlignment
}

// #endregion result
