package theory

import (
	"sort"

	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region validate

// Validate scores an interaction against one theory's rule set.
//
// Alignment starts at 1 and each violated rule subtracts a severity-scaled
// penalty. Concerns come back ranked highest severity first. Theories that
// accumulate any violation also emit an adjustment vector along the theory's
// characteristic direction, scaled by how far alignment fell; the fuser
// decides the final weight of that push.
func Validate(th Theory, in Interaction) Result {
	res := Result{
		Kind:      th.Kind,
		Alignment: 1,
		Weight:    th.Weight,
	}

	for _, rule := range th.Rules {
		if rule.Check(in) {
			continue
		}
		res.Concerns = append(res.Concerns, Concern{
			Type:         rule.Name,
			Severity:     rule.Severity,
			SuggestedFix: rule.SuggestedFix,
		})
		res.Alignment -= severityPenalty(rule.Severity)
	}
	if res.Alignment < 0 {
		res.Alignment = 0
	}

	sort.SliceStable(res.Concerns, func(i, j int) bool {
		return res.Concerns[i].Severity > res.Concerns[j].Severity
	})

	if len(res.Concerns) > 0 {
		res.Adjustment = vector.Scale(adjustmentBasis(th.Kind), 1-res.Alignment)
		res.HasAdjustment = true
	}

	return res
}

// severityPenalty maps a severity to its alignment cost.
func severityPenalty(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return 0.5
	case SeverityMedium:
		return 0.3
	default:
		return 0.15
	}
}

// adjustmentBasis is the fixed push direction for a theory kind.
func adjustmentBasis(k Kind) vector.Vec {
	return vector.Basis("theory:" + string(k))
}

// #endregion validate

// #region current-stage

// CurrentStage resolves the highest development stage whose entry
// requirements the interaction context satisfies. Stages are ordered, so the
// scan never skips ahead of an unmet requirement.
func CurrentStage(th Theory, trust float64, interactions int) DevelopmentStage {
	current := th.Stages[0]
	for _, st := range th.Stages[1:] {
		if trust < st.MinTrust || interactions < st.MinInteractions {
			break
		}
		current = st
	}
	return current
}

// #endregion current-stage
