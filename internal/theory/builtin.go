package theory

import "strings"

// #region builtin

// Builtin returns the full closed set of theories with default weights.
// Configuration loading may adjust weights via Registry.Update but cannot
// introduce new kinds.
func Builtin() []Theory {
	return []Theory{
		attachmentTheory(),
		socialPenetrationTheory(),
		uncertaintyReductionTheory(),
		emotionalIntelligenceTheory(),
	}
}

// #endregion builtin

// #region attachment

func attachmentTheory() Theory {
	return Theory{
		Kind: Attachment,
		Name: "Attachment Theory",
		Principles: []string{
			"Secure attachment builds on consistent responsiveness",
			"Abrupt withdrawal damages established bonds",
			"Emotional availability should match relationship depth",
		},
		Rules: []Rule{
			{
				Name:         "consistent_responsiveness",
				Severity:     SeverityHigh,
				SuggestedFix: "acknowledge the message before redirecting",
				Check: func(in Interaction) bool {
					// A non-empty draft that ignores a high-intensity message
					// reads as withdrawal.
					if in.Draft == "" {
						return true
					}
					return !(in.Intensity > 0.7 && len(strings.Fields(in.Draft)) < 3)
				},
			},
			{
				Name:         "depth_matches_stage",
				Severity:     SeverityMedium,
				SuggestedFix: "moderate emotional intensity for the current stage",
				Check: func(in Interaction) bool {
					// Intense emotional output in an initial-stage relationship
					// overshoots attachment readiness.
					return !(in.Stage == "initial" && in.Intensity > 0.8)
				},
			},
		},
		Stages: []DevelopmentStage{
			{Name: "preattachment", MinTrust: 0, MinInteractions: 0},
			{Name: "attachment_in_making", MinTrust: 0.3, MinInteractions: 5},
			{Name: "clear_cut_attachment", MinTrust: 0.6, MinInteractions: 20},
		},
		Weight: 0.8,
	}
}

// #endregion attachment

// #region social-penetration

func socialPenetrationTheory() Theory {
	return Theory{
		Kind: SocialPenetration,
		Name: "Social Penetration Theory",
		Principles: []string{
			"Relationships develop through gradual self-disclosure",
			"Disclosure progresses from shallow to deep",
			"Reciprocity drives relationship development",
		},
		Rules: []Rule{
			{
				Name:         "disclosure_pace",
				Severity:     SeverityHigh,
				SuggestedFix: "keep disclosure shallow until trust develops",
				Check: func(in Interaction) bool {
					// Deep disclosure markers are out of place at low trust.
					if in.Trust >= 0.4 {
						return true
					}
					lower := strings.ToLower(in.Draft)
					return !(strings.Contains(lower, "secret") || strings.Contains(lower, "never told anyone"))
				},
			},
			{
				Name:         "stage_appropriate_intimacy",
				Severity:     SeverityMedium,
				SuggestedFix: "match intimacy level to relationship stage",
				Check: func(in Interaction) bool {
					return !(in.Stage == "initial" && in.Trust < 0.2 && in.Intensity > 0.6)
				},
			},
		},
		Stages: []DevelopmentStage{
			{Name: "orientation", MinTrust: 0, MinInteractions: 0},
			{Name: "exploratory", MinTrust: 0.2, MinInteractions: 3},
			{Name: "affective", MinTrust: 0.5, MinInteractions: 15},
			{Name: "stable", MinTrust: 0.7, MinInteractions: 40},
		},
		Weight: 0.7,
	}
}

// #endregion social-penetration

// #region uncertainty-reduction

func uncertaintyReductionTheory() Theory {
	return Theory{
		Kind: UncertaintyReduction,
		Name: "Uncertainty Reduction Theory",
		Principles: []string{
			"People seek to reduce uncertainty in relationships",
			"Predictability builds comfort and trust",
			"Communication patterns reflect uncertainty levels",
		},
		Rules: []Rule{
			{
				Name:         "consistency",
				Severity:     SeverityMedium,
				SuggestedFix: "provide clear and consistent information",
				Check: func(in Interaction) bool {
					// Early relationships need predictable, steady affect.
					return !(in.InteractionCount < 5 && in.Intensity > 0.9)
				},
			},
			{
				Name:         "responsive_to_questions",
				Severity:     SeverityLow,
				SuggestedFix: "address the user's question directly",
				Check: func(in Interaction) bool {
					if !strings.Contains(in.Message, "?") || in.Draft == "" {
						return true
					}
					return len(strings.Fields(in.Draft)) >= 3
				},
			},
		},
		Stages: []DevelopmentStage{
			{Name: "entry", MinTrust: 0, MinInteractions: 0},
			{Name: "personal", MinTrust: 0.3, MinInteractions: 10},
			{Name: "exit_or_bond", MinTrust: 0.6, MinInteractions: 30},
		},
		Weight: 0.6,
	}
}

// #endregion uncertainty-reduction

// #region emotional-intelligence

func emotionalIntelligenceTheory() Theory {
	return Theory{
		Kind: EmotionalIntelligence,
		Name: "Emotional Intelligence Framework",
		Principles: []string{
			"Recognize emotion before responding to content",
			"Regulate intensity to the partner's capacity",
			"Name emotions to validate them",
		},
		Rules: []Rule{
			{
				Name:         "emotion_regulation",
				Severity:     SeverityHigh,
				SuggestedFix: "lower response intensity toward the midpoint",
				Check: func(in Interaction) bool {
					// Mirroring extreme negative affect amplifies it.
					negative := in.Emotion == "anger" || in.Emotion == "fear" || in.Emotion == "disgust"
					return !(negative && in.Intensity > 0.85)
				},
			},
			{
				Name:         "affect_awareness",
				Severity:     SeverityLow,
				SuggestedFix: "acknowledge the detected emotion explicitly",
				Check: func(in Interaction) bool {
					return in.Emotion != ""
				},
			},
		},
		Stages: []DevelopmentStage{
			{Name: "perceiving", MinTrust: 0, MinInteractions: 0},
			{Name: "understanding", MinTrust: 0.25, MinInteractions: 8},
			{Name: "managing", MinTrust: 0.55, MinInteractions: 25},
		},
		Weight: 0.75,
	}
}

// #endregion emotional-intelligence
