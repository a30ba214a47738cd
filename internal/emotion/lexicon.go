package emotion

import "strings"

// #region lexicons

// lexicons maps each emotion to trigger terms. Matching is substring-based
// over lowercased whitespace tokens, so "thrilled!" still hits "thrilled".
var lexicons = map[Emotion][]string{
	Joy: {
		"happy", "glad", "great", "wonderful", "love", "excited", "thrilled",
		"delighted", "awesome", "fantastic", "amazing", "yay", "fun", "enjoy",
	},
	Sadness: {
		"sad", "unhappy", "miss", "lonely", "cry", "grief", "lost", "down",
		"depressed", "hopeless", "hurt", "disappointed",
	},
	Anger: {
		"angry", "furious", "mad", "hate", "annoyed", "unfair", "frustrated",
		"rage", "irritated", "outrageous",
	},
	Fear: {
		"afraid", "scared", "worried", "anxious", "nervous", "terrified",
		"panic", "dread", "uneasy", "frightened",
	},
	Disgust: {
		"disgusting", "gross", "awful", "horrible", "nasty", "repulsive",
		"sickening", "vile",
	},
	Surprise: {
		"surprised", "unexpected", "wow", "sudden", "shocked", "unbelievable",
		"astonishing", "incredible",
	},
}

// #endregion lexicons

// #region score

// lexicalIntensity scores how strongly a message matches an emotion's lexicon.
// Returns hits scaled against message length, clamped to [0,1]. Neutral has
// no lexicon and always scores its baseline.
func lexicalIntensity(e Emotion, message string) float64 {
	if e == Neutral {
		return neutralBaseline
	}
	terms := lexicons[e]
	tokens := strings.Fields(strings.ToLower(message))
	if len(tokens) == 0 {
		return 0
	}

	hits := 0
	for _, tok := range tokens {
		for _, term := range terms {
			if strings.Contains(tok, term) {
				hits++
				break
			}
		}
	}
	if hits == 0 {
		return 0
	}

	// Three matched terms saturate the signal regardless of message length.
	score := float64(hits) / 3.0
	if score > 1 {
		score = 1
	}
	return score
}

// neutralBaseline keeps the neutral producer active at low intensity so the
// council always has a fallback direction.
const neutralBaseline = 0.2

// #endregion score
