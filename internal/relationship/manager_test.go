package relationship

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/theory"
)

// #region helpers

func baseTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func baseRequest(now time.Time) UpdateRequest {
	return UpdateRequest{Now: now}
}

// #endregion helpers

// #region apply

func TestApplyFullStrengthAtZeroRequirement(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()
	cur := Initial("p1", now)

	req := baseRequest(now)
	req.TrustDelta = 0.1

	next, metrics, err := m.Apply(cur, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Relation.Trust <= 0 {
		t.Fatalf("expected trust to rise, got %f", next.Relation.Trust)
	}
	if metrics.EffectiveScale <= 0 {
		t.Fatalf("expected positive effective scale, got %f", metrics.EffectiveScale)
	}
	if next.Meta.Version != cur.Meta.Version+1 {
		t.Fatalf("expected version %d, got %d", cur.Meta.Version+1, next.Meta.Version)
	}
	if next.Meta.InteractionCount != 1 {
		t.Fatalf("expected interaction count 1, got %d", next.Meta.InteractionCount)
	}
}

func TestApplyFrozenAtFullRequirement(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()
	cur := Initial("p1", now)
	cur.Relation.Trust = 0.3
	cur.Emotional.Intensity = 0.4

	req := baseRequest(now)
	req.TrustDelta = 0.5
	req.EmotionalIntensity = 1.0
	req.StabilityRequirement = 1.0

	next, metrics, err := m.Apply(cur, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Relation.Trust != cur.Relation.Trust {
		t.Fatalf("trust moved under full stability requirement: %f -> %f",
			cur.Relation.Trust, next.Relation.Trust)
	}
	if next.Emotional.Intensity != cur.Emotional.Intensity {
		t.Fatalf("intensity moved under full stability requirement: %f -> %f",
			cur.Emotional.Intensity, next.Emotional.Intensity)
	}
	if metrics.EffectiveScale != 0 {
		t.Fatalf("expected zero effective scale, got %f", metrics.EffectiveScale)
	}
	// Versioning and bookkeeping still advance on a frozen update.
	if next.Meta.Version != cur.Meta.Version+1 {
		t.Fatalf("expected version bump on frozen update")
	}
}

func TestApplyRejectsRequirementOutOfRange(t *testing.T) {
	m := NewManager(DefaultConfig())
	cur := Initial("p1", baseTime())

	for _, bad := range []float64{-0.1, 1.1} {
		req := baseRequest(baseTime())
		req.StabilityRequirement = bad
		if _, _, err := m.Apply(cur, req); err == nil {
			t.Fatalf("expected error for stability requirement %f", bad)
		}
	}
}

func TestApplyTrustResistanceAtHighTrust(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	low := Initial("p1", now)
	low.Relation.Trust = 0.1
	high := Initial("p2", now)
	high.Relation.Trust = 0.9
	// Put both at a stage where their trust is coherent so the scale factor
	// does not dominate the comparison.
	high.Relation.Stage = StageIntimate

	req := baseRequest(now)
	req.TrustDelta = 0.1

	lowNext, lowMetrics, err := m.Apply(low, req)
	if err != nil {
		t.Fatalf("apply low: %v", err)
	}
	highNext, highMetrics, err := m.Apply(high, req)
	if err != nil {
		t.Fatalf("apply high: %v", err)
	}

	lowGain := lowNext.Relation.Trust - low.Relation.Trust
	highGain := highNext.Relation.Trust - high.Relation.Trust
	if highGain >= lowGain {
		t.Fatalf("expected high trust to resist gains: low gained %f, high gained %f", lowGain, highGain)
	}
	if lowMetrics.TrustApplied <= highMetrics.TrustApplied {
		t.Fatalf("expected smaller applied delta at high trust")
	}
}

func TestApplyTimeDecay(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)
	now := baseTime()

	cur := Initial("p1", now)
	cur.Emotional.Intensity = 0.8
	cur.Relation.ConnectionDepth = 0.6

	req := baseRequest(now.Add(10 * time.Hour))
	req.StabilityRequirement = 1.0 // isolate decay from deltas

	next, _, err := m.Apply(cur, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	wantIntensity := 0.8 * math.Exp(-cfg.IntensityDecayPerHr*10)
	wantDepth := 0.6 * math.Exp(-cfg.ConnectionDecayPerHr*10)
	if math.Abs(next.Emotional.Intensity-wantIntensity) > 1e-9 {
		t.Fatalf("intensity decay: want %f, got %f", wantIntensity, next.Emotional.Intensity)
	}
	if math.Abs(next.Relation.ConnectionDepth-wantDepth) > 1e-9 {
		t.Fatalf("connection decay: want %f, got %f", wantDepth, next.Relation.ConnectionDepth)
	}
}

func TestApplyEmotionShift(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()
	cur := Initial("p1", now)
	cur.Emotional.Primary = emotion.Joy

	req := baseRequest(now)
	req.PrimaryEmotion = emotion.Sadness

	next, _, err := m.Apply(cur, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Emotional.Primary != emotion.Sadness {
		t.Fatalf("expected primary sadness, got %s", next.Emotional.Primary)
	}
	if next.Emotional.Secondary != emotion.Joy {
		t.Fatalf("expected previous primary demoted to secondary, got %s", next.Emotional.Secondary)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()
	cur := Initial("p1", now)
	cur.Psych.Traits["warmth"] = 0.5
	cur.Psych.Alignments[theory.Attachment] = 0.9

	req := baseRequest(now)
	req.TraitDeltas = map[string]float64{"warmth": 0.2}
	req.Alignments = map[theory.Kind]float64{theory.Attachment: 0.3}

	if _, _, err := m.Apply(cur, req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cur.Psych.Traits["warmth"] != 0.5 {
		t.Fatalf("input traits mutated: %f", cur.Psych.Traits["warmth"])
	}
	if cur.Psych.Alignments[theory.Attachment] != 0.9 {
		t.Fatalf("input alignments mutated")
	}
}

// #endregion apply

// #region stage-gate

func TestStageAdvancesOneAtATime(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	cur := Initial("p1", now)
	// Trust and interactions far beyond every gate: still only one step.
	cur.Relation.Trust = 0.95
	cur.Meta.InteractionCount = 500
	cur.Meta.Stability = 1

	next, metrics, err := m.Apply(cur, baseRequest(now))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !metrics.StageAdvanced {
		t.Fatalf("expected stage advance")
	}
	if next.Relation.Stage != StageDeveloping {
		t.Fatalf("expected single-step advance to developing, got %s", next.Relation.Stage)
	}
}

func TestStageGateBlocksOnInteractions(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	cur := Initial("p1", now)
	cur.Relation.Trust = 0.95
	cur.Meta.InteractionCount = 1 // below the gate after increment

	next, metrics, err := m.Apply(cur, baseRequest(now))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if metrics.StageAdvanced || next.Relation.Stage != StageInitial {
		t.Fatalf("expected no advance with too few interactions, got %s", next.Relation.Stage)
	}
}

func TestStageGateBlocksOnStability(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	cur := Initial("p1", now)
	cur.Relation.Trust = 0.95
	cur.Meta.InteractionCount = 500
	cur.Meta.Stability = 0.2

	req := baseRequest(now)
	req.StabilityRequirement = 0.8

	next, metrics, err := m.Apply(cur, req)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if metrics.StageAdvanced || next.Relation.Stage != StageInitial {
		t.Fatalf("expected no advance under unstable state, got %s", next.Relation.Stage)
	}
}

func TestStageGateHoldsForRandomizedInputs(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()
	rng := rand.New(rand.NewSource(1))

	stages := []Stage{StageInitial, StageDeveloping, StageEstablished, StageClose}
	for i := 0; i < 500; i++ {
		stage := stages[rng.Intn(len(stages))]
		gate := DefaultConfig().Gates[stage.Next()]

		cur := Initial("p1", now)
		cur.Relation.Stage = stage
		// Trust strictly below the next gate, everything else randomized.
		cur.Relation.Trust = rng.Float64() * gate.MinTrust * 0.999
		cur.Meta.InteractionCount = rng.Intn(400)
		cur.Meta.Stability = rng.Float64()

		next, metrics, err := m.Apply(cur, baseRequest(now))
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if metrics.StageAdvanced || next.Relation.Stage != stage {
			t.Fatalf("stage advanced from %s with trust %f below gate %f (interactions %d)",
				stage, cur.Relation.Trust, gate.MinTrust, cur.Meta.InteractionCount)
		}
	}
}

func TestStageNeverRegressesThroughApply(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	cur := Initial("p1", now)
	cur.Relation.Stage = StageClose
	cur.Relation.Trust = 0.0 // trust collapsed
	cur.Meta.InteractionCount = 60

	next, _, err := m.Apply(cur, baseRequest(now))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Relation.Stage != StageClose {
		t.Fatalf("stage regressed through Apply: %s", next.Relation.Stage)
	}
}

// #endregion stage-gate

// #region regress

func TestRegressRecordsEvent(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := baseTime()

	cur := Initial("p1", now)
	cur.Relation.Stage = StageClose
	cur.Meta.Version = 7

	next, err := m.Regress(cur, StageDeveloping, "trust breach", baseRequest(now))
	if err != nil {
		t.Fatalf("regress: %v", err)
	}
	if next.Relation.Stage != StageDeveloping {
		t.Fatalf("expected developing, got %s", next.Relation.Stage)
	}
	if next.Regression == nil {
		t.Fatalf("expected regression event recorded")
	}
	if next.Regression.From != StageClose || next.Regression.To != StageDeveloping {
		t.Fatalf("regression event stages wrong: %+v", next.Regression)
	}
	if next.Meta.Version != 8 {
		t.Fatalf("expected version 8, got %d", next.Meta.Version)
	}
}

func TestRegressRejectsForward(t *testing.T) {
	m := NewManager(DefaultConfig())
	cur := Initial("p1", baseTime())

	if _, err := m.Regress(cur, StageEstablished, "x", baseRequest(baseTime())); err == nil {
		t.Fatalf("expected error regressing forward")
	}
	if _, err := m.Regress(cur, StageInitial, "x", baseRequest(baseTime())); err == nil {
		t.Fatalf("expected error regressing to the same stage")
	}
}

// #endregion regress

// #region coherence

func TestCoherencePenalizesDepthWithoutTrust(t *testing.T) {
	m := NewManager(DefaultConfig())

	balanced := Initial("p1", baseTime())
	balanced.Relation.Trust = 0.1
	balanced.Relation.ConnectionDepth = 0.1

	lopsided := Initial("p2", baseTime())
	lopsided.Relation.Trust = 0.1
	lopsided.Relation.ConnectionDepth = 0.9

	if m.coherence(lopsided) >= m.coherence(balanced) {
		t.Fatalf("expected deep connection without trust to lower coherence")
	}
}

// #endregion coherence
