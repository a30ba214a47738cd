package fuse

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/persona-core/internal/theory"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

func unitAt(i int) vector.Vec {
	var v vector.Vec
	v[i] = 1
	return v
}

func firstTurnCtx() Context {
	return Context{Stage: "initial", InteractionCount: 0}
}

func TestFuseProducesUnitVector(t *testing.T) {
	f := New(DefaultConfig())
	res, err := f.Fuse(Emotional{Vector: unitAt(0), Intensity: 0.8}, nil, nil, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if math.Abs(vector.Norm(res.Vector)-1) > 1e-5 {
		t.Fatalf("control vector norm %f, want 1", vector.Norm(res.Vector))
	}
	if res.Degraded {
		t.Fatal("first turn should never degrade")
	}
}

func TestFuseDegenerateEmotionalVector(t *testing.T) {
	f := New(DefaultConfig())
	if _, err := f.Fuse(Emotional{}, nil, nil, firstTurnCtx()); err != vector.ErrDegenerate {
		t.Fatalf("expected ErrDegenerate, got %v", err)
	}

	// With a previous control vector available, degrade instead of failing.
	ctx := firstTurnCtx()
	ctx.PrevControl = unitAt(0)
	res, err := f.Fuse(Emotional{}, nil, nil, ctx)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if !res.Degraded || res.Vector != ctx.PrevControl {
		t.Fatalf("expected fallback to previous vector, got degraded=%v", res.Degraded)
	}
}

func TestMaxDeltaLimitsStep(t *testing.T) {
	cfg := DefaultConfig()
	f := New(cfg)

	prev := unitAt(0)
	ctx := firstTurnCtx()
	ctx.PrevControl = prev

	// Orthogonal target: unconstrained delta would be sqrt(2) > MaxDelta.
	res, err := f.Fuse(Emotional{Vector: unitAt(1), Intensity: 1}, nil, nil, ctx)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if d := vector.Delta(res.Vector, prev); d > cfg.MaxDelta+1e-4 {
		t.Fatalf("delta %f exceeds max %f", d, cfg.MaxDelta)
	}
	if sim := vector.Cosine(res.Vector, prev); sim < cfg.MinSimilarity {
		t.Fatalf("similarity %f below minimum %f", sim, cfg.MinSimilarity)
	}

	// The bound must hold at every angle, not just 90 degrees. The result
	// stays on the unit sphere, so the chord to prev is what counts.
	for _, deg := range []float64{30, 45, 60, 90, 120, 150} {
		rad := deg * math.Pi / 180
		target, err := vector.Normalize(vector.Add(
			vector.Scale(unitAt(0), math.Cos(rad)),
			vector.Scale(unitAt(1), math.Sin(rad))))
		if err != nil {
			t.Fatalf("target at %v degrees: %v", deg, err)
		}
		res, err := f.Fuse(Emotional{Vector: target, Intensity: 1}, nil, nil, ctx)
		if err != nil {
			t.Fatalf("Fuse at %v degrees: %v", deg, err)
		}
		if res.Degraded {
			t.Fatalf("unexpected degradation at %v degrees", deg)
		}
		if d := vector.Delta(res.Vector, prev); d > cfg.MaxDelta+1e-4 {
			t.Fatalf("delta %f exceeds max %f at %v degrees", d, cfg.MaxDelta, deg)
		}
		if n := vector.Norm(res.Vector); math.Abs(n-1) > 1e-4 {
			t.Fatalf("result left the unit sphere at %v degrees: norm %f", deg, n)
		}
		if vector.Cosine(res.Vector, target) <= vector.Cosine(prev, target) {
			t.Fatalf("result did not move toward the target at %v degrees", deg)
		}
	}
}

func TestMinSimilarityRejectsAndFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDelta = 2.0 // let the step through so the similarity gate triggers
	cfg.MinSimilarity = 0.9
	f := New(cfg)

	prev := unitAt(0)
	ctx := firstTurnCtx()
	ctx.PrevControl = prev

	res, err := f.Fuse(Emotional{Vector: unitAt(1), Intensity: 1}, nil, nil, ctx)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded flag")
	}
	if res.Vector != prev {
		t.Fatal("expected fallback to previous control vector")
	}
}

func TestFailingTheoryPushesHarder(t *testing.T) {
	cfg := DefaultConfig()
	f := New(cfg)

	adj := unitAt(5)
	failing := theory.Result{
		Kind: theory.Attachment, Alignment: 0.2,
		Adjustment: adj, HasAdjustment: true, Weight: 0.8,
	}
	passing := theory.Result{
		Kind: theory.Attachment, Alignment: 0.9,
		Adjustment: adj, HasAdjustment: true, Weight: 0.8,
	}

	em := Emotional{Vector: unitAt(0), Intensity: 0.5}
	resFail, err := f.Fuse(em, []theory.Result{failing}, nil, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse failing: %v", err)
	}
	resPass, err := f.Fuse(em, []theory.Result{passing}, nil, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse passing: %v", err)
	}

	// The failing theory's control vector leans further toward the adjustment.
	if vector.Cosine(resFail.Vector, adj) <= vector.Cosine(resPass.Vector, adj) {
		t.Fatal("failing theory should push fusion harder than passing theory")
	}
}

func TestTheoryConflictResolvedByWeight(t *testing.T) {
	cfg := DefaultConfig()
	f := New(cfg)

	dir := unitAt(5)
	strong := theory.Result{
		Kind: theory.Attachment, Alignment: 0.1,
		Adjustment: dir, HasAdjustment: true, Weight: 0.9,
	}
	weak := theory.Result{
		Kind: theory.UncertaintyReduction, Alignment: 0.1,
		Adjustment: vector.Scale(dir, -1), HasAdjustment: true, Weight: 0.3,
	}

	res, err := f.Fuse(Emotional{Vector: unitAt(0), Intensity: 0.5},
		[]theory.Result{strong, weak}, nil, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Kept != theory.Attachment || c.Dropped != theory.UncertaintyReduction {
		t.Fatalf("conflict resolved wrong way: kept %s, dropped %s", c.Kept, c.Dropped)
	}
	// The kept push should be visible in the fused direction.
	if vector.Cosine(res.Vector, dir) <= 0 {
		t.Fatal("kept adjustment not reflected in control vector")
	}
}

func TestClusterBiasPullsTowardCentroid(t *testing.T) {
	f := New(DefaultConfig())

	em := Emotional{Vector: unitAt(0), Intensity: 0.5}
	centroid := unitAt(7)

	plain, err := f.Fuse(em, nil, nil, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse plain: %v", err)
	}
	biased, err := f.Fuse(em, nil, []ClusterBias{{Centroid: centroid, Stability: 1}}, firstTurnCtx())
	if err != nil {
		t.Fatalf("Fuse biased: %v", err)
	}

	if vector.Cosine(biased.Vector, centroid) <= vector.Cosine(plain.Vector, centroid) {
		t.Fatal("stable cluster should bias the control vector toward its centroid")
	}
}

func TestLongGapReducesEmotionalWeight(t *testing.T) {
	f := New(DefaultConfig())
	em := Emotional{Vector: unitAt(0), Intensity: 0.5}

	fresh := firstTurnCtx()
	stale := firstTurnCtx()
	stale.HoursSinceLast = 200

	emFresh, _, _ := f.componentWeights(em, fresh)
	emStale, _, _ := f.componentWeights(em, stale)
	if emStale >= emFresh {
		t.Fatalf("long gap should reduce emotional weight: %f vs %f", emStale, emFresh)
	}
}

func TestMaturityIncreasesTheoryWeight(t *testing.T) {
	f := New(DefaultConfig())
	em := Emotional{Vector: unitAt(0), Intensity: 0.5}

	young := firstTurnCtx()
	mature := firstTurnCtx()
	mature.InteractionCount = 500

	_, thYoung, _ := f.componentWeights(em, young)
	_, thMature, _ := f.componentWeights(em, mature)
	if thMature <= thYoung {
		t.Fatalf("maturity should increase theory weight: %f vs %f", thMature, thYoung)
	}
}
