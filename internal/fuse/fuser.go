package fuse

import (
	"math"

	"github.com/danielpatrickdp/persona-core/internal/theory"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region fuser

// Fuser merges the emotional aggregate, theory adjustments, and adaptation
// cluster pulls into one bounded control vector. The stability constraints
// run after fusion, in a fixed order, and guarantee the control vector never
// jumps discontinuously between turns.
type Fuser struct {
	config Config
}

// New creates a Fuser.
func New(config Config) *Fuser {
	return &Fuser{config: config}
}

// #endregion fuser

// #region fuse

// Fuse computes the next control vector.
//
// Component weights derive from context: longer interaction gaps shrink the
// emotional weight, higher interaction counts grow the theory weight (mature
// relationships are more theory-governed), and emotional intensity amplifies
// the emotional weight. Weights are renormalized to sum to 1 before the sum.
func (f *Fuser) Fuse(em Emotional, theories []theory.Result, clusters []ClusterBias, ctx Context) (Result, error) {
	if vector.IsDegenerate(em.Vector) {
		if vector.IsDegenerate(ctx.PrevControl) {
			return Result{}, vector.ErrDegenerate
		}
		// Nothing usable to fuse this turn; hold the previous vector.
		return Result{Vector: ctx.PrevControl, Degraded: true}, nil
	}

	adjustment, conflicts := f.combineAdjustments(theories)

	emW, thW, clW := f.componentWeights(em, ctx)

	vecs := []vector.Vec{vector.Scale(em.Vector, clampMag(em.Intensity, f.config))}
	weights := []float64{emW}

	if !vector.IsDegenerate(adjustment) {
		vecs = append(vecs, adjustment)
		weights = append(weights, thW)
	} else {
		thW = 0
	}

	var clusterTotal float64
	for _, cb := range clusters {
		if vector.IsDegenerate(cb.Centroid) || cb.Stability <= 0 {
			continue
		}
		w := clW * cb.Stability
		vecs = append(vecs, cb.Centroid)
		weights = append(weights, w)
		clusterTotal += w
	}

	raw, err := vector.WeightedSum(vecs, weights)
	if err != nil {
		return Result{}, err
	}

	// Constraint 1: clamp the raw fused magnitude.
	raw = clampMagnitude(raw, f.config.MinMagnitude, f.config.MaxMagnitude)

	fused, err := vector.Normalize(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Vector:    fused,
		Conflicts: conflicts,
		Weights:   normalizedWeights(emW, thW, clusterTotal),
	}

	prev := ctx.PrevControl
	if vector.IsDegenerate(prev) {
		// First turn: nothing to be continuous with.
		return res, nil
	}

	// Constraint 2: limit the step from the previous control vector. Both
	// vectors are unit, so the bound is enforced as an arc: rotate from prev
	// toward the fused direction by at most the angle whose chord is
	// MaxDelta. Lerp-then-renormalize would land back on the sphere past
	// the chord bound.
	if vector.Delta(fused, prev) > f.config.MaxDelta {
		stepped, ok := stepOnSphere(prev, fused, f.config.MaxDelta)
		if !ok {
			// Near-opposite directions: no stable rotation path, hold.
			res.Vector = prev
			res.Degraded = true
			return res, nil
		}
		res.Vector = stepped
	}

	// Constraint 3: reject if still too dissimilar from the previous vector.
	if vector.Cosine(res.Vector, prev) < f.config.MinSimilarity {
		res.Vector = prev
		res.Degraded = true
	}

	return res, nil
}

// stepOnSphere rotates from prev toward target by the angle whose chord
// equals maxDelta, keeping the result unit-norm. Reports false when the two
// directions are near-opposite and the interpolation is unstable.
func stepOnSphere(prev, target vector.Vec, maxDelta float64) (vector.Vec, bool) {
	cos := vector.Cosine(prev, target)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	theta := math.Acos(cos)
	sinTheta := math.Sin(theta)
	if sinTheta < 1e-6 {
		return vector.Vec{}, false
	}
	phi := 2 * math.Asin(maxDelta/2)
	if phi >= theta {
		return target, true
	}
	a := math.Sin(theta-phi) / sinTheta
	b := math.Sin(phi) / sinTheta
	out, err := vector.Normalize(vector.Add(vector.Scale(prev, a), vector.Scale(target, b)))
	if err != nil {
		return vector.Vec{}, false
	}
	return out, true
}

// #endregion fuse

// #region adjustments

// combineAdjustments sums theory pushes. Failing theories push at full theory
// weight; passing theories contribute at the reduced maintenance weight.
// Mutually exclusive pushes (cosine below ConflictCosine) resolve in favor of
// the higher configured weight; the dropped push is recorded, never fatal.
func (f *Fuser) combineAdjustments(results []theory.Result) (vector.Vec, []Conflict) {
	type push struct {
		kind   theory.Kind
		vec    vector.Vec
		weight float64
	}

	var pushes []push
	for _, r := range results {
		if !r.HasAdjustment {
			continue
		}
		w := r.Weight * (1 - r.Alignment)
		if !r.Failing(f.config.MinAlignment) {
			w = r.Weight * f.config.MaintenanceFactor
		}
		if w <= 0 {
			continue
		}
		pushes = append(pushes, push{kind: r.Kind, vec: vector.Scale(r.Adjustment, w), weight: r.Weight})
	}

	var conflicts []Conflict
	dropped := make(map[int]bool)
	for i := 0; i < len(pushes); i++ {
		for j := i + 1; j < len(pushes); j++ {
			if dropped[i] || dropped[j] {
				continue
			}
			cos := vector.Cosine(pushes[i].vec, pushes[j].vec)
			if cos >= f.config.ConflictCosine {
				continue
			}
			keep, drop := i, j
			if pushes[j].weight > pushes[i].weight {
				keep, drop = j, i
			}
			dropped[drop] = true
			conflicts = append(conflicts, Conflict{
				Kept:    pushes[keep].kind,
				Dropped: pushes[drop].kind,
				Cosine:  cos,
			})
		}
	}

	var sum vector.Vec
	for i, p := range pushes {
		if dropped[i] {
			continue
		}
		sum = vector.Add(sum, p.vec)
	}
	return sum, conflicts
}

// #endregion adjustments

// #region weights

// componentWeights computes raw component weights from context.
func (f *Fuser) componentWeights(em Emotional, ctx Context) (emW, thW, clW float64) {
	emW = f.config.EmotionalBase * (0.5 + 0.5*em.Intensity)
	if f.config.GapHalfLifeHr > 0 && ctx.HoursSinceLast > 0 {
		emW *= math.Pow(0.5, ctx.HoursSinceLast/f.config.GapHalfLifeHr)
	}

	maturity := 1.0
	if f.config.MaturityCount > 0 {
		maturity = math.Min(1, float64(ctx.InteractionCount)/f.config.MaturityCount)
	}
	thW = f.config.TheoryBase * (0.5 + 0.5*maturity)

	clW = f.config.ClusterBias
	return emW, thW, clW
}

func normalizedWeights(emW, thW, clW float64) ComponentWeights {
	total := emW + thW + clW
	if total == 0 {
		return ComponentWeights{}
	}
	return ComponentWeights{
		Emotional: emW / total,
		Theory:    thW / total,
		Cluster:   clW / total,
	}
}

func clampMag(v float64, cfg Config) float64 {
	if v < cfg.MinMagnitude {
		return cfg.MinMagnitude
	}
	if v > cfg.MaxMagnitude {
		return cfg.MaxMagnitude
	}
	return v
}

// clampMagnitude rescales v so its norm lands inside [lo, hi].
func clampMagnitude(v vector.Vec, lo, hi float64) vector.Vec {
	n := vector.Norm(v)
	if n == 0 {
		return v
	}
	if n < lo {
		return vector.Scale(v, lo/n)
	}
	if n > hi {
		return vector.Scale(v, hi/n)
	}
	return v
}

// #endregion weights
