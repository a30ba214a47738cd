package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// Dim is the fixed dimensionality of every exchanged vector.
// Consumers reject anything else at the wire boundary (see FromSlice).
const Dim = 768

// UnitTolerance is the allowed deviation from unit norm for a control vector.
const UnitTolerance = 1e-6

// ErrDegenerate marks a zero or NaN vector. Degenerate vectors halt fusion
// for the turn; they are never silently substituted.
var ErrDegenerate = errors.New("degenerate vector")

// #region vec

// Vec is a fixed-dimension state vector. Value type: copies are cheap enough
// at this size and keep update functions pure.
type Vec [Dim]float32

// FromSlice converts a wire-shape slice into a Vec, rejecting wrong lengths.
func FromSlice(s []float32) (Vec, error) {
	var v Vec
	if len(s) != Dim {
		return v, fmt.Errorf("vector length %d, want %d", len(s), Dim)
	}
	copy(v[:], s)
	return v, nil
}

// #endregion vec

// #region norms

// Norm computes the L2 norm.
func Norm(v Vec) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsDegenerate reports whether v is the zero vector or contains NaN/Inf.
func IsDegenerate(v Vec) bool {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
		sum += f * f
	}
	return sum == 0
}

// Normalize rescales v to unit length. Already-unit vectors are returned
// unchanged so that normalization is idempotent within tolerance.
func Normalize(v Vec) (Vec, error) {
	if IsDegenerate(v) {
		return Vec{}, ErrDegenerate
	}
	n := Norm(v)
	if math.Abs(n-1) <= UnitTolerance {
		return v, nil
	}
	var out Vec
	inv := 1 / n
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, nil
}

// #endregion norms

// #region algebra

// Cosine computes cosine similarity. Returns 0 when either vector is zero.
func Cosine(a, b Vec) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Scale multiplies every element by k.
func Scale(v Vec, k float64) Vec {
	var out Vec
	for i, x := range v {
		out[i] = float32(float64(x) * k)
	}
	return out
}

// Add sums two vectors element-wise.
func Add(a, b Vec) Vec {
	var out Vec
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// WeightedSum combines vectors with the given weights after renormalizing the
// weights to sum to 1. Rescaling all weights by a positive constant therefore
// yields the same direction. Pairs with non-positive weight contribute nothing.
func WeightedSum(vecs []Vec, weights []float64) (Vec, error) {
	if len(vecs) != len(weights) {
		return Vec{}, fmt.Errorf("weighted sum: %d vectors, %d weights", len(vecs), len(weights))
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return Vec{}, ErrDegenerate
	}
	var out Vec
	for k, v := range vecs {
		w := weights[k] / total
		if w <= 0 {
			continue
		}
		for i, x := range v {
			out[i] += float32(float64(x) * w)
		}
	}
	return out, nil
}

// Lerp interpolates from a toward b by t in [0,1]. t=0 returns a, t=1 returns b.
func Lerp(a, b Vec, t float64) Vec {
	var out Vec
	for i := range a {
		out[i] = float32(float64(a[i])*(1-t) + float64(b[i])*t)
	}
	return out
}

// Delta computes the Euclidean distance between two vectors.
func Delta(a, b Vec) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// #endregion algebra

// #region basis

// Basis derives a deterministic unit direction from a label. Directions come
// from a hash-seeded linear congruential sequence, which keeps distinct
// labels near-orthogonal at this dimensionality without any trained data.
func Basis(label string) Vec {
	h := fnv.New64a()
	h.Write([]byte(label))
	x := h.Sum64()

	var v Vec
	for i := range v {
		// Numerical Recipes LCG constants.
		x = x*6364136223846793005 + 1442695040888963407
		// Map the top bits to [-1, 1).
		v[i] = float32(int32(x>>32)) / (1 << 31)
	}
	u, err := Normalize(v)
	if err != nil {
		// Unreachable: the sequence cannot produce an all-zero vector.
		panic("vector: degenerate basis for " + label)
	}
	return u
}

// #endregion basis

// #region codec

// Encode serializes v as little-endian float32s for BLOB storage.
func Encode(v Vec) []byte {
	buf := make([]byte, Dim*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes a BLOB written by Encode. The blob must carry exactly
// Dim float32s; anything else is a corrupt stored vector, not a vector.
func Decode(b []byte) (Vec, error) {
	var v Vec
	if len(b) != Dim*4 {
		return v, fmt.Errorf("decode vector: %d bytes, want %d", len(b), Dim*4)
	}
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// #endregion codec
