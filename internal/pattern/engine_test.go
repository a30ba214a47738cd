package pattern

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/memory"
	"github.com/danielpatrickdp/persona-core/internal/storage"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region helpers

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "patterns.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	memories, err := memory.NewStore(db)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	engine, err := NewEngine(db, memories, DefaultConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine, memories
}

// near returns a unit vector close to the axis at base, perturbed along the
// axis at tilt. Perturbations this small keep cosine distance well under eps.
func near(base, tilt int, amount float32) vector.Vec {
	var v vector.Vec
	v[base] = 1
	v[tilt] = amount
	out, _ := vector.Normalize(v)
	return out
}

func axis(i int) vector.Vec {
	var v vector.Vec
	v[i] = 1
	return v
}

func storeAt(t *testing.T, s *memory.Store, persona string, v vector.Vec, at time.Time) string {
	t.Helper()
	id, err := s.Store(memory.Memory{
		PersonaID:    persona,
		Message:      "m",
		Response:     "r",
		Emotion:      emotion.Neutral,
		Embedding:    v,
		Significance: 0.5,
		CreatedAt:    at,
	})
	if err != nil {
		t.Fatalf("store memory: %v", err)
	}
	return id
}

// #endregion helpers

// #region dbscan

func TestDBSCANSeparatesDenseGroups(t *testing.T) {
	points := []point{
		{id: "a1", vec: near(0, 700, 0.05)},
		{id: "a2", vec: near(0, 701, 0.05)},
		{id: "a3", vec: near(0, 702, 0.05)},
		{id: "b1", vec: near(300, 700, 0.05)},
		{id: "b2", vec: near(300, 701, 0.05)},
		{id: "b3", vec: near(300, 702, 0.05)},
		{id: "n1", vec: axis(600)}, // isolated
	}
	labels := dbscan(points, 0.3, 3)

	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Fatalf("first group split: %v", labels)
	}
	if labels[3] != labels[4] || labels[4] != labels[5] {
		t.Fatalf("second group split: %v", labels)
	}
	if labels[0] == labels[3] {
		t.Fatalf("distinct groups merged: %v", labels)
	}
	if labels[6] != labelNoise {
		t.Fatalf("isolated point not noise: %v", labels)
	}
}

func TestDBSCANDeterministic(t *testing.T) {
	var points []point
	for i := 0; i < 6; i++ {
		points = append(points, point{id: fmt.Sprintf("m%d", i), vec: near(0, 700+i, 0.04)})
	}
	for i := 0; i < 4; i++ {
		points = append(points, point{id: fmt.Sprintf("x%d", i), vec: near(200, 700+i, 0.04)})
	}

	first := dbscan(points, 0.3, 3)
	for run := 0; run < 5; run++ {
		got := dbscan(points, 0.3, 3)
		for i := range first {
			if got[i] != first[i] {
				t.Fatalf("run %d: label %d changed: %v vs %v", run, i, got, first)
			}
		}
	}
}

func TestDBSCANTooSparseIsAllNoise(t *testing.T) {
	points := []point{
		{id: "a", vec: axis(0)},
		{id: "b", vec: axis(1)},
		{id: "c", vec: axis(2)},
	}
	for i, l := range dbscan(points, 0.3, 3) {
		if l != labelNoise {
			t.Fatalf("point %d should be noise, got %d", i, l)
		}
	}
}

// #endregion dbscan

// #region consolidate

func TestConsolidateFormsClusters(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 4; i++ {
		storeAt(t, memories, "p1", near(0, 700+i, 0.05), now)
	}
	storeAt(t, memories, "p1", axis(400), now) // noise

	clusters, err := engine.Consolidate("p1", now)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	c := clusters[0]
	if len(c.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(c.Members))
	}
	if c.Stability != 0 {
		t.Fatalf("first pass should be entirely new, stability %f", c.Stability)
	}
	if vector.Cosine(c.Centroid, axis(0)) < 0.99 {
		t.Fatalf("centroid drifted from the group axis")
	}

	// Snapshot readable back.
	active, err := engine.Active("p1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || len(active[0].Members) != 4 {
		t.Fatalf("snapshot mismatch: %+v", active)
	}
	if vector.Cosine(active[0].Centroid, c.Centroid) < 1-1e-6 {
		t.Fatalf("centroid did not survive the snapshot")
	}
}

func TestConsolidateInsufficientSamples(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	storeAt(t, memories, "p1", axis(0), now)
	storeAt(t, memories, "p1", axis(1), now)

	_, err := engine.Consolidate("p1", now)
	var ins *InsufficientSamplesError
	if !errors.As(err, &ins) {
		t.Fatalf("expected InsufficientSamplesError, got %v", err)
	}
	if ins.Have != 2 || ins.Need != 3 {
		t.Fatalf("error detail wrong: %+v", ins)
	}

	// The no-op pass must not have written a snapshot.
	active, err := engine.Active("p1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no snapshot after no-op pass")
	}
}

func TestConsolidateSkipsLowSignificance(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 4; i++ {
		storeAt(t, memories, "p1", near(0, 700+i, 0.05), now)
	}
	// A dense group of low-significance records that would cluster if the
	// floor did not exclude them.
	var noiseIDs []string
	for i := 0; i < 4; i++ {
		id, err := memories.Store(memory.Memory{
			PersonaID:    "p1",
			Message:      "m",
			Response:     "r",
			Emotion:      emotion.Neutral,
			Embedding:    near(300, 700+i, 0.05),
			Significance: 0.1,
			CreatedAt:    now,
		})
		if err != nil {
			t.Fatalf("store memory: %v", err)
		}
		noiseIDs = append(noiseIDs, id)
	}

	clusters, err := engine.Consolidate("p1", now)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	members := map[string]bool{}
	for _, id := range clusters[0].Members {
		members[id] = true
	}
	for _, id := range noiseIDs {
		if members[id] {
			t.Fatalf("low-significance record %s joined a cluster", id)
		}
	}
}

func TestConsolidateSparseButEnoughYieldsNoClusters(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	// Enough samples to run, all mutually distant: every point is noise.
	storeAt(t, memories, "p1", axis(0), now)
	storeAt(t, memories, "p1", axis(100), now)
	storeAt(t, memories, "p1", axis(200), now)

	clusters, err := engine.Consolidate("p1", now)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(clusters) != 0 {
		t.Fatalf("expected zero clusters, got %d", len(clusters))
	}
}

func TestStabilityAcrossPasses(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 4; i++ {
		storeAt(t, memories, "p1", near(0, 700+i, 0.05), now)
	}
	if _, err := engine.Consolidate("p1", now); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Same members again: fully stable.
	clusters, err := engine.Consolidate("p1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(clusters) != 1 || clusters[0].Stability != 1 {
		t.Fatalf("expected fully stable cluster, got %+v", clusters)
	}

	// Half the members are new: stability drops accordingly.
	for i := 0; i < 4; i++ {
		storeAt(t, memories, "p1", near(0, 710+i, 0.05), now.Add(2*time.Hour))
	}
	clusters, err = engine.Consolidate("p1", now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Stability != 0.5 {
		t.Fatalf("expected stability 0.5, got %f", clusters[0].Stability)
	}
}

func TestSnapshotReplacedWholesale(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		storeAt(t, memories, "p1", near(0, 700+i, 0.05), now)
	}
	if _, err := engine.Consolidate("p1", now); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// A second dense group appears; the snapshot must hold the full new set.
	for i := 0; i < 3; i++ {
		storeAt(t, memories, "p1", near(250, 700+i, 0.05), now.Add(time.Hour))
	}
	second, err := engine.Consolidate("p1", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(second))
	}

	active, err := engine.Active("p1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("snapshot not replaced: %d clusters", len(active))
	}

	// The surviving group keeps nonzero stability; the new one starts at 0.
	var stabilities []float64
	for _, c := range active {
		stabilities = append(stabilities, c.Stability)
	}
	if stabilities[0] == 0 && stabilities[1] == 0 {
		t.Fatalf("expected the carried-over group to be stable: %v", stabilities)
	}
}

func TestConsolidateConcurrentCallsCoalesce(t *testing.T) {
	engine, memories := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		storeAt(t, memories, "p1", near(0, 700+i, 0.05), now)
	}

	var wg sync.WaitGroup
	results := make([][]Cluster, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Consolidate("p1", now)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if len(results[i]) != 1 {
			t.Fatalf("call %d: expected 1 cluster, got %d", i, len(results[i]))
		}
	}
}

// #endregion consolidate
