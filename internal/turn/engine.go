// Package turn runs the per-turn pipeline: parallel signal fan-out, council
// aggregation, control-vector fusion, state transition, generation and
// memory persistence.
package turn

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/persona-core/internal/cache"
	"github.com/danielpatrickdp/persona-core/internal/council"
	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/fuse"
	"github.com/danielpatrickdp/persona-core/internal/generate"
	"github.com/danielpatrickdp/persona-core/internal/memory"
	"github.com/danielpatrickdp/persona-core/internal/pattern"
	"github.com/danielpatrickdp/persona-core/internal/provenance"
	"github.com/danielpatrickdp/persona-core/internal/relationship"
	"github.com/danielpatrickdp/persona-core/internal/theory"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// #region engine

// Engine wires the full pipeline. All persistent writes happen after the
// pipeline has fully succeeded, so an abandoned turn commits nothing.
type Engine struct {
	emotionCfg emotion.Config
	councilCfg council.Config

	registry  *theory.Registry
	fuser     *fuse.Fuser
	manager   *relationship.Manager
	states    *relationship.Store
	memories  *memory.Store
	patterns  *pattern.Engine
	generator generate.Generator
	embedder  generate.Embedder
	cache     *cache.Cache // nil disables caching
	db        *sql.DB
	logger    *zap.Logger

	timeout      time.Duration
	minAlignment float64

	mu      sync.Mutex
	runtime map[string]*personaRuntime
}

// personaRuntime is the in-process steering state carried between turns.
// Each persona owns its own council, so one persona's producer energy and
// momentum never leak into another persona's turns.
type personaRuntime struct {
	council *council.Council

	mu        sync.Mutex
	control   vector.Vec // previous control vector, zero before the first turn
	emotional vector.Vec // previous aggregated emotional vector
}

func (rt *personaRuntime) vectors() (control, emotional vector.Vec) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.control, rt.emotional
}

func (rt *personaRuntime) setVectors(control, emotional vector.Vec) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.control = control
	rt.emotional = emotional
}

// Options collects the engine's collaborators. EmotionConfig and
// CouncilConfig seed the per-persona producer sets; zero values mean the
// package defaults.
type Options struct {
	EmotionConfig emotion.Config
	CouncilConfig council.Config

	Registry  *theory.Registry
	Fuser     *fuse.Fuser
	Manager   *relationship.Manager
	States    *relationship.Store
	Memories  *memory.Store
	Patterns  *pattern.Engine
	Generator generate.Generator
	Embedder  generate.Embedder
	Cache     *cache.Cache
	DB        *sql.DB
	Logger    *zap.Logger

	ProducerTimeout time.Duration
	MinAlignment    float64
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ProducerTimeout <= 0 {
		opts.ProducerTimeout = 2 * time.Second
	}
	if opts.EmotionConfig == (emotion.Config{}) {
		opts.EmotionConfig = emotion.DefaultConfig()
	}
	if opts.CouncilConfig == (council.Config{}) {
		opts.CouncilConfig = council.DefaultConfig()
	}
	return &Engine{
		emotionCfg:   opts.EmotionConfig,
		councilCfg:   opts.CouncilConfig,
		registry:     opts.Registry,
		fuser:        opts.Fuser,
		manager:      opts.Manager,
		states:       opts.States,
		memories:     opts.Memories,
		patterns:     opts.Patterns,
		generator:    opts.Generator,
		embedder:     opts.Embedder,
		cache:        opts.Cache,
		db:           opts.DB,
		logger:       opts.Logger,
		timeout:      opts.ProducerTimeout,
		minAlignment: opts.MinAlignment,
		runtime:      make(map[string]*personaRuntime),
	}
}

func (e *Engine) runtimeFor(personaID string) *personaRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.runtime[personaID]
	if !ok {
		rt = &personaRuntime{council: council.New(e.emotionCfg, e.councilCfg)}
		e.runtime[personaID] = rt
	}
	return rt
}

// #endregion engine

// #region process

// Process runs one turn end to end.
func (e *Engine) Process(ctx context.Context, req Request) (Result, error) {
	if req.Message == "" {
		return Result{}, errors.New("empty message")
	}
	if req.Now.IsZero() {
		req.Now = time.Now().UTC()
	}
	turnID := uuid.NewString()

	cur, err := e.states.EnsureInitial(req.PersonaID, req.Now)
	if err != nil {
		return Result{}, fmt.Errorf("load state: %w", err)
	}
	rt := e.runtimeFor(req.PersonaID)
	prevControl, prevEmotional := rt.vectors()

	embedding, err := e.embedder.Embed(ctx, req.Message)
	if err != nil {
		return Result{}, fmt.Errorf("embed message: %w", err)
	}

	// Parallel fan-out over producers and validators. Both consume the same
	// read-only snapshot; a producer that misses its budget is "no opinion".
	proposals, timedOut, theoryResults, err := e.fanOut(ctx, req, cur, rt.council, prevControl)
	if err != nil {
		return Result{}, err
	}

	councilRes := rt.council.Aggregate(proposals, prevEmotional)

	clusters, err := e.patterns.Active(req.PersonaID)
	if err != nil {
		e.logger.Warn("active clusters unavailable", zap.Error(err))
	}
	biases := make([]fuse.ClusterBias, 0, len(clusters))
	for _, c := range clusters {
		biases = append(biases, fuse.ClusterBias{Centroid: c.Centroid, Stability: c.Stability})
	}

	hoursSince := req.Now.Sub(cur.Meta.UpdatedAt).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	fuseRes, err := e.fuser.Fuse(
		fuse.Emotional{Vector: councilRes.Vector, Intensity: councilRes.Intensity},
		theoryResults,
		biases,
		fuse.Context{
			Stage:            string(cur.Relation.Stage),
			InteractionCount: cur.Meta.InteractionCount,
			HoursSinceLast:   hoursSince,
			PrevControl:      prevControl,
		},
	)
	if err != nil {
		return Result{}, fmt.Errorf("fuse control vector: %w", err)
	}

	recalled, err := e.memories.Retrieve(req.PersonaID, embedding, memory.RetrieveOptions{Limit: 5})
	if err != nil {
		e.logger.Warn("memory retrieval failed", zap.Error(err))
	}

	response, err := e.generator.Generate(ctx, promptContext(req, cur, councilRes, fuseRes.Vector, theoryResults, recalled, e.minAlignment))
	if err != nil {
		return Result{}, fmt.Errorf("generate response: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Commit point: the state transition and the memory append land in one
	// transaction, or neither does.
	valence := emotion.Valence(councilRes.Dominant)
	mem := memory.Memory{
		PersonaID:    req.PersonaID,
		Message:      req.Message,
		Response:     response,
		Emotion:      councilRes.Dominant,
		Intensity:    councilRes.Intensity,
		Valence:      valence,
		Embedding:    embedding,
		Significance: significance(councilRes.Intensity, valence),
		Context:      map[string]string{"turn_id": turnID},
		CreatedAt:    req.Now,
	}
	next, metrics, retried, err := e.commitState(cur, req, councilRes, theoryResults, mem)
	if err != nil {
		return Result{}, err
	}

	rt.setVectors(fuseRes.Vector, councilRes.Vector)

	e.afterCommit(req, turnID, next, councilRes, fuseRes, theoryResults, timedOut, metrics, retried, fuseRes.Vector)

	return Result{
		Response:  response,
		State:     next,
		Control:   fuseRes.Vector,
		Dominant:  councilRes.Dominant,
		Intensity: councilRes.Intensity,
		Metrics: Metrics{
			Confidence: councilRes.Confidence,
			Stability:  next.Meta.Stability,
			Coherence:  metrics.Coherence,
			Degraded:   fuseRes.Degraded,
			TimedOut:   timedOut,
			Conflicts:  len(fuseRes.Conflicts),
			Retried:    retried,
		},
	}, nil
}

// #endregion process

// #region fan-out

func (e *Engine) fanOut(ctx context.Context, req Request, cur relationship.SystemState, cncl *council.Council, prevControl vector.Vec) ([]emotion.Proposal, []emotion.Emotion, []theory.Result, error) {
	ectx := emotion.Context{
		PrevControl: prevControl,
		Stage:       string(cur.Relation.Stage),
		Trust:       cur.Relation.Trust,
		Traits:      cur.Psych.Traits,
		Now:         req.Now,
	}
	interaction := theory.Interaction{
		Message:          req.Message,
		Emotion:          cur.Emotional.Primary,
		Intensity:        cur.Emotional.Intensity,
		Stage:            string(cur.Relation.Stage),
		Trust:            cur.Relation.Trust,
		InteractionCount: cur.Meta.InteractionCount,
	}

	producers := cncl.Producers()
	theories := e.registry.List()

	var (
		mu        sync.Mutex
		proposals []emotion.Proposal
		timedOut  []emotion.Emotion
		results   = make([]theory.Result, len(theories))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range producers {
		p := p
		g.Go(func() error {
			prop, err := e.produceWithBudget(gctx, p, req.Message, ectx)
			if err != nil {
				var timeout *ProducerTimeoutError
				if errors.As(err, &timeout) {
					e.logger.Warn("producer timed out",
						zap.String("emotion", string(timeout.Emotion)),
						zap.Duration("budget", timeout.Budget))
					mu.Lock()
					timedOut = append(timedOut, timeout.Emotion)
					mu.Unlock()
					return nil
				}
				return err
			}
			mu.Lock()
			proposals = append(proposals, prop)
			mu.Unlock()
			return nil
		})
	}
	for i, th := range theories {
		i, th := i, th
		g.Go(func() error {
			results[i] = theory.Validate(th, interaction)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return proposals, timedOut, results, nil
}

// produceWithBudget runs one producer under the per-producer budget. A late
// producer is abandoned, not killed; its proposal is discarded.
func (e *Engine) produceWithBudget(ctx context.Context, p *emotion.Producer, message string, ectx emotion.Context) (emotion.Proposal, error) {
	done := make(chan emotion.Proposal, 1)
	go func() { done <- p.Produce(message, ectx) }()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case prop := <-done:
		return prop, nil
	case <-timer.C:
		return emotion.Proposal{}, &ProducerTimeoutError{Emotion: p.Emotion(), Budget: e.timeout}
	case <-ctx.Done():
		return emotion.Proposal{}, ctx.Err()
	}
}

// #endregion fan-out

// #region commit

// commitState applies the state transition with one retry on a version
// conflict, then fails rather than looping. The memory append shares the
// state save's transaction, so a failed turn leaves neither behind.
func (e *Engine) commitState(cur relationship.SystemState, req Request, councilRes council.Result, theoryResults []theory.Result, mem memory.Memory) (relationship.SystemState, relationship.Metrics, bool, error) {
	update := e.updateRequest(req, councilRes, theoryResults)

	next, metrics, err := e.manager.Apply(cur, update)
	if err != nil {
		return relationship.SystemState{}, relationship.Metrics{}, false, fmt.Errorf("apply update: %w", err)
	}
	err = e.commitTx(next, cur.Meta.Version, mem)
	if err == nil {
		return next, metrics, false, nil
	}
	if !relationship.IsStale(err) {
		return relationship.SystemState{}, relationship.Metrics{}, false, err
	}

	// One retry against the refreshed state.
	e.logger.Info("state version conflict, retrying",
		zap.String("persona", req.PersonaID),
		zap.Int64("based_on", cur.Meta.Version))
	fresh, ferr := e.states.Current(req.PersonaID)
	if ferr != nil {
		return relationship.SystemState{}, relationship.Metrics{}, true, fmt.Errorf("refresh state: %w", ferr)
	}
	next, metrics, err = e.manager.Apply(fresh, update)
	if err != nil {
		return relationship.SystemState{}, relationship.Metrics{}, true, fmt.Errorf("apply update: %w", err)
	}
	if err := e.commitTx(next, fresh.Meta.Version, mem); err != nil {
		return relationship.SystemState{}, relationship.Metrics{}, true, fmt.Errorf("commit after retry: %w", err)
	}
	return next, metrics, true, nil
}

// commitTx lands the state version and the memory record atomically.
func (e *Engine) commitTx(next relationship.SystemState, basedOn int64, mem memory.Memory) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := e.states.SaveTx(tx, next, basedOn); err != nil {
		return err
	}
	if mem.Context == nil {
		mem.Context = map[string]string{}
	}
	mem.Context["stage"] = string(next.Relation.Stage)
	if _, err := e.memories.StoreTx(tx, mem); err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func (e *Engine) updateRequest(req Request, councilRes council.Result, theoryResults []theory.Result) relationship.UpdateRequest {
	valence := emotion.Valence(councilRes.Dominant)
	alignments := make(map[theory.Kind]float64, len(theoryResults))
	for _, r := range theoryResults {
		alignments[r.Kind] = r.Alignment
	}
	return relationship.UpdateRequest{
		TrustDelta:           0.1 * councilRes.Intensity * valence,
		ConnectionDelta:      0.05 * councilRes.Intensity,
		PrimaryEmotion:       councilRes.Dominant,
		EmotionalIntensity:   councilRes.Intensity,
		Alignments:           alignments,
		StabilityRequirement: req.StabilityRequirement,
		Now:                  req.Now,
	}
}

// #endregion commit

// #region after-commit

// afterCommit handles the best-effort tail of a turn: cache refresh,
// provenance, and the asynchronous consolidation trigger. Failures here are
// logged, never surfaced; the turn has already committed.
func (e *Engine) afterCommit(req Request, turnID string, next relationship.SystemState, councilRes council.Result, fuseRes fuse.Result, theoryResults []theory.Result, timedOut []emotion.Emotion, metrics relationship.Metrics, retried bool, control vector.Vec) {
	if e.cache != nil {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := e.cache.Put(cctx, req.PersonaID, control, councilRes.Dominant,
			councilRes.Intensity, next.Meta.Version, req.Now); err != nil {
			e.logger.Warn("cache refresh failed", zap.Error(err))
		}
		cancel()
	}

	record := buildRecord(turnID, req, next, councilRes, fuseRes, theoryResults, timedOut, metrics, retried, control, e.minAlignment)
	recordJSON, _ := json.Marshal(record)
	decision := "commit"
	if fuseRes.Degraded {
		decision = "degraded"
	}
	if err := provenance.LogDecision(e.db, provenance.Entry{
		PersonaID:   req.PersonaID,
		Version:     next.Meta.Version,
		TriggerType: "user_turn",
		RecordJSON:  string(recordJSON),
		Decision:    decision,
		CreatedAt:   req.Now,
	}); err != nil {
		e.logger.Warn("provenance logging failed", zap.Error(err))
	}

	go func() {
		if _, err := e.patterns.Consolidate(req.PersonaID, req.Now); err != nil {
			var ins *pattern.InsufficientSamplesError
			if errors.As(err, &ins) {
				return
			}
			e.logger.Warn("consolidation failed",
				zap.String("persona", req.PersonaID), zap.Error(err))
		}
	}()
}

func buildRecord(turnID string, req Request, next relationship.SystemState, councilRes council.Result, fuseRes fuse.Result, theoryResults []theory.Result, timedOut []emotion.Emotion, metrics relationship.Metrics, retried bool, control vector.Vec, minAlignment float64) provenance.TurnRecord {
	alignments := make(map[string]float64, len(theoryResults))
	var failing []string
	for _, r := range theoryResults {
		alignments[string(r.Kind)] = r.Alignment
		if r.Failing(minAlignment) {
			failing = append(failing, string(r.Kind))
		}
	}
	var outNames []string
	for _, e := range timedOut {
		outNames = append(outNames, string(e))
	}
	return provenance.TurnRecord{
		TurnID:        turnID,
		Message:       req.Message,
		Dominant:      string(councilRes.Dominant),
		Intensity:     councilRes.Intensity,
		LowConfidence: councilRes.LowConfidence,
		TimedOut:      outNames,
		Alignments:    alignments,
		Failing:       failing,
		Conflicts:     len(fuseRes.Conflicts),
		Degraded:      fuseRes.Degraded,
		ControlNorm:   vector.Norm(control),
		Delta:         metrics.TrustApplied,
		Stage:         string(next.Relation.Stage),
		StageAdvanced: metrics.StageAdvanced,
		Trust:         next.Relation.Trust,
		Coherence:     metrics.Coherence,
		StaleRetried:  retried,
	}
}

// #endregion after-commit

// #region prompt

func promptContext(req Request, cur relationship.SystemState, councilRes council.Result, control vector.Vec, theoryResults []theory.Result, recalled []memory.Scored, minAlignment float64) generate.PromptContext {
	var guidance []string
	for _, r := range theoryResults {
		if !r.Failing(minAlignment) {
			continue
		}
		for _, c := range r.Concerns {
			if c.SuggestedFix != "" {
				guidance = append(guidance, c.SuggestedFix)
			}
		}
	}
	var memories []string
	for _, s := range recalled {
		memories = append(memories, s.Memory.Message)
	}
	return generate.PromptContext{
		Message:         req.Message,
		DominantEmotion: councilRes.Dominant,
		Intensity:       councilRes.Intensity,
		Stage:           string(cur.Relation.Stage),
		Control:         control,
		Guidance:        guidance,
		Memories:        memories,
	}
}

func significance(intensity, valence float64) float64 {
	s := 0.3 + 0.5*intensity + 0.2*math.Abs(valence)
	if s > 1 {
		return 1
	}
	return s
}

// #endregion prompt
