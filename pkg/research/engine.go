package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
	"deep-research-agent/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionStore is the part of the session store the engine writes through.
type SessionStore interface {
	UpdateStage(ctx context.Context, sessionID string, result entity.StageResult) (*entity.Session, error)
	UpdateConclusions(ctx context.Context, sessionID string, conclusions *entity.FinalConclusions, confidence float64) (*entity.Session, error)
}

// ProgressListener is told about every stage as soon as it is persisted.
type ProgressListener interface {
	StageCompleted(ctx context.Context, sessionID string, result entity.StageResult, totalStages int)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type EngineConfig struct {
	MaxStages      int
	RateLimitDelay time.Duration
	MinConfidence  float64
}

type RunResult struct {
	SessionID       string
	Stages          []entity.StageResult
	Conclusions     *entity.FinalConclusions
	ConfidenceScore float64
	Session         *entity.Session
}

type EngineOption func(*Engine)

func WithSleeper(sleep Sleeper) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

func WithProgressListener(listener ProgressListener) EngineOption {
	return func(e *Engine) {
		e.listener = listener
	}
}

func WithEngineLogger(l logger.ILogger) EngineOption {
	return func(e *Engine) {
		e.logger = logger.OrNop(l)
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine runs the stages of a research session strictly in order. A stage
// that fails is recorded as degraded and the run moves on; only setup and
// final persistence errors end a run early.
type Engine struct {
	stages   []Stage
	store    SessionStore
	cfg      EngineConfig
	logger   logger.ILogger
	tracer   trace.Tracer
	sleep    Sleeper
	listener ProgressListener
	now      func() time.Time
}

func NewEngine(stages []Stage, store SessionStore, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.MaxStages <= 0 {
		cfg.MaxStages = len(stages)
	}
	if len(stages) > cfg.MaxStages {
		stages = stages[:cfg.MaxStages]
	}
	if cfg.RateLimitDelay < 0 {
		cfg.RateLimitDelay = 0
	}
	cfg.MinConfidence = normalizeFloor(cfg.MinConfidence)

	e := &Engine{
		stages: stages,
		store:  store,
		cfg:    cfg,
		logger: logger.NewNopLogger(),
		tracer: otel.Tracer("deep-research-agent/research"),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TotalStages is the number of stages a run executes.
func (e *Engine) TotalStages() int {
	return len(e.stages)
}

// Run executes every stage against session and records the conclusions.
// The returned error is non-nil only when the context ends the run or the
// final conclusions cannot be stored.
func (e *Engine) Run(ctx context.Context, session *entity.Session) (*RunResult, error) {
	if session == nil || session.SessionID == "" {
		return nil, errors.New("research run needs a persisted session")
	}

	state := NewResearchState(session)
	state.OnFallback = func(stage int, cause error) {
		e.logger.Warn(constant.LogModulePipeline, "Stage response had no usable JSON, using raw text", map[string]interface{}{
			"session_id": session.SessionID,
			"stage":      stage,
			"cause":      cause.Error(),
		})
	}

	e.logger.Info(constant.LogModulePipeline, "Research run started", map[string]interface{}{
		"session_id": session.SessionID,
		"stages":     len(e.stages),
	})

	for i, stage := range e.stages {
		result := e.runStage(ctx, stage, state)
		result = e.flushStage(ctx, session.SessionID, result)

		state.Stages = append(state.Stages, result)
		state.Knowledge.Absorb(result.Finding)

		if e.listener != nil {
			e.listener.StageCompleted(ctx, session.SessionID, result, len(e.stages))
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("research run interrupted after stage %d: %w", stage.Number, err)
		}
		if i < len(e.stages)-1 {
			if err := e.sleep(ctx, e.cfg.RateLimitDelay); err != nil {
				return nil, fmt.Errorf("research run interrupted after stage %d: %w", stage.Number, err)
			}
		}
	}

	confidence := ComputeConfidence(state.Stages, len(e.stages), e.cfg.MinConfidence)
	conclusions := BuildConclusions(state.Stages, state.Knowledge)

	final, err := e.store.UpdateConclusions(ctx, session.SessionID, conclusions, confidence)
	if err != nil {
		return nil, fmt.Errorf("store conclusions: %w", err)
	}

	e.logger.Info(constant.LogModulePipeline, "Research run completed", map[string]interface{}{
		"session_id":       session.SessionID,
		"confidence_score": confidence,
		"stages_completed": conclusions.StagesCompleted,
		"stages_degraded":  conclusions.StagesDegraded,
	})

	return &RunResult{
		SessionID:       session.SessionID,
		Stages:          state.Stages,
		Conclusions:     conclusions,
		ConfidenceScore: confidence,
		Session:         final,
	}, nil
}

func (e *Engine) runStage(ctx context.Context, stage Stage, state *ResearchState) entity.StageResult {
	ctx, span := e.tracer.Start(ctx, "research.stage", trace.WithAttributes(
		attribute.Int("research.stage.number", stage.Number),
		attribute.String("research.stage.name", stage.Name),
		attribute.String("research.session_id", state.SessionID),
	))
	defer span.End()

	started := e.now()
	finding, err := e.invoke(ctx, stage, state)
	if err == nil {
		finding, err = normalizeFinding(stage, finding)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("research.stage.degraded", true))
		e.logger.Error(constant.LogModulePipeline, "Stage failed, continuing with degraded result", map[string]interface{}{
			"session_id": state.SessionID,
			"stage":      stage.Number,
			"stage_name": stage.Name,
			"error":      err.Error(),
		})
		return degradedResult(stage, err, e.now())
	}

	span.SetAttributes(attribute.Bool("research.stage.degraded", false))
	e.logger.Info(constant.LogModulePipeline, "Stage completed", map[string]interface{}{
		"session_id":  state.SessionID,
		"stage":       stage.Number,
		"stage_name":  stage.Name,
		"duration_ms": e.now().Sub(started).Milliseconds(),
	})
	return entity.StageResult{
		Stage:     stage.Number,
		StageName: stage.Name,
		Finding:   finding,
		Timestamp: e.now().UTC(),
	}
}

// invoke calls the handler, turning a panic into an error so one broken
// handler cannot take down the run.
func (e *Engine) invoke(ctx context.Context, stage Stage, state *ResearchState) (finding entity.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage handler panicked: %v", r)
		}
	}()
	if stage.Handler == nil {
		return nil, errors.New("stage has no handler")
	}
	return stage.Handler(ctx, state)
}

// normalizeFinding merges over the stage defaults and round-trips through
// JSON so the in-memory finding equals what a later load returns.
func normalizeFinding(stage Stage, finding entity.Finding) (entity.Finding, error) {
	defaults := stage.Defaults
	if defaults == nil {
		defaults = StageDefaults(stage.Number)
	}
	merged := MergeOverDefaults(defaults, finding)

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("finding is not serializable: %w", err)
	}
	var out entity.Finding
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("finding is not serializable: %w", err)
	}
	return out, nil
}

func degradedResult(stage Stage, cause error, at time.Time) entity.StageResult {
	defaults := stage.Defaults
	if defaults == nil {
		defaults = StageDefaults(stage.Number)
	}
	finding := MergeOverDefaults(defaults, map[string]interface{}{
		"summary":  fmt.Sprintf("%s could not be completed: %v", stage.Name, cause),
		"evidence": []interface{}{},
		"gaps":     []interface{}{fmt.Sprintf("Error during %s: %v", stage.Name, cause)},
	})
	return entity.StageResult{
		Stage:     stage.Number,
		StageName: stage.Name,
		Finding:   finding,
		Timestamp: at.UTC(),
		Error:     cause.Error(),
	}
}

// flushStage persists result. A successful stage whose flush fails is
// re-recorded as degraded; if that flush fails too the degraded result is
// kept in memory only.
func (e *Engine) flushStage(ctx context.Context, sessionID string, result entity.StageResult) entity.StageResult {
	stored, err := e.persist(ctx, sessionID, result)
	if err == nil {
		return stored
	}

	e.logger.Error(constant.LogModulePipeline, "Stage result could not be stored", map[string]interface{}{
		"session_id": sessionID,
		"stage":      result.Stage,
		"error":      err.Error(),
	})
	if result.Degraded() {
		return result
	}

	stage := Stage{Number: result.Stage, Name: result.StageName}
	degraded := degradedResult(stage, fmt.Errorf("storing stage result: %w", err), e.now())
	stored, err = e.persist(ctx, sessionID, degraded)
	if err != nil {
		e.logger.Error(constant.LogModulePipeline, "Degraded stage result could not be stored either", map[string]interface{}{
			"session_id": sessionID,
			"stage":      result.Stage,
			"error":      err.Error(),
		})
		return degraded
	}
	return stored
}

func (e *Engine) persist(ctx context.Context, sessionID string, result entity.StageResult) (entity.StageResult, error) {
	session, err := e.store.UpdateStage(ctx, sessionID, result)
	if err != nil {
		return result, err
	}
	stages := session.ResearchResults.Stages
	if len(stages) == 0 {
		return result, nil
	}
	return stages[len(stages)-1], nil
}
