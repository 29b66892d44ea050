package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
)

// Engine sequences stage runners over a matter. Stages execute strictly
// in order, exactly once; the matter is re-fetched before every
// mutation because some runners write incremental snapshots to the
// store mid-stage. Writes are whole-matter last-writer-wins.
type Engine struct {
	store      matter.Store
	runners    map[matter.StageID]Runner
	logger     *zap.Logger
	metrics    *Metrics
	stageDelay time.Duration
}

// Config holds engine construction parameters.
type Config struct {
	// StageDelay is a fixed pause between marking a stage running and
	// invoking its runner, solely so pollers can observe the
	// transition. Not a correctness mechanism.
	StageDelay time.Duration
}

// NewEngine creates an engine over the given runners. Every stage in
// the fixed order must have a runner.
func NewEngine(store matter.Store, runners []Runner, cfg Config, metrics *Metrics, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	byStage := make(map[matter.StageID]Runner, len(runners))
	for _, r := range runners {
		byStage[r.Stage()] = r
	}
	for _, id := range matter.StageOrder {
		if _, ok := byStage[id]; !ok {
			return nil, fmt.Errorf("no runner registered for stage %s", id)
		}
	}
	return &Engine{
		store:      store,
		runners:    byStage,
		logger:     logger.Named("pipeline"),
		metrics:    metrics,
		stageDelay: cfg.StageDelay,
	}, nil
}

// Run drives the matter through all stages. It is designed to be
// launched detached by the trigger boundary and never returns an error:
// stage failures are recorded on the matter itself, and a matter that
// vanishes from the store aborts the run silently.
func (e *Engine) Run(ctx context.Context, matterID string) {
	logger := e.logger.With(zap.String("matter_id", matterID))
	logger.Info("pipeline run started")
	e.metrics.RunStarted()

	for _, stageID := range matter.StageOrder {
		start := time.Now()
		ok := e.runStage(ctx, matterID, stageID, logger)
		e.metrics.StageObserved(stageID, ok, time.Since(start))
		if !ok {
			e.metrics.RunFinished(false)
			return
		}
	}

	// All stages completed; mark the run terminal.
	m, err := e.store.Get(ctx, matterID)
	if err != nil {
		logger.Warn("matter vanished before completion", zap.Error(err))
		e.metrics.RunFinished(false)
		return
	}
	m.CurrentStage = nil
	m.Status = matter.StatusComplete
	if err := e.store.Set(ctx, m); err != nil {
		logger.Error("persisting completed matter", zap.Error(err))
		e.metrics.RunFinished(false)
		return
	}
	e.metrics.RunFinished(true)
	logger.Info("pipeline run complete")
}

// runStage executes one stage end to end. Returns false when the
// pipeline must stop, whether because the matter vanished or because
// the runner failed.
func (e *Engine) runStage(ctx context.Context, matterID string, stageID matter.StageID, logger *zap.Logger) bool {
	logger = logger.With(zap.String("stage", string(stageID)))

	// Mark running. Re-fetch first: a prior stage's runner may have
	// written newer state than any in-memory copy.
	m, err := e.store.Get(ctx, matterID)
	if err != nil {
		return e.vanished(err, logger)
	}
	now := time.Now().UTC()
	info := m.Stage(stageID)
	info.Status = matter.StageRunning
	info.StartedAt = &now
	m.CurrentStage = &stageID
	m.Audit(stageID, "started", "")
	if err := e.store.Set(ctx, m); err != nil {
		logger.Error("persisting stage start", zap.Error(err))
		return false
	}
	logger.Info("stage started")

	// Fixed pacing delay so pollers see the running state.
	if e.stageDelay > 0 {
		select {
		case <-time.After(e.stageDelay):
		case <-ctx.Done():
			return false
		}
	}

	result, runErr := e.runners[stageID].Run(ctx, m)

	// Re-fetch: the runner may have persisted incremental snapshots.
	m, err = e.store.Get(ctx, matterID)
	if err != nil {
		return e.vanished(err, logger)
	}
	done := time.Now().UTC()
	info = m.Stage(stageID)
	info.CompletedAt = &done

	if runErr != nil {
		info.Status = matter.StageBlocked
		m.Status = matter.StatusError
		m.Audit(stageID, "error", runErr.Error())
		if err := e.store.Set(ctx, m); err != nil {
			logger.Error("persisting stage failure", zap.Error(err))
		}
		logger.Error("stage failed, pipeline stopped", zap.Error(runErr))
		return false
	}

	result.Update.Apply(m)
	info.Data = result.Data
	info.Status = stageStatus(stageID, m)
	m.Audit(stageID, "completed", "")
	if err := e.store.Set(ctx, m); err != nil {
		logger.Error("persisting stage completion", zap.Error(err))
		return false
	}
	logger.Info("stage completed", zap.String("status", string(info.Status)))
	return true
}

// stageStatus maps a successful runner return to the stage's terminal
// status. Guardrails alone completes with a warning when its result
// requires escalation.
func stageStatus(stageID matter.StageID, m *matter.Matter) matter.StageStatus {
	if stageID == matter.StageGuardrails && m.Guardrails != nil && m.Guardrails.EscalationRequired {
		return matter.StageWarning
	}
	return matter.StageComplete
}

// vanished handles a failed re-fetch. A missing matter means external
// deletion; the run aborts silently. Any other store error is logged
// and also aborts.
func (e *Engine) vanished(err error, logger *zap.Logger) bool {
	if errors.Is(err, matter.ErrNotFound) {
		logger.Warn("matter vanished mid-run, aborting silently")
	} else {
		logger.Error("fetching matter", zap.Error(err))
	}
	return false
}
