package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder persists run history to durable storage. Recorder failures
// are logged and ignored; a database outage must not stop the line.
type Recorder interface {
	RunStarted(ctx context.Context, runID uuid.UUID, params Params, resumed bool) error
	UnitRecorded(ctx context.Context, runID uuid.UUID, result UnitResult) error
	RunFinished(ctx context.Context, runID uuid.UUID, status string, completed int) error
}

// Engine executes batch runs against a Controller, checkpointing after
// every assembled cell.
type Engine struct {
	controller  Controller
	checkpoints *CheckpointStore
	results     *ResultLog
	logger      *zap.Logger
	notifier    Notifier
	recorder    Recorder
	now         func() time.Time
}

func NewEngine(controller Controller, checkpoints *CheckpointStore, results *ResultLog, logger *zap.Logger) *Engine {
	return &Engine{
		controller:  controller,
		checkpoints: checkpoints,
		results:     results,
		logger:      logger,
		notifier:    NopNotifier{},
		now:         time.Now,
	}
}

// SetNotifier installs a progress event sink.
func (e *Engine) SetNotifier(n Notifier) {
	if n != nil {
		e.notifier = n
	}
}

// SetRecorder installs a run history sink.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// PendingCheckpoint reports the checkpoint of an interrupted run, or nil
// when no run is pending.
func (e *Engine) PendingCheckpoint() (*Checkpoint, error) {
	return e.checkpoints.Load()
}

// ClearCheckpoint discards a pending checkpoint. Operator action for
// abandoning an interrupted run.
func (e *Engine) ClearCheckpoint() error {
	return e.checkpoints.Delete()
}

// Run executes one batch. If a checkpoint from an interrupted run exists
// it must match params exactly; the run then resumes at the recorded
// position. Each cell is at-least-once: a crash mid-cell redoes that
// cell on the next resume.
//
// The returned Summary is non-nil even on error and carries the results
// collected before the failure.
func (e *Engine) Run(ctx context.Context, params Params) (*Summary, error) {
	summary := &Summary{
		Params:  params,
		Total:   params.Total(),
		Results: []UnitResult{},
	}

	resumeBottle, resumeUnit := 0, 0
	if cp, err := e.checkpoints.Load(); err != nil {
		return summary, err
	} else if cp != nil {
		if err := cp.Validate(params); err != nil {
			return summary, err
		}
		resumeBottle, resumeUnit = cp.BottleIndex, cp.UnitIndex
		if resumeUnit >= params.UnitsPerBottle {
			// The interrupted run finished this bottle exactly.
			resumeBottle++
			resumeUnit = 0
		}
		summary.Resumed = true
		e.logger.Info("Resuming interrupted batch",
			zap.Int("bottle", resumeBottle),
			zap.Int("unit", resumeUnit),
			zap.Int("completed", cp.TotalCompleted))
	}

	if summary.Total == 0 {
		return summary, nil
	}

	runID := uuid.New()
	e.notifier.BatchStarted(params, summary.Resumed)
	e.record(ctx, func(r Recorder) error {
		return r.RunStarted(ctx, runID, params, summary.Resumed)
	})

	completed := resumeBottle*params.UnitsPerBottle + resumeUnit
	summary.Completed = completed

	for i := resumeBottle; i < params.Bottles; i++ {
		remaining := params.UnitsPerBottle - resumeUnit

		e.logger.Info("Starting bottle",
			zap.Int("bottle", i),
			zap.Int("remaining_units", remaining))
		if err := e.controller.SendParameters(ctx, i, remaining, params.Recipe); err != nil {
			return e.fail(ctx, runID, summary, fmt.Errorf("bottle %d parameter exchange: %w", i, err))
		}

		for j := resumeUnit; j < params.UnitsPerBottle; j++ {
			sequence := i*params.UnitsPerBottle + j
			result, err := e.controller.CollectUnit(ctx, sequence)
			if err != nil {
				return e.fail(ctx, runID, summary, fmt.Errorf("unit %d result exchange: %w", sequence, err))
			}
			result.Sequence = sequence
			if result.Time.IsZero() {
				result.Time = e.now()
			}

			if err := e.results.Append(result); err != nil {
				return e.fail(ctx, runID, summary, err)
			}

			completed++
			if err := e.checkpoints.Save(Checkpoint{
				Bottles:        params.Bottles,
				UnitsPerBottle: params.UnitsPerBottle,
				BottleIndex:    i,
				UnitIndex:      j + 1,
				TotalCompleted: completed,
				Timestamp:      e.now(),
			}); err != nil {
				return e.fail(ctx, runID, summary, err)
			}

			summary.Results = append(summary.Results, result)
			summary.Completed = completed
			e.notifier.UnitCompleted(result, completed, summary.Total)
			e.record(ctx, func(r Recorder) error {
				return r.UnitRecorded(ctx, runID, result)
			})
			e.logger.Info("Unit completed",
				zap.Int("sequence", sequence),
				zap.Int("completed", completed),
				zap.Int("total", summary.Total))
		}
		resumeUnit = 0
	}

	if err := e.checkpoints.Delete(); err != nil {
		return e.fail(ctx, runID, summary, err)
	}
	if err := e.controller.SignalComplete(ctx); err != nil {
		return e.fail(ctx, runID, summary, fmt.Errorf("completion signal: %w", err))
	}

	e.notifier.BatchCompleted(*summary)
	e.record(ctx, func(r Recorder) error {
		return r.RunFinished(ctx, runID, "completed", completed)
	})
	e.logger.Info("Batch completed", zap.Int("total", summary.Total))
	return summary, nil
}

func (e *Engine) fail(ctx context.Context, runID uuid.UUID, summary *Summary, err error) (*Summary, error) {
	e.notifier.BatchFailed(*summary, err)
	e.record(ctx, func(r Recorder) error {
		return r.RunFinished(ctx, runID, "failed", summary.Completed)
	})
	e.logger.Error("Batch failed",
		zap.Int("completed", summary.Completed),
		zap.Int("total", summary.Total),
		zap.Error(err))
	return summary, err
}

func (e *Engine) record(ctx context.Context, fn func(Recorder) error) {
	if e.recorder == nil {
		return
	}
	if err := fn(e.recorder); err != nil {
		e.logger.Warn("Run history write failed", zap.Error(err))
	}
}
