package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shorts_pipeline/internal/domain"
)

var (
	ErrStageNotConfigured = errors.New("stage is enabled but not configured")
	ErrNilTask            = errors.New("stage returned no task")
)

// StageCheckpoint marks a failure of the end-of-task save.
const StageCheckpoint domain.StageID = "checkpoint"

// Orchestrator runs tasks through their enabled stages, one task at a time.
type Orchestrator struct {
	stages map[domain.StageID]Stage
	store  Store
	runs   TaskRunRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator wires the stage implementations. store may be nil when no
// task persists; runs may be nil to skip run bookkeeping.
func NewOrchestrator(stages map[domain.StageID]Stage, store Store, runs TaskRunRecorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		stages: stages,
		store:  store,
		runs:   runs,
		logger: logger.With("component", "orchestrator"),
		now:    time.Now,
	}
}

// Run processes tasks in order. A failing task never stops the batch; only a
// canceled context does, in which case the remaining tasks are not started.
func (o *Orchestrator) Run(ctx context.Context, tasks []*domain.Task) (*domain.BatchStats, error) {
	start := o.now()
	stats := &domain.BatchStats{}

	o.logger.Info("starting batch", "tasks", len(tasks))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			stats.Duration = o.now().Sub(start)
			return stats, err
		}

		result := o.RunTask(ctx, task)
		stats.Tasks = append(stats.Tasks, result)
		if result.Status == domain.StatusSucceeded {
			stats.Succeeded++
		} else {
			stats.Failed++
		}

		if o.runs != nil {
			if err := o.runs.Record(ctx, result); err != nil {
				o.logger.Warn("failed to record task run", "task", task.Name, "error", err)
			}
		}
	}

	stats.Duration = o.now().Sub(start)

	o.logger.Info("batch completed",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)

	return stats, nil
}

// RunTask runs one task to a terminal status.
func (o *Orchestrator) RunTask(ctx context.Context, task *domain.Task) domain.TaskResult {
	start := o.now()
	logger := o.logger.With("task", task.Name)
	task.Status = domain.StatusRunning
	logger.Info("starting task", "strategy", task.Strategy, "persist", task.Persist)

	task, failedStage, err := o.runStages(ctx, task, logger)
	if err != nil {
		task.Status = domain.StatusFailed
		logger.Error("task failed", "stage", failedStage, "error", err)
	} else {
		task.Status = domain.StatusSucceeded
	}

	finished := o.now()
	result := domain.TaskResult{
		Name:        task.Name,
		Status:      task.Status,
		FailedStage: failedStage,
		Err:         err,
		Duration:    finished.Sub(start),
		Outcome:     task.Outcome,
		FinishedAt:  finished,
	}
	if task.RedditDatas != nil {
		result.Posts = len(task.RedditDatas.AllPosts(false))
		result.Selected = len(task.RedditDatas.AllPosts(true))
	}

	logger.Info("task finished",
		"status", result.Status,
		"posts", result.Posts,
		"selected", result.Selected,
		"outcome", result.Outcome,
		"duration", result.Duration,
	)
	return result
}

func (o *Orchestrator) runStages(ctx context.Context, task *domain.Task, logger *slog.Logger) (*domain.Task, domain.StageID, error) {
	persisted := false
	downstream := false

	for _, id := range domain.StageOrder {
		if !task.Stages.Enabled(id) {
			continue
		}

		stage, ok := o.stages[id]
		if !ok || stage == nil {
			return task, id, fmt.Errorf("%s: %w", id, ErrStageNotConfigured)
		}

		if persisted {
			downstream = true
		}

		logger.Debug("running stage", "stage", id)
		next, err := runStage(ctx, stage, task)
		if err != nil {
			o.checkpoint(ctx, task, downstream, logger)
			return task, id, fmt.Errorf("%s: %w", id, err)
		}
		task = next

		if id == domain.StageSelectAndPersist {
			if task.Persist {
				if err := o.save(ctx, task); err != nil {
					return task, id, fmt.Errorf("%s: %w", id, err)
				}
				persisted = true
			}
		}
	}

	if downstream {
		if err := o.save(ctx, task); err != nil {
			return task, StageCheckpoint, err
		}
	}
	return task, "", nil
}

// checkpoint saves derived fields of a task that failed after selection.
func (o *Orchestrator) checkpoint(ctx context.Context, task *domain.Task, needed bool, logger *slog.Logger) {
	if !needed {
		return
	}
	if err := o.save(ctx, task); err != nil {
		logger.Warn("checkpoint save failed", "error", err)
	}
}

func (o *Orchestrator) save(ctx context.Context, task *domain.Task) error {
	if o.store == nil {
		return fmt.Errorf("persistence: %w", ErrStageNotConfigured)
	}
	if err := o.store.Save(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func runStage(ctx context.Context, stage Stage, task *domain.Task) (next *domain.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	next, err = stage.Run(ctx, task)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, ErrNilTask
	}
	return next, nil
}
