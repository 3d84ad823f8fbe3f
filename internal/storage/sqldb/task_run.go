package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"shorts_pipeline/internal/domain"
)

// TaskRun is the bookkeeping row kept per task name.
type TaskRun struct {
	TaskName       string `db:"TaskName"`
	LastRunAt      int64  `db:"LastRunAt"`
	LastStatus     string `db:"LastStatus"`
	LastError      string `db:"LastError"`
	TotalRuns      int    `db:"TotalRuns"`
	TotalSucceeded int    `db:"TotalSucceeded"`
}

func (r TaskRun) LastRunTime() time.Time {
	if r.LastRunAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.LastRunAt, 0).UTC()
}

type TaskRunStore struct {
	db *sqlx.DB
}

func NewTaskRunStore(db *sqlx.DB) *TaskRunStore {
	return &TaskRunStore{db: db}
}

func (s *TaskRunStore) Get(ctx context.Context, taskName string) (*TaskRun, error) {
	var run TaskRun
	query := s.db.Rebind(`
		SELECT "TaskName", "LastRunAt", "LastStatus", "LastError", "TotalRuns", "TotalSucceeded"
		FROM "TaskRun"
		WHERE "TaskName" = ?`)

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &run, query, taskName)
	if errors.Is(err, sql.ErrNoRows) {
		return &TaskRun{TaskName: taskName}, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Record folds one task result into the task's bookkeeping row.
func (s *TaskRunStore) Record(ctx context.Context, result domain.TaskResult) error {
	var lastErr string
	if result.Err != nil {
		lastErr = result.Err.Error()
	}
	succeeded := 0
	if result.Status == domain.StatusSucceeded {
		succeeded = 1
	}
	finished := result.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	query := s.db.Rebind(`
		INSERT INTO "TaskRun" ("TaskName", "LastRunAt", "LastStatus", "LastError", "TotalRuns", "TotalSucceeded")
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT ("TaskName") DO UPDATE SET
			"LastRunAt" = excluded."LastRunAt",
			"LastStatus" = excluded."LastStatus",
			"LastError" = excluded."LastError",
			"TotalRuns" = "TaskRun"."TotalRuns" + 1,
			"TotalSucceeded" = "TaskRun"."TotalSucceeded" + excluded."TotalSucceeded"`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		result.Name,
		finished.Unix(),
		string(result.Status),
		lastErr,
		succeeded,
	)
	return err
}
