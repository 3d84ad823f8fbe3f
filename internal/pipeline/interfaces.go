package pipeline

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"shorts_pipeline/internal/domain"
)

// Stage transforms a task. The orchestrator continues with the returned task.
type Stage interface {
	Run(ctx context.Context, task *domain.Task) (*domain.Task, error)
}

type Source interface {
	FetchSubreddit(ctx context.Context, subreddit string) (map[string]any, error)
}

type Store interface {
	Save(ctx context.Context, task *domain.Task) error
	PersistedPostIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

type Narrator interface {
	Narrate(ctx context.Context, title, body, subreddit string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, path string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (domain.Transcription, error)
}

type Renderer interface {
	Render(ctx context.Context, job domain.RenderJob) error
}

type Uploader interface {
	Upload(ctx context.Context, post *domain.PostData) (domain.PublishResult, error)
}

type TaskRunRecorder interface {
	Record(ctx context.Context, result domain.TaskResult) error
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, task *domain.Task) (*domain.Task, error)

func (f StageFunc) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	return f(ctx, task)
}
