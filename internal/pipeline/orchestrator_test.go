package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/pipeline/mocks"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	collect   *mocks.MockStage
	selecting *mocks.MockStage
	narrate   *mocks.MockStage
	store     *mocks.MockStore
	runs      *mocks.MockTaskRunRecorder

	orchestrator *Orchestrator
	logger       *slog.Logger
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.collect = mocks.NewMockStage(s.ctrl)
	s.selecting = mocks.NewMockStage(s.ctrl)
	s.narrate = mocks.NewMockStage(s.ctrl)
	s.store = mocks.NewMockStore(s.ctrl)
	s.runs = mocks.NewMockTaskRunRecorder(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.orchestrator = NewOrchestrator(map[domain.StageID]Stage{
		domain.StageCollectPosts:      s.collect,
		domain.StageSelectAndPersist:  s.selecting,
		domain.StageGenerateNarration: s.narrate,
	}, s.store, s.runs, s.logger)
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func passThrough(_ context.Context, task *domain.Task) (*domain.Task, error) {
	return task, nil
}

func newTask(name string, stages domain.StageSwitches) *domain.Task {
	task := domain.NewTask(name, "")
	task.Stages = stages
	return task
}

func (s *OrchestratorTestSuite) TestRun_IsolatesFailingTask() {
	ctx := context.Background()
	stages := domain.StageSwitches{CollectPosts: true}
	tasks := []*domain.Task{newTask("one", stages), newTask("two", stages), newTask("three", stages)}

	s.collect.EXPECT().Run(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, task *domain.Task) (*domain.Task, error) {
			if task.Name == "two" {
				return nil, errors.New("reddit unavailable")
			}
			return task, nil
		},
	).Times(3)
	s.runs.EXPECT().Record(ctx, gomock.Any()).Return(nil).Times(3)

	stats, err := s.orchestrator.Run(ctx, tasks)

	s.NoError(err)
	s.Equal(2, stats.Succeeded)
	s.Equal(1, stats.Failed)
	s.Require().Len(stats.Tasks, 3)
	s.Equal(domain.StatusSucceeded, tasks[0].Status)
	s.Equal(domain.StatusFailed, tasks[1].Status)
	s.Equal(domain.StatusSucceeded, tasks[2].Status)
	s.Equal(domain.StageCollectPosts, stats.Tasks[1].FailedStage)
	s.ErrorContains(stats.Tasks[1].Err, "reddit unavailable")
	s.Empty(stats.Tasks[0].FailedStage)
}

func (s *OrchestratorTestSuite) TestRun_SkipsDisabledStages() {
	ctx := context.Background()
	task := newTask("idle", domain.StageSwitches{})
	s.runs.EXPECT().Record(ctx, gomock.Any()).Return(nil)

	stats, err := s.orchestrator.Run(ctx, []*domain.Task{task})

	s.NoError(err)
	s.Equal(1, stats.Succeeded)
	s.Equal(domain.StatusSucceeded, task.Status)
}

func (s *OrchestratorTestSuite) TestRunTask_StageNotConfigured() {
	task := newTask("t", domain.StageSwitches{Upload: true})

	result := s.orchestrator.RunTask(context.Background(), task)

	s.Equal(domain.StatusFailed, result.Status)
	s.Equal(domain.StageUpload, result.FailedStage)
	s.ErrorIs(result.Err, ErrStageNotConfigured)
}

func (s *OrchestratorTestSuite) TestRunTask_RecoversPanic() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{CollectPosts: true})
	s.collect.EXPECT().Run(ctx, task).DoAndReturn(
		func(context.Context, *domain.Task) (*domain.Task, error) {
			panic("boom")
		},
	)

	result := s.orchestrator.RunTask(ctx, task)

	s.Equal(domain.StatusFailed, result.Status)
	s.ErrorContains(result.Err, "boom")
}

func (s *OrchestratorTestSuite) TestRunTask_NilTask() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{CollectPosts: true})
	s.collect.EXPECT().Run(ctx, task).Return(nil, nil)

	result := s.orchestrator.RunTask(ctx, task)

	s.ErrorIs(result.Err, ErrNilTask)
}

func (s *OrchestratorTestSuite) TestRunTask_ContinuesWithReturnedTask() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{CollectPosts: true, SelectAndPersist: true})
	replacement := newTask("replacement", task.Stages)
	replacement.Persist = false

	s.collect.EXPECT().Run(ctx, task).Return(replacement, nil)
	s.selecting.EXPECT().Run(ctx, replacement).DoAndReturn(passThrough)

	result := s.orchestrator.RunTask(ctx, task)

	s.Equal(domain.StatusSucceeded, result.Status)
	s.Equal("replacement", result.Name)
}

func (s *OrchestratorTestSuite) TestRunTask_PersistsAfterSelection() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true})

	gomock.InOrder(
		s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough),
		s.store.EXPECT().Save(ctx, task).Return(nil),
	)

	result := s.orchestrator.RunTask(ctx, task)
	s.Equal(domain.StatusSucceeded, result.Status)
}

func (s *OrchestratorTestSuite) TestRunTask_PersistDisabled() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true, GenerateNarration: true})
	task.Persist = false

	s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough)
	s.narrate.EXPECT().Run(ctx, task).DoAndReturn(passThrough)

	result := s.orchestrator.RunTask(ctx, task)
	s.Equal(domain.StatusSucceeded, result.Status)
}

func (s *OrchestratorTestSuite) TestRunTask_CheckpointAfterDownstreamStages() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true, GenerateNarration: true})

	gomock.InOrder(
		s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough),
		s.store.EXPECT().Save(ctx, task).Return(nil),
		s.narrate.EXPECT().Run(ctx, task).DoAndReturn(passThrough),
		s.store.EXPECT().Save(ctx, task).Return(nil),
	)

	result := s.orchestrator.RunTask(ctx, task)
	s.Equal(domain.StatusSucceeded, result.Status)
}

func (s *OrchestratorTestSuite) TestRunTask_CheckpointOnDownstreamFailure() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{CollectPosts: true, SelectAndPersist: true, GenerateNarration: true})
	task.Stages.Upload = true
	s.orchestrator.stages[domain.StageUpload] = StageFunc(func(context.Context, *domain.Task) (*domain.Task, error) {
		return nil, errors.New("broker down")
	})

	s.collect.EXPECT().Run(ctx, task).DoAndReturn(passThrough)
	s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough)
	s.narrate.EXPECT().Run(ctx, task).DoAndReturn(passThrough)
	s.store.EXPECT().Save(ctx, task).Return(nil).Times(2)

	result := s.orchestrator.RunTask(ctx, task)

	s.Equal(domain.StatusFailed, result.Status)
	s.Equal(domain.StageUpload, result.FailedStage)
}

func (s *OrchestratorTestSuite) TestRunTask_CheckpointWhenFirstDownstreamStageFails() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true, GenerateNarration: true})

	var saved []string
	gomock.InOrder(
		s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough),
		s.store.EXPECT().Save(ctx, task).DoAndReturn(func(_ context.Context, t *domain.Task) error {
			saved = append(saved, t.Description)
			return nil
		}),
		s.narrate.EXPECT().Run(ctx, task).DoAndReturn(func(_ context.Context, t *domain.Task) (*domain.Task, error) {
			t.Description = "partial"
			return nil, errors.New("llm timeout")
		}),
		s.store.EXPECT().Save(ctx, task).DoAndReturn(func(_ context.Context, t *domain.Task) error {
			saved = append(saved, t.Description)
			return nil
		}),
	)

	result := s.orchestrator.RunTask(ctx, task)

	s.Equal(domain.StatusFailed, result.Status)
	s.Equal(domain.StageGenerateNarration, result.FailedStage)
	s.Equal([]string{"", "partial"}, saved)
}

func (s *OrchestratorTestSuite) TestRunTask_SaveErrorFailsTask() {
	ctx := context.Background()
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true, GenerateNarration: true})

	s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough)
	s.store.EXPECT().Save(ctx, task).Return(errors.New("disk full"))

	result := s.orchestrator.RunTask(ctx, task)

	s.Equal(domain.StatusFailed, result.Status)
	s.Equal(domain.StageSelectAndPersist, result.FailedStage)
	s.ErrorContains(result.Err, "disk full")
}

func (s *OrchestratorTestSuite) TestRun_RecorderErrorIsTolerated() {
	ctx := context.Background()
	s.runs.EXPECT().Record(ctx, gomock.Any()).Return(errors.New("locked"))

	stats, err := s.orchestrator.Run(ctx, []*domain.Task{newTask("t", domain.StageSwitches{})})

	s.NoError(err)
	s.Equal(1, stats.Succeeded)
}

func (s *OrchestratorTestSuite) TestRun_CanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := s.orchestrator.Run(ctx, []*domain.Task{newTask("t", domain.StageSwitches{})})

	s.ErrorIs(err, context.Canceled)
	s.Empty(stats.Tasks)
}

func (s *OrchestratorTestSuite) TestRunTask_NoStoreWithPersist() {
	ctx := context.Background()
	o := NewOrchestrator(map[domain.StageID]Stage{
		domain.StageSelectAndPersist: s.selecting,
	}, nil, nil, s.logger)
	task := newTask("t", domain.StageSwitches{SelectAndPersist: true})
	s.selecting.EXPECT().Run(ctx, task).DoAndReturn(passThrough)

	result := o.RunTask(ctx, task)

	s.ErrorIs(result.Err, ErrStageNotConfigured)
}
