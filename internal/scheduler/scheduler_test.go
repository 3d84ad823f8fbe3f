package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/scheduler/mocks"
)

type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

type SchedulerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	runner *mocks.MockRunner
	logger *slog.Logger
}

func (s *SchedulerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.runner = mocks.NewMockRunner(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) TestNewScheduler_Validation() {
	_, err := NewScheduler(s.runner, Config{}, s.logger)
	s.Error(err)

	_, err = NewScheduler(s.runner, Config{Cron: "not a cron"}, s.logger)
	s.ErrorContains(err, "not a cron")

	sched, err := NewScheduler(s.runner, Config{Cron: "0 * * * *", Interval: time.Second}, s.logger)
	s.Require().NoError(err)
	next := sched.schedule.Next(time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC))
	s.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), next)

	sched, err = NewScheduler(s.runner, Config{Interval: time.Minute}, s.logger)
	s.Require().NoError(err)
	s.Equal(time.Date(2024, 1, 1, 10, 16, 0, 0, time.UTC),
		sched.schedule.Next(time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)))
}

func (s *SchedulerTestSuite) TestStart_RunsUntilCanceled() {
	sched, err := NewScheduler(s.runner, Config{Interval: time.Hour, Timeout: time.Minute}, s.logger)
	s.Require().NoError(err)
	sched.schedule = fixedDelay(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	s.runner.EXPECT().RunBatch(gomock.Any()).DoAndReturn(
		func(batchCtx context.Context) (*domain.BatchStats, error) {
			_, hasDeadline := batchCtx.Deadline()
			s.True(hasDeadline)
			calls++
			switch calls {
			case 1:
				return nil, errors.New("database locked")
			case 3:
				cancel()
			}
			return &domain.BatchStats{Succeeded: 1}, nil
		},
	).Times(3)

	err = sched.Start(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(3, calls)
}
