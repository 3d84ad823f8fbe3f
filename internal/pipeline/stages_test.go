package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/pipeline/mocks"
	"shorts_pipeline/internal/testutil"
)

type StagesTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	ctx  context.Context

	source      *mocks.MockSource
	store       *mocks.MockStore
	narrator    *mocks.MockNarrator
	synth       *mocks.MockSynthesizer
	transcriber *mocks.MockTranscriber
	renderer    *mocks.MockRenderer
	uploader    *mocks.MockUploader

	logger *slog.Logger
}

func (s *StagesTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = context.Background()

	s.source = mocks.NewMockSource(s.ctrl)
	s.store = mocks.NewMockStore(s.ctrl)
	s.narrator = mocks.NewMockNarrator(s.ctrl)
	s.synth = mocks.NewMockSynthesizer(s.ctrl)
	s.transcriber = mocks.NewMockTranscriber(s.ctrl)
	s.renderer = mocks.NewMockRenderer(s.ctrl)
	s.uploader = mocks.NewMockUploader(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *StagesTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestStagesTestSuite(t *testing.T) {
	suite.Run(t, new(StagesTestSuite))
}

// taskWithPosts returns a task holding one "test" collection whose posts
// p1..pN have the given up-votes; the listed ids are included.
func (s *StagesTestSuite) taskWithPosts(ups []int, include ...string) *domain.Task {
	task := domain.NewTask("t", "")
	rd, _ := domain.NewRedditData("test", testutil.ListingWithUps(ups...), nil)
	for _, id := range include {
		p, ok := rd.Get(id)
		s.Require().True(ok, id)
		p.Include()
	}
	task.RedditDatas.Add(rd)
	return task
}

func (s *StagesTestSuite) post(task *domain.Task, id string) *domain.PostData {
	rd, _ := task.RedditDatas.Get("test")
	p, ok := rd.Get(id)
	s.Require().True(ok, id)
	return p
}

func (s *StagesTestSuite) TestNewStages_OmitsUnwiredCollaborators() {
	stages := NewStages(Deps{}, s.logger)

	s.Contains(stages, domain.StageDiscoverGroups)
	s.Contains(stages, domain.StageSelectAndPersist)
	s.NotContains(stages, domain.StageCollectPosts)
	s.NotContains(stages, domain.StageEditVideo)
	s.NotContains(stages, domain.StageUpload)

	all := NewStages(Deps{
		Source: s.source, Narrator: s.narrator, Synthesizer: s.synth,
		Transcriber: s.transcriber, Renderer: s.renderer, Uploader: s.uploader,
	}, s.logger)
	s.Len(all, len(domain.StageOrder))
}

func (s *StagesTestSuite) TestDiscover() {
	stage := &DiscoverStage{Defaults: []string{"AmItheAsshole"}}

	task, err := stage.Run(s.ctx, domain.NewTask("t", ""))
	s.NoError(err)
	s.Equal([]string{"AmItheAsshole"}, task.Subreddits)

	task = domain.NewTask("t", "")
	task.Subreddits = []string{" r/test", "test", "", "other"}
	task, err = stage.Run(s.ctx, task)
	s.NoError(err)
	s.Equal([]string{"test", "other"}, task.Subreddits)
}

func (s *StagesTestSuite) TestCollect_SkipsFailedSubreddit() {
	task := domain.NewTask("t", "")
	task.Subreddits = []string{"down", "test"}

	s.source.EXPECT().FetchSubreddit(s.ctx, "down").Return(nil, errors.New("503"))
	s.source.EXPECT().FetchSubreddit(s.ctx, "test").Return(testutil.ListingWithUps(1, 2, 3), nil)
	s.store.EXPECT().PersistedPostIDs(s.ctx, []string{"p1", "p2", "p3"}).Return(map[string]struct{}{"p2": {}}, nil)

	task, err := NewCollectStage(s.source, s.store, s.logger).Run(s.ctx, task)

	s.NoError(err)
	s.Equal(1, task.RedditDatas.Len())
	rd, ok := task.RedditDatas.Get("test")
	s.Require().True(ok)
	s.Equal([]string{"p1", "p3"}, rd.IDs())
}

func (s *StagesTestSuite) TestCollect_DeduplicatesAcrossSubreddits() {
	task := domain.NewTask("t", "")
	task.Subreddits = []string{"a", "b"}

	s.source.EXPECT().FetchSubreddit(s.ctx, "a").Return(testutil.ListingWithUps(1, 2), nil)
	s.source.EXPECT().FetchSubreddit(s.ctx, "b").Return(testutil.ListingWithUps(1, 2, 3), nil)

	task, err := NewCollectStage(s.source, nil, s.logger).Run(s.ctx, task)

	s.NoError(err)
	b, _ := task.RedditDatas.Get("b")
	s.Equal([]string{"p3"}, b.IDs())
}

func (s *StagesTestSuite) TestCollect_StoreErrorFails() {
	task := domain.NewTask("t", "")
	task.Subreddits = []string{"test"}

	s.source.EXPECT().FetchSubreddit(s.ctx, "test").Return(testutil.ListingWithUps(1), nil)
	s.store.EXPECT().PersistedPostIDs(s.ctx, []string{"p1"}).Return(nil, errors.New("db gone"))

	_, err := NewCollectStage(s.source, s.store, s.logger).Run(s.ctx, task)
	s.ErrorContains(err, "db gone")
}

func (s *StagesTestSuite) TestClassify() {
	cases := []struct {
		isSelf   bool
		body     string
		url      string
		expected domain.Category
	}{
		{true, "story", "https://www.reddit.com/r/test/comments/x/", domain.CategoryText},
		{false, "", "https://i.redd.it/abc.jpg", domain.CategoryMedia},
		{false, "", "https://example.com/clip.MP4?x=1", domain.CategoryMedia},
		{false, "", "https://example.com/article", domain.CategoryLink},
		{true, "", "https://www.reddit.com/r/test/comments/y/", domain.CategoryText},
	}
	for _, c := range cases {
		fields := testutil.Post("x", 1)
		fields["is_self"] = c.isSelf
		fields["selftext"] = c.body
		fields["url"] = c.url
		post, err := domain.NewPostData(fields)
		s.Require().NoError(err)
		s.Equal(c.expected, Classify(post), c.url)
	}

	task := s.taskWithPosts([]int{1})
	_, err := ClassifyStage{}.Run(s.ctx, task)
	s.NoError(err)
	s.Equal(domain.CategoryText, s.post(task, "p1").Category)
	s.True(s.post(task, "p1").FilteredOut())
}

func (s *StagesTestSuite) TestRank() {
	task := s.taskWithPosts([]int{5, 9, 5})

	_, err := RankStage{}.Run(s.ctx, task)

	s.NoError(err)
	s.Equal(1, s.post(task, "p2").Rank)
	s.Equal(2, s.post(task, "p1").Rank)
	s.Equal(3, s.post(task, "p3").Rank)
}

func (s *StagesTestSuite) TestNarration_FallsBackOnError() {
	task := s.taskWithPosts([]int{1, 2, 3}, "p1", "p2")

	s.narrator.EXPECT().Narrate(s.ctx, "Title p1", "Body p1", "test").Return("Hook p1", nil)
	s.narrator.EXPECT().Narrate(s.ctx, "Title p2", "Body p2", "test").Return("", errors.New("rate limited"))

	_, err := NewNarrationStage(s.narrator, s.logger).Run(s.ctx, task)
	s.NoError(err)

	text, _ := s.post(task, "p1").Narration()
	s.Equal("Hook p1", text)
	text, _ = s.post(task, "p2").Narration()
	s.Equal("Title p2. Body p2", text)
	_, ok := s.post(task, "p3").Narration()
	s.False(ok)
}

func (s *StagesTestSuite) TestAudio_SkipsFailedPosts() {
	dir := s.T().TempDir()
	task := s.taskWithPosts([]int{1, 2, 3}, "p1", "p2", "p3")
	s.Require().NoError(s.post(task, "p1").SetNarration("one"))
	s.Require().NoError(s.post(task, "p2").SetNarration("two"))

	s.synth.EXPECT().Synthesize(s.ctx, "one", filepath.Join(dir, "test", "post_p1.mp3")).Return(nil)
	s.synth.EXPECT().Synthesize(s.ctx, "two", gomock.Any()).Return(errors.New("tts down"))

	_, err := NewAudioStage(s.synth, dir, s.logger).Run(s.ctx, task)
	s.NoError(err)

	path, ok := s.post(task, "p1").AudioPath()
	s.True(ok)
	s.Equal(filepath.Join(dir, "test", "post_p1.mp3"), path)
	_, ok = s.post(task, "p2").AudioPath()
	s.False(ok)
}

func (s *StagesTestSuite) TestVideoSelect_RoundRobin() {
	task := s.taskWithPosts([]int{1, 2, 3}, "p1", "p2", "p3")

	_, err := (&VideoSelectStage{Assets: []string{"a.mp4", "b.mp4"}}).Run(s.ctx, task)
	s.NoError(err)

	for id, want := range map[string]string{"p1": "a.mp4", "p2": "b.mp4", "p3": "a.mp4"} {
		got, _ := s.post(task, id).VideoPath()
		s.Equal(want, got, id)
	}
}

func (s *StagesTestSuite) TestVideoSelect_EmptyLibrary() {
	task := s.taskWithPosts([]int{1}, "p1")

	_, err := (&VideoSelectStage{}).Run(s.ctx, task)
	s.ErrorIs(err, ErrNoVideoAssets)

	_, err = (&VideoSelectStage{}).Run(s.ctx, s.taskWithPosts([]int{1}))
	s.NoError(err)
}

func (s *StagesTestSuite) prepareMedia(post *domain.PostData, dir string) {
	video := filepath.Join(dir, post.ID()+".mp4")
	audio := filepath.Join(dir, post.ID()+".mp3")
	s.Require().NoError(os.WriteFile(video, []byte("v"), 0o644))
	s.Require().NoError(os.WriteFile(audio, []byte("a"), 0o644))
	s.Require().NoError(post.SetVideoPath(video))
	s.Require().NoError(post.SetAudioPath(audio))
}

func (s *StagesTestSuite) TestEdit_AllSucceed() {
	dir := s.T().TempDir()
	task := s.taskWithPosts([]int{1, 2}, "p1", "p2")
	s.prepareMedia(s.post(task, "p1"), dir)
	s.prepareMedia(s.post(task, "p2"), dir)

	transcription := domain.Transcription{Duration: 3, Words: []domain.Word{{Text: "hi", Start: 0, End: 1}}}
	s.transcriber.EXPECT().Transcribe(s.ctx, gomock.Any()).Return(transcription, nil).Times(2)
	s.renderer.EXPECT().Render(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, job domain.RenderJob) error {
			s.Equal(filepath.Join(dir, "out", "post_id_"+job.PostID+"_final.mp4"), job.OutputPath)
			s.Equal(transcription, job.Transcription)
			return nil
		},
	).Times(2)

	task, err := NewEditStage(s.transcriber, s.renderer, filepath.Join(dir, "out"), s.logger).Run(s.ctx, task)

	s.NoError(err)
	s.Equal(domain.OutcomeSucceeded, task.Outcome)
	_, ok := s.post(task, "p2").FinalVideoPath()
	s.True(ok)
}

func (s *StagesTestSuite) TestEdit_OneFailureFailsOutcome() {
	dir := s.T().TempDir()
	task := s.taskWithPosts([]int{1, 2}, "p1", "p2")
	s.prepareMedia(s.post(task, "p1"), dir)
	s.Require().NoError(s.post(task, "p2").SetVideoPath(filepath.Join(dir, "missing.mp4")))
	s.Require().NoError(s.post(task, "p2").SetAudioPath(filepath.Join(dir, "missing.mp3")))

	s.transcriber.EXPECT().Transcribe(s.ctx, gomock.Any()).Return(domain.Transcription{Duration: 1}, nil)
	s.renderer.EXPECT().Render(s.ctx, gomock.Any()).Return(nil)

	task, err := NewEditStage(s.transcriber, s.renderer, dir, s.logger).Run(s.ctx, task)

	s.NoError(err)
	s.Equal(domain.OutcomeFailed, task.Outcome)
	_, ok := s.post(task, "p1").FinalVideoPath()
	s.True(ok)
	_, ok = s.post(task, "p2").FinalVideoPath()
	s.False(ok)
}

func (s *StagesTestSuite) TestEdit_NoRecordsFails() {
	task := s.taskWithPosts([]int{1})

	task, err := NewEditStage(s.transcriber, s.renderer, s.T().TempDir(), s.logger).Run(s.ctx, task)

	s.NoError(err)
	s.Equal(domain.OutcomeFailed, task.Outcome)
}

func (s *StagesTestSuite) TestUpload() {
	task := s.taskWithPosts([]int{1, 2, 3}, "p1", "p2", "p3")
	s.Require().NoError(s.post(task, "p1").SetFinalVideoPath("p1.mp4"))
	s.Require().NoError(s.post(task, "p2").SetFinalVideoPath("p2.mp4"))

	s.uploader.EXPECT().Upload(s.ctx, s.post(task, "p1")).Return(domain.PublishResult{Destination: "q"}, nil)
	s.uploader.EXPECT().Upload(s.ctx, s.post(task, "p2")).Return(domain.PublishResult{}, errors.New("nack"))

	_, err := NewUploadStage(s.uploader, s.logger).Run(s.ctx, task)
	s.NoError(err)

	result, ok := s.post(task, "p1").Published()
	s.True(ok)
	s.Equal("q", result.Destination)
	_, ok = s.post(task, "p2").Published()
	s.False(ok)
}
