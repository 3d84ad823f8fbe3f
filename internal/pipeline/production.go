package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/narration"
)

var ErrNoVideoAssets = errors.New("no background video assets configured")

// NarrationStage writes a voiceover script onto every included post.
type NarrationStage struct {
	narrator Narrator
	logger   *slog.Logger
}

func NewNarrationStage(narrator Narrator, logger *slog.Logger) *NarrationStage {
	return &NarrationStage{narrator: narrator, logger: logger.With("stage", domain.StageGenerateNarration)}
}

func (s *NarrationStage) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	generated := 0
	for _, post := range task.RedditDatas.AllPosts(true) {
		if _, ok := post.Narration(); ok {
			continue
		}

		text, err := s.narrator.Narrate(ctx, strings.TrimSpace(post.Title), strings.TrimSpace(post.SelfText), post.Subreddit)
		if err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			s.logger.Warn("narration failed, using post text", "post_id", post.ID(), "error", err)
			text = narration.Fallback(post.Title, post.SelfText)
		}
		if err := post.SetNarration(text); err != nil {
			return task, err
		}
		generated++
	}
	s.logger.Info("generated narrations", "count", generated)
	return task, nil
}

// AudioStage synthesizes each narration to <dir>/<subreddit>/post_<id>.mp3.
type AudioStage struct {
	synth  Synthesizer
	dir    string
	logger *slog.Logger
}

func NewAudioStage(synth Synthesizer, dir string, logger *slog.Logger) *AudioStage {
	return &AudioStage{synth: synth, dir: dir, logger: logger.With("stage", domain.StageSynthesizeAudio)}
}

func (s *AudioStage) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	for _, post := range task.RedditDatas.AllPosts(true) {
		text, ok := post.Narration()
		if !ok {
			continue
		}
		if _, done := post.AudioPath(); done {
			continue
		}

		path := AudioPath(s.dir, post)
		if err := s.synth.Synthesize(ctx, text, path); err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			s.logger.Error("audio synthesis failed", "post_id", post.ID(), "error", err)
			continue
		}
		if err := post.SetAudioPath(path); err != nil {
			return task, err
		}
		s.logger.Info("audio saved", "post_id", post.ID(), "path", path)
	}
	return task, nil
}

func AudioPath(dir string, post *domain.PostData) string {
	sub := strings.ReplaceAll(post.Subreddit, "/", "_")
	return filepath.Join(dir, sub, fmt.Sprintf("post_%s.mp3", post.ID()))
}

// VideoSelectStage assigns background videos round-robin in post order.
type VideoSelectStage struct {
	Assets []string
}

func (s *VideoSelectStage) Run(_ context.Context, task *domain.Task) (*domain.Task, error) {
	posts := task.RedditDatas.AllPosts(true)
	if len(posts) == 0 {
		return task, nil
	}
	if len(s.Assets) == 0 {
		return task, ErrNoVideoAssets
	}
	for i, post := range posts {
		if _, ok := post.VideoPath(); ok {
			continue
		}
		if err := post.SetVideoPath(s.Assets[i%len(s.Assets)]); err != nil {
			return task, err
		}
	}
	return task, nil
}

// EditStage renders the final video of every included post. The task outcome
// succeeds only when every post rendered.
type EditStage struct {
	transcriber Transcriber
	renderer    Renderer
	outputDir   string
	logger      *slog.Logger
}

func NewEditStage(transcriber Transcriber, renderer Renderer, outputDir string, logger *slog.Logger) *EditStage {
	return &EditStage{
		transcriber: transcriber,
		renderer:    renderer,
		outputDir:   outputDir,
		logger:      logger.With("stage", domain.StageEditVideo),
	}
}

func (s *EditStage) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	posts := task.RedditDatas.AllPosts(true)
	succeeded := 0

	for _, post := range posts {
		if err := s.edit(ctx, post); err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			s.logger.Error("video edit failed", "post_id", post.ID(), "error", err)
			continue
		}
		succeeded++
	}

	task.Outcome = domain.OutcomeFailed
	if len(posts) > 0 && succeeded == len(posts) {
		task.Outcome = domain.OutcomeSucceeded
	}

	s.logger.Info("video editing completed",
		"succeeded", succeeded,
		"total", len(posts),
		"outcome", task.Outcome,
	)
	return task, nil
}

func (s *EditStage) edit(ctx context.Context, post *domain.PostData) error {
	if done, ok := post.FinalVideoPath(); ok {
		return fileExists(done)
	}
	videoPath, ok := post.VideoPath()
	if !ok {
		return errors.New("no video asset assigned")
	}
	audioPath, ok := post.AudioPath()
	if !ok {
		return errors.New("no synthesized audio")
	}
	if err := fileExists(videoPath); err != nil {
		return err
	}
	if err := fileExists(audioPath); err != nil {
		return err
	}

	transcription, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	output := FinalVideoPath(s.outputDir, post)
	err = s.renderer.Render(ctx, domain.RenderJob{
		PostID:        post.ID(),
		VideoPath:     videoPath,
		AudioPath:     audioPath,
		OutputPath:    output,
		Transcription: transcription,
	})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return post.SetFinalVideoPath(output)
}

func FinalVideoPath(dir string, post *domain.PostData) string {
	return filepath.Join(dir, fmt.Sprintf("post_id_%s_final.mp4", post.ID()))
}

func fileExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	return nil
}

// UploadStage publishes every rendered post once.
type UploadStage struct {
	uploader Uploader
	logger   *slog.Logger
}

func NewUploadStage(uploader Uploader, logger *slog.Logger) *UploadStage {
	return &UploadStage{uploader: uploader, logger: logger.With("stage", domain.StageUpload)}
}

func (s *UploadStage) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	published := 0
	for _, post := range task.RedditDatas.AllPosts(true) {
		if _, ok := post.FinalVideoPath(); !ok {
			continue
		}
		if _, done := post.Published(); done {
			continue
		}

		result, err := s.uploader.Upload(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			s.logger.Error("upload failed", "post_id", post.ID(), "error", err)
			continue
		}
		if err := post.SetPublished(result); err != nil {
			return task, err
		}
		published++
	}
	s.logger.Info("uploaded videos", "count", published)
	return task, nil
}
