package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"shorts_pipeline/internal/domain"
)

var ErrNoDuration = errors.New("nothing to render")

type Config struct {
	FFmpeg   string
	FFprobe  string
	FontSize int
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
}

// FFmpeg composes the background video, the narration audio and word-level
// subtitles into one clip.
type FFmpeg struct {
	ffmpeg   string
	ffprobe  string
	fontSize int
	run      runFunc
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *FFmpeg {
	f := &FFmpeg{
		ffmpeg:   strings.TrimSpace(cfg.FFmpeg),
		ffprobe:  strings.TrimSpace(cfg.FFprobe),
		fontSize: cfg.FontSize,
		run:      execRun,
		logger:   logger.With("component", "render"),
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if f.fontSize <= 0 {
		f.fontSize = 70
	}
	return f
}

// Render writes job.OutputPath. The clip lasts as long as the shortest of the
// transcription, the video and the audio.
func (f *FFmpeg) Render(ctx context.Context, job domain.RenderJob) error {
	videoDuration, err := f.probeDuration(ctx, job.VideoPath)
	if err != nil {
		return err
	}
	audioDuration, err := f.probeDuration(ctx, job.AudioPath)
	if err != nil {
		return err
	}

	duration := minPositive(job.Transcription.Duration, videoDuration, audioDuration)
	if duration <= 0 {
		return fmt.Errorf("post %s: %w", job.PostID, ErrNoDuration)
	}

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	srtPath := strings.TrimSuffix(job.OutputPath, filepath.Ext(job.OutputPath)) + ".srt"
	if err := writeSRTFile(srtPath, job.Transcription.Words, duration); err != nil {
		return err
	}
	defer os.Remove(srtPath)

	f.logger.Info("rendering video",
		"post_id", job.PostID,
		"duration", duration,
		"words", len(job.Transcription.Words),
		"output", job.OutputPath,
	)

	args := f.args(job, srtPath, duration)
	if output, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg render: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (f *FFmpeg) args(job domain.RenderJob, srtPath string, duration float64) []string {
	style := fmt.Sprintf("Alignment=10,FontSize=%d,PrimaryColour=&H00FFFFFF", f.fontSize)
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", job.VideoPath,
		"-i", job.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-t", fmt.Sprintf("%.3f", duration),
		"-vf", fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), style),
		"-c:v", "libx264",
		"-c:a", "aac",
		job.OutputPath,
	}
}

func writeSRTFile(path string, words []domain.Word, limit float64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create subtitles: %w", err)
	}
	if err := WriteSRT(file, words, limit); err != nil {
		_ = file.Close()
		return fmt.Errorf("write subtitles: %w", err)
	}
	return file.Close()
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter argument.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(path)
}

// minPositive ignores zero durations, which mean unknown.
func minPositive(values ...float64) float64 {
	m := 0.0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if m == 0 || v < m {
			m = v
		}
	}
	return m
}
