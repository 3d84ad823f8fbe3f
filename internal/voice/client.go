package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"shorts_pipeline/internal/domain"
)

type Config struct {
	BaseURL            string
	APIKey             string
	TTSModel           string
	Voice              string
	TranscriptionModel string
	Timeout            time.Duration
	MaxRetries         int
}

// Client talks to the speech and transcription endpoints of an
// OpenAI-compatible audio API.
type Client struct {
	client             openai.Client
	ttsModel           string
	voice              string
	transcriptionModel string
	logger             *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		client:             openai.NewClient(opts...),
		ttsModel:           cfg.TTSModel,
		voice:              cfg.Voice,
		transcriptionModel: cfg.TranscriptionModel,
		logger:             logger.With("component", "voice"),
	}
}

// Synthesize renders text to speech and writes the audio to path.
func (c *Client) Synthesize(ctx context.Context, text, path string) error {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.ttsModel),
		Voice:          openai.AudioSpeechNewParamsVoice(c.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write audio file: %w", err)
	}

	c.logger.Debug("audio saved", "path", path, "bytes", n)
	return nil
}

// verboseTranscription holds the verbose_json fields the SDK type leaves untyped.
type verboseTranscription struct {
	Duration float64       `json:"duration"`
	Words    []domain.Word `json:"words"`
}

// Transcribe returns the word-level transcription of the audio file at path.
func (c *Client) Transcribe(ctx context.Context, path string) (domain.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	tr, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  openai.AudioModel(c.transcriptionModel),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	})
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}

	var verbose verboseTranscription
	if raw := tr.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return domain.Transcription{}, fmt.Errorf("decode word timings: %w", err)
		}
	}

	c.logger.Debug("transcription completed", "path", path, "words", len(verbose.Words))
	return domain.Transcription{Text: tr.Text, Duration: verbose.Duration, Words: verbose.Words}, nil
}
