package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You are a YouTube Shorts scriptwriter. Your output will be used directly for AI voiceover."

var ErrEmptyNarration = errors.New("model returned an empty narration")

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client rewrites posts into voiceover scripts with a chat completion model.
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
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
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("component", "narration"),
	}
}

func (c *Client) Narrate(ctx context.Context, title, body, subreddit string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(title, body)),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion for r/%s: %w", subreddit, err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyNarration
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyNarration
	}

	c.logger.Debug("narration generated", "subreddit", subreddit, "chars", len(text))
	return text, nil
}

// Prompt is the user message sent for one post.
func Prompt(title, body string) string {
	return "Rewrite the following Reddit post to be used directly in a YouTube Shorts voiceover. " +
		"Start with a hook and make it flow like natural speech. No titles, no subreddit mention, no intro text. " +
		"Just return the final script:\n\n" +
		"Title: " + title + "\n\n" +
		"Body:\n" + body
}

// Fallback is the narration used when the model cannot be reached.
func Fallback(title, body string) string {
	return fmt.Sprintf("%s. %s", strings.TrimSpace(title), strings.TrimSpace(body))
}
