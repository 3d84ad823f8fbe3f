package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const SourceID = "reddit"

// Config holds Reddit listing source configuration.
type Config struct {
	BaseURL        string
	Listing        string
	Limit          int
	Pages          int
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches subreddit listings from the public JSON endpoints.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	listing        string
	limit          int
	pages          int
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	pages := cfg.Pages
	if pages < 1 {
		pages = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		listing:        cfg.Listing,
		limit:          cfg.Limit,
		pages:          pages,
		userAgent:      cfg.UserAgent,
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

func (s *Source) ID() string {
	return SourceID
}

// FetchSubreddit returns the listing payload of subreddit. Children of every
// fetched page are merged into the first page's payload.
func (s *Source) FetchSubreddit(ctx context.Context, subreddit string) (map[string]any, error) {
	name := strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if name == "" {
		return nil, fmt.Errorf("empty subreddit name")
	}

	var payload map[string]any
	var children []any
	after := ""

	for page := 0; page < s.pages; page++ {
		resp, err := s.fetchPage(ctx, s.pageURL(name, after))
		if err != nil {
			if payload != nil {
				s.logger.Warn("stopping pagination", "subreddit", name, "page", page, "error", err)
				break
			}
			return nil, fmt.Errorf("fetch r/%s: %w", name, err)
		}

		listing := pageOf(resp)
		children = append(children, listing.Children...)
		if payload == nil {
			payload = resp
		}

		s.logger.Debug("fetched page",
			"subreddit", name,
			"page", page,
			"posts", len(listing.Children),
			"total", len(children),
		)

		if listing.After == "" {
			break
		}
		after = listing.After
	}

	if data, ok := payload["data"].(map[string]any); ok {
		data["children"] = children
	}
	return payload, nil
}

func (s *Source) pageURL(name, after string) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(s.limit))
	if after != "" {
		q.Set("after", after)
	}
	return fmt.Sprintf("%s/r/%s/%s.json?%s", s.baseURL, url.PathEscape(name), s.listing, q.Encode())
}

// StatusError is a non-200 answer from the listing endpoint.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Temporary reports whether another attempt may succeed. Private, banned and
// missing subreddits answer 403 or 404 and are not retried.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

func (s *Source) fetchPage(ctx context.Context, pageURL string) (map[string]any, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		payload, err := s.get(ctx, pageURL)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, err
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := s.calculateBackoff(attempt)
		if statusErr != nil && statusErr.RetryAfter > 0 {
			wait = min(statusErr.RetryAfter, s.maxBackoff)
		}
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Source) get(ctx context.Context, pageURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			statusErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, statusErr
	}

	// UseNumber keeps ids and counters exact until the record model coerces them.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return payload, nil
}

// calculateBackoff doubles the initial backoff per attempt, capped at maxBackoff.
func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff << (attempt - 1)
	if backoff <= 0 || backoff > s.maxBackoff {
		return s.maxBackoff
	}
	return backoff
}
