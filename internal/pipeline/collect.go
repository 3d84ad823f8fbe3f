package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shorts_pipeline/internal/domain"
)

// DiscoverStage fills the task's subreddits, falling back to Defaults.
type DiscoverStage struct {
	Defaults []string
}

func (s *DiscoverStage) Run(_ context.Context, task *domain.Task) (*domain.Task, error) {
	names := task.Subreddits
	if len(names) == 0 {
		names = s.Defaults
	}
	task.Subreddits = normalizeSubreddits(names)
	return task, nil
}

func normalizeSubreddits(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimPrefix(strings.TrimSpace(name), "r/")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// CollectStage fetches each subreddit and adds the unseen posts to the task.
type CollectStage struct {
	source Source
	store  Store
	logger *slog.Logger
}

func NewCollectStage(source Source, store Store, logger *slog.Logger) *CollectStage {
	return &CollectStage{
		source: source,
		store:  store,
		logger: logger.With("stage", domain.StageCollectPosts),
	}
}

func (s *CollectStage) Run(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	for _, subreddit := range task.Subreddits {
		raw, err := s.source.FetchSubreddit(ctx, subreddit)
		if err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			s.logger.Warn("skipping subreddit", "subreddit", subreddit, "error", err)
			continue
		}

		seen := task.RedditDatas.SeenIDs()
		if s.store != nil {
			persisted, err := s.store.PersistedPostIDs(ctx, domain.ListingIDs(raw))
			if err != nil {
				return task, fmt.Errorf("load seen posts for %s: %w", subreddit, err)
			}
			for id := range persisted {
				seen[id] = struct{}{}
			}
		}

		rd, report := domain.NewRedditData(subreddit, raw, seen)
		for _, merr := range report.Malformed {
			s.logger.Warn("skipping malformed post", "subreddit", subreddit, "error", merr)
		}
		s.logger.Info("collected posts",
			"subreddit", subreddit,
			"imported", report.Imported,
			"duplicates", len(report.Duplicates),
			"malformed", len(report.Malformed),
		)

		task.RedditDatas.Add(rd)
	}
	return task, nil
}
