package selection

import (
	"errors"
	"fmt"
	"sort"

	"shorts_pipeline/internal/domain"
)

// DefaultTopN is how many posts per subreddit the most-upvoted strategy keeps.
const DefaultTopN = 3

var ErrUnknownStrategy = errors.New("unknown selection strategy")

// Config holds the per-run selection parameters.
type Config struct {
	TopN int
}

// Strategy marks a subset of every collection in the task as included.
type Strategy interface {
	ID() domain.StrategyID
	Select(task *domain.Task) *domain.Task
}

// New returns the strategy registered for id.
func New(id domain.StrategyID, cfg Config) (Strategy, error) {
	switch id {
	case domain.StrategyMostUpvoted:
		n := cfg.TopN
		if n <= 0 {
			n = DefaultTopN
		}
		return MostUpvoted{TopN: n}, nil
	case domain.StrategyMostRecent:
		return MostRecent{}, nil
	case domain.StrategyMostControversial:
		return MostControversial{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
}

// Apply resolves the task's strategy and runs it.
func Apply(task *domain.Task, cfg Config) (*domain.Task, error) {
	strategy, err := New(task.Strategy, cfg)
	if err != nil {
		return task, err
	}
	return strategy.Select(task), nil
}

// MostUpvoted includes the TopN posts of each subreddit by up-votes. Ties are
// broken by post id so the result does not depend on map order.
type MostUpvoted struct {
	TopN int
}

func (MostUpvoted) ID() domain.StrategyID { return domain.StrategyMostUpvoted }

func (s MostUpvoted) Select(task *domain.Task) *domain.Task {
	for _, rd := range task.RedditDatas.Collections() {
		posts := rd.Posts(false)
		sort.SliceStable(posts, func(i, j int) bool {
			if posts[i].Ups != posts[j].Ups {
				return posts[i].Ups > posts[j].Ups
			}
			return posts[i].ID() < posts[j].ID()
		})
		for i := 0; i < len(posts) && i < s.TopN; i++ {
			posts[i].Include()
		}
	}
	return task
}

// MostRecent is declared for configuration compatibility and selects nothing yet.
type MostRecent struct{}

func (MostRecent) ID() domain.StrategyID { return domain.StrategyMostRecent }

func (MostRecent) Select(task *domain.Task) *domain.Task { return task }

// MostControversial is declared for configuration compatibility and selects nothing yet.
type MostControversial struct{}

func (MostControversial) ID() domain.StrategyID { return domain.StrategyMostControversial }

func (MostControversial) Select(task *domain.Task) *domain.Task { return task }
