package pipeline

import (
	"context"
	"path"
	"sort"
	"strings"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/selection"
)

var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".gifv": {}, ".webp": {}, ".mp4": {},
}

var mediaHosts = []string{"i.redd.it", "v.redd.it", "i.imgur.com", "imgur.com"}

// ClassifyStage tags each post as text, media or link.
type ClassifyStage struct{}

func (ClassifyStage) Run(_ context.Context, task *domain.Task) (*domain.Task, error) {
	for _, post := range task.RedditDatas.AllPosts(false) {
		post.Category = Classify(post)
	}
	return task, nil
}

func Classify(post *domain.PostData) domain.Category {
	if post.IsSelf && strings.TrimSpace(post.SelfText) != "" {
		return domain.CategoryText
	}
	u := strings.ToLower(post.URL)
	for _, host := range mediaHosts {
		if strings.Contains(u, "://"+host+"/") {
			return domain.CategoryMedia
		}
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if _, ok := mediaExtensions[path.Ext(u)]; ok {
		return domain.CategoryMedia
	}
	if post.IsSelf {
		return domain.CategoryText
	}
	return domain.CategoryLink
}

// RankStage numbers the posts of each collection by score, best first.
type RankStage struct{}

func (RankStage) Run(_ context.Context, task *domain.Task) (*domain.Task, error) {
	for _, rd := range task.RedditDatas.Collections() {
		posts := rd.Posts(false)
		sort.SliceStable(posts, func(i, j int) bool {
			if posts[i].Score != posts[j].Score {
				return posts[i].Score > posts[j].Score
			}
			return posts[i].ID() < posts[j].ID()
		})
		for i, p := range posts {
			p.Rank = i + 1
		}
	}
	return task, nil
}

// SelectStage applies the task's selection strategy.
type SelectStage struct {
	Config selection.Config
}

func (s *SelectStage) Run(_ context.Context, task *domain.Task) (*domain.Task, error) {
	return selection.Apply(task, s.Config)
}
