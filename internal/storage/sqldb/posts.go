package sqldb

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"shorts_pipeline/internal/domain"
)

// Save upserts the OpInfo, PostTable and ProductionTable rows of every
// included post of the task in one transaction. Saving twice is a no-op.
func (s *Store) Save(ctx context.Context, task *domain.Task) error {
	posts := task.RedditDatas.AllPosts(true)
	if len(posts) == 0 {
		return nil
	}

	ops, postRows, productions := BuildRows(posts)

	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Upsert(ctx, TableOpInfo, ops); err != nil {
			return err
		}
		if err := s.Upsert(ctx, TablePost, postRows); err != nil {
			return err
		}
		if err := s.Upsert(ctx, TableProduction, productions); err != nil {
			return err
		}
		return nil
	})
}

// BuildRows derives the table rows for posts. Posts without an author id get
// no OpInfo row and a NULL OpInfoId. Derived fields that are not set are left
// out of the production row so a later save never clears them.
func BuildRows(posts []*domain.PostData) (ops, postRows, productions []Row) {
	seenOps := make(map[string]struct{})
	for _, p := range posts {
		var opID any
		if p.AuthorFullname != "" {
			opID = p.AuthorFullname
			if _, dup := seenOps[p.AuthorFullname]; !dup {
				seenOps[p.AuthorFullname] = struct{}{}
				ops = append(ops, Row{
					"OpInfoId":      p.AuthorFullname,
					"AuthorName":    p.Author,
					"FollowerCount": 0,
				})
			}
		}

		var created int64
		if !p.CreatedUTC.IsZero() {
			created = p.CreatedUTC.Unix()
		}

		postRows = append(postRows, Row{
			"PostId":       p.ID(),
			"Title":        p.Title,
			"Content":      p.SelfText,
			"Subreddit":    p.Subreddit,
			"OpInfoId":     opID,
			"Permalink":    p.Permalink,
			"MediaUrl":     p.URL,
			"UpvoteCount":  p.Ups,
			"Score":        p.Score,
			"CommentCount": p.NumComments,
			"UpvoteRatio":  p.UpvoteRatio,
			"CreatedUtc":   created,
			"IsSelf":       p.IsSelf,
			"Over18":       p.Over18,
			"Spoiler":      p.Spoiler,
			"Category":     string(p.Category),
			"Rank":         p.Rank,
			"ProductionId": p.ProductionID,
		})

		production := Row{
			"ProductionId": p.ProductionID,
			"PostId":       p.ID(),
		}
		if v, ok := p.Narration(); ok {
			production["Narration"] = v
		}
		if v, ok := p.AudioPath(); ok {
			production["AudioPath"] = v
		}
		if v, ok := p.VideoPath(); ok {
			production["VideoPath"] = v
		}
		if v, ok := p.FinalVideoPath(); ok {
			production["FinalVideoPath"] = v
		}
		if pub, ok := p.Published(); ok {
			production["PublishedAt"] = pub.PublishedAt.Unix()
			production["PublishedTo"] = pub.Destination
			production["ViewCount"] = pub.ViewCount
			production["LikeCount"] = pub.LikeCount
		}
		productions = append(productions, production)
	}
	return ops, postRows, productions
}

// seenChunk bounds the IN list so large listings stay under driver
// parameter limits.
const seenChunk = 500

// PersistedPostIDs returns the subset of ids already stored in PostTable.
// Post ids are unique across subreddits so no subreddit filter is applied.
func (s *Store) PersistedPostIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	for start := 0; start < len(ids); start += seenChunk {
		end := min(start+seenChunk, len(ids))

		query, args, err := s.builder.
			Select(quoteIdent("PostId")).
			From(quoteIdent(TablePost)).
			Where(sq.Eq{quoteIdent("PostId"): ids[start:end]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build seen posts query: %w", err)
		}

		var found []string
		if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &found, query, args...); err != nil {
			return nil, fmt.Errorf("select seen posts: %w", err)
		}
		for _, id := range found {
			seen[id] = struct{}{}
		}
	}
	return seen, nil
}
