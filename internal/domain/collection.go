package domain

import "fmt"

// ImportReport summarizes what NewRedditData skipped.
type ImportReport struct {
	Imported   int
	Duplicates []string
	Malformed  []error
}

// RedditData holds every post of one subreddit for one collection cycle.
type RedditData struct {
	Subreddit string
	Raw       map[string]any

	posts map[string]*PostData
	order []string
}

// NewRedditData materializes the listing payload, skipping any id in seen
// before a record is built. Ids repeated inside the payload are skipped too.
func NewRedditData(subreddit string, raw map[string]any, seen map[string]struct{}) (*RedditData, ImportReport) {
	rd := &RedditData{
		Subreddit: subreddit,
		Raw:       raw,
		posts:     make(map[string]*PostData),
	}
	var report ImportReport

	for i, child := range listingChildren(raw) {
		fields, ok := childFields(child)
		if !ok {
			report.Malformed = append(report.Malformed, fmt.Errorf("%w: child %d has no data", ErrMalformedRecord, i))
			continue
		}

		id := asString(fields["id"])
		if _, dup := seen[id]; dup && id != "" {
			report.Duplicates = append(report.Duplicates, id)
			continue
		}
		if _, dup := rd.posts[id]; dup && id != "" {
			report.Duplicates = append(report.Duplicates, id)
			continue
		}

		post, err := NewPostData(fields)
		if err != nil {
			report.Malformed = append(report.Malformed, fmt.Errorf("child %d: %w", i, err))
			continue
		}
		if post.Subreddit == "" {
			post.Subreddit = subreddit
		}

		rd.posts[post.ID()] = post
		rd.order = append(rd.order, post.ID())
		report.Imported++
	}

	return rd, report
}

// ListingIDs returns the non-empty post ids of a listing payload in order.
func ListingIDs(raw map[string]any) []string {
	var ids []string
	for _, child := range listingChildren(raw) {
		fields, ok := childFields(child)
		if !ok {
			continue
		}
		if id := asString(fields["id"]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func listingChildren(raw map[string]any) []any {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil
	}
	children, _ := data["children"].([]any)
	return children
}

func childFields(child any) (map[string]any, bool) {
	m, ok := child.(map[string]any)
	if !ok {
		return nil, false
	}
	fields, ok := m["data"].(map[string]any)
	return fields, ok
}

func (r *RedditData) Len() int {
	return len(r.order)
}

func (r *RedditData) Get(id string) (*PostData, bool) {
	p, ok := r.posts[id]
	return p, ok
}

// IDs returns the post ids in payload order.
func (r *RedditData) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Posts returns the records in payload order. With excludeFiltered set,
// records still excluded from processing are left out.
func (r *RedditData) Posts(excludeFiltered bool) []*PostData {
	posts := make([]*PostData, 0, len(r.order))
	for _, id := range r.order {
		p := r.posts[id]
		if excludeFiltered && p.FilteredOut() {
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

// Rows is the flat view of Posts.
func (r *RedditData) Rows(excludeFiltered bool) []map[string]any {
	posts := r.Posts(excludeFiltered)
	rows := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, p.Row())
	}
	return rows
}
