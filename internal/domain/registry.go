package domain

// RedditDatas is the ordered set of collections owned by one Task.
type RedditDatas struct {
	list        []*RedditData
	bySubreddit map[string]*RedditData
}

func NewRedditDatas() *RedditDatas {
	return &RedditDatas{bySubreddit: make(map[string]*RedditData)}
}

// Add registers a collection. A collection for a subreddit already present
// replaces the previous one in place, keeping list and index consistent.
func (r *RedditDatas) Add(rd *RedditData) {
	if r.bySubreddit == nil {
		r.bySubreddit = make(map[string]*RedditData)
	}
	if _, exists := r.bySubreddit[rd.Subreddit]; exists {
		for i, existing := range r.list {
			if existing.Subreddit == rd.Subreddit {
				r.list[i] = rd
				break
			}
		}
	} else {
		r.list = append(r.list, rd)
	}
	r.bySubreddit[rd.Subreddit] = rd
}

func (r *RedditDatas) Get(subreddit string) (*RedditData, bool) {
	rd, ok := r.bySubreddit[subreddit]
	return rd, ok
}

func (r *RedditDatas) Len() int {
	return len(r.list)
}

func (r *RedditDatas) Collections() []*RedditData {
	out := make([]*RedditData, len(r.list))
	copy(out, r.list)
	return out
}

// AllPosts flattens every collection in registration order.
func (r *RedditDatas) AllPosts(excludeFiltered bool) []*PostData {
	var posts []*PostData
	for _, rd := range r.list {
		posts = append(posts, rd.Posts(excludeFiltered)...)
	}
	return posts
}

// SeenIDs returns every post id already materialized in the registry.
func (r *RedditDatas) SeenIDs() map[string]struct{} {
	seen := make(map[string]struct{})
	for _, rd := range r.list {
		for _, id := range rd.order {
			seen[id] = struct{}{}
		}
	}
	return seen
}
