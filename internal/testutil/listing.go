package testutil

import "fmt"

func Ptr[T any](v T) *T {
	return &v
}

// Post returns the data object of a t3 listing child.
func Post(id string, ups int) map[string]any {
	return map[string]any{
		"id":              id,
		"title":           "Title " + id,
		"selftext":        "Body " + id,
		"subreddit":       "test",
		"ups":             float64(ups),
		"score":           float64(ups),
		"num_comments":    float64(1),
		"created_utc":     float64(1700000000),
		"author_fullname": "t2_" + id,
		"author":          "author_" + id,
		"permalink":       fmt.Sprintf("/r/test/comments/%s/", id),
		"url":             fmt.Sprintf("https://www.reddit.com/r/test/comments/%s/", id),
		"upvote_ratio":    0.9,
		"is_self":         true,
		"over_18":         false,
		"spoiler":         false,
	}
}

// Listing wraps post data objects the way the Reddit listing endpoint does.
func Listing(posts ...map[string]any) map[string]any {
	children := make([]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{"kind": "t3", "data": p})
	}
	return map[string]any{
		"kind": "Listing",
		"data": map[string]any{"children": children},
	}
}

// ListingWithUps builds a listing of ids p1..pN with the given up-votes.
func ListingWithUps(ups ...int) map[string]any {
	posts := make([]map[string]any, 0, len(ups))
	for i, u := range ups {
		posts = append(posts, Post(fmt.Sprintf("p%d", i+1), u))
	}
	return Listing(posts...)
}
