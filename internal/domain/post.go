package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrExcluded        = errors.New("record is excluded from processing")
	ErrDerivedFieldSet = errors.New("derived field already set")
)

// productionNamespace seeds the deterministic production ids so that saving the
// same post twice addresses the same ProductionTable row.
var productionNamespace = uuid.MustParse("8b0c1f5e-3d1a-4f43-9a57-2f3c4d7e9a10")

// Category is the classification assigned by the classify stage.
type Category string

const (
	CategoryUnknown Category = ""
	CategoryText    Category = "text"
	CategoryMedia   Category = "media"
	CategoryLink    Category = "link"
)

// PublishResult describes where a rendered video was published.
type PublishResult struct {
	Destination string
	PublishedAt time.Time
	ViewCount   int
	LikeCount   int
}

// PostData is one normalized Reddit post plus the production state built on it.
type PostData struct {
	id string

	Title          string
	SelfText       string
	Subreddit      string
	Ups            int
	Score          int
	NumComments    int
	CreatedUTC     time.Time
	AuthorFullname string
	Author         string
	Permalink      string
	URL            string
	UpvoteRatio    float64
	IsSelf         bool
	Over18         bool
	Spoiler        bool

	ProductionID string
	Category     Category
	Rank         int

	filteredOut bool

	narration      *string
	audioPath      *string
	videoPath      *string
	finalVideoPath *string
	published      *PublishResult
}

// NewPostData builds a record from the untyped field map of a listing child.
// Unknown fields are ignored and declared fields that cannot be coerced stay zero.
func NewPostData(fields map[string]any) (*PostData, error) {
	id := asString(fields["id"])
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}

	p := &PostData{
		id:             id,
		Title:          asString(fields["title"]),
		SelfText:       asString(fields["selftext"]),
		Subreddit:      asString(fields["subreddit"]),
		Ups:            asInt(fields["ups"]),
		Score:          asInt(fields["score"]),
		NumComments:    asInt(fields["num_comments"]),
		AuthorFullname: asString(fields["author_fullname"]),
		Author:         asString(fields["author"]),
		Permalink:      asString(fields["permalink"]),
		URL:            asString(fields["url"]),
		UpvoteRatio:    asFloat(fields["upvote_ratio"]),
		IsSelf:         asBool(fields["is_self"]),
		Over18:         asBool(fields["over_18"]),
		Spoiler:        asBool(fields["spoiler"]),
		ProductionID:   uuid.NewSHA1(productionNamespace, []byte(id)).String(),
		filteredOut:    true,
	}
	if created := asFloat(fields["created_utc"]); created > 0 {
		sec, frac := math.Modf(created)
		p.CreatedUTC = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}

	return p, nil
}

func (p *PostData) ID() string {
	return p.id
}

// FilteredOut reports whether the record is excluded from downstream stages.
func (p *PostData) FilteredOut() bool {
	return p.filteredOut
}

// Include opts the record into downstream processing. Only selection
// strategies call this.
func (p *PostData) Include() {
	p.filteredOut = false
}

func (p *PostData) Narration() (string, bool)      { return deref(p.narration) }
func (p *PostData) AudioPath() (string, bool)      { return deref(p.audioPath) }
func (p *PostData) VideoPath() (string, bool)      { return deref(p.videoPath) }
func (p *PostData) FinalVideoPath() (string, bool) { return deref(p.finalVideoPath) }

func (p *PostData) Published() (PublishResult, bool) {
	if p.published == nil {
		return PublishResult{}, false
	}
	return *p.published, true
}

func (p *PostData) SetNarration(text string) error {
	return p.setOnce(&p.narration, text, "narration")
}

func (p *PostData) SetAudioPath(path string) error {
	return p.setOnce(&p.audioPath, path, "audio path")
}

func (p *PostData) SetVideoPath(path string) error {
	return p.setOnce(&p.videoPath, path, "video path")
}

func (p *PostData) SetFinalVideoPath(path string) error {
	return p.setOnce(&p.finalVideoPath, path, "final video path")
}

func (p *PostData) SetPublished(result PublishResult) error {
	if p.filteredOut {
		return fmt.Errorf("post %s: %w", p.id, ErrExcluded)
	}
	if p.published != nil {
		return fmt.Errorf("post %s publish result: %w", p.id, ErrDerivedFieldSet)
	}
	p.published = &result
	return nil
}

func (p *PostData) setOnce(field **string, value, name string) error {
	if p.filteredOut {
		return fmt.Errorf("post %s: %w", p.id, ErrExcluded)
	}
	if *field != nil {
		return fmt.Errorf("post %s %s: %w", p.id, name, ErrDerivedFieldSet)
	}
	*field = &value
	return nil
}

// Row returns the flat representation used for scoring and inspection.
func (p *PostData) Row() map[string]any {
	row := map[string]any{
		"id":              p.id,
		"title":           p.Title,
		"selftext":        p.SelfText,
		"subreddit":       p.Subreddit,
		"ups":             p.Ups,
		"score":           p.Score,
		"num_comments":    p.NumComments,
		"created_utc":     p.CreatedUTC,
		"author_fullname": p.AuthorFullname,
		"author":          p.Author,
		"permalink":       p.Permalink,
		"url":             p.URL,
		"upvote_ratio":    p.UpvoteRatio,
		"is_self":         p.IsSelf,
		"over_18":         p.Over18,
		"spoiler":         p.Spoiler,
		"filtered_out":    p.filteredOut,
		"category":        string(p.Category),
		"rank":            p.Rank,
	}
	if v, ok := p.Narration(); ok {
		row["narration"] = v
	}
	if v, ok := p.AudioPath(); ok {
		row["audio_path"] = v
	}
	if v, ok := p.VideoPath(); ok {
		row["video_path"] = v
	}
	if v, ok := p.FinalVideoPath(); ok {
		row["final_video_path"] = v
	}
	return row
}

func deref(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asInt(v any) int {
	return int(asFloat(v))
}

func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(val))
		return b
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return false
	}
}
