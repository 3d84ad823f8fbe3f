package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is the tri-state result of the video production stage.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type StrategyID string

const (
	StrategyMostUpvoted       StrategyID = "most_upvoted"
	StrategyMostRecent        StrategyID = "most_recent"
	StrategyMostControversial StrategyID = "most_controversial"
)

// StageID names one pipeline stage.
type StageID string

const (
	StageDiscoverGroups    StageID = "discover-groups"
	StageCollectPosts      StageID = "collect-posts"
	StageClassify          StageID = "classify"
	StageRank              StageID = "rank"
	StageSelectAndPersist  StageID = "select-and-persist"
	StageGenerateNarration StageID = "generate-narration"
	StageSynthesizeAudio   StageID = "synthesize-audio"
	StageSelectVideoAsset  StageID = "select-video-asset"
	StageEditVideo         StageID = "edit-video"
	StageUpload            StageID = "upload"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []StageID{
	StageDiscoverGroups,
	StageCollectPosts,
	StageClassify,
	StageRank,
	StageSelectAndPersist,
	StageGenerateNarration,
	StageSynthesizeAudio,
	StageSelectVideoAsset,
	StageEditVideo,
	StageUpload,
}

// StageSwitches holds one independent enable flag per stage.
type StageSwitches struct {
	DiscoverGroups    bool `yaml:"discover_groups"`
	CollectPosts      bool `yaml:"collect_posts"`
	Classify          bool `yaml:"classify"`
	Rank              bool `yaml:"rank"`
	SelectAndPersist  bool `yaml:"select_and_persist"`
	GenerateNarration bool `yaml:"generate_narration"`
	SynthesizeAudio   bool `yaml:"synthesize_audio"`
	SelectVideoAsset  bool `yaml:"select_video_asset"`
	EditVideo         bool `yaml:"edit_video"`
	Upload            bool `yaml:"upload"`
}

func (s StageSwitches) Enabled(id StageID) bool {
	switch id {
	case StageDiscoverGroups:
		return s.DiscoverGroups
	case StageCollectPosts:
		return s.CollectPosts
	case StageClassify:
		return s.Classify
	case StageRank:
		return s.Rank
	case StageSelectAndPersist:
		return s.SelectAndPersist
	case StageGenerateNarration:
		return s.GenerateNarration
	case StageSynthesizeAudio:
		return s.SynthesizeAudio
	case StageSelectVideoAsset:
		return s.SelectVideoAsset
	case StageEditVideo:
		return s.EditVideo
	case StageUpload:
		return s.Upload
	default:
		return false
	}
}

// AllStages returns switches with every stage enabled.
func AllStages() StageSwitches {
	return StageSwitches{
		DiscoverGroups:    true,
		CollectPosts:      true,
		Classify:          true,
		Rank:              true,
		SelectAndPersist:  true,
		GenerateNarration: true,
		SynthesizeAudio:   true,
		SelectVideoAsset:  true,
		EditVideo:         true,
		Upload:            true,
	}
}

// Task is one unit of work threaded through the pipeline stages.
type Task struct {
	Name        string
	Description string
	Status      Status

	Stages   StageSwitches
	Strategy StrategyID
	Persist  bool

	Subreddits  []string
	RedditDatas *RedditDatas
	Outcome     Outcome
}

// NewTask returns a pending task with every stage disabled, the most-upvoted
// strategy and persistence on.
func NewTask(name, description string) *Task {
	return &Task{
		Name:        name,
		Description: description,
		Status:      StatusPending,
		Strategy:    StrategyMostUpvoted,
		Persist:     true,
		RedditDatas: NewRedditDatas(),
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%s: %s - %s", t.Name, t.Description, t.Status)
}

// TaskResult is the terminal report of one task in a batch.
type TaskResult struct {
	Name        string
	Status      Status
	FailedStage StageID
	Err         error
	Duration    time.Duration
	Posts       int
	Selected    int
	Outcome     Outcome
	FinishedAt  time.Time
}

// BatchStats holds statistics about one orchestrator run.
type BatchStats struct {
	Tasks     []TaskResult
	Succeeded int
	Failed    int
	Duration  time.Duration
}
