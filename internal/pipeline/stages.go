package pipeline

import (
	"log/slog"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/selection"
)

// Deps are the collaborators and settings the stage implementations use.
// A nil collaborator leaves the stages that need it unconfigured.
type Deps struct {
	Source      Source
	Store       Store
	Narrator    Narrator
	Synthesizer Synthesizer
	Transcriber Transcriber
	Renderer    Renderer
	Uploader    Uploader

	Subreddits  []string
	Selection   selection.Config
	AudioDir    string
	OutputDir   string
	VideoAssets []string
}

// NewStages builds every stage whose collaborators are present.
func NewStages(deps Deps, logger *slog.Logger) map[domain.StageID]Stage {
	stages := map[domain.StageID]Stage{
		domain.StageDiscoverGroups:   &DiscoverStage{Defaults: deps.Subreddits},
		domain.StageClassify:         ClassifyStage{},
		domain.StageRank:             RankStage{},
		domain.StageSelectAndPersist: &SelectStage{Config: deps.Selection},
		domain.StageSelectVideoAsset: &VideoSelectStage{Assets: deps.VideoAssets},
	}

	if deps.Source != nil {
		stages[domain.StageCollectPosts] = NewCollectStage(deps.Source, deps.Store, logger)
	}
	if deps.Narrator != nil {
		stages[domain.StageGenerateNarration] = NewNarrationStage(deps.Narrator, logger)
	}
	if deps.Synthesizer != nil {
		stages[domain.StageSynthesizeAudio] = NewAudioStage(deps.Synthesizer, deps.AudioDir, logger)
	}
	if deps.Transcriber != nil && deps.Renderer != nil {
		stages[domain.StageEditVideo] = NewEditStage(deps.Transcriber, deps.Renderer, deps.OutputDir, logger)
	}
	if deps.Uploader != nil {
		stages[domain.StageUpload] = NewUploadStage(deps.Uploader, logger)
	}

	return stages
}
