package domain

// Word is one timestamped token of a transcription, in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcription struct {
	Text     string
	Duration float64
	Words    []Word
}

// RenderJob describes one final video composition.
type RenderJob struct {
	PostID        string
	VideoPath     string
	AudioPath     string
	OutputPath    string
	Transcription Transcription
}
