package render

import (
	"fmt"
	"io"
	"strings"

	"shorts_pipeline/internal/domain"
)

// WriteSRT writes one cue per word. Words starting at or after limit are
// dropped and the last cue is clipped to limit.
func WriteSRT(w io.Writer, words []domain.Word, limit float64) error {
	cue := 0
	for _, word := range words {
		text := strings.TrimSpace(word.Text)
		if text == "" || word.Start >= limit {
			continue
		}
		end := word.End
		if end > limit {
			end = limit
		}
		if end <= word.Start {
			continue
		}
		cue++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			cue, formatTimestamp(word.Start), formatTimestamp(end), text); err != nil {
			return err
		}
	}
	return nil
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
