package render

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probeDuration returns the container duration of path in seconds.
func (f *FFmpeg) probeDuration(ctx context.Context, path string) (float64, error) {
	output, err := f.run(ctx, f.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", result.Format.Duration, err)
	}
	return d, nil
}
