package snippet

import (
	"fmt"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/audio"
)

// extractSegmentFullDecode is the pre-streaming extraction path: it loads
// the entire source WAV into memory and slices it, kept only for backward
// compatibility when streaming export is disabled (UseStreamingExport=false).
// It costs the full-file memory footprint streaming extraction was built to
// avoid, so it is not the default.
func extractSegmentFullDecode(audioPath string, start, end float64, outputPath string) error {
	samples, sampleRate, err := audio.LoadWAV(audioPath)
	if err != nil {
		return err
	}

	startIdx := int(start * float64(sampleRate))
	endIdx := int(end * float64(sampleRate))
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(samples) {
		endIdx = len(samples)
	}
	if startIdx >= endIdx {
		return apperrors.Newf("empty segment range [%.3f,%.3f) for %s", start, end, audioPath).
			Component("snippet").Category(apperrors.CategoryValidation).Build()
	}

	clip := samples[startIdx:endIdx]
	if err := audio.SaveWAV(outputPath, clip, sampleRate); err != nil {
		return fmt.Errorf("save clip: %w", err)
	}
	return nil
}
