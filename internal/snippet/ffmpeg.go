package snippet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// runFFmpegExtract shells out to ffmpeg with seek (-ss) and duration (-t)
// flags so the source file is never fully decoded into memory, matching the
// streaming extraction approach used for long session recordings.
func runFFmpegExtract(ctx context.Context, ffmpegPath, audioPath string, start, duration float64, outputPath string) error {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", audioPath,
		"-y",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.New(fmt.Errorf("ffmpeg extraction timed out after %s", extractTimeout)).
			Component("snippet").Category(apperrors.CategoryTimeout).Build()
	}
	if _, ok := err.(*exec.Error); ok {
		return apperrors.New(fmt.Errorf("ffmpeg not found: install it from https://ffmpeg.org/download.html: %w", err)).
			Component("snippet").Category(apperrors.CategoryCommandExecution).Build()
	}
	return apperrors.New(fmt.Errorf("ffmpeg segment extraction failed: %s", strings.TrimSpace(stderr.String()))).
		Component("snippet").Category(apperrors.CategoryCommandExecution).Build()
}
