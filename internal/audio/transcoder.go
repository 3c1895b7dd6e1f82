// Package audio converts arbitrary input recordings to the canonical 16kHz
// mono PCM format and splits them into overlapping chunks at natural pauses.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// SampleRate is the canonical sample rate every downstream stage assumes.
const SampleRate = 16000

// Transcoder converts an input recording to a 16kHz mono WAV file via ffmpeg.
type Transcoder struct {
	FFmpegPath string
	Logger     *slog.Logger
}

// NewTranscoder builds a Transcoder, defaulting ffmpegPath to "ffmpeg" (PATH
// resolution) when empty.
func NewTranscoder(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{FFmpegPath: ffmpegPath, Logger: logger}
}

// ConvertToWAV transcodes inputPath to a 16kHz mono WAV at outputPath.
func (t *Transcoder) ConvertToWAV(ctx context.Context, inputPath, outputPath string) error {
	t.Logger.Info("transcoding audio", "input", inputPath, "output", outputPath, "sample_rate", SampleRate)

	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", "1",
		"-y",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return apperrors.New(fmt.Errorf("ffmpeg not found: install it from https://ffmpeg.org/download.html: %w", err)).
				Component("audio").Category(apperrors.CategoryCommandExecution).Build()
		}
		return apperrors.New(fmt.Errorf("ffmpeg conversion failed: %s", strings.TrimSpace(stderr.String()))).
			Component("audio").Category(apperrors.CategoryTranscode).
			Context("input_path", inputPath).Build()
	}
	return nil
}

// Duration returns the media duration in seconds as reported by ffprobe,
// located by replacing "ffmpeg" in FFmpegPath (or plain "ffprobe" on PATH).
// There is no fallback when ffprobe is missing or fails.
func (t *Transcoder) Duration(ctx context.Context, path string) (float64, error) {
	probePath := strings.Replace(t.FFmpegPath, "ffmpeg", "ffprobe", 1)
	if probePath == t.FFmpegPath {
		probePath = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, probePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, apperrors.New(fmt.Errorf("ffprobe duration: %w", err)).
			Component("audio").Category(apperrors.CategoryCommandExecution).Build()
	}
	var seconds float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &seconds); err != nil {
		return 0, apperrors.New(fmt.Errorf("ffprobe duration parse: %w", err)).
			Component("audio").Category(apperrors.CategoryTranscode).Build()
	}
	return seconds, nil
}

// FindFFmpeg resolves an ffmpeg binary, preferring PATH, matching the
// original's discovery order (PATH, then a local bundle, then a bare name
// left for the OS to fail on with a clear error).
func FindFFmpeg(localBundlePath string) string {
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		return "ffmpeg"
	}
	if localBundlePath != "" {
		if _, err := os.Stat(localBundlePath); err == nil {
			return localBundlePath
		}
	}
	return "ffmpeg"
}
