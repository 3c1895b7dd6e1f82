package format

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
	"github.com/gambitnl/sessionscribe/internal/model"
	"github.com/gambitnl/sessionscribe/internal/session"
)

// OutputPaths is the set of files SaveAllFormats wrote, keyed by format name.
type OutputPaths struct {
	Full    string
	ICOnly  string
	OOCOnly string
	JSON    string
	SRTFull string
	SRTIC   string
	SRTOOC  string
}

// SaveAllFormats writes every transcript format (full/IC/OOC text, JSON, and
// full/IC/OOC SRT) to outputDir, named after sessionName.
func SaveAllFormats(segments []model.LabeledSegment, outputDir, sessionName string, speakerProfiles map[string]string, metadata map[string]any) (OutputPaths, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return OutputPaths{}, apperrors.New(fmt.Errorf("create output dir: %w", err)).
			Component("format").Category(apperrors.CategoryFileIO).Build()
	}
	safeName := session.SanitizeFilename(sessionName)

	paths := OutputPaths{
		Full:    filepath.Join(outputDir, safeName+"_full.txt"),
		ICOnly:  filepath.Join(outputDir, safeName+"_ic_only.txt"),
		OOCOnly: filepath.Join(outputDir, safeName+"_ooc_only.txt"),
		JSON:    filepath.Join(outputDir, safeName+"_data.json"),
		SRTFull: filepath.Join(outputDir, safeName+"_full.srt"),
		SRTIC:   filepath.Join(outputDir, safeName+"_ic_only.srt"),
		SRTOOC:  filepath.Join(outputDir, safeName+"_ooc_only.srt"),
	}

	writes := map[string]string{
		paths.Full:    FormatFullTranscript(segments, speakerProfiles),
		paths.ICOnly:  FormatICOnly(segments, speakerProfiles),
		paths.OOCOnly: FormatOOCOnly(segments, speakerProfiles),
		paths.SRTFull: ExportSRT(segments, model.FilterAll, true),
		paths.SRTIC:   ExportSRT(segments, model.FilterICOnly, true),
		paths.SRTOOC:  ExportSRT(segments, model.FilterOOCOnly, true),
	}
	for path, content := range writes {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return paths, apperrors.New(fmt.Errorf("write %s: %w", path, err)).
				Component("format").Category(apperrors.CategoryFileIO).Build()
		}
	}

	jsonText, err := FormatJSON(segments, speakerProfiles, metadata)
	if err != nil {
		return paths, apperrors.New(fmt.Errorf("marshal json transcript: %w", err)).
			Component("format").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.WriteFile(paths.JSON, []byte(jsonText), 0o644); err != nil {
		return paths, apperrors.New(fmt.Errorf("write %s: %w", paths.JSON, err)).
			Component("format").Category(apperrors.CategoryFileIO).Build()
	}

	return paths, nil
}
