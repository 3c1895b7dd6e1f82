// Package config loads settings via viper: defaults, an optional YAML file,
// environment variables (SESSIONSCRIBE_ prefix), and CLI flags, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings holds the process-wide configuration for a pipeline run.
type Settings struct {
	SessionDir   string        `mapstructure:"session_dir"`
	OutputDir    string        `mapstructure:"output_dir"`
	FromStage    string        `mapstructure:"from_stage"`
	LogLevel     string        `mapstructure:"log_level"`
	LogDir       string        `mapstructure:"log_dir"`
	PartyID      string        `mapstructure:"party_id"`
	CampaignID   string        `mapstructure:"campaign_id"`
	NumSpeakers  int           `mapstructure:"num_speakers"`
	Language     string        `mapstructure:"language"`

	TranscriptionBackend  string `mapstructure:"transcription_backend"`
	DiarizationBackend    string `mapstructure:"diarization_backend"`
	ClassificationBackend string `mapstructure:"classification_backend"`

	SkipTranscription bool `mapstructure:"skip_transcription"`
	SkipDiarization   bool `mapstructure:"skip_diarization"`
	SkipClassification bool `mapstructure:"skip_classification"`
	SkipSnippetExport bool `mapstructure:"skip_snippet_export"`
	SkipKnowledgeExtraction bool `mapstructure:"skip_knowledge_extraction"`

	ChunkTargetSeconds   float64       `mapstructure:"chunk_target_seconds"`
	ChunkOverlapSeconds  float64       `mapstructure:"chunk_overlap_seconds"`
	ChunkSearchWindow    float64       `mapstructure:"chunk_search_window_seconds"`

	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RetryMaxAttempts   int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`

	TranscriptionWorkers int `mapstructure:"transcription_workers"`
	SnippetExportWorkers int `mapstructure:"snippet_export_workers"`

	FFmpegPath string `mapstructure:"ffmpeg_path"`

	OllamaHost          string `mapstructure:"ollama_host"`
	RemoteClassifierURL string `mapstructure:"remote_classifier_url"`
	RemoteClassifierKey string `mapstructure:"remote_classifier_key"`
	GDriveMountRoot     string `mapstructure:"gdrive_mount_root"`

	CleanStaleClips           bool   `mapstructure:"clean_stale_clips"`
	SnippetPlaceholderMessage string `mapstructure:"snippet_placeholder_message"`
	UseStreamingSnippetExport bool   `mapstructure:"use_streaming_snippet_export"`
}

func defaults() Settings {
	return Settings{
		OutputDir:             "output",
		LogLevel:              "info",
		LogDir:                "logs",
		NumSpeakers:           4,
		Language:              "en",
		TranscriptionBackend:  "whisper",
		DiarizationBackend:    "pyannote",
		ClassificationBackend: "ollama",
		ChunkTargetSeconds:    600,
		ChunkOverlapSeconds:   30,
		ChunkSearchWindow:     60,
		RateLimitPerMinute:    30,
		RetryMaxAttempts:      5,
		RetryBaseDelay:        time.Second,
		TranscriptionWorkers:  2,
		SnippetExportWorkers:  2,
		FFmpegPath:            "ffmpeg",
		CleanStaleClips:           true,
		SnippetPlaceholderMessage: "No audio snippets were generated for this session.",
		UseStreamingSnippetExport: true,
	}
}

// Load builds Settings from defaults, an optional config file, environment
// variables, and the given flag set, in ascending precedence.
func Load(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}
	d := defaults()
	v.SetConfigType("yaml")
	for key, val := range structToMap(d) {
		v.SetDefault(key, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("SESSIONSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &s, nil
}

// structToMap flattens default field values into viper's dotted-key default
// map using the mapstructure tag names, so SetDefault sees the same keys
// Unmarshal will later populate.
func structToMap(s Settings) map[string]any {
	return map[string]any{
		"output_dir":              s.OutputDir,
		"log_level":               s.LogLevel,
		"log_dir":                 s.LogDir,
		"num_speakers":            s.NumSpeakers,
		"language":                s.Language,
		"transcription_backend":   s.TranscriptionBackend,
		"diarization_backend":     s.DiarizationBackend,
		"classification_backend":  s.ClassificationBackend,
		"chunk_target_seconds":    s.ChunkTargetSeconds,
		"chunk_overlap_seconds":   s.ChunkOverlapSeconds,
		"chunk_search_window_seconds": s.ChunkSearchWindow,
		"rate_limit_per_minute":   s.RateLimitPerMinute,
		"retry_max_attempts":      s.RetryMaxAttempts,
		"retry_base_delay":        s.RetryBaseDelay,
		"transcription_workers":   s.TranscriptionWorkers,
		"snippet_export_workers":  s.SnippetExportWorkers,
		"ffmpeg_path":             s.FFmpegPath,
		"clean_stale_clips":            s.CleanStaleClips,
		"snippet_placeholder_message":  s.SnippetPlaceholderMessage,
		"use_streaming_snippet_export": s.UseStreamingSnippetExport,
	}
}
