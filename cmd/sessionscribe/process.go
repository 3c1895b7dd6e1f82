package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gambitnl/sessionscribe/internal/audio"
	"github.com/gambitnl/sessionscribe/internal/checkpoint"
	"github.com/gambitnl/sessionscribe/internal/classify"
	"github.com/gambitnl/sessionscribe/internal/config"
	"github.com/gambitnl/sessionscribe/internal/diarization"
	"github.com/gambitnl/sessionscribe/internal/knowledge"
	"github.com/gambitnl/sessionscribe/internal/logging"
	"github.com/gambitnl/sessionscribe/internal/merger"
	"github.com/gambitnl/sessionscribe/internal/pipeline"
	"github.com/gambitnl/sessionscribe/internal/session"
	"github.com/gambitnl/sessionscribe/internal/snippet"
	"github.com/gambitnl/sessionscribe/internal/status"
	"github.com/gambitnl/sessionscribe/internal/transcription"
)

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func processCommand() *cobra.Command {
	var sessionID, characterNames, playerNames, partyConfigPath string
	var resume bool

	cmd := &cobra.Command{
		Use:   "process [input-file]",
		Short: "Run the full pipeline against one session recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if sessionID == "" {
				return fmt.Errorf("--session-id is required")
			}
			if partyConfigPath != "" {
				overrides, err := config.LoadPartyOverrides(partyConfigPath)
				if err != nil {
					return err
				}
				overrides.ApplyTo(settings)
				if characterNames == "" {
					characterNames = strings.Join(overrides.CharacterNames, ",")
				}
				if playerNames == "" {
					playerNames = strings.Join(overrides.PlayerNames, ",")
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			go func() {
				<-sigChan
				fmt.Fprintln(os.Stderr, "received shutdown signal, cancelling run...")
				cancel()
			}()

			sess := &session.Session{
				ID:                    sessionID,
				CampaignID:            settings.CampaignID,
				PartyID:               settings.PartyID,
				CharacterNames:        splitCSV(characterNames),
				PlayerNames:           splitCSV(playerNames),
				NumSpeakers:           settings.NumSpeakers,
				Language:              settings.Language,
				Resume:                resume,
				TranscriptionBackend:  settings.TranscriptionBackend,
				DiarizationBackend:    settings.DiarizationBackend,
				ClassificationBackend: settings.ClassificationBackend,
			}

			processor, err := buildProcessor(sess, settings)
			if err != nil {
				return err
			}

			result, err := processor.Run(ctx, args[0])
			if err != nil {
				if isCancellation(err) {
					return err
				}
				return fmt.Errorf("pipeline run: %w", err)
			}

			fmt.Printf("done: %d segments, %d IC, %d OOC, %d mixed\n",
				result.Statistics.TotalSegments, result.Statistics.ICSegments,
				result.Statistics.OOCSegments, result.Statistics.MixedSegments)
			fmt.Printf("transcript: %s\n", result.OutputFiles.Full)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "unique identifier for this recording session")
	cmd.Flags().StringVar(&characterNames, "character-names", "", "comma-separated list of known character names")
	cmd.Flags().StringVar(&playerNames, "player-names", "", "comma-separated list of known player names")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last completed checkpoint")
	cmd.Flags().StringVar(&partyConfigPath, "party-config", "", "path to a YAML file naming this campaign's party (campaign_id, party_id, character_names, player_names)")
	// Flag names match config's mapstructure tags exactly so viper's
	// generic BindPFlags (see config.Load) resolves them without aliasing.
	cmd.Flags().String("output_dir", "", "base directory for session output")
	cmd.Flags().String("transcription_backend", "", "transcription backend: whisper, whisper-api")
	cmd.Flags().String("diarization_backend", "", "diarization backend: pyannote, huggingface")
	cmd.Flags().String("classification_backend", "", "classification backend: ollama, remote, offloaded")
	cmd.Flags().Bool("skip_diarization", false, "skip speaker diarization")
	cmd.Flags().Bool("skip_classification", false, "skip IC/OOC classification")
	cmd.Flags().Bool("skip_snippet_export", false, "skip per-segment audio clip export")
	cmd.Flags().Bool("skip_knowledge_extraction", false, "skip campaign knowledge extraction")

	return cmd
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// buildProcessor wires every backend named in settings into a
// pipeline.Processor, matching each settings.*Backend name to its package's
// Factory.
func buildProcessor(sess *session.Session, settings *config.Settings) (*pipeline.Processor, error) {
	logger := logging.Logger()

	transcoder := audio.NewTranscoder(settings.FFmpegPath, logger)
	vad := audio.NewEnergyVAD()
	chunker := audio.NewChunker(vad, settings.ChunkTargetSeconds, settings.ChunkOverlapSeconds, logger)
	merge := merger.New()

	workerCount := settings.TranscriptionWorkers
	if workerCount <= 0 {
		workerCount = audio.DefaultWorkerCount()
	}
	transcriber, err := transcription.Factory(settings.TranscriptionBackend, transcription.Options{
		WorkerCount: workerCount,
	})
	if err != nil {
		return nil, err
	}

	diarizer, err := diarization.Factory(settings.DiarizationBackend, diarization.Options{
		NumSpeakers: sess.NumSpeakers,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := classify.Factory(settings.ClassificationBackend, classify.Options{
		BaseURL:         settings.OllamaHost,
		APIURL:          settings.RemoteClassifierURL,
		APIKey:          settings.RemoteClassifierKey,
		GDriveMountRoot: settings.GDriveMountRoot,
	})
	if err != nil {
		return nil, err
	}

	var extractor knowledge.Backend
	var store *knowledge.Store
	if !settings.SkipKnowledgeExtraction && settings.RemoteClassifierURL != "" {
		extractor = knowledge.NewRemoteExtractor(knowledge.Options{
			APIURL: settings.RemoteClassifierURL,
			APIKey: settings.RemoteClassifierKey,
		})
		store = knowledge.NewStore(filepath.Join(settings.OutputDir, "_knowledge"))
	}

	exporter := snippet.NewExporter(snippet.Options{
		FFmpegPath:         settings.FFmpegPath,
		CleanStaleClips:    settings.CleanStaleClips,
		PlaceholderMessage: settings.SnippetPlaceholderMessage,
		UseStreamingExport: settings.UseStreamingSnippetExport,
		Logger:             logger,
	})

	checkpointDir := session.CheckpointDir(settings.OutputDir, sess.ID)
	checkpoints, err := checkpoint.New(sess.ID, checkpointDir, logger)
	if err != nil {
		return nil, err
	}

	tracker := status.New()
	statusPath := filepath.Join(settings.LogDir, "status.ndjson")
	if sink, err := status.NewFileSink(statusPath); err == nil {
		tracker.AddSink(sink)
	} else {
		logger.Warn("failed to open status sink, progress will not be persisted", "error", err)
	}
	if metrics, err := status.NewMetricsSink(prometheus.DefaultRegisterer); err == nil {
		tracker.AddSink(metrics)
	} else {
		logger.Warn("failed to register pipeline metrics, continuing without them", "error", err)
	}

	return pipeline.New(pipeline.Config{
		Session:         sess,
		Settings:        settings,
		Logger:          logger,
		Transcoder:      transcoder,
		Chunker:         chunker,
		Merger:          merge,
		Transcription:   transcriber,
		Diarization:     diarizer,
		Classification:  classifier,
		Knowledge:       extractor,
		KnowledgeStore:  store,
		SnippetExporter: exporter,
		Checkpoints:     checkpoints,
		Status:          tracker,
	})
}
