package audio

import (
	"log/slog"
	"math"

	"github.com/gambitnl/sessionscribe/internal/model"
)

// ChunkProgressFunc is invoked after each chunk is produced, receiving the
// chunk and the total session duration in seconds.
type ChunkProgressFunc func(chunk model.AudioChunk, totalDuration float64)

// Chunker splits a session recording into overlapping chunks, preferring to
// cut at natural pauses found by a VoiceActivityDetector and falling back to
// a fixed maximum length when no pause is found nearby.
//
// The default 10-minute chunks with 30s overlap keep transcription context
// long while costing about 5% overhead in re-transcribed audio; natural
// pauses make better chunk boundaries than arbitrary fixed cuts.
type Chunker struct {
	VAD           VoiceActivityDetector
	MaxChunkLength float64 // seconds
	OverlapLength  float64 // seconds
	VADThreshold   float64
	Logger         *slog.Logger
}

// NewChunker builds a Chunker with the supplied VAD and spec defaults
// (600s/30s) applied when zero values are passed.
func NewChunker(vad VoiceActivityDetector, maxChunkLength, overlapLength float64, logger *slog.Logger) *Chunker {
	if maxChunkLength <= 0 {
		maxChunkLength = 600
	}
	if overlapLength <= 0 {
		overlapLength = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{VAD: vad, MaxChunkLength: maxChunkLength, OverlapLength: overlapLength, VADThreshold: 0.5, Logger: logger}
}

// Chunk splits samples (mono PCM at sampleRate) into AudioChunks.
func (c *Chunker) Chunk(samples []float32, sampleRate int, progress ChunkProgressFunc) ([]model.AudioChunk, error) {
	normalized := NormalizeAudio(samples)

	speech, err := c.VAD.DetectSpeech(normalized, sampleRate, c.VADThreshold)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("detected speech regions via VAD", "count", len(speech))

	return c.createChunksWithPauses(samples, sampleRate, speech, progress), nil
}

func (c *Chunker) createChunksWithPauses(samples []float32, sampleRate int, speech []SpeechSegment, progress ChunkProgressFunc) []model.AudioChunk {
	totalDuration := float64(len(samples)) / float64(sampleRate)

	var chunks []model.AudioChunk
	chunkStart := 0.0
	chunkIndex := 0

	for chunkStart < totalDuration {
		idealEnd := chunkStart + c.MaxChunkLength

		var chunkEnd float64
		if idealEnd >= totalDuration {
			chunkEnd = totalDuration
		} else {
			chunkEnd = c.findBestPause(speech, idealEnd, chunkStart)
		}

		startSample := int(chunkStart * float64(sampleRate))
		endSample := int(chunkEnd * float64(sampleRate))
		if endSample > len(samples) {
			endSample = len(samples)
		}

		chunk := model.AudioChunk{
			PCM:        samples[startSample:endSample],
			StartTime:  chunkStart,
			EndTime:    chunkEnd,
			SampleRate: sampleRate,
			ChunkIndex: chunkIndex,
		}
		chunks = append(chunks, chunk)
		c.Logger.Debug("created chunk", "index", chunkIndex, "start", chunkStart, "end", chunkEnd)

		if progress != nil {
			progress(chunk, totalDuration)
		}

		if chunkEnd >= totalDuration {
			break
		}

		chunkStart = chunkEnd - c.OverlapLength
		chunkIndex++
	}

	return chunks
}

// findBestPause searches for the widest silence gap closest to idealEnd,
// within a 60s window, scoring distance_score - gap_width*2 (rewarding wide
// gaps over merely close ones) and falling back to idealEnd when nothing
// qualifies.
func (c *Chunker) findBestPause(speech []SpeechSegment, idealEnd, chunkStart float64) float64 {
	const searchWindow = 60.0
	bestGapEnd := idealEnd
	bestScore := math.Inf(1)

	for i := 0; i < len(speech)-1; i++ {
		gapStart := speech[i].End
		gapEnd := speech[i+1].Start

		if gapStart < chunkStart {
			continue
		}
		if math.Abs(gapEnd-idealEnd) > searchWindow {
			continue
		}

		distanceScore := math.Abs(gapEnd - idealEnd)
		gapWidth := gapEnd - gapStart
		score := distanceScore - gapWidth*2

		if score < bestScore {
			bestScore = score
			bestGapEnd = gapEnd
		}
	}

	return bestGapEnd
}
