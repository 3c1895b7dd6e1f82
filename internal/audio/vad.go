package audio

// SpeechSegment is one voice-activity region detected in a sample buffer, in
// seconds relative to the start of the buffer.
type SpeechSegment struct {
	Start float64
	End   float64
}

// VoiceActivityDetector finds speech regions in mono PCM. The production
// model (Silero VAD) is an opaque ML capability outside this repo's scope;
// callers inject an implementation and the chunker only depends on this
// interface, matching how the transcription/diarization backends are
// injected rather than hard-coded.
type VoiceActivityDetector interface {
	// DetectSpeech returns speech regions in samples at sampleRate, using
	// threshold as the activation confidence (0..1).
	DetectSpeech(samples []float32, sampleRate int, threshold float64) ([]SpeechSegment, error)
}

// EnergyVAD is a deterministic, dependency-free stand-in for a trained VAD
// model: it windows the signal and marks a window as speech when its RMS
// energy exceeds threshold scaled against the buffer's peak energy. It
// exists so the chunker is exercisable without a bundled ML model; production
// deployments inject a real VAD implementation instead.
type EnergyVAD struct {
	WindowMS            int
	MinSpeechDurationMS int
	MinSilenceDurationMS int
}

// NewEnergyVAD returns an EnergyVAD with the original's VAD call defaults
// (250ms minimum speech, 500ms minimum silence).
func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{WindowMS: 30, MinSpeechDurationMS: 250, MinSilenceDurationMS: 500}
}

func (v *EnergyVAD) DetectSpeech(samples []float32, sampleRate int, threshold float64) ([]SpeechSegment, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, nil
	}
	windowSize := sampleRate * v.WindowMS / 1000
	if windowSize < 1 {
		windowSize = 1
	}

	var peak float64
	energies := make([]float64, 0, len(samples)/windowSize+1)
	for start := 0; start < len(samples); start += windowSize {
		end := start + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		var sumSq float64
		for _, s := range samples[start:end] {
			sumSq += float64(s) * float64(s)
		}
		rms := sumSq / float64(end-start)
		energies = append(energies, rms)
		if rms > peak {
			peak = rms
		}
	}
	if peak == 0 {
		return nil, nil
	}

	active := make([]bool, len(energies))
	for i, e := range energies {
		active[i] = e/peak >= threshold*threshold
	}

	minSpeechWindows := (v.MinSpeechDurationMS * sampleRate / 1000) / windowSize
	minSilenceWindows := (v.MinSilenceDurationMS * sampleRate / 1000) / windowSize

	var segments []SpeechSegment
	i := 0
	for i < len(active) {
		if !active[i] {
			i++
			continue
		}
		j := i
		for j < len(active) && active[j] {
			j++
		}
		if j-i >= minSpeechWindows || len(segments) == 0 {
			start := float64(i*windowSize) / float64(sampleRate)
			end := float64(j*windowSize) / float64(sampleRate)
			if len(segments) > 0 {
				last := &segments[len(segments)-1]
				silenceWindows := i - int(last.End*float64(sampleRate)/float64(windowSize))
				if silenceWindows < minSilenceWindows {
					last.End = end
					i = j
					continue
				}
			}
			segments = append(segments, SpeechSegment{Start: start, End: end})
		}
		i = j
	}
	return segments, nil
}
