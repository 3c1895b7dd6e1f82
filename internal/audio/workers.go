package audio

import "github.com/klauspost/cpuid/v2"

// DefaultWorkerCount estimates a reasonable transcription concurrency when
// no explicit worker count is configured: up to 4 logical cores, since each
// worker drives an external process (or network call) rather than doing
// CPU-bound work itself, so oversubscribing past a handful of cores buys
// nothing once ffmpeg/whisper's own internal parallelism saturates the box.
func DefaultWorkerCount() int {
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		return 2
	}
	if cores > 4 {
		return 4
	}
	return cores
}
