// Package apperrors provides a categorized error type shared across the
// pipeline, with a fluent builder for attaching component/category/context
// metadata without leaking internal details into the error string.
package apperrors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Category classifies an error for logging, retry policy, and the status
// tracker's failure reporting.
type Category string

const (
	CategoryFileIO               Category = "file-io"
	CategoryNetwork              Category = "network"
	CategoryConfiguration        Category = "configuration"
	CategoryValidation           Category = "validation"
	CategoryState                Category = "state"
	CategoryTimeout              Category = "timeout"
	CategoryCancellation         Category = "cancellation"
	CategoryRetry                Category = "retry"
	CategoryRateLimit            Category = "rate-limit"
	CategoryGeneric              Category = "generic"
	CategoryCommandExecution     Category = "command-execution"
	CategoryTranscode             Category = "audio-transcode"
	CategoryChunking              Category = "audio-chunking"
	CategoryTranscription          Category = "transcription"
	CategoryDiarization            Category = "diarization"
	CategoryClassification         Category = "classification"
	CategoryMemoryPressure         Category = "memory-pressure"
	CategoryCheckpointCorruption   Category = "checkpoint-corruption"
	CategoryKnowledgeExtraction    Category = "knowledge-extraction"
	CategorySnippetExport          Category = "snippet-export"
)

// ComponentUnknown is used when no component was set explicitly.
const ComponentUnknown = "unknown"

// PipelineError wraps an error with component/category/context metadata.
type PipelineError struct {
	Err       error
	Component string
	Category  Category
	Context   map[string]any
	Timestamp time.Time

	mu sync.RWMutex
}

func (pe *PipelineError) Error() string {
	if pe.Err == nil {
		return ""
	}
	return pe.Err.Error()
}

func (pe *PipelineError) Unwrap() error { return pe.Err }

func (pe *PipelineError) Is(target error) bool {
	if other, ok := target.(*PipelineError); ok {
		return pe.Category == other.Category
	}
	return stderrors.Is(pe.Err, target)
}

// GetContext returns a defensive copy of the attached context map.
func (pe *PipelineError) GetContext() map[string]any {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	if pe.Context == nil {
		return nil
	}
	out := make(map[string]any, len(pe.Context))
	maps.Copy(out, pe.Context)
	return out
}

// Builder is a fluent constructor for PipelineError.
type Builder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts building a PipelineError around err.
func New(err error) *Builder {
	return &Builder{err: err}
}

// Newf formats a new error and starts building a PipelineError around it.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

func (b *Builder) Component(component string) *Builder {
	b.component = component
	return b
}

func (b *Builder) Category(category Category) *Builder {
	b.category = category
	return b
}

func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// StageContext attaches the session/stage pair pipeline errors are almost
// always reported alongside.
func (b *Builder) StageContext(sessionID, stage string) *Builder {
	return b.Context("session_id", sessionID).Context("stage", stage)
}

// Build finalizes the error, filling component/category defaults.
func (b *Builder) Build() *PipelineError {
	component := b.component
	if component == "" {
		component = ComponentUnknown
	}
	category := b.category
	if category == "" {
		category = CategoryGeneric
	}
	return &PipelineError{
		Err:       b.err,
		Component: component,
		Category:  category,
		Context:   b.context,
		Timestamp: time.Now(),
	}
}

// Is reports whether err or any error it wraps matches target, delegating to
// the standard library so PipelineError composes with errors.Is chains.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As delegates to the standard library errors.As.
func As(err error, target any) bool { return stderrors.As(err, target) }
