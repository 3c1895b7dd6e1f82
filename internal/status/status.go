// Package status broadcasts per-session, per-stage progress to external
// observers. The core pipeline only ever writes to a Tracker; what happens
// with those updates (a file, an in-memory cache a UI polls, an IPC queue)
// is entirely up to the Sink implementations registered with it.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Phase is the lifecycle state of one stage update.
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseSkipped   Phase = "skipped"
)

// Update is one (session, stage) progress event.
type Update struct {
	SessionID   string         `json:"session_id"`
	StageNumber int            `json:"stage_number"`
	Phase       Phase          `json:"status"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	// Duration is set only on a PhaseCompleted update, the wall-clock time
	// the stage took to run; zero on Running/Failed/Skipped updates.
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SessionEvent marks session-level lifecycle boundaries (distinct from
// per-stage Updates since a session start/complete/fail carries different
// fields than a stage update).
type SessionEvent struct {
	SessionID string         `json:"session_id"`
	Kind      string         `json:"kind"` // "start", "complete", "fail"
	Options   map[string]any `json:"options,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives broadcast events. Implementations must not block the
// caller for long; Tracker fans out synchronously to all registered sinks.
type Sink interface {
	SessionEvent(SessionEvent)
	StageUpdate(Update)
}

// Tracker fans out session/stage events to every registered Sink.
type Tracker struct {
	mu    sync.RWMutex
	sinks []Sink
}

// New returns a Tracker with no sinks registered; callers add sinks with
// AddSink before starting a session.
func New() *Tracker {
	return &Tracker{}
}

// AddSink registers a Sink to receive future events.
func (t *Tracker) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

func (t *Tracker) snapshot() []Sink {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Sink, len(t.sinks))
	copy(out, t.sinks)
	return out
}

// StartSession announces a new pipeline run.
func (t *Tracker) StartSession(sessionID string, options map[string]any) {
	event := SessionEvent{SessionID: sessionID, Kind: "start", Options: options, Timestamp: time.Now().UTC()}
	for _, s := range t.snapshot() {
		s.SessionEvent(event)
	}
}

// UpdateStage reports progress on a single stage.
func (t *Tracker) UpdateStage(sessionID string, stageNumber int, phase Phase, message string, details map[string]any) {
	t.updateStage(sessionID, stageNumber, phase, message, details, 0)
}

// UpdateStageWithDuration reports a PhaseCompleted update carrying how long
// the stage took, so sinks like MetricsSink can record a duration histogram.
func (t *Tracker) UpdateStageWithDuration(sessionID string, stageNumber int, message string, details map[string]any, duration time.Duration) {
	t.updateStage(sessionID, stageNumber, PhaseCompleted, message, details, duration)
}

func (t *Tracker) updateStage(sessionID string, stageNumber int, phase Phase, message string, details map[string]any, duration time.Duration) {
	update := Update{
		SessionID:   sessionID,
		StageNumber: stageNumber,
		Phase:       phase,
		Message:     message,
		Details:     details,
		Duration:    duration,
		Timestamp:   time.Now().UTC(),
	}
	for _, s := range t.snapshot() {
		s.StageUpdate(update)
	}
}

// CompleteSession announces a successful run.
func (t *Tracker) CompleteSession(sessionID string) {
	event := SessionEvent{SessionID: sessionID, Kind: "complete", Timestamp: time.Now().UTC()}
	for _, s := range t.snapshot() {
		s.SessionEvent(event)
	}
}

// FailSession announces a run that ended in a critical failure.
func (t *Tracker) FailSession(sessionID, errMsg string) {
	event := SessionEvent{SessionID: sessionID, Kind: "fail", Error: errMsg, Timestamp: time.Now().UTC()}
	for _, s := range t.snapshot() {
		s.SessionEvent(event)
	}
}

// Debouncer decides whether an in-stage progress tick is worth reporting:
// at most once per minProgressFraction of total work or minInterval of wall
// clock, whichever comes first, so a long stage doesn't flood the tracker
// with near-identical updates.
type Debouncer struct {
	minFraction float64
	minInterval time.Duration

	mu           sync.Mutex
	lastReported float64
	lastAt       time.Time
}

// NewDebouncer returns a Debouncer gating on minFraction of progress or
// minInterval of wall-clock time, whichever comes first.
func NewDebouncer(minFraction float64, minInterval time.Duration) *Debouncer {
	return &Debouncer{minFraction: minFraction, minInterval: minInterval}
}

// ShouldReport reports whether progress (0..1) is far enough past the last
// reported value, or enough time has passed, to emit another update.
func (d *Debouncer) ShouldReport(progress float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.lastAt.IsZero() {
		d.lastReported = progress
		d.lastAt = now
		return true
	}
	if progress-d.lastReported >= d.minFraction || now.Sub(d.lastAt) >= d.minInterval {
		d.lastReported = progress
		d.lastAt = now
		return true
	}
	return false
}

// FileSink appends every event as a line of JSON to a file, giving an
// external observer a durable, tailable log of pipeline progress.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens (creating/appending to) path as a FileSink.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open status sink: %w", err)
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) writeLine(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = s.f.Write(data)
}

func (s *FileSink) SessionEvent(e SessionEvent) { s.writeLine(e) }
func (s *FileSink) StageUpdate(u Update)         { s.writeLine(u) }

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// MemorySink keeps the latest state per session in memory, for an
// in-process UI or test harness to poll without touching the filesystem.
type MemorySink struct {
	mu       sync.RWMutex
	sessions map[string]SessionEvent
	stages   map[string][]Update
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		sessions: make(map[string]SessionEvent),
		stages:   make(map[string][]Update),
	}
}

func (m *MemorySink) SessionEvent(e SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.SessionID] = e
}

func (m *MemorySink) StageUpdate(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[u.SessionID] = append(m.stages[u.SessionID], u)
}

// StagesFor returns every stage update recorded for sessionID, in order.
func (m *MemorySink) StagesFor(sessionID string) []Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Update, len(m.stages[sessionID]))
	copy(out, m.stages[sessionID])
	return out
}

// SessionFor returns the latest session-level event for sessionID.
func (m *MemorySink) SessionFor(sessionID string) (SessionEvent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	return e, ok
}
