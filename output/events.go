package output

import (
	"sync"
	"time"

	"github.com/mrsingh-rishi/meeting-transcriber/model"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// Event names delivered to consumers.
const (
	EventAudioLevel        = "audio-level"
	EventTranscriptUpdate  = "transcript-update"
	EventCaptureStarted    = "capture-started"
	EventCaptureStopped    = "capture-stopped"
	EventCaptureError      = "capture-error"
	EventRecordingError    = "recording-error"
	EventRecordingEnded    = "recording-ended"
	EventMuteStatusChanged = "mute-status-changed"
)

// Event is the envelope every sink receives.
type Event struct {
	Name      string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload,omitempty"`
}

// AudioLevel is the payload of EventAudioLevel.
type AudioLevel struct {
	Level float64 `json:"level"`
}

// CaptureStatus is the payload of the capture lifecycle events.
type CaptureStatus struct {
	Source model.Source `json:"source"`
	Error  string       `json:"error,omitempty"`
}

// RecordingError is the payload of EventRecordingError.
type RecordingError struct {
	Kind    types.Kind `json:"kind,omitempty"`
	Message string     `json:"message"`
}

// RecordingEnded is the payload of EventRecordingEnded.
type RecordingEnded struct {
	Transcript string                 `json:"transcript"`
	Turns      []model.TranscriptTurn `json:"turns,omitempty"`
	Failed     bool                   `json:"failed"`
}

// MuteStatus is the payload of EventMuteStatusChanged.
type MuteStatus struct {
	Muted bool `json:"muted"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name, sessionID string, payload interface{}) Event {
	return Event{Name: name, SessionID: sessionID, Time: time.Now().UTC(), Payload: payload}
}

// Sink consumes events. Emit must not block the caller for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans every event out to several sinks in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Throttle lets an event through at most once per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// DefaultLevelInterval bounds the audio-level event rate.
const DefaultLevelInterval = 30 * time.Millisecond

// NewThrottle returns a Throttle with the given interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow reports whether an event at now may be emitted, and records it if so.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
