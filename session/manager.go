package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/audio"
	"github.com/mrsingh-rishi/meeting-transcriber/capture"
	"github.com/mrsingh-rishi/meeting-transcriber/config"
	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/model"
	"github.com/mrsingh-rishi/meeting-transcriber/output"
	"github.com/mrsingh-rishi/meeting-transcriber/power"
	"github.com/mrsingh-rishi/meeting-transcriber/stt"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// StartRequest carries the per-recording options a consumer may set.
type StartRequest struct {
	AdditionalVocab []stt.VocabEntry `json:"additional_vocab,omitempty"`
	SpeakerProfile  *SpeakerProfile  `json:"speaker_profile,omitempty"`
	RTURL           string           `json:"rt_url,omitempty"`
}

// EnrollRequest carries a voice sample to enroll.
type EnrollRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate uint32    `json:"sample_rate"`
	RTURL      string    `json:"rt_url,omitempty"`
}

// ManagerOptions wires a Manager.
type ManagerOptions struct {
	Speech     config.SpeechConfig
	Audio      config.AudioConfig
	Tokens     TokenSource
	Dial       DialFunc
	WakeLocker power.WakeLocker
	Capture    capture.Source
	Sink       output.Sink
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Manager holds the process-wide recording state: at most one session at a
// time, the mute flag, and the transcript of the latest session.
type Manager struct {
	opts   ManagerOptions
	logger *slog.Logger
	muted  atomic.Bool

	// startMu serializes Start and Stop so a restart cannot interleave.
	startMu sync.Mutex
	mu      sync.RWMutex
	current *Session

	// captureMu guards the level-meter preview that runs the capture
	// source without a recording. Lock order is startMu, then captureMu.
	captureMu  sync.Mutex
	previewing bool
	previewOn  atomic.Bool
}

// NewManager returns a Manager with no session.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Sink == nil {
		opts.Sink = output.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{opts: opts, logger: opts.Logger}
}

func (m *Manager) session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Start stops any running session, resets the mute flag and starts a new
// session. Auth and connect failures are returned.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	cfg := ConfigFromSpeech(m.opts.Speech)
	cfg.AdditionalVocab = req.AdditionalVocab
	cfg.Speaker = req.SpeakerProfile
	if req.RTURL != "" {
		cfg.RTURL = req.RTURL
	}

	if prev := m.session(); prev != nil && !prev.State().Terminal() {
		m.logger.Info("stopping previous session", "session_id", prev.ID())
		if err := prev.Stop(ctx); err != nil {
			m.logger.Warn("previous session ended with error", "session_id", prev.ID(), "error", err)
		}
	}
	m.setMuted(false)

	m.captureMu.Lock()
	if m.previewing {
		if err := m.stopPreviewLocked(); err != nil {
			m.logger.Warn("capture preview failed to stop", "error", err)
		}
	}
	m.captureMu.Unlock()

	s, err := New(Options{
		Config:     cfg,
		Timing:     TimingFromAudio(m.opts.Audio),
		Tokens:     m.opts.Tokens,
		Dial:       m.opts.Dial,
		WakeLocker: m.opts.WakeLocker,
		Capture:    m.opts.Capture,
		Muted:      m.muted.Load,
		Sink:       m.opts.Sink,
		Metrics:    m.opts.Metrics,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Stop drains the running session and returns its terminal error, if any.
func (m *Manager) Stop(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	s := m.session()
	if s == nil || s.State().Terminal() {
		return ErrNotRecording
	}
	return s.Stop(ctx)
}

// PushMic queues microphone samples on the running session.
func (m *Manager) PushMic(samples []float32) error {
	s := m.session()
	if s == nil {
		return ErrNotRecording
	}
	return s.PushMic(samples)
}

// PushScreen queues display audio samples on the running session.
func (m *Manager) PushScreen(samples []float32) error {
	s := m.session()
	if s == nil {
		return ErrNotRecording
	}
	return s.PushScreen(samples)
}

// Mute silences outbound audio without interrupting the stream.
func (m *Manager) Mute() { m.setMuted(true) }

// Unmute resumes sending captured audio.
func (m *Manager) Unmute() { m.setMuted(false) }

// ToggleMute flips the mute flag and returns the new value.
func (m *Manager) ToggleMute() bool {
	for {
		old := m.muted.Load()
		if m.muted.CompareAndSwap(old, !old) {
			m.emitMute(!old)
			return !old
		}
	}
}

// Muted reports the mute flag.
func (m *Manager) Muted() bool { return m.muted.Load() }

func (m *Manager) setMuted(v bool) {
	if m.muted.Swap(v) != v {
		m.emitMute(v)
	}
}

func (m *Manager) emitMute(v bool) {
	id := ""
	if s := m.session(); s != nil {
		id = s.ID()
	}
	m.logger.Info("mute status changed", "muted", v)
	m.opts.Sink.Emit(output.NewEvent(output.EventMuteStatusChanged, id, output.MuteStatus{Muted: v}))
}

// Transcript returns the transcript of the running or most recent session.
func (m *Manager) Transcript() types.TranscriptSnapshot {
	s := m.session()
	if s == nil {
		return types.TranscriptSnapshot{}
	}
	return s.Snapshot()
}

// Turns returns the speaker turns of the running or most recent session.
func (m *Manager) Turns() []model.TranscriptTurn {
	return m.Transcript().Turns
}

// Status describes the manager for the state endpoint.
type Status struct {
	SessionID string `json:"session_id,omitempty"`
	State     State  `json:"state"`
	Muted     bool   `json:"muted"`
	Capturing bool   `json:"capturing"`
	Error     string `json:"error,omitempty"`
}

// State returns the lifecycle stage of the latest session, or Idle.
func (m *Manager) State() Status {
	st := Status{State: StateIdle, Muted: m.muted.Load(), Capturing: m.Capturing()}
	if s := m.session(); s != nil {
		st.SessionID = s.ID()
		st.State = s.State()
		if err := s.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

// Enroll runs a one-shot enrollment with the configured credentials.
func (m *Manager) Enroll(ctx context.Context, req EnrollRequest) ([]string, error) {
	rtURL := m.opts.Speech.RTURL
	if req.RTURL != "" {
		rtURL = req.RTURL
	}
	return Enroll(ctx, EnrollOptions{
		Tokens:         m.opts.Tokens,
		Dial:           m.opts.Dial,
		RTURL:          rtURL,
		Language:       m.opts.Speech.Language,
		OperatingPoint: m.opts.Speech.OperatingPoint,
		MaxDelay:       m.opts.Speech.MaxDelay,
		TargetRate:     m.opts.Audio.TargetRate,
		ChunkSize:      m.opts.Audio.EnrollmentChunkSize,
		Metrics:        m.opts.Metrics,
		Logger:         m.logger.With("component", "enrollment"),
	}, req.Samples, req.SampleRate)
}

// Close stops the capture preview and the running session, if any.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.StopCapture(); err != nil && err != ErrNotCapturing {
		m.logger.Warn("capture preview failed to stop", "error", err)
	}
	err := m.Stop(ctx)
	if err == ErrNotRecording {
		return nil
	}
	return err
}

// StartCapture runs the capture source without a recording so consumers get
// capture-started and throttled audio-level events for a level meter.
// Starting a running preview is a no-op.
func (m *Manager) StartCapture() error {
	if m.opts.Capture == nil {
		return types.E(types.KindConfig, "start capture", ErrNoCapture)
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	if m.previewing {
		return nil
	}
	if s := m.session(); s != nil && !s.State().Terminal() {
		return ErrCaptureBusy
	}

	level := output.NewThrottle(output.DefaultLevelInterval)
	m.previewOn.Store(true)
	err := m.opts.Capture.Start(func(samples []float32) {
		if !m.previewOn.Load() || !level.Allow(time.Now()) {
			return
		}
		m.opts.Sink.Emit(output.NewEvent(output.EventAudioLevel, "", output.AudioLevel{Level: audio.RMS(samples)}))
	})
	if err != nil {
		m.previewOn.Store(false)
		m.logger.Error("capture preview failed to start", "error", err)
		m.emitCapture(output.EventCaptureError, err)
		return errors.Wrap(err, "start capture")
	}

	m.previewing = true
	m.logger.Info("capture preview started")
	m.emitCapture(output.EventCaptureStarted, nil)
	return nil
}

// StopCapture stops the preview started by StartCapture.
func (m *Manager) StopCapture() error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if !m.previewing {
		return ErrNotCapturing
	}
	return m.stopPreviewLocked()
}

// Capturing reports whether the capture preview is running.
func (m *Manager) Capturing() bool {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	return m.previewing
}

func (m *Manager) stopPreviewLocked() error {
	m.previewOn.Store(false)
	m.previewing = false
	if err := m.opts.Capture.Stop(); err != nil {
		m.emitCapture(output.EventCaptureError, err)
		return errors.Wrap(err, "stop capture")
	}
	m.logger.Info("capture preview stopped")
	m.emitCapture(output.EventCaptureStopped, nil)
	return nil
}

func (m *Manager) emitCapture(name string, err error) {
	status := output.CaptureStatus{Source: model.SourceScreen}
	if err != nil {
		status.Error = err.Error()
	}
	m.opts.Sink.Emit(output.NewEvent(name, "", status))
}
