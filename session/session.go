package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/audio"
	"github.com/mrsingh-rishi/meeting-transcriber/capture"
	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/model"
	"github.com/mrsingh-rishi/meeting-transcriber/output"
	"github.com/mrsingh-rishi/meeting-transcriber/power"
	"github.com/mrsingh-rishi/meeting-transcriber/queue"
	"github.com/mrsingh-rishi/meeting-transcriber/transcript"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
	"github.com/mrsingh-rishi/meeting-transcriber/workers"
)

// Options wires a Session to its collaborators. Tokens and Dial are required.
type Options struct {
	Config     Config
	Timing     Timing
	Tokens     TokenSource
	Dial       DialFunc
	WakeLocker power.WakeLocker
	// Capture, when set, feeds the screen side of the mixer.
	Capture capture.Source
	// Muted is read once per mixed frame.
	Muted   func() bool
	Sink    output.Sink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Session is one recording: it authenticates, streams mixed audio to the
// recognition service and assembles the transcript from its replies.
type Session struct {
	id     string
	cfg    Config
	timing Timing
	opts   Options
	logger *slog.Logger

	store  *transcript.Store
	screen *queue.Unbounded[[]float32]
	mic    *queue.Unbounded[[]float32]
	level  *output.Throttle

	mu        sync.Mutex
	state     State
	err       error
	startedAt time.Time
	guard     *power.Guard

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// New validates opts and returns an idle session.
func New(opts Options) (*Session, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Tokens == nil {
		return nil, types.Errorf(types.KindConfig, "new session", "token source is required")
	}
	if opts.Dial == nil {
		return nil, types.Errorf(types.KindConfig, "new session", "dial function is required")
	}
	if opts.WakeLocker == nil {
		opts.WakeLocker = power.Nop{}
	}
	if opts.Muted == nil {
		opts.Muted = func() bool { return false }
	}
	if opts.Sink == nil {
		opts.Sink = output.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    opts.Config,
		timing: opts.Timing.withDefaults(),
		opts:   opts,
		logger: opts.Logger.With("session_id", id),
		store:  transcript.NewStore(),
		screen: queue.NewUnbounded[[]float32](),
		mic:    queue.NewUnbounded[[]float32](),
		level:  output.NewThrottle(output.DefaultLevelInterval),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// ID returns the session identifier carried by every event.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of a failed or abnormally closed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session is Closed or Failed and every resource
// has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Transcript returns the rendered transcript so far.
func (s *Session) Transcript() string { return s.store.Text() }

// Snapshot returns the transcript and its turns.
func (s *Session) Snapshot() types.TranscriptSnapshot { return s.store.Snapshot() }

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	s.logger.Debug("session state changed", "from", prev.String(), "to", next.String())
}

func (s *Session) emit(name string, payload interface{}) {
	s.opts.Sink.Emit(output.NewEvent(name, s.id, payload))
}

// Start authenticates, connects and sends the start message, then streams
// in the background. It returns once streaming has begun or the session
// has failed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return errors.Errorf("session already %s", state)
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	s.guard = power.Acquire(s.opts.WakeLocker, "Recording meeting transcript", s.logger)
	handedOff := false
	defer func() {
		if !handedOff {
			s.guard.Release()
		}
	}()

	s.logger.Info("requesting session token")
	token, err := s.opts.Tokens.Token(ctx)
	if err != nil {
		if !types.IsKind(err, types.KindAuth) {
			err = types.E(types.KindAuth, "create session token", err)
		}
		s.fail(err)
		return err
	}

	s.setState(StateHandshaking)
	conn, err := s.opts.Dial(ctx, s.cfg.RTURL, token)
	if err != nil {
		if _, ok := types.KindOf(err); !ok {
			err = types.E(types.KindTransport, "connect to recognition service", err)
		}
		s.fail(err)
		return err
	}
	if err := conn.Start(s.cfg.TranscriptionConfig(), s.timing.TargetRate); err != nil {
		_ = conn.Close()
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.state = StateStreaming
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.opts.Metrics.RecordSessionStarted()
	s.logger.Info("streaming started", "language", s.cfg.Language, "rt_url", s.cfg.RTURL)

	s.startCapture()

	handedOff = true
	go s.run(conn)
	return nil
}

// fail ends a session that never reached Streaming.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()

	s.logger.Error("session failed to start", "error", err)
	s.opts.Metrics.RecordSessionFailedToStart()
	s.screen.Close()
	s.mic.Close()

	s.emitError(err)
	s.emit(output.EventRecordingEnded, output.RecordingEnded{Failed: true})
	s.guard.Release()
	s.closeDone()
}

func (s *Session) emitError(err error) {
	kind, _ := types.KindOf(err)
	s.emit(output.EventRecordingError, output.RecordingError{Kind: kind, Message: err.Error()})
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) startCapture() {
	if s.opts.Capture == nil {
		return
	}
	if err := s.opts.Capture.Start(func(samples []float32) {
		_ = s.PushScreen(samples)
	}); err != nil {
		s.logger.Error("screen capture failed to start", "error", err)
		s.emit(output.EventCaptureError, output.CaptureStatus{Source: model.SourceScreen, Error: err.Error()})
		return
	}
	s.emit(output.EventCaptureStarted, output.CaptureStatus{Source: model.SourceScreen})
}

func (s *Session) stopCapture() {
	if s.opts.Capture == nil {
		return
	}
	if err := s.opts.Capture.Stop(); err != nil {
		s.logger.Warn("screen capture failed to stop", "error", err)
		s.emit(output.EventCaptureError, output.CaptureStatus{Source: model.SourceScreen, Error: err.Error()})
		return
	}
	s.emit(output.EventCaptureStopped, output.CaptureStatus{Source: model.SourceScreen})
}

// run owns the connection from Streaming to Closed.
func (s *Session) run(conn Transport) {
	var result error
	defer func() {
		s.guard.Release()
		s.finish(result)
	}()

	inDone := make(chan struct{})
	var inErr error
	tw, err := workers.NewTranscriptWorker(workers.TranscriptWorkerOptions{
		Reader: conn,
		Store:  s.store,
		OnUpdate: func(u types.TranscriptUpdate) {
			s.emit(output.EventTranscriptUpdate, u)
		},
		OnRemoteError: func(msg string) {
			s.emitError(types.Errorf(types.KindRemote, "recognition", "%s", msg))
		},
		Metrics: s.opts.Metrics,
		Logger:  s.logger.With("worker", "transcript"),
	})
	if err != nil {
		_ = conn.Close()
		result = err
		return
	}
	go func() {
		defer close(inDone)
		inErr = tw.Run()
	}()

	aw, err := workers.NewAudioWorker(workers.AudioWorkerOptions{
		Screen:     s.screen.Out(),
		Mic:        s.mic.Out(),
		Sender:     conn,
		Muted:      s.opts.Muted,
		FrameSize:  s.timing.FrameSize,
		SourceRate: s.timing.SourceRate,
		TargetRate: s.timing.TargetRate,
		Metrics:    s.opts.Metrics,
		Logger:     s.logger.With("worker", "audio"),
	})
	if err != nil {
		_ = conn.Close()
		<-inDone
		result = err
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.stopCh:
		case <-inDone:
		case <-ctx.Done():
		}
		cancel()
	}()
	outErr := aw.Run(ctx)
	cancel()

	s.setState(StateDraining)
	s.stopCapture()
	s.screen.Close()
	s.mic.Close()

	inFinished := func() bool {
		select {
		case <-inDone:
			return true
		default:
			return false
		}
	}

	forced := false
	if outErr != nil {
		_ = conn.Close()
		forced = true
	} else if !inFinished() {
		if s.timing.DrainGrace > 0 {
			select {
			case <-time.After(s.timing.DrainGrace):
			case <-inDone:
			}
		}
		if !inFinished() {
			s.logger.Info("sending end of stream", "last_seq_no", conn.Sequence())
			if err := conn.EndOfStream(); err != nil {
				outErr = err
				_ = conn.Close()
				forced = true
			} else if err := conn.CloseWrite(); err != nil {
				s.logger.Warn("failed to close outbound stream", "error", err)
			}
		}
	}

	select {
	case <-inDone:
	case <-time.After(s.timing.DrainTimeout):
		s.logger.Warn("timed out waiting for end of transcript", "timeout", s.timing.DrainTimeout)
		_ = conn.Close()
		forced = true
		<-inDone
	}
	_ = conn.Close()

	switch {
	case outErr != nil:
		result = outErr
	case inErr != nil && !forced:
		result = inErr
	}
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.err = err
	started := s.startedAt
	s.mu.Unlock()

	duration := time.Since(started)
	s.opts.Metrics.RecordSessionEnded(duration.Seconds(), err != nil)

	if err != nil {
		s.logger.Error("session closed with error", "error", err, "duration", duration)
		s.emitError(err)
	} else {
		s.logger.Info("session closed", "duration", duration)
	}
	snap := s.store.Snapshot()
	s.emit(output.EventRecordingEnded, output.RecordingEnded{
		Transcript: snap.Text,
		Turns:      snap.Turns,
		Failed:     err != nil,
	})
	s.closeDone()
}

// Stop asks the session to drain and waits until it is closed or ctx ends.
// Stopping an idle session closes it without any I/O; it still emits an
// empty recording-ended.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateClosed
		s.mu.Unlock()
		s.screen.Close()
		s.mic.Close()
		s.emit(output.EventRecordingEnded, output.RecordingEnded{})
		s.closeDone()
		return nil
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushScreen queues display audio. It also emits a throttled audio-level
// event computed from the chunk.
func (s *Session) PushScreen(samples []float32) error {
	if err := s.push(s.screen, samples); err != nil {
		return err
	}
	s.emitLevel(samples)
	return nil
}

// emitLevel holds mu so the level event cannot land after the state has
// left Streaming and recording-ended has been emitted.
func (s *Session) emitLevel(samples []float32) {
	if !s.level.Allow(time.Now()) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return
	}
	s.emit(output.EventAudioLevel, output.AudioLevel{Level: audio.RMS(samples)})
}

// PushMic queues microphone audio.
func (s *Session) PushMic(samples []float32) error {
	return s.push(s.mic, samples)
}

func (s *Session) push(q *queue.Unbounded[[]float32], samples []float32) error {
	if !s.State().Active() {
		return ErrNotRecording
	}
	if len(samples) == 0 {
		return nil
	}
	if !q.Push(samples) {
		return ErrNotRecording
	}
	return nil
}
