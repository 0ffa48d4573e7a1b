package workers

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mrsingh-rishi/meeting-transcriber/stt"
	"github.com/mrsingh-rishi/meeting-transcriber/transcript"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

type recordingSender struct {
	frames [][]byte
	seq    uint32
	failAt int
}

func (r *recordingSender) SendAudio(pcm []byte) (uint32, error) {
	if r.failAt > 0 && len(r.frames) == r.failAt {
		return r.seq, errors.New("connection reset")
	}
	r.frames = append(r.frames, append([]byte(nil), pcm...))
	seq := r.seq
	r.seq++
	return seq, nil
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

func TestAudioWorkerMutedFramesKeepSequence(t *testing.T) {
	screen := make(chan []float32)
	mic := make(chan []float32)
	sender := &recordingSender{}

	frame := 0
	muted := func() bool {
		n := frame
		frame++
		return n >= 3 && n <= 5
	}

	w, err := NewAudioWorker(AudioWorkerOptions{
		Screen: screen,
		Mic:    mic,
		Sender: sender,
		Muted:  muted,
	})
	if err != nil {
		t.Fatalf("NewAudioWorker() error = %v", err)
	}

	go func() {
		for i := 0; i < 8; i++ {
			screen <- constant(480, 0.5)
			mic <- constant(480, 0.25)
		}
		close(screen)
		close(mic)
	}()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sender.frames) != 8 {
		t.Fatalf("sent %d frames, want 8", len(sender.frames))
	}
	if sender.seq != 8 {
		t.Errorf("sequence = %d, want 8", sender.seq)
	}
	for i, f := range sender.frames {
		if len(f) != 320 {
			t.Errorf("frame %d length = %d, want 320", i, len(f))
		}
		isMuted := i >= 3 && i <= 5
		if isMuted != allZero(f) {
			t.Errorf("frame %d all-zero = %v, want %v", i, allZero(f), isMuted)
		}
	}
}

func TestAudioWorkerWaitsForBothSources(t *testing.T) {
	screen := make(chan []float32, 4)
	mic := make(chan []float32, 4)
	sender := &recordingSender{}
	w, err := NewAudioWorker(AudioWorkerOptions{Screen: screen, Mic: mic, Sender: sender})
	if err != nil {
		t.Fatal(err)
	}

	screen <- constant(960, 0.1)
	mic <- constant(300, 0.1)
	mic <- constant(300, 0.1)
	close(screen)
	close(mic)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sender.frames) != 1 {
		t.Errorf("sent %d frames, want 1", len(sender.frames))
	}
}

func TestAudioWorkerSendError(t *testing.T) {
	screen := make(chan []float32, 2)
	mic := make(chan []float32, 2)
	sender := &recordingSender{failAt: 1}
	w, err := NewAudioWorker(AudioWorkerOptions{Screen: screen, Mic: mic, Sender: sender})
	if err != nil {
		t.Fatal(err)
	}

	screen <- constant(960, 0.1)
	mic <- constant(960, 0.1)

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want send error")
	}
	if len(sender.frames) != 1 {
		t.Errorf("sent %d frames, want 1", len(sender.frames))
	}
}

func TestAudioWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := NewAudioWorker(AudioWorkerOptions{
		Screen: make(chan []float32),
		Mic:    make(chan []float32),
		Sender: &recordingSender{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestNewAudioWorkerValidation(t *testing.T) {
	ch := make(chan []float32)
	if _, err := NewAudioWorker(AudioWorkerOptions{Mic: ch, Sender: &recordingSender{}}); err == nil {
		t.Error("missing screen channel accepted")
	}
	if _, err := NewAudioWorker(AudioWorkerOptions{Screen: ch, Mic: ch}); err == nil {
		t.Error("missing sender accepted")
	}
}

type step struct {
	msg *stt.Message
	err error
}

type scriptedReader struct {
	steps []step
}

func (s *scriptedReader) ReadMessage() (*stt.Message, error) {
	if len(s.steps) == 0 {
		return nil, io.EOF
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.msg, next.err
}

func decoded(payload string) step {
	msg, err := stt.Decode([]byte(payload))
	return step{msg: msg, err: err}
}

func runTranscript(t *testing.T, steps ...step) ([]types.TranscriptUpdate, []string, *transcript.Store, error) {
	t.Helper()
	store := transcript.NewStore()
	var updates []types.TranscriptUpdate
	var remote []string
	w, err := NewTranscriptWorker(TranscriptWorkerOptions{
		Reader:        &scriptedReader{steps: steps},
		Store:         store,
		OnUpdate:      func(u types.TranscriptUpdate) { updates = append(updates, u) },
		OnRemoteError: func(m string) { remote = append(remote, m) },
	})
	if err != nil {
		t.Fatalf("NewTranscriptWorker() error = %v", err)
	}
	return updates, remote, store, w.Run()
}

func TestTranscriptWorkerMergesSameSpeaker(t *testing.T) {
	updates, _, store, err := runTranscript(t,
		decoded(`{"message":"AddPartialTranscript","metadata":{"transcript":"hi"}}`),
		decoded(`{"message":"AddPartialTranscript","metadata":{"transcript":"hi the"}}`),
		decoded(`{"message":"AddTranscript","results":[{"alternatives":[{"content":"hi","speaker":"A"}]}]}`),
		decoded(`{"message":"AddTranscript","results":[{"alternatives":[{"content":"there","speaker":"A"}]}]}`),
		decoded(`{"message":"EndOfTranscript"}`),
		decoded(`{"message":"AddTranscript","results":[{"alternatives":[{"content":"after end"}]}]}`),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := store.Text(); got != "[A]: hi there" {
		t.Errorf("transcript = %q, want %q", got, "[A]: hi there")
	}
	if len(updates) != 4 {
		t.Fatalf("got %d updates, want 4", len(updates))
	}
	if !updates[0].IsPartial || updates[0].Text != "hi" {
		t.Errorf("first update = %+v", updates[0])
	}
	last := updates[3]
	if last.IsPartial || last.Text != "[A]: hi there" || len(last.Turns) != 1 {
		t.Errorf("last update = %+v", last)
	}
}

func TestTranscriptWorkerSkipsMalformed(t *testing.T) {
	_, _, store, err := runTranscript(t,
		decoded(`{"message":`),
		decoded(`{"message":"AddTranscript","results":[{"alternatives":[{"content":"still here","speaker":"B"}]}]}`),
		decoded(`{"message":"EndOfTranscript"}`),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := store.Text(); got != "[B]: still here" {
		t.Errorf("transcript = %q", got)
	}
}

func TestTranscriptWorkerMetadataFallback(t *testing.T) {
	_, _, store, err := runTranscript(t,
		decoded(`{"message":"AddTranscript","metadata":{"transcript":"from metadata ."},"results":[]}`),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := store.Text(); got != "from metadata." {
		t.Errorf("transcript = %q", got)
	}
}

func TestTranscriptWorkerRemoteErrorContinues(t *testing.T) {
	_, remote, store, err := runTranscript(t,
		decoded(`{"message":"Error","reason":"slow down"}`),
		decoded(`{"message":"AddTranscript","results":[{"alternatives":[{"content":"ok"}]}]}`),
		decoded(`{"message":"EndOfTranscript"}`),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(remote) != 1 || remote[0] != "slow down" {
		t.Errorf("remote errors = %v", remote)
	}
	if store.Text() != "ok" {
		t.Errorf("transcript = %q", store.Text())
	}
}

func TestTranscriptWorkerTransportError(t *testing.T) {
	boom := types.E(types.KindTransport, "read message", errors.New("reset"))
	_, _, _, err := runTranscript(t, step{err: boom})
	if !types.IsKind(err, types.KindTransport) {
		t.Errorf("Run() error = %v, want transport error", err)
	}
}
