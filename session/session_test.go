package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/mocks"
	"github.com/mrsingh-rishi/meeting-transcriber/output"
	"github.com/mrsingh-rishi/meeting-transcriber/power"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// fakeRT is a scripted recognition service.
type fakeRT struct {
	srv *httptest.Server

	mu      sync.Mutex
	start   map[string]interface{}
	binary  int
	lastSeq float64
	gotEOS  bool
}

// newFakeRT serves one connection at a time. Once the start message has
// been read, afterStart may take over the connection; returning false
// continues with the default loop, which answers EndOfStream with replies.
func newFakeRT(t *testing.T, replies []string, afterStart func(*websocket.Conn) bool) *fakeRT {
	t.Helper()
	f := &fakeRT{}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("jwt") == "" {
			http.Error(w, "missing jwt", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				f.mu.Lock()
				f.binary++
				f.mu.Unlock()
				continue
			}

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			switch msg["message"] {
			case "StartRecognition":
				f.mu.Lock()
				f.start = msg
				f.mu.Unlock()
				if afterStart != nil && afterStart(conn) {
					return
				}
			case "EndOfStream":
				f.mu.Lock()
				f.gotEOS = true
				f.lastSeq, _ = msg["last_seq_no"].(float64)
				f.mu.Unlock()
				for _, reply := range replies {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
				}
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRT) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRT) frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.binary
}

type eventRecorder struct {
	mu     sync.Mutex
	events []output.Event
}

func (r *eventRecorder) Emit(e output.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func (r *eventRecorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func frame(v float32) []float32 {
	out := make([]float32, 480)
	for i := range out {
		out[i] = v
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

var finalReplies = []string{
	`{"message":"AddPartialTranscript","metadata":{"transcript":"hi"}}`,
	`{"message":"AddTranscript","results":[{"alternatives":[{"content":"hi","speaker":"A"}]}]}`,
	`{"message":"AddTranscript","results":[{"alternatives":[{"content":"there","speaker":"A"}]}]}`,
	`{"message":"EndOfTranscript"}`,
}

func testTiming() Timing {
	return Timing{DrainGrace: 20 * time.Millisecond, DrainTimeout: 2 * time.Second}
}

func TestSessionStreamsAndDrains(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenSource(ctrl)
	tokens.EXPECT().Token(gomock.Any()).Return("tok", nil).Times(1)
	locker := mocks.NewMockWakeLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any()).Return(power.Handle("h1"), nil).Times(1)
	locker.EXPECT().Release(power.Handle("h1")).Return(nil).Times(1)

	rt := newFakeRT(t, finalReplies, nil)
	sink := &eventRecorder{}

	s, err := New(Options{
		Config:     Config{Language: "en", MaxDelay: 1.5, Diarization: "speaker", RTURL: rt.url()},
		Timing:     testTiming(),
		Tokens:     tokens,
		Dial:       DialSTT(nil),
		WakeLocker: locker,
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateStreaming {
		t.Fatalf("State() = %v, want streaming", s.State())
	}

	for i := 0; i < 5; i++ {
		if err := s.PushScreen(frame(0.5)); err != nil {
			t.Fatalf("PushScreen() error = %v", err)
		}
		if err := s.PushMic(frame(0.25)); err != nil {
			t.Fatalf("PushMic() error = %v", err)
		}
	}
	waitFor(t, "five frames", func() bool { return rt.frames() == 5 })

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if got := s.Transcript(); got != "[A]: hi there" {
		t.Errorf("Transcript() = %q, want %q", got, "[A]: hi there")
	}

	rt.mu.Lock()
	if !rt.gotEOS || rt.lastSeq != 5 {
		t.Errorf("EndOfStream seen = %v, last_seq_no = %v, want 5", rt.gotEOS, rt.lastSeq)
	}
	cfg := rt.start["transcription_config"].(map[string]interface{})
	if cfg["diarization"] != "speaker" || cfg["language"] != "en" {
		t.Errorf("transcription_config = %v", cfg)
	}
	rt.mu.Unlock()

	names := sink.names()
	if names[len(names)-1] != output.EventRecordingEnded {
		t.Errorf("last event = %s, want recording-ended", names[len(names)-1])
	}
	if sink.count(output.EventRecordingError) != 0 {
		t.Errorf("events = %v, want no recording-error", names)
	}
	if sink.count(output.EventTranscriptUpdate) != 3 {
		t.Errorf("transcript updates = %d, want 3", sink.count(output.EventTranscriptUpdate))
	}
	if sink.count(output.EventAudioLevel) == 0 {
		t.Error("no audio-level event emitted")
	}

	if err := s.PushMic(frame(0.1)); err != ErrNotRecording {
		t.Errorf("PushMic() after close error = %v, want ErrNotRecording", err)
	}
}

func TestSessionAuthFailureNeverDials(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenSource(ctrl)
	tokens.EXPECT().Token(gomock.Any()).Return("", errors.New("status 401")).Times(1)
	locker := mocks.NewMockWakeLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any()).Return(power.Handle("h1"), nil).Times(1)
	locker.EXPECT().Release(power.Handle("h1")).Return(nil).Times(1)

	dials := 0
	sink := &eventRecorder{}
	s, err := New(Options{
		Config: Config{Language: "en", MaxDelay: 1},
		Timing: testTiming(),
		Tokens: tokens,
		Dial: func(context.Context, string, string) (Transport, error) {
			dials++
			return nil, errors.New("should not dial")
		},
		WakeLocker: locker,
		Sink:       sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Start(context.Background())
	if !types.IsKind(err, types.KindAuth) {
		t.Fatalf("Start() error = %v, want auth error", err)
	}
	waitDone(t, s)

	if dials != 0 {
		t.Errorf("dialed %d times, want 0", dials)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	want := []string{output.EventRecordingError, output.EventRecordingEnded}
	if got := sink.names(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("restarting a failed session succeeded")
	}
}

func TestSessionDialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenSource(ctrl)
	tokens.EXPECT().Token(gomock.Any()).Return("tok", nil)

	s, err := New(Options{
		Config: Config{Language: "en", MaxDelay: 1, RTURL: "ws://127.0.0.1:1/v2"},
		Timing: testTiming(),
		Tokens: tokens,
		Dial:   DialSTT(nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Start(context.Background())
	if !types.IsKind(err, types.KindTransport) {
		t.Fatalf("Start() error = %v, want transport error", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
}

func TestSessionTransportErrorWhileStreaming(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenSource(ctrl)
	tokens.EXPECT().Token(gomock.Any()).Return("tok", nil)
	locker := mocks.NewMockWakeLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any()).Return(power.Handle("h1"), nil).Times(1)
	locker.EXPECT().Release(power.Handle("h1")).Return(nil).Times(1)

	rt := newFakeRT(t, nil, func(conn *websocket.Conn) bool {
		// drop the TCP connection without a close frame
		_ = conn.UnderlyingConn().Close()
		return true
	})
	sink := &eventRecorder{}

	s, err := New(Options{
		Config:     Config{Language: "en", MaxDelay: 1, RTURL: rt.url()},
		Timing:     testTiming(),
		Tokens:     tokens,
		Dial:       DialSTT(nil),
		WakeLocker: locker,
		Sink:       sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if !types.IsKind(s.Err(), types.KindTransport) {
		t.Errorf("Err() = %v, want transport error", s.Err())
	}
	names := sink.names()
	if sink.count(output.EventRecordingError) != 1 {
		t.Errorf("events = %v, want exactly one recording-error", names)
	}
	if len(names) < 2 || names[len(names)-2] != output.EventRecordingError || names[len(names)-1] != output.EventRecordingEnded {
		t.Errorf("events = %v, want recording-error then recording-ended last", names)
	}
	if err := s.Stop(context.Background()); !types.IsKind(err, types.KindTransport) {
		t.Errorf("Stop() after failure error = %v", err)
	}
}

func TestSessionStopIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := &eventRecorder{}
	s, err := New(Options{
		Config: Config{Language: "en", MaxDelay: 1},
		Tokens: mocks.NewMockTokenSource(ctrl),
		Dial:   DialSTT(nil),
		Sink:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PushScreen(frame(0.1)); err != ErrNotRecording {
		t.Errorf("PushScreen() on idle session error = %v, want ErrNotRecording", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	waitDone(t, s)
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if got := sink.names(); len(got) != 1 || got[0] != output.EventRecordingEnded {
		t.Errorf("events = %v, want a single recording-ended", got)
	}
}

func TestSessionLevelNotEmittedAfterStreaming(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := &eventRecorder{}
	s, err := New(Options{
		Config: Config{Language: "en", MaxDelay: 1},
		Tokens: mocks.NewMockTokenSource(ctrl),
		Dial:   DialSTT(nil),
		Sink:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()
	s.emitLevel(frame(0.5))
	if n := sink.count(output.EventAudioLevel); n != 1 {
		t.Fatalf("audio-level events while streaming = %d, want 1", n)
	}

	// A push that passed the active check before finish must stay silent.
	s.finish(nil)
	s.level = output.NewThrottle(0)
	s.emitLevel(frame(0.5))

	names := sink.names()
	if names[len(names)-1] != output.EventRecordingEnded {
		t.Errorf("last event = %s, want recording-ended (events %v)", names[len(names)-1], names)
	}
	if n := sink.count(output.EventAudioLevel); n != 1 {
		t.Errorf("audio-level events = %d, want 1", n)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Language: "en", MaxDelay: 1}, true},
		{"no language", Config{MaxDelay: 1}, false},
		{"zero delay", Config{Language: "en"}, false},
		{"empty vocab", Config{Language: "en", MaxDelay: 1, AdditionalVocab: nil}, true},
		{"speaker without ids", Config{Language: "en", MaxDelay: 1, Speaker: &SpeakerProfile{Label: "Me"}}, false},
		{"speaker without label", Config{Language: "en", MaxDelay: 1, Speaker: &SpeakerProfile{SpeakerIdentifiers: []string{"x"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !types.IsKind(err, types.KindConfig) {
				t.Errorf("Validate() error = %v, want config error", err)
			}
		})
	}
}

func TestConfigTranscriptionConfig(t *testing.T) {
	tc := Config{
		Language:    "en",
		MaxDelay:    1.5,
		Diarization: "none",
		Speaker:     &SpeakerProfile{Label: "Me", SpeakerIdentifiers: []string{"id1"}},
	}.TranscriptionConfig()

	if tc.Diarization != "" {
		t.Errorf("Diarization = %q, want omitted for none", tc.Diarization)
	}
	if tc.SpeakerDiarizationConfig == nil || len(tc.SpeakerDiarizationConfig.Speakers) != 1 {
		t.Fatalf("SpeakerDiarizationConfig = %+v", tc.SpeakerDiarizationConfig)
	}
	if tc.SpeakerDiarizationConfig.GetSpeakers {
		t.Error("GetSpeakers set for a known-speaker session")
	}
}
