package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/config"
	"github.com/mrsingh-rishi/meeting-transcriber/stt"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// ErrNotRecording is returned by operations that need an active session.
var ErrNotRecording = errors.New("not currently recording")

// ErrNotCapturing is returned when stopping a capture preview that is not running.
var ErrNotCapturing = errors.New("capture preview is not running")

// ErrCaptureBusy is returned when the capture source belongs to a recording.
var ErrCaptureBusy = errors.New("capture source is in use by the current recording")

// ErrNoCapture means no capture backend is configured.
var ErrNoCapture = errors.New("no capture source configured")

//go:generate mockgen -destination=../mocks/mock_tokensource.go -package=mocks github.com/mrsingh-rishi/meeting-transcriber/session TokenSource

// TokenSource exchanges long-lived credentials for a session token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Transport is one recognition connection.
type Transport interface {
	Start(cfg stt.TranscriptionConfig, sampleRate uint32) error
	SendAudio(pcm []byte) (uint32, error)
	Sequence() uint32
	EndOfStream() error
	ReadMessage() (*stt.Message, error)
	CloseWrite() error
	Close() error
}

// DialFunc opens a Transport to baseURL authorized by token.
type DialFunc func(ctx context.Context, baseURL, token string) (Transport, error)

// DialSTT returns a DialFunc backed by stt.Dial.
func DialSTT(logger *slog.Logger) DialFunc {
	return func(ctx context.Context, baseURL, token string) (Transport, error) {
		c, err := stt.Dial(ctx, baseURL, token, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SpeakerProfile is a known speaker obtained from an earlier enrollment.
type SpeakerProfile struct {
	Label              string   `json:"label"`
	SpeakerIdentifiers []string `json:"speaker_identifiers"`
}

// Config is fixed for the lifetime of a session.
type Config struct {
	Language        string
	EnablePartials  bool
	OperatingPoint  string
	MaxDelay        float64
	Diarization     string
	AdditionalVocab []stt.VocabEntry
	Speaker         *SpeakerProfile
	RTURL           string
}

// ConfigFromSpeech fills a Config from the speech section of the process
// configuration.
func ConfigFromSpeech(sc config.SpeechConfig) Config {
	return Config{
		Language:       sc.Language,
		EnablePartials: sc.EnablePartials,
		OperatingPoint: sc.OperatingPoint,
		MaxDelay:       sc.MaxDelay,
		Diarization:    sc.Diarization,
		RTURL:          sc.RTURL,
	}
}

// Validate rejects configurations the service would refuse.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return types.Errorf(types.KindConfig, "validate session config", "language is required")
	}
	if c.MaxDelay <= 0 {
		return types.Errorf(types.KindConfig, "validate session config", "max delay must be positive, got %v", c.MaxDelay)
	}
	for i, v := range c.AdditionalVocab {
		if strings.TrimSpace(v.Content) == "" {
			return types.Errorf(types.KindConfig, "validate session config", "additional vocabulary entry %d has no content", i)
		}
	}
	if c.Speaker != nil {
		if strings.TrimSpace(c.Speaker.Label) == "" {
			return types.Errorf(types.KindConfig, "validate session config", "speaker profile label is required")
		}
		if len(c.Speaker.SpeakerIdentifiers) == 0 {
			return types.Errorf(types.KindConfig, "validate session config", "speaker profile %q has no identifiers", c.Speaker.Label)
		}
	}
	return nil
}

// TranscriptionConfig converts c to the wire configuration.
func (c Config) TranscriptionConfig() stt.TranscriptionConfig {
	tc := stt.TranscriptionConfig{
		Language:        c.Language,
		EnablePartials:  c.EnablePartials,
		OperatingPoint:  c.OperatingPoint,
		MaxDelay:        c.MaxDelay,
		AdditionalVocab: c.AdditionalVocab,
	}
	if c.Diarization != "none" {
		tc.Diarization = c.Diarization
	}
	if c.Speaker != nil {
		tc.SpeakerDiarizationConfig = &stt.SpeakerDiarizationConfig{
			Speakers: []stt.KnownSpeaker{{
				Label:              c.Speaker.Label,
				SpeakerIdentifiers: c.Speaker.SpeakerIdentifiers,
			}},
		}
	}
	return tc
}

// Timing holds the audio and shutdown parameters of a session.
type Timing struct {
	SourceRate   uint32
	TargetRate   uint32
	FrameSize    int
	DrainGrace   time.Duration
	DrainTimeout time.Duration
}

// TimingFromAudio fills Timing from the audio section of the process
// configuration.
func TimingFromAudio(ac config.AudioConfig) Timing {
	return Timing{
		SourceRate:   ac.SourceRate,
		TargetRate:   ac.TargetRate,
		FrameSize:    ac.FrameSize,
		DrainGrace:   ac.DrainGrace,
		DrainTimeout: ac.DrainTimeout,
	}
}

func (t Timing) withDefaults() Timing {
	if t.SourceRate == 0 {
		t.SourceRate = 48000
	}
	if t.TargetRate == 0 {
		t.TargetRate = 16000
	}
	if t.FrameSize <= 0 {
		t.FrameSize = 480
	}
	if t.DrainGrace < 0 {
		t.DrainGrace = 0
	}
	if t.DrainTimeout <= 0 {
		t.DrainTimeout = 10 * time.Second
	}
	return t
}
