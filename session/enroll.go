package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/mrsingh-rishi/meeting-transcriber/audio"
	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/stt"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// DefaultEnrollmentChunkSize is the PCM byte count of each enrollment frame.
const DefaultEnrollmentChunkSize = 320

// EnrollOptions configures Enroll.
type EnrollOptions struct {
	Tokens         TokenSource
	Dial           DialFunc
	RTURL          string
	Language       string
	OperatingPoint string
	MaxDelay       float64
	TargetRate     uint32
	ChunkSize      int
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Enroll streams one voice sample to the service and returns the speaker
// identifiers it reports. It fails if the service sends an error first or
// reports no identifiers.
func Enroll(ctx context.Context, opts EnrollOptions, samples []float32, sampleRate uint32) (ids []string, err error) {
	defer func() {
		if err != nil {
			opts.Metrics.RecordEnrollment("failure")
		} else {
			opts.Metrics.RecordEnrollment("success")
		}
	}()

	if len(samples) == 0 {
		return nil, types.Errorf(types.KindConfig, "enroll speaker", "no samples provided")
	}
	if sampleRate == 0 {
		return nil, types.Errorf(types.KindConfig, "enroll speaker", "sample rate must be positive")
	}
	if opts.Tokens == nil || opts.Dial == nil {
		return nil, types.Errorf(types.KindConfig, "enroll speaker", "token source and dial function are required")
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.OperatingPoint == "" {
		opts.OperatingPoint = "enhanced"
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 1.5
	}
	if opts.TargetRate == 0 {
		opts.TargetRate = audio.TargetSampleRate
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultEnrollmentChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token, err := opts.Tokens.Token(ctx)
	if err != nil {
		if !types.IsKind(err, types.KindAuth) {
			err = types.E(types.KindAuth, "create session token", err)
		}
		return nil, err
	}

	conn, err := opts.Dial(ctx, opts.RTURL, token)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// A blocked read only returns when the connection closes.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	cfg := stt.TranscriptionConfig{
		Language:       opts.Language,
		EnablePartials: false,
		OperatingPoint: opts.OperatingPoint,
		MaxDelay:       opts.MaxDelay,
		Diarization:    "speaker",
		SpeakerDiarizationConfig: &stt.SpeakerDiarizationConfig{
			GetSpeakers: true,
		},
	}
	if err := conn.Start(cfg, opts.TargetRate); err != nil {
		return nil, err
	}

	pcm := audio.Resample(samples, sampleRate, opts.TargetRate)
	for off := 0; off < len(pcm); off += opts.ChunkSize {
		end := off + opts.ChunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := conn.SendAudio(pcm[off:end]); err != nil {
			return nil, err
		}
	}
	logger.Info("enrollment audio sent", "frames", conn.Sequence(), "bytes", len(pcm))

	if err := conn.EndOfStream(); err != nil {
		return nil, err
	}

read:
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.E(types.KindTransport, "enroll speaker", ctx.Err())
			}
			if err == io.EOF {
				break read
			}
			if types.IsKind(err, types.KindProtocol) {
				logger.Warn("failed to parse enrollment message", "error", err)
				continue
			}
			return nil, err
		}

		switch msg.Kind {
		case stt.KindSpeakersResult:
			ids = msg.Speakers
			break read
		case stt.KindError:
			return nil, types.Errorf(types.KindRemote, "enroll speaker", "recognition service error: %s", msg.Error)
		case stt.KindEndOfTranscript:
			break read
		}
	}

	if len(ids) == 0 {
		return nil, types.Errorf(types.KindRemote, "enroll speaker", "recognition service did not return any speaker identifiers")
	}
	logger.Info("speaker enrolled", "identifiers", len(ids))
	return ids, nil
}
