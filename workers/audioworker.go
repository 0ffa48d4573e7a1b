package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrsingh-rishi/meeting-transcriber/audio"
	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/model"
)

// AudioSender writes one PCM frame and returns its sequence number.
type AudioSender interface {
	SendAudio(pcm []byte) (uint32, error)
}

// AudioWorker is the outbound half of a session. It is the only goroutine
// touching the mixer and the only writer of audio frames.
type AudioWorker struct {
	ScreenInputChannel <-chan []float32
	MicInputChannel    <-chan []float32
	sender             AudioSender
	muted              func() bool
	mixer              *audio.Mixer
	sourceRate         uint32
	targetRate         uint32
	metrics            *metrics.Metrics
	logger             *slog.Logger
}

// AudioWorkerOptions configures NewAudioWorker.
type AudioWorkerOptions struct {
	Screen     <-chan []float32
	Mic        <-chan []float32
	Sender     AudioSender
	Muted      func() bool
	FrameSize  int
	SourceRate uint32
	TargetRate uint32
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func NewAudioWorker(opts AudioWorkerOptions) (*AudioWorker, error) {
	// Params Validation
	if opts.Screen == nil {
		return nil, fmt.Errorf("screen input channel is required")
	}
	if opts.Mic == nil {
		return nil, fmt.Errorf("microphone input channel is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("audio sender is required")
	}
	if opts.Muted == nil {
		opts.Muted = func() bool { return false }
	}
	if opts.SourceRate == 0 {
		opts.SourceRate = audio.SourceSampleRate
	}
	if opts.TargetRate == 0 {
		opts.TargetRate = audio.TargetSampleRate
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AudioWorker{
		ScreenInputChannel: opts.Screen,
		MicInputChannel:    opts.Mic,
		sender:             opts.Sender,
		muted:              opts.Muted,
		mixer:              audio.NewMixer(opts.FrameSize),
		sourceRate:         opts.SourceRate,
		targetRate:         opts.TargetRate,
		metrics:            opts.Metrics,
		logger:             opts.Logger,
	}, nil
}

// Run mixes, resamples and sends frames until ctx is cancelled or both
// inputs are closed. It returns the first send error.
func (aw *AudioWorker) Run(ctx context.Context) error {
	screen, mic := aw.ScreenInputChannel, aw.MicInputChannel
	for screen != nil || mic != nil {
		select {
		case <-ctx.Done():
			return nil
		case samples, ok := <-screen:
			if !ok {
				screen = nil
				continue
			}
			aw.mixer.Push(model.SourceScreen, samples)
		case samples, ok := <-mic:
			if !ok {
				mic = nil
				continue
			}
			aw.mixer.Push(model.SourceMicrophone, samples)
		}

		if err := aw.flush(); err != nil {
			return err
		}
	}
	return nil
}

func (aw *AudioWorker) flush() error {
	for {
		frame, ok := aw.mixer.Drain()
		if !ok {
			return nil
		}

		pcm := audio.Resample(frame, aw.sourceRate, aw.targetRate)
		muted := aw.muted()
		if muted {
			pcm = audio.Silence(pcm)
		}

		seq, err := aw.sender.SendAudio(pcm)
		if err != nil {
			aw.logger.Error("audio write failed, stopping audio processing", "error", err)
			return err
		}
		aw.metrics.RecordFrameSent(len(pcm), muted)
		if seq%500 == 0 {
			aw.logger.Debug("streaming audio", "seq_no", seq, "muted", muted)
		}
	}
}
