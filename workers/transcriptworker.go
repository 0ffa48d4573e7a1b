package workers

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/stt"
	"github.com/mrsingh-rishi/meeting-transcriber/transcript"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// MessageReader yields decoded recognition messages.
type MessageReader interface {
	ReadMessage() (*stt.Message, error)
}

// TranscriptWorker is the inbound half of a session. It is the only writer
// of the session's transcript.
type TranscriptWorker struct {
	reader        MessageReader
	assembler     *transcript.Assembler
	store         *transcript.Store
	onUpdate      func(types.TranscriptUpdate)
	onRemoteError func(string)
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// TranscriptWorkerOptions configures NewTranscriptWorker.
type TranscriptWorkerOptions struct {
	Reader        MessageReader
	Store         *transcript.Store
	OnUpdate      func(types.TranscriptUpdate)
	OnRemoteError func(message string)
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

func NewTranscriptWorker(opts TranscriptWorkerOptions) (*TranscriptWorker, error) {
	// Params Validation
	if opts.Reader == nil {
		return nil, fmt.Errorf("message reader is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("transcript store is required")
	}
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(types.TranscriptUpdate) {}
	}
	if opts.OnRemoteError == nil {
		opts.OnRemoteError = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TranscriptWorker{
		reader:        opts.Reader,
		assembler:     &transcript.Assembler{},
		store:         opts.Store,
		onUpdate:      opts.OnUpdate,
		onRemoteError: opts.OnRemoteError,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}, nil
}

// Run reads until EndOfTranscript or the connection closes. Undecodable
// messages are logged and skipped. A normal close returns nil; any other
// read failure is returned.
func (tw *TranscriptWorker) Run() error {
	for {
		msg, err := tw.reader.ReadMessage()
		if err != nil {
			if err == io.EOF {
				tw.logger.Info("recognition connection closed before end of transcript")
				return nil
			}
			if types.IsKind(err, types.KindProtocol) {
				tw.metrics.RecordProtocolError()
				tw.logger.Warn("failed to parse recognition message", "error", err)
				continue
			}
			return err
		}

		tw.metrics.RecordMessage(msg.Kind.String())

		switch msg.Kind {
		case stt.KindError:
			tw.metrics.RecordRemoteError()
			tw.logger.Error("recognition service error", "error", msg.Error)
			tw.onRemoteError(msg.Error)
		case stt.KindPartial:
			if msg.Text != "" {
				tw.logger.Debug("got partial transcription", "text", msg.Text)
				tw.onUpdate(types.TranscriptUpdate{Text: msg.Text, IsPartial: true})
			}
		case stt.KindFinal:
			tw.handleFinal(msg)
		case stt.KindSpeakersResult:
			tw.logger.Info("got speaker identifiers", "count", len(msg.Speakers))
		case stt.KindEndOfTranscript:
			tw.logger.Info("end of transcript", "turns", tw.assembler.Len())
			return nil
		default:
			tw.logger.Debug("ignoring recognition message", "message", msg.Name)
		}
	}
}

func (tw *TranscriptWorker) handleFinal(msg *stt.Message) {
	appended := false
	for _, seg := range msg.Segments {
		if tw.assembler.Append(seg.Speaker, seg.Text) {
			appended = true
		}
	}
	if !appended && msg.MetadataText != "" {
		appended = tw.assembler.Append("", msg.MetadataText)
	}
	if !appended {
		return
	}

	text := tw.assembler.Render()
	tw.store.Set(text, tw.assembler.Turns())
	tw.logger.Debug("got final transcription", "turns", tw.assembler.Len())
	tw.onUpdate(types.TranscriptUpdate{Text: text, IsPartial: false, Turns: tw.assembler.Turns()})
}
