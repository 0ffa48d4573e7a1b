package stt

import (
	"encoding/json"
	"strings"

	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// Kind discriminates a decoded inbound Message.
type Kind int

const (
	KindOther Kind = iota
	KindPartial
	KindFinal
	KindEndOfTranscript
	KindSpeakersResult
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	case KindEndOfTranscript:
		return "end_of_transcript"
	case KindSpeakersResult:
		return "speakers_result"
	case KindError:
		return "error"
	default:
		return "other"
	}
}

// Segment is the first alternative of one result: an optional speaker and
// its cleaned text.
type Segment struct {
	Speaker string
	Text    string
}

// Message is a decoded inbound frame.
type Message struct {
	Kind Kind
	// Name is the raw message discriminator.
	Name string
	// Text is the transcript text extracted from the message, cleaned.
	Text string
	// MetadataText is the cleaned metadata transcript, if any.
	MetadataText string
	// Segments holds one entry per result with a usable first alternative.
	Segments []Segment
	// Speakers holds the non-empty identifiers of a SpeakersResult.
	Speakers []string
	// Error is the service's error text for KindError.
	Error string
}

var punctuationFix = strings.NewReplacer(
	" .", ".",
	" ,", ",",
	" !", "!",
	" ?", "?",
	" :", ":",
	" ;", ";",
	" '", "'",
	` "`, `"`,
)

// CleanPunctuation removes a single space in front of . , ! ? : ; ' and ".
func CleanPunctuation(text string) string {
	return punctuationFix.Replace(text)
}

// marshal is swapped out in tests.
var marshal = json.Marshal

// EncodeStartRecognition builds the session start message.
func EncodeStartRecognition(cfg TranscriptionConfig, sampleRate uint32) ([]byte, error) {
	data, err := marshal(startRecognition{
		Message:             MessageStartRecognition,
		TranscriptionConfig: cfg,
		AudioFormat: AudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
	})
	if err != nil {
		return nil, types.E(types.KindConfig, "encode start message", err)
	}
	return data, nil
}

// EncodeEndOfStream builds the end message naming the last sequence number.
func EncodeEndOfStream(lastSeqNo uint32) ([]byte, error) {
	data, err := marshal(endOfStream{Message: MessageEndOfStream, LastSeqNo: lastSeqNo})
	if err != nil {
		return nil, types.E(types.KindConfig, "encode end message", err)
	}
	return data, nil
}

// Decode parses one inbound text frame. Undecodable payloads come back as
// protocol errors which callers skip.
func Decode(data []byte) (*Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, types.E(types.KindProtocol, "decode message", err)
	}

	msg := &Message{Name: wire.Message}

	errText := wire.Error
	if errText == "" && wire.Message == MessageError {
		errText = wire.Reason
		if errText == "" {
			errText = "unspecified error"
		}
	}
	if errText != "" {
		msg.Kind = KindError
		msg.Error = errText
		return msg, nil
	}

	if wire.Metadata != nil {
		if t := strings.TrimSpace(wire.Metadata.Transcript); t != "" {
			msg.MetadataText = CleanPunctuation(t)
		}
	}

	switch wire.Message {
	case MessageAddPartialTranscript:
		msg.Kind = KindPartial
		msg.Segments = segments(wire.Results)
		msg.Text = extractText(msg)
	case MessageAddTranscript:
		msg.Kind = KindFinal
		msg.Segments = segments(wire.Results)
		msg.Text = extractText(msg)
	case MessageEndOfTranscript:
		msg.Kind = KindEndOfTranscript
	case MessageSpeakersResult:
		msg.Kind = KindSpeakersResult
		for _, sp := range wire.Speakers {
			for _, id := range sp.SpeakerIdentifiers {
				if id != "" {
					msg.Speakers = append(msg.Speakers, id)
				}
			}
		}
	default:
		msg.Kind = KindOther
	}

	return msg, nil
}

// extractText prefers the metadata transcript and falls back to joining the
// first alternative of every result.
func extractText(msg *Message) string {
	if msg.MetadataText != "" {
		return msg.MetadataText
	}

	parts := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		parts = append(parts, seg.Text)
	}
	joined := CleanPunctuation(strings.Join(parts, " "))
	if strings.TrimSpace(joined) == "" {
		return ""
	}
	return joined
}

func segments(results []wireResult) []Segment {
	var out []Segment
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text, ok := alt.text()
		if !ok {
			continue
		}
		out = append(out, Segment{Speaker: alt.Speaker, Text: text})
	}
	return out
}

// text resolves an alternative's text: an explicit text field wins, then a
// plain content string, then the concatenated content parts.
func (a wireAlternative) text() (string, bool) {
	if a.Text != nil {
		cleaned := CleanPunctuation(*a.Text)
		if strings.TrimSpace(cleaned) == "" {
			return "", false
		}
		return cleaned, true
	}

	if a.Content == nil {
		return "", false
	}

	if a.Content.Simple != nil {
		trimmed := strings.TrimSpace(*a.Content.Simple)
		if trimmed == "" {
			return "", false
		}
		return CleanPunctuation(trimmed), true
	}

	var b strings.Builder
	for _, part := range a.Content.Parts {
		b.WriteString(part.Value())
	}
	cleaned := CleanPunctuation(b.String())
	if strings.TrimSpace(cleaned) == "" {
		return "", false
	}
	return cleaned, true
}
