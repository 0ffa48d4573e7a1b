package stt

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Outbound message names.
const (
	MessageStartRecognition = "StartRecognition"
	MessageEndOfStream      = "EndOfStream"
)

// Inbound message names.
const (
	MessageAddPartialTranscript = "AddPartialTranscript"
	MessageAddTranscript        = "AddTranscript"
	MessageEndOfTranscript      = "EndOfTranscript"
	MessageSpeakersResult       = "SpeakersResult"
	MessageError                = "Error"
)

// VocabEntry is an additional vocabulary hint.
type VocabEntry struct {
	Content    string   `json:"content"`
	SoundsLike []string `json:"sounds_like,omitempty"`
}

// KnownSpeaker ties a label to identifiers obtained from an enrollment.
type KnownSpeaker struct {
	Label              string   `json:"label"`
	SpeakerIdentifiers []string `json:"speaker_identifiers"`
}

// SpeakerDiarizationConfig either asks the service to return speaker
// identifiers or tells it which speakers to expect.
type SpeakerDiarizationConfig struct {
	GetSpeakers bool           `json:"get_speakers,omitempty"`
	Speakers    []KnownSpeaker `json:"speakers,omitempty"`
}

// TranscriptionConfig is the session configuration sent with StartRecognition.
// Absent optional fields are omitted from the wire message, never sent as null.
type TranscriptionConfig struct {
	Language                 string                    `json:"language"`
	EnablePartials           bool                      `json:"enable_partials"`
	OperatingPoint           string                    `json:"operating_point"`
	MaxDelay                 float64                   `json:"max_delay"`
	Diarization              string                    `json:"diarization,omitempty"`
	AdditionalVocab          []VocabEntry              `json:"additional_vocab,omitempty"`
	SpeakerDiarizationConfig *SpeakerDiarizationConfig `json:"speaker_diarization_config,omitempty"`
}

// AudioFormat describes the binary frames that follow StartRecognition.
type AudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate uint32 `json:"sample_rate"`
}

type startRecognition struct {
	Message             string              `json:"message"`
	TranscriptionConfig TranscriptionConfig `json:"transcription_config"`
	AudioFormat         AudioFormat         `json:"audio_format"`
}

type endOfStream struct {
	Message   string `json:"message"`
	LastSeqNo uint32 `json:"last_seq_no"`
}

// wireMessage is the union of every inbound shape we read.
type wireMessage struct {
	Message  string        `json:"message"`
	Results  []wireResult  `json:"results"`
	Error    string        `json:"error"`
	Reason   string        `json:"reason"`
	Metadata *wireMetadata `json:"metadata"`
	Speakers []wireSpeaker `json:"speakers"`
}

type wireMetadata struct {
	Transcript string `json:"transcript"`
}

type wireResult struct {
	Alternatives []wireAlternative `json:"alternatives"`
}

type wireAlternative struct {
	Content *Content `json:"content"`
	Text    *string  `json:"text"`
	Speaker string   `json:"speaker"`
}

type wireSpeaker struct {
	Label              string   `json:"label"`
	SpeakerIdentifiers []string `json:"speaker_identifiers"`
}

// Content is the text of an alternative. Older responses send a plain
// string, newer ones an array of parts. Exactly one of the two is set.
type Content struct {
	Simple *string
	Parts  []ContentPart
}

// UnmarshalJSON tries a string first, then an array of parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Simple = &s
		c.Parts = nil
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.Errorf("content is neither a string nor an array of parts: %s", truncate(data, 64))
	}
	c.Simple = nil
	c.Parts = parts
	return nil
}

// ContentPart is one element of a content array: either a bare string or an
// object carrying content or text.
type ContentPart struct {
	Plain   *string
	Type    string
	Content string
	Text    string
}

// UnmarshalJSON tries a string first, then an object.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ContentPart{Plain: &s}
		return nil
	}

	var rich struct {
		Type    string `json:"type"`
		Content string `json:"content"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(data, &rich); err != nil {
		return errors.Errorf("content part is neither a string nor an object: %s", truncate(data, 64))
	}
	*p = ContentPart{Type: rich.Type, Content: rich.Content, Text: rich.Text}
	return nil
}

// Value returns the part's text: the plain string, else the first non-empty
// of content and text.
func (p ContentPart) Value() string {
	if p.Plain != nil {
		return *p.Plain
	}
	if p.Content != "" {
		return p.Content
	}
	return p.Text
}

func truncate(data []byte, n int) []byte {
	data = bytes.TrimSpace(data)
	if len(data) > n {
		return data[:n]
	}
	return data
}
