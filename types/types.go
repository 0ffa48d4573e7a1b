package types

import "github.com/mrsingh-rishi/meeting-transcriber/model"

// TranscriptUpdate is the payload of a transcript-update event.
// Partial updates carry only the provisional text; final updates carry the
// full rendered transcript together with its turns.
type TranscriptUpdate struct {
	Text      string                 `json:"text"`
	IsPartial bool                   `json:"is_partial"`
	Turns     []model.TranscriptTurn `json:"turns,omitempty"`
}

// TranscriptSnapshot is what a transcript query returns.
type TranscriptSnapshot struct {
	Text  string                 `json:"text"`
	Turns []model.TranscriptTurn `json:"turns"`
}
