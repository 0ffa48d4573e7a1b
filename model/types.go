package model

// Source identifies which capture path produced an AudioChunk.
type Source string

const (
	SourceScreen     Source = "screen"
	SourceMicrophone Source = "microphone"
)

// AudioChunk represents a chunk of mono float samples pushed by a capture source.
// Samples are nominally in [-1.0, 1.0]; the length is whatever the producer had ready.
type AudioChunk struct {
	Source  Source
	Samples []float32
}

// TranscriptTurn is a contiguous run of text attributed to one speaker.
// An empty Speaker means the service did not label the fragment.
type TranscriptTurn struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}
