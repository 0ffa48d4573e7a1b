package transcript

import (
	"sync"

	"github.com/mrsingh-rishi/meeting-transcriber/model"
	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// Store is the shared snapshot of a session's transcript. The read loop is
// the only writer; queries read it from other goroutines. The lock is never
// held across I/O.
type Store struct {
	mu    sync.RWMutex
	text  string
	turns []model.TranscriptTurn
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Reset clears the transcript.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = ""
	s.turns = nil
}

// Set replaces the snapshot. turns must not be mutated by the caller afterwards.
func (s *Store) Set(text string, turns []model.TranscriptTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.turns = turns
}

// Text returns the rendered transcript.
func (s *Store) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Snapshot returns the rendered transcript and a copy of its turns.
func (s *Store) Snapshot() types.TranscriptSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]model.TranscriptTurn, len(s.turns))
	copy(turns, s.turns)
	return types.TranscriptSnapshot{Text: s.text, Turns: turns}
}
