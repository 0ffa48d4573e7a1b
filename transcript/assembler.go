// Package transcript rebuilds a speaker-attributed transcript from the
// fragments the recognition service finalizes one message at a time.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mrsingh-rishi/meeting-transcriber/model"
)

// NormalizeSpeaker trims a speaker label. An empty result means no speaker.
func NormalizeSpeaker(raw string) string {
	return strings.TrimSpace(raw)
}

// Append merges text into turns. Empty text is dropped. When the last turn
// has the same speaker the text is joined onto it, otherwise a new turn starts.
func Append(turns []model.TranscriptTurn, speaker, text string) []model.TranscriptTurn {
	speaker = NormalizeSpeaker(speaker)
	text = strings.TrimSpace(text)
	if text == "" {
		return turns
	}

	if n := len(turns); n > 0 && turns[n-1].Speaker == speaker {
		last := &turns[n-1]
		if last.Text != "" && !endsWithSpace(last.Text) {
			last.Text += " "
		}
		last.Text += text
		return turns
	}

	return append(turns, model.TranscriptTurn{Speaker: speaker, Text: text})
}

// Render joins turns with a blank line between them, prefixing labelled
// turns with "[speaker]: ".
func Render(turns []model.TranscriptTurn) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if turn.Speaker != "" {
			b.WriteString("[")
			b.WriteString(turn.Speaker)
			b.WriteString("]: ")
		}
		b.WriteString(turn.Text)
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

// Assembler accumulates turns for one session. It is used from the single
// goroutine that reads recognition results.
type Assembler struct {
	turns []model.TranscriptTurn
}

// Append adds a fragment and reports whether it changed the transcript.
func (a *Assembler) Append(speaker, text string) bool {
	before := len(a.turns)
	var lastLen int
	if before > 0 {
		lastLen = len(a.turns[before-1].Text)
	}
	a.turns = Append(a.turns, speaker, text)
	return len(a.turns) != before || (before > 0 && len(a.turns[before-1].Text) != lastLen)
}

// Turns returns a copy of the accumulated turns.
func (a *Assembler) Turns() []model.TranscriptTurn {
	out := make([]model.TranscriptTurn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Render renders the accumulated turns.
func (a *Assembler) Render() string {
	return Render(a.turns)
}

// Len returns the number of turns.
func (a *Assembler) Len() int {
	return len(a.turns)
}
