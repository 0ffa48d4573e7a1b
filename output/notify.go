package output

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
)

const appName = "Meeting Transcriber"

const maxNotifyLength = 100

// notifyFunc is swapped out in tests.
var notifyFunc = beeep.Notify

// Notifier shows a desktop notification when a recording ends or fails.
// Other events are ignored.
type Notifier struct {
	enabled bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(enabled bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{enabled: enabled, logger: logger}
}

func (n *Notifier) Emit(e Event) {
	if !n.enabled {
		return
	}
	switch p := e.Payload.(type) {
	case RecordingError:
		n.notify("Recording error", p.Message)
	case RecordingEnded:
		if p.Failed {
			return
		}
		n.notify("Recording finished", summarize(p))
	}
}

func summarize(p RecordingEnded) string {
	if p.Transcript == "" {
		return "No speech was transcribed."
	}
	text := p.Transcript
	if len(text) > maxNotifyLength {
		cut := maxNotifyLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if len(p.Turns) > 1 {
		return fmt.Sprintf("%d turns. %s", len(p.Turns), text)
	}
	return text
}

func (n *Notifier) notify(title, message string) {
	go func() {
		if err := notifyFunc(appName+": "+title, message, ""); err != nil {
			n.logger.Debug("desktop notification failed", "error", err)
		}
	}()
}
