// Package power models idle-sleep suppression as an acquire/release
// capability. Platform bindings live outside this module; the recorder only
// depends on WakeLocker.
package power

import (
	"log/slog"
	"sync"
)

// Handle identifies one acquisition.
type Handle string

//go:generate mockgen -destination=../mocks/mock_wakelocker.go -package=mocks github.com/mrsingh-rishi/meeting-transcriber/power WakeLocker

// WakeLocker keeps the machine awake while a recording is active. Both
// operations are best-effort: a failure is logged and never aborts a session.
type WakeLocker interface {
	Acquire(reason string) (Handle, error)
	Release(h Handle) error
}

// Nop is a WakeLocker that does nothing.
type Nop struct{}

func (Nop) Acquire(reason string) (Handle, error) { return Handle(reason), nil }
func (Nop) Release(Handle) error                 { return nil }

// Guard holds one acquisition and releases it at most once.
type Guard struct {
	locker WakeLocker
	handle Handle
	held   bool
	logger *slog.Logger
	once   sync.Once
}

// Acquire takes the lock and returns a Guard for it. The returned Guard is
// never nil; if acquisition failed, Release is a no-op.
func Acquire(locker WakeLocker, reason string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{locker: locker, logger: logger}
	if locker == nil {
		return g
	}
	h, err := locker.Acquire(reason)
	if err != nil {
		logger.Warn("failed to suppress idle sleep", "reason", reason, "error", err)
		return g
	}
	g.handle = h
	g.held = true
	return g
}

// Release gives the lock back. Calls after the first do nothing.
func (g *Guard) Release() {
	g.once.Do(func() {
		if !g.held {
			return
		}
		if err := g.locker.Release(g.handle); err != nil {
			g.logger.Warn("failed to release idle sleep suppression", "error", err)
		}
	})
}
