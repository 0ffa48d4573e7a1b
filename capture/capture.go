// Package capture defines the contract between an audio capture backend and
// the recorder.
package capture

import (
	"strings"

	"github.com/pkg/errors"
)

// SampleRate is the nominal rate every backend delivers, in Hz.
const SampleRate = 48000

// Backend names accepted by New.
const (
	BackendNone      = "none"
	BackendPortAudio = "portaudio"
)

// ErrUnavailable is returned when a backend was not compiled in.
var ErrUnavailable = errors.New("capture backend not available in this build")

// Source produces mono float32 samples at SampleRate. Chunk length is up to
// the backend. push must not block; there is no backpressure.
type Source interface {
	Start(push func(samples []float32)) error
	Stop() error
}

// New returns the named backend. BackendNone yields a nil Source: screen
// audio then arrives through the HTTP push endpoint.
func New(backend string, framesPerBuffer int) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendPortAudio:
		pa, err := NewPortAudio(framesPerBuffer)
		if err != nil {
			return nil, err
		}
		return pa, nil
	default:
		return nil, errors.Errorf("unknown capture backend %q", backend)
	}
}
