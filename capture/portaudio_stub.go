//go:build !portaudio

package capture

// DefaultFramesPerBuffer is 10 ms at SampleRate.
const DefaultFramesPerBuffer = 480

// PortAudio is unavailable without the portaudio build tag.
type PortAudio struct{}

// NewPortAudio always fails in this build.
func NewPortAudio(int) (*PortAudio, error) {
	return nil, ErrUnavailable
}

func (*PortAudio) Start(func([]float32)) error { return ErrUnavailable }
func (*PortAudio) Stop() error                 { return nil }
func (*PortAudio) Close() error                { return nil }
