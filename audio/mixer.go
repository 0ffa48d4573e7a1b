package audio

import "github.com/mrsingh-rishi/meeting-transcriber/model"

const (
	// SourceSampleRate is the nominal rate of both capture sources.
	SourceSampleRate = 48000
	// TargetSampleRate is the rate the recognition service is configured for.
	TargetSampleRate = 16000
	// FrameSize is 10ms at SourceSampleRate.
	FrameSize = 480
)

// Mixer accumulates screen and microphone samples and emits one averaged mono
// frame whenever both sides hold a full frame. It is owned by a single
// goroutine and does no locking.
type Mixer struct {
	frameSize int
	screen    []float32
	mic       []float32
}

// NewMixer returns a Mixer producing frames of frameSize samples. A
// non-positive frameSize falls back to FrameSize.
func NewMixer(frameSize int) *Mixer {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &Mixer{frameSize: frameSize}
}

// FrameSize returns the number of samples in each mixed frame.
func (m *Mixer) FrameSize() int {
	return m.frameSize
}

// Push appends samples to the pending buffer of src. Unknown sources are ignored.
func (m *Mixer) Push(src model.Source, samples []float32) {
	switch src {
	case model.SourceScreen:
		m.screen = append(m.screen, samples...)
	case model.SourceMicrophone:
		m.mic = append(m.mic, samples...)
	}
}

// Pending returns how many unconsumed samples src holds.
func (m *Mixer) Pending(src model.Source) int {
	switch src {
	case model.SourceScreen:
		return len(m.screen)
	case model.SourceMicrophone:
		return len(m.mic)
	}
	return 0
}

// Drain returns the next mixed frame, or false if either source holds fewer
// than a frame's worth of samples. Exactly one frame is consumed from the
// front of each buffer; the remainder is kept.
func (m *Mixer) Drain() ([]float32, bool) {
	n := m.frameSize
	if len(m.screen) < n || len(m.mic) < n {
		return nil, false
	}

	mixed := make([]float32, n)
	for i := 0; i < n; i++ {
		mixed[i] = (m.screen[i] + m.mic[i]) * 0.5
	}

	m.screen = consume(m.screen, n)
	m.mic = consume(m.mic, n)
	return mixed, true
}

// consume drops the first n samples, shifting the rest down in place.
func consume(buf []float32, n int) []float32 {
	rest := copy(buf, buf[n:])
	return buf[:rest]
}
