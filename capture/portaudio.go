//go:build portaudio

package capture

import (
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// DefaultFramesPerBuffer is 10 ms at SampleRate.
const DefaultFramesPerBuffer = 480

// PortAudio captures the default input device.
type PortAudio struct {
	mu              sync.Mutex
	framesPerBuffer int
	stream          *portaudio.Stream
	buffer          []float32
	running         bool
	done            chan struct{}
}

// NewPortAudio initializes the PortAudio library.
func NewPortAudio(framesPerBuffer int) (*PortAudio, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, "initialize portaudio")
	}
	return &PortAudio{
		framesPerBuffer: framesPerBuffer,
		buffer:          make([]float32, framesPerBuffer),
	}, nil
}

// Start opens the default input stream and delivers every buffer to push.
func (p *PortAudio) Start(push func(samples []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, p.framesPerBuffer, p.buffer)
	if err != nil {
		return errors.Wrap(err, "open input stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return errors.Wrap(err, "start input stream")
	}

	p.stream = stream
	p.running = true
	p.done = make(chan struct{})
	go p.readLoop(stream, push)
	return nil
}

func (p *PortAudio) readLoop(stream *portaudio.Stream, push func([]float32)) {
	defer close(p.done)

	for {
		p.mu.Lock()
		running := p.running
		p.mu.Unlock()
		if !running {
			return
		}

		available, err := stream.AvailableToRead()
		if err != nil || available == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err := stream.Read(); err != nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		chunk := make([]float32, len(p.buffer))
		copy(chunk, p.buffer)
		push(chunk)
	}
}

// Stop ends capture and closes the stream. PortAudio stays initialized so
// the source can be started again.
func (p *PortAudio) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stream := p.stream
	p.stream = nil
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}

	if err := stream.Stop(); err != nil {
		stream.Close()
		return errors.Wrap(err, "stop input stream")
	}
	return errors.Wrap(stream.Close(), "close input stream")
}

// Close stops capture and terminates PortAudio.
func (p *PortAudio) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
