//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

// PortAudioMicrophone captures from the default input device through PortAudio.
type PortAudioMicrophone struct {
	framesPerBuffer int
}

func NewPortAudioMicrophone(framesPerBuffer int) *PortAudioMicrophone {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 512
	}
	return &PortAudioMicrophone{framesPerBuffer: framesPerBuffer}
}

func (m *PortAudioMicrophone) Open(_ context.Context, cfg ports.AudioConfig) (ports.CaptureDevice, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeUnsupported, err, "failed to initialize PortAudio")
	}

	input, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, domain.WrapError(domain.ErrorCodePermissionDenied, err, "no input device")
	}

	device := &portAudioDevice{frames: make(chan []byte, 64), closed: make(chan struct{})}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input,
			Channels: cfg.Channels,
			Latency:  input.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: m.framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, device.onFrames)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, domain.WrapError(domain.ErrorCodePermissionDenied, err, fmt.Sprintf("failed to open %s", input.Name))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, domain.WrapError(domain.ErrorCodePermissionDenied, err, "failed to start input stream")
	}

	device.stream = stream
	return device, nil
}

type portAudioDevice struct {
	stream *portaudio.Stream
	frames chan []byte
	closed chan struct{}

	pending []byte

	mu       sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// onFrames runs on the PortAudio callback thread and must not block.
func (d *portAudioDevice) onFrames(in []int16) {
	chunk := make([]byte, len(in)*2)
	for i, sample := range in {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(sample))
	}
	select {
	case d.frames <- chunk:
	default:
	}
}

func (d *portAudioDevice) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		select {
		case chunk := <-d.frames:
			d.pending = chunk
		case <-d.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *portAudioDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream.Stop()
}

func (d *portAudioDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream.Start()
}

func (d *portAudioDevice) Stop() error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		_ = d.stream.Stop()
		d.stopErr = d.stream.Close()
		if err := portaudio.Terminate(); err != nil && d.stopErr == nil {
			d.stopErr = err
		}
		close(d.closed)
	})
	return d.stopErr
}
