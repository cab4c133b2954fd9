//go:build !portaudio

package audio

import (
	"context"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

// PortAudioMicrophone is unavailable in builds without the portaudio tag.
type PortAudioMicrophone struct{}

func NewPortAudioMicrophone(int) *PortAudioMicrophone {
	return &PortAudioMicrophone{}
}

func (m *PortAudioMicrophone) Open(context.Context, ports.AudioConfig) (ports.CaptureDevice, error) {
	return nil, domain.NewError(domain.ErrorCodeUnsupported, "built without PortAudio support; rebuild with -tags portaudio")
}
