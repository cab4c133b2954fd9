package ports

import (
	"context"
	"io"

	"voicechat/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// CaptureDevice is an open microphone producing PCM16 little-endian frames.
// Stop must be idempotent and unblock any pending Read.
type CaptureDevice interface {
	io.Reader
	Pause() error
	Resume() error
	Stop() error
}

// Microphone opens capture devices. Denied access or a missing device is
// reported as domain.ErrPermissionDenied.
type Microphone interface {
	Open(ctx context.Context, cfg AudioConfig) (CaptureDevice, error)
}

// Transcriber converts a finalized recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, blob domain.AudioBlob, languageHint string) (domain.TranscriptionResult, error)
}

// StreamingConfig describes provider-agnostic live caption settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active live caption websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// CaptionProvider starts live caption sessions.
type CaptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// SpeechEngine is a platform text-to-speech back end. Speak and Cancel must
// not block on playback; progress is reported through the event handler.
type SpeechEngine interface {
	Available() bool
	Voices() []domain.Voice
	Speak(utterance domain.Utterance) error
	Cancel() error
	SetEventHandler(handler func(domain.SpeechEvent))
}

// TextPreparer rewrites text before it is spoken.
type TextPreparer interface {
	Prepare(text string) (string, error)
}

// Speaker is the process-wide speech playback used by the voice controller.
type Speaker interface {
	Speak(ctx context.Context, text string, opts domain.VoiceOptions) error
	Stop() error
	State() domain.PlaybackState
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	StateChanged(status domain.Status, reason domain.StateReason)
	PartialTranscript(text string)
	SessionError(code domain.ErrorCode, detail string)
}
