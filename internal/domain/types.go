package domain

import (
	"fmt"
	"strings"
	"time"
)

// TurnState models the lifecycle of one voice turn.
type TurnState string

const (
	TurnStateIdle          TurnState = "idle"
	TurnStateRecording     TurnState = "recording"
	TurnStatePaused        TurnState = "paused"
	TurnStateStopped       TurnState = "stopped"
	TurnStateTranscribing  TurnState = "transcribing"
	TurnStatePlaybackReady TurnState = "playback_ready"
	TurnStateError         TurnState = "error"
)

// Capturing reports whether the microphone is held in this state.
func (s TurnState) Capturing() bool {
	return s == TurnStateRecording || s == TurnStatePaused
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonMicCold             StateReason = "mic_cold"
	ReasonRecordingStarted    StateReason = "recording_started"
	ReasonRecordingRestarted  StateReason = "recording_restarted"
	ReasonRecordingPaused     StateReason = "recording_paused"
	ReasonRecordingResumed    StateReason = "recording_resumed"
	ReasonRecordingStopped    StateReason = "recording_stopped"
	ReasonMaxDurationReached  StateReason = "max_duration_reached"
	ReasonElapsed             StateReason = "elapsed"
	ReasonTranscribing        StateReason = "transcribing"
	ReasonTranscriptReady     StateReason = "transcript_ready"
	ReasonNoSpeech            StateReason = "no_speech"
	ReasonTranscriptionFailed StateReason = "transcription_failed"
	ReasonCaptureFailed       StateReason = "capture_failed"
	ReasonDeletePending       StateReason = "delete_pending"
	ReasonTurnDeleted         StateReason = "turn_deleted"
	ReasonErrorCleared        StateReason = "error_cleared"
	ReasonSpeakingStarted     StateReason = "speaking_started"
	ReasonSpeakingFinished    StateReason = "speaking_finished"
	ReasonSpeakingFailed      StateReason = "speaking_failed"
	ReasonControllerDisposed  StateReason = "controller_disposed"
)

// RecordingSession is a snapshot of one capture attempt.
type RecordingSession struct {
	ID                 string    `json:"id"`
	State              TurnState `json:"state"`
	StartedAt          time.Time `json:"startedAt"`
	ElapsedSeconds     int       `json:"elapsedSeconds"`
	MaxDurationSeconds int       `json:"maxDurationSeconds"`
}

// AudioBlob is finalized audio handed from capture to transcription.
type AudioBlob struct {
	Data     []byte        `json:"-"`
	MIMEType string        `json:"mimeType"`
	Duration time.Duration `json:"duration"`
}

// Empty reports whether the blob carries no audio payload.
func (b AudioBlob) Empty() bool {
	return len(b.Data) == 0
}

// TranscriptionResult is the text recognized from one blob.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	SessionID  string  `json:"sessionId"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// NoSpeech reports whether the service heard nothing usable.
func (r TranscriptionResult) NoSpeech() bool {
	return strings.TrimSpace(r.Text) == ""
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental output from a live caption stream.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// PlaybackState describes the process-wide speech output.
type PlaybackState struct {
	Speaking    bool   `json:"speaking"`
	UtteranceID string `json:"utteranceId,omitempty"`
}

// Voice is one synthesis voice offered by a speech engine.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// VoiceOptions configures how text is spoken.
type VoiceOptions struct {
	Language  string  `json:"language" yaml:"language"`
	Rate      float64 `json:"rate" yaml:"rate"`
	Pitch     float64 `json:"pitch" yaml:"pitch"`
	Volume    float64 `json:"volume" yaml:"volume"`
	VoiceHint string  `json:"voiceHint" yaml:"voice_hint"`
}

// DefaultVoiceOptions returns the assistant's speaking defaults.
func DefaultVoiceOptions() VoiceOptions {
	return VoiceOptions{
		Language:  "ar-SA",
		Rate:      0.9,
		Pitch:     1,
		Volume:    0.8,
		VoiceHint: "male",
	}
}

// Utterance is a single request to a speech engine.
type Utterance struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Voice   string       `json:"voice,omitempty"`
	Options VoiceOptions `json:"options"`
}

// SpeechEventKind identifies an engine callback.
type SpeechEventKind string

const (
	SpeechEventStart  SpeechEventKind = "start"
	SpeechEventEnd    SpeechEventKind = "end"
	SpeechEventError  SpeechEventKind = "error"
	SpeechEventCancel SpeechEventKind = "cancel"
)

// SpeechEvent is a callback from a speech engine about one utterance.
type SpeechEvent struct {
	UtteranceID string          `json:"utteranceId"`
	Kind        SpeechEventKind `json:"kind"`
	Detail      string          `json:"detail,omitempty"`
}

// Status is the UI projection of the voice controller.
type Status struct {
	State              TurnState `json:"state"`
	SessionID          string    `json:"sessionId,omitempty"`
	ElapsedSeconds     int       `json:"elapsedSeconds"`
	MaxDurationSeconds int       `json:"maxDurationSeconds"`
	Elapsed            string    `json:"elapsed"`
	Level              float64   `json:"level"`
	Transcript         string    `json:"transcript,omitempty"`
	Error              string    `json:"error,omitempty"`
	ErrorCode          ErrorCode `json:"errorCode,omitempty"`
	Speaking           bool      `json:"speaking"`
	DeletePending      bool      `json:"deletePending,omitempty"`
}

// FormatElapsed renders seconds as mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
