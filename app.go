package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicechat/internal/bootstrap"
	"voicechat/internal/config"
	"voicechat/internal/domain"
	"voicechat/internal/speech"
	"voicechat/internal/usecase"
)

const (
	eventStatus  = "voice:status"
	eventPartial = "voice:partial"
	eventError   = "voice:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.VoiceController
	speech     *speech.Controller
	bridge     *speech.BridgeEngine
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(bootstrap.Options{Events: a, Emitter: a.emit})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.speech = services.Speech
	a.bridge = services.Bridge
	a.StateChanged(a.controller.Status(), domain.ReasonMicCold)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Dispose()
	}
	if a.speech != nil {
		_ = a.speech.Stop()
	}
}

// StartRecording begins a new voice turn.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.result(a.controller.Start(a.ctx))
}

// PauseRecording suspends the active recording.
func (a *App) PauseRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.result(a.controller.Pause())
}

// ResumeRecording continues a paused recording.
func (a *App) ResumeRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.result(a.controller.Resume())
}

// StopRecording finalizes the recording for review.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	_, err := a.controller.Stop()
	return a.result(err)
}

// SendRecording submits the stopped recording for transcription.
func (a *App) SendRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.result(a.controller.Send(a.ctx))
}

// DeleteRecording discards the current turn.
func (a *App) DeleteRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.result(a.controller.Delete())
}

// GetStatus returns the current turn status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.TurnStateError, Error: a.bootErr.Error(), ErrorCode: domain.ErrorCodeStartup}
		}
		return domain.Status{State: domain.TurnStateIdle, Elapsed: domain.FormatElapsed(0)}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"maxDuration":      fmt.Sprintf("%d", a.cfg.Session.MaxDuration),
		"rulesFile":        a.cfg.Rules.Path,
		"audioBackend":     a.cfg.Audio.Backend,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"speechEngine":     a.cfg.Speech.Engine,
		"voiceLanguage":    a.cfg.Speech.Voice.Language,
	}
}

// SpeakText reads text aloud with the configured voice.
func (a *App) SpeakText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.speech.Speak(a.ctx, text, a.cfg.Speech.Voice); err != nil {
		a.SessionError(domain.CodeOf(err), err.Error())
		return err
	}
	return nil
}

// StopSpeaking cancels any active speech.
func (a *App) StopSpeaking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.speech.Stop()
}

// ReportVoices is called by the page once speechSynthesis has loaded its
// voice list.
func (a *App) ReportVoices(supported bool, voices []domain.Voice) {
	if a.bridge == nil {
		return
	}
	a.bridge.UpdateVoices(supported, voices)
}

// ReportSpeechEvent forwards an utterance callback from the page.
func (a *App) ReportSpeechEvent(utteranceID string, kind string, detail string) {
	if a.bridge == nil {
		return
	}
	a.bridge.Deliver(domain.SpeechEvent{
		UtteranceID: utteranceID,
		Kind:        domain.SpeechEventKind(kind),
		Detail:      detail,
	})
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// result reports command rejections to the UI; other failures are emitted by
// the controller itself.
func (a *App) result(err error) (domain.Status, error) {
	if err != nil {
		if domain.CodeOf(err) == domain.ErrorCodeInvalidState {
			a.SessionError(domain.ErrorCodeInvalidState, err.Error())
		}
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

type statusEvent struct {
	domain.Status
	Reason  domain.StateReason `json:"reason"`
	Message string             `json:"message"`
}

// StateChanged emits turn updates to the frontend.
func (a *App) StateChanged(status domain.Status, reason domain.StateReason) {
	a.emit(eventStatus, statusEvent{
		Status:  status,
		Reason:  reason,
		Message: reasonMessage(reason),
	})
}

// PartialTranscript emits live caption text.
func (a *App) PartialTranscript(text string) {
	a.emit(eventPartial, map[string]string{"text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func reasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonMicCold:
		return "Mic cold"
	case domain.ReasonRecordingStarted:
		return "Recording..."
	case domain.ReasonRecordingRestarted:
		return "Recording restarted; previous turn discarded"
	case domain.ReasonRecordingPaused:
		return "Recording paused"
	case domain.ReasonRecordingResumed:
		return "Recording resumed"
	case domain.ReasonRecordingStopped:
		return "Recording stopped"
	case domain.ReasonMaxDurationReached:
		return "Maximum recording length reached"
	case domain.ReasonTranscribing:
		return "Transcribing..."
	case domain.ReasonTranscriptReady:
		return "Transcript ready"
	case domain.ReasonNoSpeech:
		return "No speech detected"
	case domain.ReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.ReasonCaptureFailed:
		return "Microphone unavailable"
	case domain.ReasonDeletePending:
		return "Discarding after the current request"
	case domain.ReasonTurnDeleted:
		return "Recording deleted"
	case domain.ReasonSpeakingStarted:
		return "Speaking"
	case domain.ReasonSpeakingFailed:
		return "Speech failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied"
	case domain.ErrorCodeInvalidState:
		return "Not available right now"
	case domain.ErrorCodeConfiguration:
		return "Speech-to-text is not configured"
	case domain.ErrorCodeAuth:
		return "Speech-to-text credentials rejected"
	case domain.ErrorCodeBadInput:
		return "Recording could not be processed"
	case domain.ErrorCodeRateLimited:
		return "Too many requests; try again shortly"
	case domain.ErrorCodeNetwork:
		return "Network error"
	case domain.ErrorCodeService:
		return "Speech-to-text service error"
	case domain.ErrorCodeSynthesis:
		return "Speech playback failed"
	case domain.ErrorCodeUnsupported:
		return "Not supported on this system"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
