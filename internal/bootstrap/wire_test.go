package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"voicechat/internal/audio"
	"voicechat/internal/config"
	"voicechat/internal/domain"
	"voicechat/internal/speech"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("VOICECHAT_CONFIG", "")
	t.Setenv("VOICECHAT_RULES_FILE", "")

	services, err := Build(Options{Events: noopEventSink{}, Emitter: func(string, any) {}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Speech == nil || services.Transcriber == nil {
		t.Fatalf("expected controller, speech and transcriber")
	}
	if services.Bridge == nil {
		t.Fatalf("expected the bridge engine by default")
	}
	if got := services.Controller.Status().State; got != domain.TurnStateIdle {
		t.Fatalf("expected idle controller, got %s", got)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("VOICECHAT_RULES_FILE", rules)

	_, err := Build(Options{Events: noopEventSink{}})
	if err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestAssembleRequiresEventSink(t *testing.T) {
	if _, err := Assemble(config.Defaults(), Options{}); err == nil {
		t.Fatalf("expected missing sink error")
	}
}

func TestSpeechEngineSelection(t *testing.T) {
	t.Parallel()

	engine, bridge := SpeechEngine(config.SpeechConfig{Engine: config.SpeechEngineNone}, nil)
	if engine != nil || bridge != nil {
		t.Fatalf("expected no engine")
	}

	engine, bridge = SpeechEngine(config.SpeechConfig{Engine: config.SpeechEngineCommand, Command: "say"}, nil)
	if _, ok := engine.(*speech.CommandEngine); !ok || bridge != nil {
		t.Fatalf("expected command engine, got %T", engine)
	}

	engine, bridge = SpeechEngine(config.SpeechConfig{Engine: config.SpeechEngineBridge}, func(string, any) {})
	if engine == nil || bridge == nil {
		t.Fatalf("expected bridge engine")
	}
}

func TestMicrophoneSelection(t *testing.T) {
	t.Parallel()

	if _, ok := Microphone(config.AudioConfig{Backend: config.AudioBackendFFMPEG}, 4096).(*audio.FFMPEGMicrophone); !ok {
		t.Fatalf("expected ffmpeg microphone")
	}
	if _, ok := Microphone(config.AudioConfig{Backend: config.AudioBackendPortAudio}, 4096).(*audio.PortAudioMicrophone); !ok {
		t.Fatalf("expected portaudio microphone")
	}
}

type noopEventSink struct{}

func (noopEventSink) StateChanged(_ domain.Status, _ domain.StateReason) {}
func (noopEventSink) PartialTranscript(_ string)                         {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)          {}
