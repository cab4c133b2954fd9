package speech

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/domain"
)

func writeSynth(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	path := filepath.Join(dir, "espeak-ng")
	script := "#!/usr/bin/env bash\nprintf '%s\\n' \"$@\" > " + argsFile + "\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path, argsFile
}

func collectEvents(engine *CommandEngine) chan domain.SpeechEvent {
	events := make(chan domain.SpeechEvent, 8)
	engine.SetEventHandler(func(e domain.SpeechEvent) { events <- e })
	return events
}

func nextEvent(t *testing.T, events chan domain.SpeechEvent) domain.SpeechEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for speech event")
		return domain.SpeechEvent{}
	}
}

func TestCommandEngineSpeaksToCompletion(t *testing.T) {
	t.Parallel()

	path, argsFile := writeSynth(t, "exit 0")
	engine := NewCommandEngine(path, nil)
	require.True(t, engine.Available())
	events := collectEvents(engine)

	opts := domain.VoiceOptions{Language: "ar-SA", Rate: 1, Pitch: 1, Volume: 0.5}
	require.NoError(t, engine.Speak(domain.Utterance{ID: "u1", Text: "مرحبا", Options: opts}))

	assert.Equal(t, domain.SpeechEvent{UtteranceID: "u1", Kind: domain.SpeechEventStart}, nextEvent(t, events))
	assert.Equal(t, domain.SpeechEvent{UtteranceID: "u1", Kind: domain.SpeechEventEnd}, nextEvent(t, events))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-s\n175\n-p\n50\n-a\n50\n-v\nar\n--\nمرحبا\n", string(args))
}

func TestCommandEngineCancelKillsProcess(t *testing.T) {
	t.Parallel()

	path, _ := writeSynth(t, "sleep 10")
	engine := NewCommandEngine(path, nil)
	events := collectEvents(engine)

	require.NoError(t, engine.Speak(domain.Utterance{ID: "u1", Text: "long", Options: domain.DefaultVoiceOptions()}))
	assert.Equal(t, domain.SpeechEventStart, nextEvent(t, events).Kind)

	require.NoError(t, engine.Cancel())
	assert.Equal(t, domain.SpeechEvent{UtteranceID: "u1", Kind: domain.SpeechEventCancel}, nextEvent(t, events))
	require.NoError(t, engine.Cancel())
}

func TestCommandEngineFailureReportsError(t *testing.T) {
	t.Parallel()

	path, _ := writeSynth(t, "exit 3")
	engine := NewCommandEngine(path, nil)
	events := collectEvents(engine)

	require.NoError(t, engine.Speak(domain.Utterance{ID: "u1", Text: "x", Options: domain.DefaultVoiceOptions()}))
	nextEvent(t, events)
	failed := nextEvent(t, events)
	assert.Equal(t, domain.SpeechEventError, failed.Kind)
	assert.True(t, strings.Contains(failed.Detail, "exit status 3"), failed.Detail)
}

func TestCommandEngineMissingBinary(t *testing.T) {
	t.Parallel()

	engine := NewCommandEngine("voicechat-missing-synth", nil)
	assert.False(t, engine.Available())
	assert.Error(t, engine.Speak(domain.Utterance{ID: "u1", Text: "x"}))
}

func TestCommandArgsVariants(t *testing.T) {
	t.Parallel()

	u := domain.Utterance{Text: "hi", Voice: "Maged", Options: domain.VoiceOptions{Language: "ar-SA", Rate: 2, Pitch: 1, Volume: 1}}
	assert.Equal(t, []string{"-r", "350", "-v", "Maged", "hi"}, commandArgs("say", u))
	assert.Equal(t, []string{"-w", "-r", "100", "-p", "0", "-i", "0", "-l", "ar", "--", "hi"}, commandArgs("spd-say", u))
	assert.Equal(t, []string{"-s", "350", "-p", "50", "-a", "100", "-v", "Maged", "--", "hi"}, commandArgs("espeak-ng", u))
}
