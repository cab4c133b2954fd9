package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/domain"
	"voicechat/internal/rules"
)

type fakeEngine struct {
	mu        sync.Mutex
	available bool
	voices    []domain.Voice
	spoken    []domain.Utterance
	cancels   int
	speakErr  error
	handler   func(domain.SpeechEvent)
}

func (e *fakeEngine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

func (e *fakeEngine) Voices() []domain.Voice {
	return e.voices
}

func (e *fakeEngine) Speak(u domain.Utterance) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speakErr != nil {
		return e.speakErr
	}
	e.spoken = append(e.spoken, u)
	return nil
}

func (e *fakeEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
	return nil
}

func (e *fakeEngine) SetEventHandler(handler func(domain.SpeechEvent)) {
	e.handler = handler
}

func (e *fakeEngine) fire(id string, kind domain.SpeechEventKind, detail string) {
	e.handler(domain.SpeechEvent{UtteranceID: id, Kind: kind, Detail: detail})
}

func (e *fakeEngine) utterances() []domain.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Utterance(nil), e.spoken...)
}

type recordedPlayback struct {
	state domain.PlaybackState
	err   error
}

type listenerLog struct {
	mu      sync.Mutex
	entries []recordedPlayback
}

func (l *listenerLog) listen(state domain.PlaybackState, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedPlayback{state: state, err: err})
}

func (l *listenerLog) snapshot() []recordedPlayback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedPlayback(nil), l.entries...)
}

func newTestController(engine *fakeEngine) (*Controller, *listenerLog) {
	c := NewController(engine, rules.NewPreparer(nil, 0))
	log := &listenerLog{}
	c.SetListener(log.listen)
	return c, log
}

func TestSpeakWithoutEngineIsUnsupported(t *testing.T) {
	t.Parallel()

	c := NewController(nil, nil)
	err := c.Speak(context.Background(), "hello", domain.DefaultVoiceOptions())
	assert.ErrorIs(t, err, domain.ErrUnsupported)
	assert.NoError(t, c.Stop())

	unavailable := NewController(&fakeEngine{}, nil)
	assert.ErrorIs(t, unavailable.Speak(context.Background(), "hello", domain.DefaultVoiceOptions()), domain.ErrUnsupported)
}

func TestSpeakLifecycle(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, log := newTestController(engine)

	require.NoError(t, c.Speak(context.Background(), "**مرحبا**", domain.DefaultVoiceOptions()))
	spoken := engine.utterances()
	require.Len(t, spoken, 1)
	assert.Equal(t, "مرحبا", spoken[0].Text)
	assert.Equal(t, "ar-SA", spoken[0].Options.Language)
	assert.False(t, c.State().Speaking)

	id := spoken[0].ID
	engine.fire(id, domain.SpeechEventStart, "")
	assert.Equal(t, domain.PlaybackState{Speaking: true, UtteranceID: id}, c.State())

	engine.fire(id, domain.SpeechEventEnd, "")
	assert.Equal(t, domain.PlaybackState{}, c.State())

	entries := log.snapshot()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].state.Speaking)
	assert.False(t, entries[1].state.Speaking)
	assert.NoError(t, entries[1].err)
}

func TestNewUtteranceCancelsPreviousAndDropsItsCallbacks(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, log := newTestController(engine)

	require.NoError(t, c.Speak(context.Background(), "first", domain.DefaultVoiceOptions()))
	first := engine.utterances()[0].ID
	engine.fire(first, domain.SpeechEventStart, "")

	require.NoError(t, c.Speak(context.Background(), "second", domain.DefaultVoiceOptions()))
	assert.Equal(t, 1, engine.cancels)
	second := engine.utterances()[1].ID
	require.NotEqual(t, first, second)

	// Late callbacks from the cancelled utterance must not touch state.
	engine.fire(first, domain.SpeechEventError, "synthesis-failed")
	engine.fire(first, domain.SpeechEventEnd, "")
	assert.Equal(t, second, c.State().UtteranceID)

	engine.fire(second, domain.SpeechEventStart, "")
	assert.Equal(t, domain.PlaybackState{Speaking: true, UtteranceID: second}, c.State())

	entries := log.snapshot()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NoError(t, entry.err)
	}
}

func TestEngineErrorSurfacesSynthesisError(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, log := newTestController(engine)

	require.NoError(t, c.Speak(context.Background(), "text", domain.DefaultVoiceOptions()))
	id := engine.utterances()[0].ID
	engine.fire(id, domain.SpeechEventStart, "")
	engine.fire(id, domain.SpeechEventError, "audio-busy")

	entries := log.snapshot()
	require.Len(t, entries, 2)
	assert.ErrorIs(t, entries[1].err, domain.ErrSynthesis)
	assert.False(t, c.State().Speaking)
}

func TestBrowserInterruptionIsNotAnError(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, log := newTestController(engine)

	require.NoError(t, c.Speak(context.Background(), "text", domain.DefaultVoiceOptions()))
	engine.fire(engine.utterances()[0].ID, domain.SpeechEventError, "interrupted")

	entries := log.snapshot()
	require.Len(t, entries, 1)
	assert.NoError(t, entries[0].err)
}

func TestSpeakStartFailure(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true, speakErr: errors.New("no audio sink")}
	c, log := newTestController(engine)

	err := c.Speak(context.Background(), "text", domain.DefaultVoiceOptions())
	assert.ErrorIs(t, err, domain.ErrSynthesis)
	assert.Equal(t, domain.PlaybackState{}, c.State())
	require.Len(t, log.snapshot(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, log := newTestController(engine)

	assert.NoError(t, c.Stop())
	assert.Zero(t, engine.cancels)

	require.NoError(t, c.Speak(context.Background(), "text", domain.DefaultVoiceOptions()))
	id := engine.utterances()[0].ID
	engine.fire(id, domain.SpeechEventStart, "")

	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
	assert.Equal(t, 1, engine.cancels)
	assert.Equal(t, domain.PlaybackState{}, c.State())

	engine.fire(id, domain.SpeechEventCancel, "")
	assert.Len(t, log.snapshot(), 2)
}

func TestSpeakBlankTextIsNoop(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{available: true}
	c, _ := newTestController(engine)

	require.NoError(t, c.Speak(context.Background(), "```\ncode only\n```", domain.DefaultVoiceOptions()))
	assert.Empty(t, engine.utterances())
}
