package speech

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/domain"
)

type emitted struct {
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) emit(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{name: name, payload: payload})
}

func TestBridgeEngineUnavailableUntilPageReports(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	b := NewBridgeEngine(rec.emit)
	assert.False(t, b.Available())

	b.UpdateVoices(true, []domain.Voice{{Name: "Maged", Lang: "ar-SA"}})
	assert.True(t, b.Available())
	assert.Len(t, b.Voices(), 1)

	b.UpdateVoices(false, nil)
	assert.False(t, b.Available())
}

func TestBridgeEngineRoundTrip(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	b := NewBridgeEngine(rec.emit)
	b.UpdateVoices(true, []domain.Voice{{Name: "Maged Male", Lang: "ar-SA"}})
	c := NewController(b, nil)

	require.NoError(t, c.Speak(context.Background(), "السلام عليكم", domain.DefaultVoiceOptions()))
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventSpeak, rec.events[0].name)

	payload, ok := rec.events[0].payload.(speakPayload)
	require.True(t, ok)
	assert.Equal(t, "Maged Male", payload.Voice)
	assert.Equal(t, "ar-SA", payload.Lang)
	assert.InDelta(t, 0.9, payload.Rate, 1e-9)
	assert.InDelta(t, 0.8, payload.Volume, 1e-9)

	b.Deliver(domain.SpeechEvent{UtteranceID: payload.ID, Kind: domain.SpeechEventStart})
	assert.True(t, c.State().Speaking)

	require.NoError(t, c.Stop())
	require.Len(t, rec.events, 2)
	assert.Equal(t, EventCancel, rec.events[1].name)
}
