package speech

import (
	"errors"
	"slices"
	"sync"

	"voicechat/internal/domain"
)

const (
	EventSpeak  = "voice:speak"
	EventCancel = "voice:cancel"
)

// Emitter publishes a named event to the webview.
type Emitter func(name string, payload any)

type speakPayload struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Lang   string  `json:"lang"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// BridgeEngine drives the webview's speechSynthesis. Commands go out as
// events; the page reports progress back through Deliver.
type BridgeEngine struct {
	emit Emitter

	mu        sync.RWMutex
	available bool
	voices    []domain.Voice
	handler   func(domain.SpeechEvent)
}

func NewBridgeEngine(emit Emitter) *BridgeEngine {
	return &BridgeEngine{emit: emit}
}

// UpdateVoices records what the page reported about its synthesis support.
func (b *BridgeEngine) UpdateVoices(supported bool, voices []domain.Voice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = supported
	b.voices = slices.Clone(voices)
}

func (b *BridgeEngine) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available && b.emit != nil
}

func (b *BridgeEngine) Voices() []domain.Voice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.voices)
}

func (b *BridgeEngine) Speak(u domain.Utterance) error {
	if b.emit == nil {
		return errors.New("webview bridge is not attached")
	}
	b.emit(EventSpeak, speakPayload{
		ID:     u.ID,
		Text:   u.Text,
		Voice:  u.Voice,
		Lang:   u.Options.Language,
		Rate:   u.Options.Rate,
		Pitch:  u.Options.Pitch,
		Volume: u.Options.Volume,
	})
	return nil
}

func (b *BridgeEngine) Cancel() error {
	if b.emit == nil {
		return nil
	}
	b.emit(EventCancel, nil)
	return nil
}

func (b *BridgeEngine) SetEventHandler(handler func(domain.SpeechEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Deliver routes a callback reported by the page.
func (b *BridgeEngine) Deliver(event domain.SpeechEvent) {
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
}
