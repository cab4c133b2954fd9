package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"voicechat/internal/domain"
	"voicechat/internal/logging"
	"voicechat/internal/ports"
)

// Listener observes playback transitions. err is non-nil only when an
// utterance failed.
type Listener func(state domain.PlaybackState, err error)

// Controller owns the single active utterance for the process. Starting a new
// utterance cancels the previous one, and engine callbacks for anything but
// the current utterance are dropped.
type Controller struct {
	engine   ports.SpeechEngine
	preparer ports.TextPreparer
	logger   *slog.Logger

	// opMu serializes Speak and Stop. Engine callbacks only take mu.
	opMu sync.Mutex

	mu       sync.Mutex
	current  string
	speaking bool
	listener Listener
}

func NewController(engine ports.SpeechEngine, preparer ports.TextPreparer) *Controller {
	c := &Controller{
		engine:   engine,
		preparer: preparer,
		logger:   logging.With("component", "speech"),
	}
	if engine != nil {
		engine.SetEventHandler(c.handleEvent)
	}
	return c
}

// SetListener replaces the playback observer.
func (c *Controller) SetListener(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Available reports whether an engine can speak right now.
func (c *Controller) Available() bool {
	return c.engine != nil && c.engine.Available()
}

// Voices lists the engine's voices.
func (c *Controller) Voices() []domain.Voice {
	if c.engine == nil {
		return nil
	}
	return c.engine.Voices()
}

// Speak cancels any active utterance and starts text with opts.
func (c *Controller) Speak(ctx context.Context, text string, opts domain.VoiceOptions) error {
	if !c.Available() {
		return domain.NewError(domain.ErrorCodeUnsupported, "speech synthesis is not available")
	}
	if c.preparer != nil {
		prepared, err := c.preparer.Prepare(text)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeSynthesis, err, "failed to prepare text")
		}
		text = prepared
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	id := uuid.NewString()
	c.mu.Lock()
	previous := c.current
	c.current = id
	c.speaking = false
	c.mu.Unlock()

	if previous != "" {
		if err := c.engine.Cancel(); err != nil {
			c.logger.Warn("failed to cancel previous utterance", "utterance_id", previous, "error", err)
		}
	}

	voice, _ := SelectVoice(c.engine.Voices(), opts)
	utterance := domain.Utterance{ID: id, Text: text, Voice: voice.Name, Options: opts}
	if err := c.engine.Speak(utterance); err != nil {
		c.mu.Lock()
		if c.current == id {
			c.current = ""
		}
		listener := c.listener
		c.mu.Unlock()

		failure := domain.WrapError(domain.ErrorCodeSynthesis, err, "failed to start speech")
		if listener != nil {
			listener(domain.PlaybackState{}, failure)
		}
		return failure
	}

	c.logger.Debug("utterance queued", "utterance_id", id, "voice", voice.Name, "chars", len(text))
	return nil
}

// Stop cancels the active utterance. It is a no-op when nothing is queued.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.current
	c.current = ""
	c.speaking = false
	listener := c.listener
	c.mu.Unlock()

	if current == "" {
		return nil
	}
	if err := c.engine.Cancel(); err != nil {
		c.logger.Warn("failed to cancel utterance", "utterance_id", current, "error", err)
	}
	if listener != nil {
		listener(domain.PlaybackState{}, nil)
	}
	return nil
}

// State reports the current playback state.
func (c *Controller) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.PlaybackState{Speaking: c.speaking, UtteranceID: c.current}
}

func (c *Controller) handleEvent(event domain.SpeechEvent) {
	c.mu.Lock()
	if event.UtteranceID == "" || event.UtteranceID != c.current {
		c.mu.Unlock()
		c.logger.Debug("dropping stale speech event", "utterance_id", event.UtteranceID, "kind", event.Kind)
		return
	}

	var (
		state domain.PlaybackState
		err   error
	)
	switch event.Kind {
	case domain.SpeechEventStart:
		c.speaking = true
		state = domain.PlaybackState{Speaking: true, UtteranceID: c.current}
	case domain.SpeechEventEnd, domain.SpeechEventCancel:
		c.current = ""
		c.speaking = false
	case domain.SpeechEventError:
		c.current = ""
		c.speaking = false
		if !isCancellation(event.Detail) {
			err = domain.NewError(domain.ErrorCodeSynthesis, event.Detail)
		}
	default:
		c.mu.Unlock()
		return
	}
	listener := c.listener
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("utterance failed", "utterance_id", event.UtteranceID, "detail", event.Detail)
	}
	if listener != nil {
		listener(state, err)
	}
}

// isCancellation recognizes the error codes browsers report for an
// utterance removed by cancel().
func isCancellation(detail string) bool {
	switch strings.ToLower(strings.TrimSpace(detail)) {
	case "interrupted", "canceled", "cancelled":
		return true
	}
	return false
}
