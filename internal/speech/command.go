package speech

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"voicechat/internal/domain"
)

// CommandEngine speaks through a local synthesizer binary: espeak-ng, espeak,
// spd-say or macOS say.
type CommandEngine struct {
	command string
	voices  []domain.Voice

	mu        sync.Mutex
	handler   func(domain.SpeechEvent)
	currentID string
	cancel    context.CancelFunc
}

func NewCommandEngine(command string, voices []domain.Voice) *CommandEngine {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandEngine{command: command, voices: voices}
}

func (e *CommandEngine) Available() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

func (e *CommandEngine) Voices() []domain.Voice {
	return e.voices
}

func (e *CommandEngine) SetEventHandler(handler func(domain.SpeechEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

func (e *CommandEngine) Speak(u domain.Utterance) error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, e.command, commandArgs(filepath.Base(e.command), u)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", e.command, err)
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.currentID = u.ID
	e.cancel = cancel
	e.mu.Unlock()

	e.deliver(domain.SpeechEvent{UtteranceID: u.ID, Kind: domain.SpeechEventStart})

	go func() {
		err := cmd.Wait()
		cancelled := ctx.Err() != nil
		cancel()

		e.mu.Lock()
		if e.currentID == u.ID {
			e.currentID = ""
			e.cancel = nil
		}
		e.mu.Unlock()

		switch {
		case cancelled:
			e.deliver(domain.SpeechEvent{UtteranceID: u.ID, Kind: domain.SpeechEventCancel})
		case err != nil:
			e.deliver(domain.SpeechEvent{UtteranceID: u.ID, Kind: domain.SpeechEventError, Detail: err.Error()})
		default:
			e.deliver(domain.SpeechEvent{UtteranceID: u.ID, Kind: domain.SpeechEventEnd})
		}
	}()
	return nil
}

// Cancel kills the running synthesizer, if any.
func (e *CommandEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
		e.currentID = ""
	}
	return nil
}

func (e *CommandEngine) deliver(event domain.SpeechEvent) {
	e.mu.Lock()
	handler := e.handler
	e.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func commandArgs(name string, u domain.Utterance) []string {
	opts := u.Options
	lang := primaryLanguage(opts.Language)

	switch name {
	case "say":
		args := []string{"-r", strconv.Itoa(int(175 * opts.Rate))}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return append(args, u.Text)
	case "spd-say":
		args := []string{
			"-w",
			"-r", strconv.Itoa(int((opts.Rate - 1) * 100)),
			"-p", strconv.Itoa(int((opts.Pitch - 1) * 100)),
			"-i", strconv.Itoa(int((opts.Volume - 1) * 100)),
		}
		if lang != "" {
			args = append(args, "-l", lang)
		}
		return append(args, "--", u.Text)
	default:
		voice := u.Voice
		if voice == "" {
			voice = lang
		}
		args := []string{
			"-s", strconv.Itoa(int(175 * opts.Rate)),
			"-p", strconv.Itoa(int(50 * opts.Pitch)),
			"-a", strconv.Itoa(int(100 * opts.Volume)),
		}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return append(args, "--", u.Text)
	}
}
