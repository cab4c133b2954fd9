package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

// captionAggregator joins finalized segments with the newest interim one.
type captionAggregator struct {
	mu      sync.Mutex
	finals  []string
	pending string
}

func (a *captionAggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.pending = ""
		return
	}
	a.pending = text
}

func (a *captionAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	parts := append([]string(nil), a.finals...)
	if a.pending != "" {
		parts = append(parts, a.pending)
	}
	return strings.Join(parts, " ")
}

// liveCaptions streams the microphone to a caption provider while a turn is
// recording. Captions are a preview only; failures never affect the turn and
// a slow stream never holds up capture.
type liveCaptions struct {
	stream ports.StreamingSession
	events ports.EventSink
	logger *slog.Logger
	grace  time.Duration

	agg    captionAggregator
	failed atomic.Bool

	chunks   chan []byte
	sealed   chan struct{}
	quit     chan struct{}
	pumped   chan struct{}
	sealOnce sync.Once
	quitOnce sync.Once
	done     chan struct{}
}

// captionBacklog is how many chunks may wait for the stream before captions
// give up.
const captionBacklog = 64

var errCaptionsBehind = errors.New("caption stream is not keeping up with the microphone")

func startLiveCaptions(
	ctx context.Context,
	provider ports.CaptionProvider,
	cfg ports.StreamingConfig,
	events ports.EventSink,
	grace time.Duration,
	logger *slog.Logger,
) *liveCaptions {
	if provider == nil {
		return nil
	}
	stream, err := provider.StartStreaming(ctx, cfg)
	if err != nil {
		logger.Warn("live captions unavailable", "error", err)
		return nil
	}
	if grace <= 0 {
		grace = 4 * time.Second
	}
	l := &liveCaptions{
		stream: stream,
		events: events,
		logger: logger,
		grace:  grace,
		chunks: make(chan []byte, captionBacklog),
		sealed: make(chan struct{}),
		quit:   make(chan struct{}),
		pumped: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.pump()
	go l.consume()
	return l
}

// send queues a copy of chunk for the stream. It never blocks; a full queue
// ends captions for the turn.
func (l *liveCaptions) send(chunk []byte) {
	if l == nil || l.failed.Load() || len(chunk) == 0 {
		return
	}
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case l.chunks <- append([]byte(nil), chunk...):
	default:
		l.fail(errCaptionsBehind)
	}
}

func (l *liveCaptions) fail(err error) {
	if !l.failed.CompareAndSwap(false, true) {
		return
	}
	l.logger.Warn("live captions stopped", "error", err)
	l.events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", err))
}

func (l *liveCaptions) pump() {
	defer close(l.pumped)

	for {
		select {
		case <-l.quit:
			return
		case chunk := <-l.chunks:
			l.forward(chunk)
		case <-l.sealed:
			l.drain()
			_ = l.stream.CloseSend()
			return
		}
	}
}

func (l *liveCaptions) drain() {
	for {
		select {
		case chunk := <-l.chunks:
			l.forward(chunk)
		default:
			return
		}
	}
}

func (l *liveCaptions) forward(chunk []byte) {
	if l.failed.Load() {
		return
	}
	select {
	case <-l.quit:
		return
	default:
	}
	if err := l.stream.SendAudio(chunk); err != nil {
		l.fail(err)
	}
}

// finish flushes queued audio and closes the stream in the background once
// capture has ended.
func (l *liveCaptions) finish() {
	if l == nil {
		return
	}
	l.sealOnce.Do(func() {
		close(l.sealed)
		go func() {
			timer := time.NewTimer(l.grace)
			defer timer.Stop()
			select {
			case <-l.pumped:
			case <-timer.C:
				l.stop()
			}
			if err := waitForStream(l.stream, l.grace); err != nil {
				l.logger.Debug("caption stream closed with error", "error", err)
			}
			<-l.done
		}()
	})
}

// abort drops the stream immediately and waits for both workers to exit.
func (l *liveCaptions) abort() {
	if l == nil {
		return
	}
	l.stop()
	_ = l.stream.Close()
	<-l.pumped
	<-l.done
}

func (l *liveCaptions) stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

func (l *liveCaptions) text() string {
	if l == nil {
		return ""
	}
	return l.agg.Text()
}

func (l *liveCaptions) consume() {
	defer close(l.done)

	for event := range l.stream.Events() {
		if strings.TrimSpace(event.Text) == "" {
			continue
		}
		l.agg.Add(event)
		l.events.PartialTranscript(l.agg.Text())
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
