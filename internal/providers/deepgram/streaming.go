package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

const (
	// defaultKeepAlive stays under the ~10s of silence after which the live
	// endpoint drops a connection, e.g. while a recording is paused.
	defaultKeepAlive = 5 * time.Second
	outboxSize       = 32
)

// ErrBackpressure is returned by SendAudio when the socket cannot keep up.
// The chunk is dropped; the caller decides whether to carry on.
var ErrBackpressure = errors.New("live caption socket is not keeping up")

var (
	closeStreamMsg = []byte(`{"type":"CloseStream"}`)
	keepAliveMsg   = []byte(`{"type":"KeepAlive"}`)
)

// Captions streams PCM to the live listen websocket and yields interim text
// while the user is still speaking.
type Captions struct {
	cfg       Config
	dialer    *websocket.Dialer
	keepAlive time.Duration
}

func NewCaptions(cfg Config) *Captions {
	return &Captions{cfg: cfg.withDefaults(), dialer: websocket.DefaultDialer, keepAlive: defaultKeepAlive}
}

func (p *Captions) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if p.cfg.APIKey == "" {
		return nil, domain.NewError(domain.ErrorCodeConfiguration, "DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := captionsURL(p.cfg, cfg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeConfiguration, err, "")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, rejection(resp)
		}
		return nil, domain.WrapError(domain.ErrorCodeNetwork, err, "failed to connect to Deepgram websocket")
	}

	stream := newLiveStream(conn, outboxSize)
	stream.run(ctx, p.keepAlive)
	return stream, nil
}

// liveStream is one caption websocket. The outbox is never closed: CloseSend
// and Close are signalled on their own channels so a late SendAudio can only
// fail, never panic.
type liveStream struct {
	conn *websocket.Conn

	outbox chan []byte
	events chan domain.TranscriptEvent

	flush     chan struct{}
	flushOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

func newLiveStream(conn *websocket.Conn, backlog int) *liveStream {
	return &liveStream{
		conn:   conn,
		outbox: make(chan []byte, backlog),
		events: make(chan domain.TranscriptEvent, 64),
		flush:  make(chan struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *liveStream) run(ctx context.Context, keepAlive time.Duration) {
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		s.write(keepAlive)
	}()
	go func() {
		defer workers.Done()
		s.read()
	}()

	go func() {
		workers.Wait()
		close(s.events)
		close(s.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
}

// SendAudio queues a copy of chunk without blocking.
func (s *liveStream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.closed:
		return s.closedErr()
	case <-s.flush:
		return errors.New("audio stream is already closed")
	default:
	}

	select {
	case s.outbox <- append([]byte(nil), chunk...):
		return nil
	default:
		return ErrBackpressure
	}
}

// CloseSend asks the service to finish the queued audio and close.
func (s *liveStream) CloseSend() error {
	s.flushOnce.Do(func() { close(s.flush) })
	return nil
}

func (s *liveStream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *liveStream) Wait() error {
	<-s.done
	return s.failure()
}

// Close tears the socket down without waiting for pending text.
func (s *liveStream) Close() error {
	s.shutdown()
	if s.conn != nil {
		<-s.done
	}
	return s.failure()
}

func (s *liveStream) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *liveStream) closedErr() error {
	if err := s.failure(); err != nil {
		return err
	}
	return errors.New("session closed")
}

func (s *liveStream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records the first real failure; orderly closes are not failures.
func (s *liveStream) fail(err error) {
	if err == nil || isOrderlyClose(err) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func isOrderlyClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}

func (s *liveStream) write(keepAlive time.Duration) {
	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.closed:
			return
		case chunk := <-s.outbox:
			if !s.send(websocket.BinaryMessage, chunk) {
				return
			}
		case <-tick:
			if !s.send(websocket.TextMessage, keepAliveMsg) {
				return
			}
		case <-s.flush:
			if s.drain() {
				s.send(websocket.TextMessage, closeStreamMsg)
			}
			return
		}
	}
}

// drain writes whatever audio is still queued.
func (s *liveStream) drain() bool {
	for {
		select {
		case chunk := <-s.outbox:
			if !s.send(websocket.BinaryMessage, chunk) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *liveStream) send(kind int, payload []byte) bool {
	if err := s.conn.WriteMessage(kind, payload); err != nil {
		select {
		case <-s.closed:
		default:
			s.fail(fmt.Errorf("failed to send audio: %w", err))
		}
		return false
	}
	return true
}

func (s *liveStream) read() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.fail(domain.WrapError(domain.ErrorCodeNetwork, err, "caption socket closed"))
			}
			s.shutdown()
			return
		}

		var message listenResponse
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}
		if failure := message.failure(); failure != nil {
			s.fail(failure)
			s.shutdown()
			return
		}
		if event, ok := message.captionEvent(); ok {
			s.publish(event)
		}
	}
}

// publish drops events the consumer is too slow to take.
func (s *liveStream) publish(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
	}
}

func captionsURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	endpoint, err := providerCfg.listenEndpoint(true)
	if err != nil {
		return "", err
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := endpoint.Query()
	query.Set("model", captionsModel(providerCfg.Model))
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// captionsModel swaps whisper models, which the live endpoint does not
// serve, for the general streaming model.
func captionsModel(model string) string {
	if strings.HasPrefix(model, "whisper") {
		return "nova-2"
	}
	return model
}
