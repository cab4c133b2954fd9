package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

// Config controls one capture session.
type Config struct {
	Audio ports.AudioConfig
	// MaxDuration is the auto-stop limit in seconds. Zero disables it.
	MaxDuration int
	ChunkSize   int
	Clock       clock.WithTicker
	Logger      *slog.Logger

	// OnChunk receives every buffered PCM chunk. The slice is reused after
	// the callback returns.
	OnChunk     func(chunk []byte)
	OnTick      func(elapsed int)
	OnAutoStop  func(blob domain.AudioBlob)
	OnReadError func(err error)
}

// Session records one utterance from a microphone into an in-memory WAV blob.
type Session struct {
	id     string
	mic    ports.Microphone
	cfg    Config
	clk    clock.WithTicker
	logger *slog.Logger

	mu        sync.Mutex
	state     domain.TurnState
	opening   bool
	disposed  bool
	device    ports.CaptureDevice
	readDone  chan struct{}
	pcm       bytes.Buffer
	level     float64
	startedAt time.Time
	elapsed   int
	finalized chan struct{}
	final     domain.AudioBlob

	tickGen  uint64
	ticker   clock.Ticker
	tickStop chan struct{}
}

// New prepares an idle session. Nothing is opened until Start.
func New(mic ports.Microphone, cfg Config) *Session {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		mic:    mic,
		cfg:    cfg,
		clk:    cfg.Clock,
		logger: logger.With("component", "capture", "session_id", id),
		state:  domain.TurnStateIdle,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the session's current bookkeeping.
func (s *Session) Snapshot() domain.RecordingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RecordingSession{
		ID:                 s.id,
		State:              s.state,
		StartedAt:          s.startedAt,
		ElapsedSeconds:     s.elapsed,
		MaxDurationSeconds: s.cfg.MaxDuration,
	}
}

// Level is the RMS level (0..1) of the most recent chunk.
func (s *Session) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Buffered is the number of PCM bytes held so far.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pcm.Len()
}

// Start opens the microphone and begins buffering. It blocks while the
// platform resolves microphone access.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return domain.NewError(domain.ErrorCodeInvalidState, "capture session disposed")
	}
	if s.opening || s.state != domain.TurnStateIdle {
		state := s.state
		s.mu.Unlock()
		return domain.InvalidState("start", state)
	}
	s.opening = true
	s.mu.Unlock()

	device, err := s.mic.Open(ctx, s.cfg.Audio)

	s.mu.Lock()
	s.opening = false
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrUnsupported) {
			return err
		}
		return domain.WrapError(domain.ErrorCodePermissionDenied, err, "microphone unavailable")
	}
	if s.disposed {
		s.mu.Unlock()
		_ = device.Stop()
		return domain.NewError(domain.ErrorCodeInvalidState, "capture session disposed while opening")
	}

	s.device = device
	s.state = domain.TurnStateRecording
	s.startedAt = s.clk.Now()
	s.readDone = make(chan struct{})
	readDone := s.readDone
	s.startTickerLocked()
	s.mu.Unlock()

	go s.readLoop(device, readDone)
	s.logger.Debug("capture started", "max_duration", s.cfg.MaxDuration)
	return nil
}

// Pause suspends the device and the elapsed ticker.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.TurnStateRecording {
		return domain.InvalidState("pause", s.state)
	}
	if err := s.device.Pause(); err != nil {
		return domain.WrapError(domain.ErrorCodeAudioStream, err, "failed to pause microphone")
	}
	s.state = domain.TurnStatePaused
	s.stopTickerLocked()
	return nil
}

// Resume continues a paused recording.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.TurnStatePaused {
		return domain.InvalidState("resume", s.state)
	}
	if err := s.device.Resume(); err != nil {
		return domain.WrapError(domain.ErrorCodeAudioStream, err, "failed to resume microphone")
	}
	s.state = domain.TurnStateRecording
	s.startTickerLocked()
	return nil
}

// Stop releases the microphone and returns the finalized recording. A Stop
// that overlaps another one waits for it and returns the same blob.
func (s *Session) Stop() (domain.AudioBlob, error) {
	blob, _, err := s.stop()
	return blob, err
}

// stop reports whether this call was the one that finalized the recording.
func (s *Session) stop() (domain.AudioBlob, bool, error) {
	s.mu.Lock()
	if s.state == domain.TurnStateStopped && s.finalized != nil {
		finalized := s.finalized
		s.mu.Unlock()
		<-finalized

		s.mu.Lock()
		defer s.mu.Unlock()
		return s.final, false, nil
	}
	if !s.state.Capturing() {
		state := s.state
		s.mu.Unlock()
		return domain.AudioBlob{}, false, domain.InvalidState("stop", state)
	}
	s.state = domain.TurnStateStopped
	s.stopTickerLocked()
	device, readDone := s.device, s.readDone
	s.device = nil
	finalized := make(chan struct{})
	s.finalized = finalized
	s.mu.Unlock()

	if err := device.Stop(); err != nil {
		s.logger.Warn("microphone did not stop cleanly", "error", err)
	}
	<-readDone

	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = encodeWAV(s.pcm.Bytes(), s.cfg.Audio.SampleRate, s.cfg.Audio.Channels)
	s.pcm.Reset()
	s.level = 0
	close(finalized)
	s.logger.Debug("capture stopped", "elapsed", s.elapsed, "bytes", len(s.final.Data))
	return s.final, true, nil
}

// Dispose force-releases everything. Safe to call repeatedly and from any state.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.stopTickerLocked()
	device, readDone := s.device, s.readDone
	s.device = nil
	if s.state.Capturing() {
		s.state = domain.TurnStateIdle
	}
	s.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		<-readDone
	}

	s.mu.Lock()
	s.pcm.Reset()
	s.level = 0
	s.mu.Unlock()
}

func (s *Session) readLoop(device ports.CaptureDevice, done chan struct{}) {
	defer close(done)

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, err := device.Read(buf)
		if n > 0 && s.buffer(buf[:n]) && s.cfg.OnChunk != nil {
			s.cfg.OnChunk(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return
			}
			s.mu.Lock()
			live := s.state.Capturing() && !s.disposed
			s.mu.Unlock()
			if live {
				s.logger.Error("microphone read failed", "error", err)
				if s.cfg.OnReadError != nil {
					s.cfg.OnReadError(domain.WrapError(domain.ErrorCodeAudioStream, err, "audio capture error"))
				}
			}
			return
		}
	}
}

func (s *Session) buffer(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state == domain.TurnStatePaused {
		return false
	}
	s.pcm.Write(chunk)
	s.level = rmsLevel(chunk)
	return true
}

func (s *Session) startTickerLocked() {
	s.tickGen++
	s.ticker = s.clk.NewTicker(time.Second)
	s.tickStop = make(chan struct{})
	go s.tickLoop(s.ticker, s.tickStop, s.tickGen)
}

func (s *Session) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickStop)
	s.ticker = nil
	s.tickStop = nil
	s.tickGen++
}

func (s *Session) tickLoop(ticker clock.Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !s.tick(gen) {
				return
			}
		}
	}
}

func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	if gen != s.tickGen || s.state != domain.TurnStateRecording {
		s.mu.Unlock()
		return false
	}
	s.elapsed++
	elapsed := s.elapsed
	limitReached := s.cfg.MaxDuration > 0 && elapsed >= s.cfg.MaxDuration
	s.mu.Unlock()

	if s.cfg.OnTick != nil {
		s.cfg.OnTick(elapsed)
	}
	if !limitReached {
		return true
	}

	blob, finalized, err := s.stop()
	if err != nil || !finalized {
		// A manual stop won the race.
		return false
	}
	s.logger.Info("max recording duration reached", "elapsed", elapsed)
	if s.cfg.OnAutoStop != nil {
		s.cfg.OnAutoStop(blob)
	}
	return false
}
