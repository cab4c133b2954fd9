package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"voicechat/internal/capture"
	"voicechat/internal/domain"
	"voicechat/internal/logging"
	"voicechat/internal/ports"
)

// Config controls voice turn behavior.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	// MaxDuration is the recording limit in seconds. Zero disables it.
	MaxDuration int
	Language    string
	Voice       domain.VoiceOptions
	AutoSpeak   bool
	// ErrorDisplay is how long a transient transcription error is shown
	// before the controller falls back to idle. Zero keeps it until the next
	// command.
	ErrorDisplay   time.Duration
	StreamingGrace time.Duration
	Clock          clock.WithTickerAndDelayedExecution
	Logger         *slog.Logger
}

// VoiceController owns the single active voice turn: record, review, send,
// and speak the answer back.
type VoiceController struct {
	mic         ports.Microphone
	transcriber ports.Transcriber
	captions    ports.CaptionProvider
	speaker     ports.Speaker
	events      ports.EventSink
	cfg         Config
	clk         clock.WithTickerAndDelayedExecution
	logger      *slog.Logger

	// opMu serializes commands; mu guards the fields below it.
	opMu sync.Mutex

	mu            sync.Mutex
	state         domain.TurnState
	gen           uint64
	session       *capture.Session
	live          *liveCaptions
	cancelTurn    context.CancelFunc
	cancelSend    context.CancelFunc
	clearTimer    clock.Timer
	blob          *domain.AudioBlob
	transcript    string
	lastErr       *domain.Error
	deletePending bool
	speaking      bool
	metrics       *turnMetrics
}

func NewVoiceController(
	mic ports.Microphone,
	transcriber ports.Transcriber,
	captions ports.CaptionProvider,
	speaker ports.Speaker,
	events ports.EventSink,
	cfg Config,
) *VoiceController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &VoiceController{
		mic:         mic,
		transcriber: transcriber,
		captions:    captions,
		speaker:     speaker,
		events:      events,
		cfg:         cfg,
		clk:         cfg.Clock,
		logger:      logger.With("component", "voice"),
		state:       domain.TurnStateIdle,
	}
}

// Start begins a new recording, discarding whatever the previous turn left
// behind. Starting is refused while a recording is being transcribed.
func (c *VoiceController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == domain.TurnStateTranscribing {
		state := c.state
		c.mu.Unlock()
		return domain.InvalidState("start recording", state)
	}
	restarted := c.session != nil
	previous := c.detachLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	previous.release()
	c.stopSpeaking()

	turnCtx, cancelTurn := context.WithCancel(ctx)
	live := startLiveCaptions(turnCtx, c.captions, c.cfg.Streaming, c.events, c.cfg.StreamingGrace, c.logger)

	sessionCfg := capture.Config{
		Audio:       c.cfg.Audio,
		MaxDuration: c.cfg.MaxDuration,
		ChunkSize:   c.cfg.ChunkSize,
		Clock:       c.clk,
		Logger:      c.logger,
		OnTick:      func(int) { c.onTick(gen) },
		OnAutoStop:  func(blob domain.AudioBlob) { c.finishCapture(gen, blob, domain.ReasonMaxDurationReached) },
		OnReadError: func(err error) { c.onCaptureError(gen, err) },
	}
	if live != nil {
		sessionCfg.OnChunk = live.send
	}
	session := capture.New(c.mic, sessionCfg)

	if err := session.Start(ctx); err != nil {
		live.abort()
		session.Dispose()
		cancelTurn()

		classified := domain.AsError(err)
		c.mu.Lock()
		c.state = domain.TurnStateError
		c.lastErr = classified
		status := c.statusLocked()
		c.mu.Unlock()

		c.logger.Warn("recording failed to start", "error", err)
		c.events.SessionError(classified.Code, classified.Error())
		c.events.StateChanged(status, domain.ReasonCaptureFailed)
		return err
	}

	c.mu.Lock()
	c.session = session
	c.live = live
	c.cancelTurn = cancelTurn
	c.state = domain.TurnStateRecording
	c.metrics = newTurnMetrics(session.ID(), c.clk.Now())
	status := c.statusLocked()
	c.mu.Unlock()

	reason := domain.ReasonRecordingStarted
	if restarted {
		reason = domain.ReasonRecordingRestarted
	}
	c.logger.Info("recording started", "session_id", session.ID(), "restarted", restarted)
	c.events.StateChanged(status, reason)
	return nil
}

// Pause suspends an active recording without finalizing it.
func (c *VoiceController) Pause() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, gen, err := c.sessionIn(domain.TurnStateRecording, "pause")
	if err != nil {
		return err
	}
	if err := session.Pause(); err != nil {
		return err
	}
	c.transition(gen, domain.TurnStatePaused, domain.ReasonRecordingPaused)
	return nil
}

// Resume continues a paused recording.
func (c *VoiceController) Resume() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, gen, err := c.sessionIn(domain.TurnStatePaused, "resume")
	if err != nil {
		return err
	}
	if err := session.Resume(); err != nil {
		return err
	}
	c.transition(gen, domain.TurnStateRecording, domain.ReasonRecordingResumed)
	return nil
}

// Stop finalizes the recording and holds the blob for review. When the
// duration limit already stopped it, the held blob is returned.
func (c *VoiceController) Stop() (domain.AudioBlob, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == domain.TurnStateStopped && c.blob != nil {
		blob := *c.blob
		c.mu.Unlock()
		return blob, nil
	}
	if !c.state.Capturing() {
		state := c.state
		c.mu.Unlock()
		return domain.AudioBlob{}, domain.InvalidState("stop recording", state)
	}
	session, gen := c.session, c.gen
	c.mu.Unlock()

	blob, err := session.Stop()
	if err != nil {
		if held, ok := c.heldBlob(gen); ok {
			return held, nil
		}
		return domain.AudioBlob{}, err
	}
	c.finishCapture(gen, blob, domain.ReasonRecordingStopped)
	return blob, nil
}

// Send submits the stopped recording for transcription. The result is
// delivered asynchronously through the event sink.
func (c *VoiceController) Send(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.TurnStateStopped || c.blob == nil {
		state := c.state
		c.mu.Unlock()
		return domain.InvalidState("send recording", state)
	}
	blob := *c.blob
	gen := c.gen
	sessionID := c.session.ID()
	sendCtx, cancel := context.WithCancel(ctx)
	c.cancelSend = cancel
	c.state = domain.TurnStateTranscribing
	c.metrics.sent(c.clk.Now())
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("sending recording", "session_id", sessionID, "bytes", len(blob.Data), "duration", blob.Duration)
	c.events.StateChanged(status, domain.ReasonTranscribing)
	go c.transcribe(sendCtx, gen, sessionID, blob)
	return nil
}

// Delete discards the current turn. While a transcription is in flight the
// request is cancelled and the turn resets once it settles.
func (c *VoiceController) Delete() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == domain.TurnStateTranscribing {
		c.deletePending = true
		if c.cancelSend != nil {
			c.cancelSend()
		}
		status := c.statusLocked()
		c.mu.Unlock()

		c.stopSpeaking()
		c.events.StateChanged(status, domain.ReasonDeletePending)
		return nil
	}
	previous := c.detachLocked()
	c.gen++
	c.state = domain.TurnStateIdle
	status := c.statusLocked()
	c.mu.Unlock()

	previous.release()
	c.stopSpeaking()
	c.events.StateChanged(status, domain.ReasonTurnDeleted)
	return nil
}

// Dispose releases every resource. Late callbacks from the disposed turn are
// ignored.
func (c *VoiceController) Dispose() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	previous := c.detachLocked()
	c.gen++
	c.state = domain.TurnStateIdle
	status := c.statusLocked()
	c.mu.Unlock()

	previous.release()
	c.stopSpeaking()
	c.events.StateChanged(status, domain.ReasonControllerDisposed)
}

// Status returns the current turn projection.
func (c *VoiceController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// SpeechChanged folds playback transitions into the turn status.
func (c *VoiceController) SpeechChanged(state domain.PlaybackState, err error) {
	c.mu.Lock()
	c.speaking = state.Speaking
	status := c.statusLocked()
	c.mu.Unlock()

	reason := domain.ReasonSpeakingFinished
	if state.Speaking {
		reason = domain.ReasonSpeakingStarted
	}
	if err != nil {
		reason = domain.ReasonSpeakingFailed
		c.events.SessionError(domain.CodeOf(err), err.Error())
	}
	c.events.StateChanged(status, reason)
}

func (c *VoiceController) transcribe(ctx context.Context, gen uint64, sessionID string, blob domain.AudioBlob) {
	var (
		result domain.TranscriptionResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = domain.NewError(domain.ErrorCodeInternal, fmt.Sprintf("transcription panicked: %v", r))
			}
		}()
		result, err = c.transcriber.Transcribe(ctx, blob, c.cfg.Language)
	}()
	result.SessionID = sessionID
	c.settle(gen, result, err)
}

func (c *VoiceController) settle(gen uint64, result domain.TranscriptionResult, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.state != domain.TurnStateTranscribing {
		c.mu.Unlock()
		c.logger.Debug("discarding stale transcription", "session_id", result.SessionID)
		return
	}
	if c.cancelSend != nil {
		c.cancelSend()
		c.cancelSend = nil
	}
	metrics := c.metrics
	metrics.captioned(len(c.live.text()))

	if c.deletePending {
		metrics.settled(c.clk.Now(), "deleted")
		previous := c.detachLocked()
		c.gen++
		c.state = domain.TurnStateIdle
		status := c.statusLocked()
		c.mu.Unlock()

		previous.release()
		metrics.log(c.logger)
		c.events.StateChanged(status, domain.ReasonTurnDeleted)
		return
	}

	switch {
	case err != nil:
		classified := domain.AsError(err)
		metrics.settled(c.clk.Now(), string(classified.Code))
		c.state = domain.TurnStateError
		c.lastErr = classified
		if clearsAutomatically(classified.Code) {
			c.scheduleClearLocked(gen)
		}
		status := c.statusLocked()
		c.mu.Unlock()

		metrics.log(c.logger)
		c.logger.Warn("transcription failed", "session_id", result.SessionID, "code", classified.Code, "error", err)
		c.events.SessionError(classified.Code, classified.Error())
		c.events.StateChanged(status, domain.ReasonTranscriptionFailed)

	case result.NoSpeech():
		metrics.settled(c.clk.Now(), string(domain.ErrorCodeNoSpeech))
		c.state = domain.TurnStateIdle
		c.blob = nil
		c.transcript = ""
		status := c.statusLocked()
		c.mu.Unlock()

		metrics.log(c.logger)
		c.events.StateChanged(status, domain.ReasonNoSpeech)

	default:
		metrics.settled(c.clk.Now(), "transcribed")
		c.state = domain.TurnStatePlaybackReady
		c.transcript = result.Text
		status := c.statusLocked()
		c.mu.Unlock()

		metrics.log(c.logger)
		c.events.StateChanged(status, domain.ReasonTranscriptReady)
		if c.cfg.AutoSpeak && c.speaker != nil {
			if err := c.speaker.Speak(context.Background(), result.Text, c.cfg.Voice); err != nil {
				c.logger.Warn("speaking transcript failed", "error", err)
				c.events.SessionError(domain.CodeOf(err), err.Error())
			}
		}
	}
}

// finishCapture records a stopped blob if gen is still the active turn.
func (c *VoiceController) finishCapture(gen uint64, blob domain.AudioBlob, reason domain.StateReason) {
	c.mu.Lock()
	if gen != c.gen || !c.state.Capturing() {
		c.mu.Unlock()
		return
	}
	c.state = domain.TurnStateStopped
	c.blob = &blob
	c.metrics.recorded(blob, c.clk.Now())
	live := c.live
	status := c.statusLocked()
	c.mu.Unlock()

	live.finish()
	c.logger.Info("recording stopped", "reason", reason, "elapsed", status.ElapsedSeconds, "bytes", len(blob.Data))
	c.events.StateChanged(status, reason)
}

func (c *VoiceController) onTick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != domain.TurnStateRecording {
		c.mu.Unlock()
		return
	}
	status := c.statusLocked()
	c.mu.Unlock()
	c.events.StateChanged(status, domain.ReasonElapsed)
}

func (c *VoiceController) onCaptureError(gen uint64, err error) {
	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()
	if !current {
		return
	}
	c.events.SessionError(domain.CodeOf(err), err.Error())
}

func (c *VoiceController) clearError(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != domain.TurnStateError {
		c.mu.Unlock()
		return
	}
	c.state = domain.TurnStateIdle
	c.lastErr = nil
	c.blob = nil
	c.clearTimer = nil
	status := c.statusLocked()
	c.mu.Unlock()
	c.events.StateChanged(status, domain.ReasonErrorCleared)
}

func (c *VoiceController) scheduleClearLocked(gen uint64) {
	if c.cfg.ErrorDisplay <= 0 {
		return
	}
	c.clearTimer = c.clk.AfterFunc(c.cfg.ErrorDisplay, func() { c.clearError(gen) })
}

func (c *VoiceController) sessionIn(want domain.TurnState, command string) (*capture.Session, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want {
		return nil, 0, domain.InvalidState(command, c.state)
	}
	return c.session, c.gen, nil
}

func (c *VoiceController) transition(gen uint64, state domain.TurnState, reason domain.StateReason) {
	c.mu.Lock()
	if gen != c.gen || !c.state.Capturing() {
		c.mu.Unlock()
		return
	}
	c.state = state
	status := c.statusLocked()
	c.mu.Unlock()
	c.events.StateChanged(status, reason)
}

func (c *VoiceController) heldBlob(gen uint64) (domain.AudioBlob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != domain.TurnStateStopped || c.blob == nil {
		return domain.AudioBlob{}, false
	}
	return *c.blob, true
}

func (c *VoiceController) stopSpeaking() {
	if c.speaker == nil {
		return
	}
	if err := c.speaker.Stop(); err != nil {
		c.logger.Debug("stopping speech failed", "error", err)
	}
}

func (c *VoiceController) statusLocked() domain.Status {
	status := domain.Status{
		State:              c.state,
		MaxDurationSeconds: c.cfg.MaxDuration,
		Transcript:         c.transcript,
		Speaking:           c.speaking,
		DeletePending:      c.deletePending,
	}
	if c.session != nil {
		snap := c.session.Snapshot()
		status.SessionID = snap.ID
		status.ElapsedSeconds = snap.ElapsedSeconds
		if c.state.Capturing() {
			status.Level = c.session.Level()
		}
	}
	status.Elapsed = domain.FormatElapsed(status.ElapsedSeconds)
	if c.lastErr != nil {
		status.Error = c.lastErr.Error()
		status.ErrorCode = c.lastErr.Code
	}
	return status
}

// turnResources are released outside the state lock; capture teardown waits
// on goroutines that may call back into the controller.
type turnResources struct {
	session    *capture.Session
	live       *liveCaptions
	cancelTurn context.CancelFunc
	cancelSend context.CancelFunc
	clearTimer clock.Timer
}

func (c *VoiceController) detachLocked() turnResources {
	res := turnResources{
		session:    c.session,
		live:       c.live,
		cancelTurn: c.cancelTurn,
		cancelSend: c.cancelSend,
		clearTimer: c.clearTimer,
	}
	c.session = nil
	c.live = nil
	c.cancelTurn = nil
	c.cancelSend = nil
	c.clearTimer = nil
	c.blob = nil
	c.transcript = ""
	c.lastErr = nil
	c.deletePending = false
	c.metrics = nil
	return res
}

func (r turnResources) release() {
	if r.clearTimer != nil {
		r.clearTimer.Stop()
	}
	if r.cancelSend != nil {
		r.cancelSend()
	}
	r.live.abort()
	if r.session != nil {
		r.session.Dispose()
	}
	if r.cancelTurn != nil {
		r.cancelTurn()
	}
}

// clearsAutomatically reports whether a transcription failure is transient.
// Credential and configuration problems stay visible until the next command.
func clearsAutomatically(code domain.ErrorCode) bool {
	switch code {
	case domain.ErrorCodeAuth, domain.ErrorCodeConfiguration:
		return false
	default:
		return true
	}
}
