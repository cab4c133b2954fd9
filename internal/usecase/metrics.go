package usecase

import (
	"log/slog"
	"time"

	"voicechat/internal/domain"
)

// turnMetrics records timing for one voice turn. It is owned by the
// controller and only touched under its state lock.
type turnMetrics struct {
	SessionID     string
	StartedAt     time.Time
	StoppedAt     time.Time
	SentAt        time.Time
	SettledAt     time.Time
	AudioBytes    int
	AudioDuration time.Duration
	CaptionChars  int
	Outcome       string
}

func newTurnMetrics(sessionID string, now time.Time) *turnMetrics {
	return &turnMetrics{SessionID: sessionID, StartedAt: now}
}

func (m *turnMetrics) recorded(blob domain.AudioBlob, now time.Time) {
	if m == nil {
		return
	}
	m.StoppedAt = now
	m.AudioBytes = len(blob.Data)
	m.AudioDuration = blob.Duration
}

func (m *turnMetrics) sent(now time.Time) {
	if m == nil {
		return
	}
	m.SentAt = now
}

func (m *turnMetrics) captioned(chars int) {
	if m == nil {
		return
	}
	m.CaptionChars = chars
}

func (m *turnMetrics) settled(now time.Time, outcome string) {
	if m == nil {
		return
	}
	m.SettledAt = now
	m.Outcome = outcome
}

func (m *turnMetrics) log(logger *slog.Logger) {
	if m == nil {
		return
	}
	var transcribe time.Duration
	if !m.SentAt.IsZero() && !m.SettledAt.IsZero() {
		transcribe = m.SettledAt.Sub(m.SentAt)
	}
	var rtf float64
	if m.AudioDuration > 0 && transcribe > 0 {
		rtf = transcribe.Seconds() / m.AudioDuration.Seconds()
	}
	logger.Info("voice turn settled",
		"session_id", m.SessionID,
		"outcome", m.Outcome,
		"record_ms", m.StoppedAt.Sub(m.StartedAt).Milliseconds(),
		"audio_ms", m.AudioDuration.Milliseconds(),
		"audio_bytes", m.AudioBytes,
		"transcribe_ms", transcribe.Milliseconds(),
		"real_time_factor", rtf,
		"caption_chars", m.CaptionChars,
	)
}
