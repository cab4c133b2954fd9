package cli

import (
	"fmt"
	"io"
	"sync"

	"voicechat/internal/domain"
)

// consoleSink prints turn progress to a terminal and exposes the milestones
// the commands wait on.
type consoleSink struct {
	out io.Writer

	mu sync.Mutex

	stopped chan struct{}
	settled chan domain.StateReason
	spoken  chan error

	stopOnce sync.Once
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{
		out:     out,
		stopped: make(chan struct{}),
		settled: make(chan domain.StateReason, 1),
		spoken:  make(chan error, 1),
	}
}

func (s *consoleSink) StateChanged(status domain.Status, reason domain.StateReason) {
	switch reason {
	case domain.ReasonElapsed:
		s.printf("\r%s / %s", status.Elapsed, domain.FormatElapsed(status.MaxDurationSeconds))
	case domain.ReasonRecordingStopped, domain.ReasonMaxDurationReached:
		s.printf("\nrecording stopped at %s\n", status.Elapsed)
		s.stopOnce.Do(func() { close(s.stopped) })
	case domain.ReasonTranscribing:
		s.printf("transcribing...\n")
	case domain.ReasonTranscriptReady, domain.ReasonNoSpeech, domain.ReasonTranscriptionFailed, domain.ReasonTurnDeleted:
		select {
		case s.settled <- reason:
		default:
		}
	case domain.ReasonSpeakingFinished:
		s.finishSpeaking(nil)
	case domain.ReasonSpeakingFailed:
		s.finishSpeaking(fmt.Errorf("speech failed: %s", status.Error))
	}
}

func (s *consoleSink) PartialTranscript(text string) {
	s.printf("\n… %s\n", text)
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	s.printf("error [%s]: %s\n", code, detail)
	if code == domain.ErrorCodeSynthesis || code == domain.ErrorCodeUnsupported {
		s.finishSpeaking(fmt.Errorf("%s: %s", code, detail))
	}
}

func (s *consoleSink) finishSpeaking(err error) {
	select {
	case s.spoken <- err:
	default:
	}
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
