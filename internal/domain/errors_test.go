package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("upload: %w", &Error{Code: ErrorCodeService, Status: 502, Detail: "bad gateway"})
	if !errors.Is(err, ErrService) {
		t.Fatalf("expected service error to match sentinel")
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatalf("service error must not match network sentinel")
	}

	var classified *Error
	if !errors.As(err, &classified) || classified.Status != 502 {
		t.Fatalf("expected status 502, got %+v", classified)
	}
}

func TestErrorRetryable(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]bool{
		ErrorCodeNetwork:     true,
		ErrorCodeRateLimited: true,
		ErrorCodeAuth:        false,
		ErrorCodeBadInput:    false,
		ErrorCodeService:     false,
	}
	for code, want := range cases {
		if got := NewError(code, "").Retryable(); got != want {
			t.Fatalf("%s: expected retryable=%t, got %t", code, want, got)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("unclassified errors are not retryable")
	}
}

func TestErrorUnwrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := WrapError(ErrorCodeNetwork, cause, "upload failed")
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if got := err.Error(); got != "network: upload failed: connection reset" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if CodeOf(nil) != "" {
		t.Fatalf("nil error has no code")
	}
	if CodeOf(errors.New("boom")) != ErrorCodeInternal {
		t.Fatalf("unclassified errors are internal")
	}
	if CodeOf(InvalidState("pause", TurnStateIdle)) != ErrorCodeInvalidState {
		t.Fatalf("expected invalid_state")
	}
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	cases := map[int]string{0: "00:00", 9: "00:09", 61: "01:01", 600: "10:00", -3: "00:00"}
	for in, want := range cases {
		if got := FormatElapsed(in); got != want {
			t.Fatalf("FormatElapsed(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestTranscriptionResultNoSpeech(t *testing.T) {
	t.Parallel()

	if !(TranscriptionResult{Text: "  \n"}).NoSpeech() {
		t.Fatalf("whitespace is no speech")
	}
	if (TranscriptionResult{Text: "مرحبا"}).NoSpeech() {
		t.Fatalf("text is speech")
	}
}
