package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicechat/internal/domain"
	"voicechat/internal/ports"
)

const (
	ffmpegStartupCheck = 250 * time.Millisecond
	ffmpegStopGrace    = 1200 * time.Millisecond
)

// FFMPEGMicrophone captures PCM16 microphone audio through an ffmpeg child process.
type FFMPEGMicrophone struct {
	command string
}

func NewFFMPEGMicrophone(command string) *FFMPEGMicrophone {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGMicrophone{command: command}
}

func (m *FFMPEGMicrophone) Open(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureDevice, error) {
	cmd := exec.CommandContext(ctx, m.command, ffmpegArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrorCodeUnsupported, err, "ffmpeg is not installed")
		}
		return nil, domain.WrapError(domain.ErrorCodePermissionDenied, err, "failed to start ffmpeg")
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg exits almost immediately when the source is missing or access is refused.
	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("ffmpeg exited before capture started")
		}
		return nil, domain.WrapError(domain.ErrorCodePermissionDenied, err, detail)
	case <-time.After(ffmpegStartupCheck):
	}

	return &ffmpegDevice{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
	}

	var filters []string
	if cfg.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn")
	}
	if cfg.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

type ffmpegDevice struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	// ffmpeg keeps running while paused; its output is drained and discarded
	// so the pipe never fills up.
	paused atomic.Bool

	stopOnce sync.Once
	stopErr  error
}

func (d *ffmpegDevice) Read(p []byte) (int, error) {
	for {
		n, err := d.stdout.Read(p)
		if !d.paused.Load() {
			return n, err
		}
		if err != nil {
			return 0, err
		}
	}
}

func (d *ffmpegDevice) Pause() error {
	d.paused.Store(true)
	return nil
}

func (d *ffmpegDevice) Resume() error {
	d.paused.Store(false)
	return nil
}

func (d *ffmpegDevice) Stop() error {
	d.stopOnce.Do(func() {
		if d.process != nil {
			_ = d.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-d.waitErr:
			if ok {
				d.stopErr = ignoreExitStatus(err)
			}
		case <-time.After(ffmpegStopGrace):
			if d.process != nil {
				_ = d.process.Kill()
			}
			if err, ok := <-d.waitErr; ok {
				d.stopErr = ignoreExitStatus(err)
			}
		}

		if closeErr := d.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && d.stopErr == nil {
			d.stopErr = closeErr
		}
		if d.stopErr != nil && d.stderr.Len() > 0 {
			d.stopErr = fmt.Errorf("%w: %s", d.stopErr, strings.TrimSpace(d.stderr.String()))
		}
	})
	return d.stopErr
}

// ignoreExitStatus drops the non-zero exit ffmpeg reports after SIGINT.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
