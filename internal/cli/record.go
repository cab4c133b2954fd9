package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voicechat/internal/bootstrap"
	"voicechat/internal/config"
	"voicechat/internal/domain"
)

func NewRecordCommand() *cobra.Command {
	var (
		maxDuration int
		language    string
		speak       bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one voice turn and print the transcript",
		Long: `Records from the configured microphone until Enter is pressed or the
maximum duration is reached, then transcribes the recording. The transcript
is printed to stdout for piping; progress goes to stderr.

Examples:
  voicectl record
  voicectl record --max-duration 20 --language en
  voicectl record --speak`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("max-duration") {
				cfg.Session.MaxDuration = maxDuration
			}
			if language != "" {
				cfg.Deepgram.Language = language
			}
			cfg.Speech.AutoSpeak = speak
			// There is no webview to drive from a terminal.
			if cfg.Speech.Engine == config.SpeechEngineBridge {
				cfg.Speech.Engine = config.SpeechEngineCommand
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecord(ctx, cmd, cfg)
		},
	}

	cmd.Flags().IntVarP(&maxDuration, "max-duration", "d", 10, "Maximum recording length in seconds (0 disables the limit)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Transcription language hint")
	cmd.Flags().BoolVar(&speak, "speak", false, "Read the transcript back when it is ready")
	return cmd
}

func runRecord(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	sink := newConsoleSink(cmd.ErrOrStderr())
	services, err := bootstrap.Assemble(cfg, bootstrap.Options{Events: sink})
	if err != nil {
		return err
	}
	controller := services.Controller
	defer controller.Dispose()

	if err := controller.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "recording... press Enter to stop")

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-sink.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := controller.Stop(); err != nil {
		return err
	}
	if err := controller.Send(ctx); err != nil {
		return err
	}

	var reason domain.StateReason
	select {
	case reason = <-sink.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	status := controller.Status()
	switch reason {
	case domain.ReasonNoSpeech:
		fmt.Fprintln(cmd.ErrOrStderr(), "no speech detected")
		return nil
	case domain.ReasonTranscriptionFailed:
		return errors.New(status.Error)
	case domain.ReasonTranscriptReady:
		fmt.Fprintln(cmd.OutOrStdout(), status.Transcript)
	default:
		return nil
	}

	if !cfg.Speech.AutoSpeak || !services.Speech.Available() {
		return nil
	}
	select {
	case err := <-sink.spoken:
		return err
	case <-ctx.Done():
		_ = services.Speech.Stop()
		return ctx.Err()
	}
}
