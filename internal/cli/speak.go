package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voicechat/internal/config"
	"voicechat/internal/domain"
	"voicechat/internal/rules"
	"voicechat/internal/speech"
)

func NewSpeakCommand() *cobra.Command {
	var (
		language string
		hint     string
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Read text aloud with the local speech engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts := cfg.Speech.Voice
			if language != "" {
				opts.Language = language
			}
			if hint != "" {
				opts.VoiceHint = hint
			}

			subs, err := rules.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
			if err != nil {
				return err
			}
			controller := speech.NewController(
				speech.NewCommandEngine(cfg.Speech.Command, nil),
				rules.NewPreparer(subs, cfg.Speech.MaxChars),
			)

			done := make(chan error, 1)
			controller.SetListener(func(state domain.PlaybackState, err error) {
				if state.Speaking {
					return
				}
				select {
				case done <- err:
				default:
				}
			})

			if err := controller.Speak(cmd.Context(), strings.Join(args, " "), opts); err != nil {
				return err
			}
			select {
			case err := <-done:
				return err
			default:
			}
			if controller.State().UtteranceID == "" {
				// Nothing left to say after preparation.
				return nil
			}

			select {
			case err := <-done:
				return err
			case <-cmd.Context().Done():
				_ = controller.Stop()
				return cmd.Context().Err()
			}
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Voice language tag, e.g. ar-SA")
	cmd.Flags().StringVar(&hint, "voice-hint", "", "Preferred voice name hint, e.g. male")
	return cmd
}
