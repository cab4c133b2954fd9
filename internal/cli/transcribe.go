package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voicechat/internal/config"
	"voicechat/internal/domain"
	"voicechat/internal/providers/deepgram"
)

func NewTranscribeCommand() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Send an audio file to the speech-to-text service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			client := deepgram.NewClient(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Deepgram.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
				Timeout:     cfg.Deepgram.Timeout,
			})
			blob := domain.AudioBlob{Data: data, MIMEType: mimeTypeFor(args[0])}
			result, err := client.Transcribe(cmd.Context(), blob, language)
			if err != nil {
				return err
			}
			if result.NoSpeech() {
				fmt.Fprintln(cmd.ErrOrStderr(), "no speech detected")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Transcription language hint")
	return cmd
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mp3"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}
