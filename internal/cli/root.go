package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the voicectl command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voicectl",
		Short:         "Headless tools for the voice chat pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewTranscribeCommand())
	rootCmd.AddCommand(NewSpeakCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}
