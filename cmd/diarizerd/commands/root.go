// Package commands implements the diarizerd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "diarizerd",
	Short: "Speaker identification and transcription service",
	Long: `diarizerd serves speaker diarization, identification, and attributed
transcription over HTTP.

It keeps a local registry of enrolled speaker voiceprints and delegates
the neural work to two backends: a pyannote-style diarization sidecar
and an OpenAI-compatible Whisper server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to diarizerd.yaml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(speakersCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
