// Package main is the diarizerd entry point.
//
// Usage:
//
//	diarizerd serve --config diarizerd.yaml
//	diarizerd speakers list
//	diarizerd speakers delete <id>
//	diarizerd version
package main

import (
	"fmt"
	"os"

	"github.com/kengbailey/transcription-diarization-service/cmd/diarizerd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
