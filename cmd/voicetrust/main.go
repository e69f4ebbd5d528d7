// Package main is the entry point for the voicetrust CLI.
//
// Usage:
//
//	voicetrust [flags] <command> [subcommand] [args]
//
// Commands:
//
//	score      - Spoof, replay and prosody scores of an audio file
//	enroll     - Enroll a speaker from one or more utterances
//	unenroll   - Remove an enrollment
//	verify     - Run one verification attempt
//	calibrate  - Offline calibration (eer, run, list, show)
//	profile    - Inspect stored enrollments and profiles (list, show)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/AIINA17/Livekit-Biometric/cmd/voicetrust/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
