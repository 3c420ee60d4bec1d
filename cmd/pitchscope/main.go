// Package main is the entry point for the pitchscope CLI.
//
// Usage:
//
//	pitchscope [flags] <command> [subcommand] [args]
//
// Commands:
//
//	csv       - Estimate pitch for a WAV file and write CSV
//	live      - Live pitch from the microphone (or a WAV replay)
//	serve     - Live pipeline behind an HTTP/websocket point server
//	devices   - List audio input devices
//	sessions  - Recorded sessions (list, show, export, delete)
//	config    - Configuration contexts
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/pitchscope/cmd/pitchscope/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
