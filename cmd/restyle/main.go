// Command restyle turns a recording into a new rendition in a target style
// and emotion while keeping its melody recognizable.
//
// Usage:
//
//	restyle [flags] <command> [args]
//
// Commands:
//
//	run           - Run the generation loop on a source recording
//	extract       - Cut the most melodic window of a recording to a WAV
//	score-melody  - Print melody sub-scores for WAV files
//	serve         - Start the HTTP API
//	calibrate     - Fit melody weights to rated clips
//	config        - Write or show the configuration
package main

import (
	"fmt"
	"os"

	"github.com/cwbudde/algo-restyle/cmd/restyle/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
