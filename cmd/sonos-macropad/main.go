package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jaredtrent/sonos-macropad/pkg/macropad"
)

var (
	verbose bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.Parse()
}

func main() {
	logger := macropad.NewLogger(verbose)

	if verbose {
		logger.Debug("Verbose flag provided, all log messages will be shown")
	}

	m, err := macropad.NewMacropad(logger, verbose)
	if err != nil {
		logger.Errorw("Failed to create macropad object", "error", err)
		fmt.Println("Fatal: failed to create macropad object")
		os.Exit(1)
	}

	if err = m.Initialize(); err != nil {
		logger.Errorw("Failed to initialize macropad", "error", err)
		fmt.Println("Fatal: failed to initialize macropad")
		os.Exit(1)
	}
}
