package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/miniscript-shim/report"
	"github.com/lightninglabs/miniscript-shim/shim"
	"github.com/lightninglabs/miniscript-shim/shimcfg"
)

func main() {
	// Load the configuration, and parse any command line options. This
	// function will also set up logging properly.
	cfg, cfgLogger, err := shimcfg.LoadConfig()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			// Print error if not due to help request.
			err = fmt.Errorf("failed to load config: %w", err)
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Help was requested, exit normally.
		os.Exit(0)
	}

	cfgLogger.Debugf("Classifying descriptor with cache size %d",
		cfg.CacheSize)

	module := report.WithCache(shim.New(), cfg.CacheSize)
	err = report.Run(os.Stdout, cfg.Descriptor, module)

	// Flush the log file before exiting.
	cfg.LogWriter.Close()

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
