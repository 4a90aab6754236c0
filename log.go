package miniscriptshim

import (
	"io"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/miniscript-shim/descriptor"
	"github.com/lightninglabs/miniscript-shim/miniscript"
	"github.com/lightninglabs/miniscript-shim/report"
	"github.com/lightninglabs/miniscript-shim/shim"
	"github.com/lightninglabs/miniscript-shim/taproot"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem is the logging code of the binaries themselves.
const Subsystem = "MSHM"

// NewLogManager returns a sub logger manager whose loggers all write to w.
// It is used by the command line tool, which keeps stdout for its JSON
// output.
func NewLogManager(w io.Writer) *build.SubLoggerManager {
	return build.NewSubLoggerManager(btclog.NewDefaultHandler(w))
}

// SetupLoggers initializes all package-global logger variables and returns
// the logger of the binaries.
func SetupLoggers(root *build.SubLoggerManager) btclog.Logger {
	AddSubLogger(root, miniscript.Subsystem, miniscript.UseLogger)
	AddSubLogger(root, descriptor.Subsystem, descriptor.UseLogger)
	AddSubLogger(root, taproot.Subsystem, taproot.UseLogger)
	AddSubLogger(root, shim.Subsystem, shim.UseLogger)
	AddSubLogger(root, report.Subsystem, report.UseLogger)

	return AddSubLogger(root, Subsystem)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) btclog.Logger {

	genLogger := func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, nil)
	}

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, genLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)

	return logger
}

// SetSubLogger is a helper method to conveniently register the logger of a sub
// system.
func SetSubLogger(root *build.SubLoggerManager, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
