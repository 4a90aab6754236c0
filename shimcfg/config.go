package shimcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog/v2"
	"github.com/jessevdk/go-flags"
	mshim "github.com/lightninglabs/miniscript-shim"
	"github.com/lightninglabs/miniscript-shim/report"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/lnrpc"
)

const (
	defaultLogLevel       = "info"
	defaultConfigFileName = "descreport.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "descreport.log"

	// DemoDescriptor is the descriptor classified when none is given: a
	// 1-of-2 sorted multisig of two ranged xpubs in nested segwit.
	DemoDescriptor = "sh(wsh(sortedmulti(1,xpub661MyMwAqRbcFW31YEwpkMuc5T" +
		"Hy2PSt5bDMsktWQcFF8syAmRUapSCGu8ED9W6oDMSgv6Zz8idoc4a6mr8BDz" +
		"TJY47LJhkJ8UB7WEGuduB/1/0/*,xpub69H7F5d8KSRgmmdJg2KhpAK8SR3D" +
		"jMwAdkxj3ZuxV27CprR9LgpeyGmXUbC6wb7ERfvrnKZjXoUmmDznezpbZb7a" +
		"p6r1D3tgFxHmwMkQTPH/0/0/*)))"
)

var (
	// DefaultShimDir is the default directory where the config file
	// lives.
	DefaultShimDir = btcutil.AppDataDir("miniscript-shim", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(DefaultShimDir, defaultConfigFileName)

	defaultLogDir = filepath.Join(DefaultShimDir, defaultLogDirname)
)

// Config is the configuration of the descriptor report binary.
type Config struct {
	ShowVersion bool `long:"version" description:"Display version information and exit"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	ShimDir    string `long:"shimdir" description:"The base directory that contains the configuration file"`
	ConfigFile string `long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	Logging *build.LogConfig `group:"logging" namespace:"logging"`

	Descriptor     string `long:"descriptor" description:"The descriptor to report on, every line is classified separately"`
	DescriptorFile string `long:"descriptorfile" description:"Read the descriptor from this file instead of --descriptor"`

	CacheSize uint64 `long:"cachesize" description:"Number of distinct lines whose classification is cached"`

	// LogWriter is the root logger that all of the binary's subloggers
	// are hooked up to.
	LogWriter *build.RotatingLogWriter

	// LogMgr is the sublogger manager that is used to create subloggers
	// for the binary.
	LogMgr *build.SubLoggerManager
}

// DefaultConfig returns all default values for the Config struct.
//
// The console log handler is disabled by default since stdout carries the
// report itself; logs go to the rotated file in the log directory.
func DefaultConfig() Config {
	logWriter := build.NewRotatingLogWriter()
	defaultLogConfig := build.DefaultLogConfig()
	defaultLogConfig.Console.Disable = true

	return Config{
		DebugLevel: defaultLogLevel,
		ShimDir:    DefaultShimDir,
		ConfigFile: DefaultConfigFile,
		LogDir:     defaultLogDir,
		Logging:    defaultLogConfig,
		Descriptor: DemoDescriptor,
		CacheSize:  report.DefaultCacheSize,
		LogWriter:  logWriter,
		LogMgr: build.NewSubLoggerManager(build.NewDefaultLogHandlers(
			defaultLogConfig, logWriter,
		)...),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, btclog.Logger, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", mshim.Version())
		os.Exit(0)
	}

	// If the user changed the base directory but not the config file,
	// look for the config file in that directory. An explicitly given
	// config file must exist.
	configFileDir := lncfg.CleanAndExpandPath(preCfg.ShimDir)
	configFilePath := lncfg.CleanAndExpandPath(preCfg.ConfigFile)
	switch {
	case configFileDir != DefaultShimDir &&
		configFilePath == DefaultConfigFile:

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFileName,
		)

	case configFilePath != DefaultConfigFile:
		if !lnrpc.FileExists(configFilePath) {
			return nil, nil, fmt.Errorf("specified config file does "+
				"not exist in %s", configFilePath)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(configFilePath)
	if err != nil {
		// A missing config file is fine, a broken one is not.
		if _, ok := err.(*flags.IniError); ok {
			return nil, nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, nil, err
	}

	cfgLogger := cfg.LogMgr.GenSubLogger("CONF", nil)

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, cfgLogger)
	if err != nil {
		if _, ok := err.(*usageError); ok {
			cfgLogger.Warnf("Incorrect usage: %v", usageMessage)
		}

		cfgLogger.Warnf("Error validating config: %v", err)
		return nil, nil, err
	}

	// Initialize the log manager with the actual logging configuration.
	cleanCfg.LogMgr = build.NewSubLoggerManager(build.NewDefaultLogHandlers(
		cleanCfg.Logging, cleanCfg.LogWriter,
	)...)
	cfgLogger = mshim.SetupLoggers(cleanCfg.LogMgr)

	err = cleanCfg.LogWriter.InitLogRotator(
		cleanCfg.Logging.File, filepath.Join(
			cleanCfg.LogDir, defaultLogFilename,
		),
	)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cleanCfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			cleanCfg.LogMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cleanCfg.DebugLevel, cleanCfg.LogMgr)
	if err != nil {
		str := "error parsing debug level: %v"
		cfgLogger.Warnf(str, err)
		return nil, nil, fmt.Errorf(str, err)
	}

	// Warn about a missing config file only once everything else is set
	// up, so help and usage errors don't trigger it.
	if configFileError != nil {
		cfgLogger.Debugf("%v", configFileError)
	}

	return cleanCfg, cfgLogger, nil
}

// usageError is an error type that signals a problem with the supplied flags.
type usageError struct {
	err error
}

// Error returns the error string.
//
// NOTE: This is part of the error interface.
func (u *usageError) Error() string {
	return u.err.Error()
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, cfgLogger btclog.Logger) (*Config, error) {
	funcName := "ValidateConfig"
	mkErr := func(format string, args ...interface{}) error {
		return fmt.Errorf(funcName+": "+format, args...)
	}

	// If the base directory was changed but the log directory wasn't, the
	// logs follow the base directory.
	if cfg.ShimDir != DefaultShimDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(cfg.ShimDir, defaultLogDirname)
	}

	cfg.ShimDir = lncfg.CleanAndExpandPath(cfg.ShimDir)
	cfg.ConfigFile = lncfg.CleanAndExpandPath(cfg.ConfigFile)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)
	cfg.DescriptorFile = lncfg.CleanAndExpandPath(cfg.DescriptorFile)

	// A descriptor file replaces the default descriptor, but can't be
	// combined with an explicit one.
	if cfg.DescriptorFile != "" {
		if cfg.Descriptor != DemoDescriptor {
			return nil, &usageError{mkErr("only one of " +
				"--descriptor and --descriptorfile may be set")}
		}

		content, err := os.ReadFile(cfg.DescriptorFile)
		if err != nil {
			return nil, mkErr("unable to read descriptor file: %v",
				err)
		}
		cfg.Descriptor = string(content)

		cfgLogger.Debugf("Read descriptor from %v", cfg.DescriptorFile)
	}

	if strings.TrimSpace(cfg.Descriptor) == "" {
		return nil, &usageError{mkErr("descriptor must not be empty")}
	}

	if cfg.CacheSize == 0 {
		return nil, &usageError{mkErr("cachesize must be positive")}
	}

	return &cfg, nil
}
