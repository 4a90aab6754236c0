package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	mshim "github.com/lightninglabs/miniscript-shim"
	"github.com/lightningnetwork/lnd/build"
	"github.com/urfave/cli"
)

const (
	// Environment variables names that can be used to set the global flags.
	envVarNetwork    = "SHIMCLI_NETWORK"
	envVarDebugLevel = "SHIMCLI_DEBUGLEVEL"

	defaultNetwork    = "mainnet"
	defaultDebugLevel = "warn"
)

// NewApp creates a new shimcli app with all the available commands.
func NewApp() cli.App {
	app := cli.NewApp()
	app.Name = "shimcli"
	app.Version = mshim.Version()
	app.Usage = "classify output descriptors and build taproot outputs"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "network, n",
			Usage: "The network addresses are rendered for, e.g. " +
				"mainnet, testnet, regtest or signet.",
			Value:  defaultNetwork,
			EnvVar: envVarNetwork,
		},
		cli.StringFlag{
			Name: "debuglevel",
			Usage: "Logging level for all subsystems, or " +
				"<global-level>,<subsystem>=<level>,... " +
				"Logs are written to stderr.",
			Value:  defaultDebugLevel,
			EnvVar: envVarDebugLevel,
		},
	}
	app.Before = setupLogging

	// Add all the available commands.
	app.Commands = []cli.Command{
		versionCommand,
	}
	app.Commands = append(app.Commands, descriptorCommands...)
	app.Commands = append(app.Commands, taprootCommands...)

	return *app
}

// setupLogging hooks all package loggers up to stderr with the level given
// by the debuglevel flag.
func setupLogging(ctx *cli.Context) error {
	errWriter := ctx.App.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	logMgr := mshim.NewLogManager(errWriter)
	mshim.SetupLoggers(logMgr)

	level := ctx.GlobalString("debuglevel")
	if level == "show" {
		return fmt.Errorf("supported subsystems: %s",
			strings.Join(logMgr.SupportedSubsystems(), ", "))
	}

	return build.ParseAndSetDebugLevels(level, logMgr)
}

// Fatal prints the error to stderr and exits.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "[shimcli] %v\n", err)
	os.Exit(1)
}

// writer returns the output writer of the app.
func writer(ctx *cli.Context) io.Writer {
	if ctx.App.Writer != nil {
		return ctx.App.Writer
	}

	return os.Stdout
}

func printJSON(ctx *cli.Context, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, err = out.WriteTo(writer(ctx))

	return err
}

// networkParams returns the chain parameters selected by the network flag.
func networkParams(ctx *cli.Context) (*chaincfg.Params, error) {
	switch network := ctx.GlobalString("network"); network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// singleArg returns the only positional argument of the command, falling
// back to the named flag.
func singleArg(ctx *cli.Context, flag string) (string, error) {
	switch {
	case ctx.IsSet(flag):
		return ctx.String(flag), nil
	case ctx.NArg() == 1:
		return ctx.Args().First(), nil
	default:
		return "", fmt.Errorf("%s argument missing", flag)
	}
}

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "Display build information.",
	Action: func(ctx *cli.Context) error {
		return printJSON(ctx, mshim.CurrentBuildInfo())
	},
}
