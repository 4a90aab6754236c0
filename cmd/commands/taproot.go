package commands

import (
	"fmt"
	"strings"

	"github.com/lightninglabs/miniscript-shim/shim"
	"github.com/lightninglabs/miniscript-shim/taproot"
	"github.com/urfave/cli"
)

var taprootCommands = []cli.Command{
	taprootCommand,
}

var taprootCommand = cli.Command{
	Name:      "taproot",
	ShortName: "tr",
	Usage:     "commit tapscript fragments to a taproot output",
	Category:  "Taproot",
	Description: `
	Builds a Huffman tree of equally weighted tapscript miniscript
	fragments under an unspendable internal key. Keys are referenced by
	name in the fragments and resolved through --key name=xonlyhex.
`,
	Flags: []cli.Flag{
		cli.StringSliceFlag{
			Name:  "fragment",
			Usage: "a tapscript miniscript leaf, may be repeated",
		},
		cli.StringSliceFlag{
			Name: "key",
			Usage: "a named x-only key in the form name=hex, may " +
				"be repeated",
		},
	},
	Action: buildTaproot,
}

// parseKeyFlags turns name=hex pairs into a key table.
func parseKeyFlags(pairs []string) (shim.KeyTab, error) {
	keyTab := make(shim.KeyTab, len(pairs))
	for _, pair := range pairs {
		name, key, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid key %q, expected "+
				"name=hex", pair)
		}
		keyTab[name] = key
	}

	return keyTab, nil
}

func buildTaproot(ctx *cli.Context) error {
	keyTab, err := parseKeyFlags(ctx.StringSlice("key"))
	if err != nil {
		return err
	}

	info, err := shim.New().Taproot(ctx.StringSlice("fragment"), keyTab)
	if err != nil {
		return fmt.Errorf("unable to build taproot output: %w", err)
	}

	js, err := taproot.NewSpendInfoJSON(info)
	if err != nil {
		return err
	}

	return printJSON(ctx, js)
}
