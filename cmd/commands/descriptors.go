package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/lightninglabs/miniscript-shim/descriptor"
	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/report"
	"github.com/lightninglabs/miniscript-shim/shim"
	"github.com/urfave/cli"
)

const (
	descriptorName = "descriptor"

	// maxAddressCount caps the number of addresses derived in one call.
	maxAddressCount = 10_000
)

var descriptorFlag = cli.StringFlag{
	Name:  descriptorName,
	Usage: "the output descriptor, may also be given as argument",
}

var descriptorCommands = []cli.Command{
	typesCommand,
	scriptTypeCommand,
	thresholdCommand,
	checksumCommand,
	reportCommand,
	addressesCommand,
}

var typesCommand = cli.Command{
	Name:      "types",
	ShortName: "t",
	Usage:     "list all descriptor types",
	Category:  "Descriptors",
	Action: func(ctx *cli.Context) error {
		return printJSON(ctx, shim.New().DescriptorTypes())
	},
}

var scriptTypeCommand = cli.Command{
	Name:      "scripttype",
	ShortName: "s",
	Usage:     "classify a descriptor",
	Category:  "Descriptors",
	ArgsUsage: "descriptor",
	Flags:     []cli.Flag{descriptorFlag},
	Action:    scriptType,
}

func scriptType(ctx *cli.Context) error {
	desc, err := singleArg(ctx, descriptorName)
	if err != nil {
		return err
	}

	label, err := shim.New().ScriptType(desc)
	if err != nil {
		return fmt.Errorf("unable to classify descriptor: %w", err)
	}

	return printJSON(ctx, map[string]string{"type": label})
}

var thresholdCommand = cli.Command{
	Name:      "threshold",
	ShortName: "th",
	Usage:     "show the multisig threshold of a descriptor",
	Category:  "Descriptors",
	ArgsUsage: "descriptor",
	Flags:     []cli.Flag{descriptorFlag},
	Action:    threshold,
}

func threshold(ctx *cli.Context) error {
	desc, err := singleArg(ctx, descriptorName)
	if err != nil {
		return err
	}

	k, err := shim.New().ThresholdCount(desc)
	if err != nil {
		return fmt.Errorf("unable to get threshold: %w", err)
	}

	return printJSON(ctx, map[string]uint32{"threshold": k})
}

var checksumCommand = cli.Command{
	Name:      "checksum",
	ShortName: "c",
	Usage:     "compute the checksum of a descriptor",
	Category:  "Descriptors",
	ArgsUsage: "descriptor",
	Flags:     []cli.Flag{descriptorFlag},
	Action:    checksum,
}

func checksum(ctx *cli.Context) error {
	desc, err := singleArg(ctx, descriptorName)
	if err != nil {
		return err
	}

	sum, err := descriptor.Checksum(desc)
	if err != nil {
		return err
	}

	return printJSON(ctx, map[string]string{
		"checksum":   sum,
		"descriptor": desc + "#" + sum,
	})
}

var reportCommand = cli.Command{
	Name:      "report",
	ShortName: "r",
	Usage:     "classify every line of a descriptor text",
	Category:  "Descriptors",
	ArgsUsage: "descriptor",
	Description: `
	Prints the supported descriptor types, the classification of every
	non-blank line and the threshold of the whole text.
`,
	Flags: []cli.Flag{
		descriptorFlag,
		cli.StringFlag{
			Name:      "file",
			Usage:     "read the descriptor text from a file",
			TakesFile: true,
		},
		cli.Uint64Flag{
			Name:  "cachesize",
			Usage: "number of distinct lines to cache",
			Value: report.DefaultCacheSize,
		},
	},
	Action: runReport,
}

func runReport(ctx *cli.Context) error {
	var (
		desc string
		err  error
	)
	if ctx.IsSet("file") {
		content, err := os.ReadFile(ctx.String("file"))
		if err != nil {
			return fmt.Errorf("unable to read descriptor: %w", err)
		}
		desc = string(content)
	} else {
		desc, err = singleArg(ctx, descriptorName)
		if err != nil {
			return err
		}
	}

	module := report.WithCache(shim.New(), ctx.Uint64("cachesize"))

	return report.Run(writer(ctx), desc, module)
}

var addressesCommand = cli.Command{
	Name:      "addresses",
	ShortName: "a",
	Usage:     "derive the addresses of a descriptor",
	Category:  "Descriptors",
	ArgsUsage: "descriptor",
	Flags: []cli.Flag{
		descriptorFlag,
		cli.Uint64Flag{
			Name:  "start",
			Usage: "the first derivation index",
		},
		cli.Uint64Flag{
			Name:  "count",
			Usage: "the number of addresses to derive",
			Value: 1,
		},
	},
	Action: addresses,
}

// derivedAddress is a single derived output of a descriptor.
type derivedAddress struct {
	Index        uint32             `json:"index"`
	Address      string             `json:"address"`
	ScriptPubKey string             `json:"script_pubkey"`
	Derivations  []*derivationEntry `json:"derivations,omitempty"`
}

// derivationEntry is the JSON form of a BIP-32 derivation record.
type derivationEntry struct {
	PubKey      string   `json:"pubkey"`
	Fingerprint uint32   `json:"master_key_fingerprint"`
	Path        []uint32 `json:"path"`
}

func newDerivationEntry(d *psbt.Bip32Derivation) *derivationEntry {
	return &derivationEntry{
		PubKey:      hex.EncodeToString(d.PubKey),
		Fingerprint: d.MasterKeyFingerprint,
		Path:        d.Bip32Path,
	}
}

func addresses(ctx *cli.Context) error {
	desc, err := singleArg(ctx, descriptorName)
	if err != nil {
		return err
	}
	params, err := networkParams(ctx)
	if err != nil {
		return err
	}

	d, err := descriptor.Parse(desc)
	if err != nil {
		return fmt.Errorf("unable to parse descriptor: %w", err)
	}

	// Only non-hardened indexes below 2^31 can be derived.
	const indexLimit = uint64(1) << 31

	start, count := ctx.Uint64("start"), ctx.Uint64("count")
	switch {
	case count == 0 || count > maxAddressCount:
		return fmt.Errorf("count must be between 1 and %d",
			maxAddressCount)

	case start > indexLimit || count > indexLimit-start:
		return fmt.Errorf("derivation index out of range")

	case !descriptor.IsRange(d) && (start != 0 || count != 1):
		return fmt.Errorf("descriptor has no wildcard, only index 0 " +
			"can be derived")
	}

	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = uint32(start) + uint32(i)
	}

	results := make([]derivedAddress, count)
	err = fn.ParSlice(
		context.Background(), indices,
		func(_ context.Context, index uint32) error {
			addr, err := descriptor.Address(d, index, params)
			if err != nil {
				return fmt.Errorf("index %d: %w", index, err)
			}
			pkScript, err := d.ScriptPubKey(index)
			if err != nil {
				return err
			}
			derivations, err := descriptor.Derivations(d, index)
			if err != nil {
				return err
			}

			results[index-uint32(start)] = derivedAddress{
				Index:        index,
				Address:      addr.EncodeAddress(),
				ScriptPubKey: hex.EncodeToString(pkScript),
				Derivations: fn.Map(
					derivations, newDerivationEntry,
				),
			}

			return nil
		},
	)
	if err != nil {
		return err
	}

	return printJSON(ctx, results)
}
