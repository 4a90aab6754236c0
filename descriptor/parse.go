package descriptor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/miniscript-shim/internal/expr"
	"github.com/lightninglabs/miniscript-shim/miniscript"
)

const (
	// maxWitnessScriptSize is the standardness limit of a P2WSH witness
	// script.
	maxWitnessScriptSize = 3600

	// maxTapTreeDepth is the maximum depth of a taproot script tree.
	maxTapTreeDepth = 128
)

var (
	// ErrUnsupported is returned for descriptor functions that are valid
	// but not handled by this package.
	ErrUnsupported = errors.New("unsupported descriptor")
)

// descriptorFuncs are the names that are only valid as descriptor functions
// and never as miniscript fragments.
var descriptorFuncs = map[string]bool{
	"sh":          true,
	"wsh":         true,
	"wpkh":        true,
	"tr":          true,
	"sortedmulti": true,
	"combo":       true,
	"addr":        true,
	"raw":         true,
	"rawtr":       true,
}

// Parse parses an output descriptor. A trailing checksum is optional, but if
// present it must be valid.
func Parse(desc string) (Descriptor, error) {
	body, err := splitChecksum(desc)
	if err != nil {
		return nil, err
	}

	tree, err := expr.Parse(body)
	if err != nil {
		return nil, err
	}

	d, err := fromTree(tree)
	if err != nil {
		return nil, err
	}

	log.Debugf("Parsed %v descriptor %v", d.Type(), body)

	return d, nil
}

// MustParse is like Parse but panics on error. It is meant for descriptors
// that are constants.
func MustParse(desc string) Descriptor {
	d, err := Parse(desc)
	if err != nil {
		panic(err)
	}

	return d
}

func fromTree(t *expr.Tree) (Descriptor, error) {
	switch t.Name {
	case "sh":
		if len(t.Args) != 1 {
			return nil, fmt.Errorf("sh takes a single argument")
		}
		return parseSh(t.Args[0])

	case "wsh":
		if len(t.Args) != 1 {
			return nil, fmt.Errorf("wsh takes a single argument")
		}
		return parseWsh(t.Args[0])

	case "pkh":
		key, err := singleKey(t, miniscript.Legacy)
		if err != nil {
			return nil, err
		}
		return &Pkh{Key: key}, nil

	case "wpkh":
		key, err := singleKey(t, miniscript.SegwitV0)
		if err != nil {
			return nil, err
		}
		return &Wpkh{Key: key}, nil

	case "tr":
		return parseTr(t)

	case "sortedmulti":
		return nil, fmt.Errorf("sortedmulti must be inside sh or wsh")

	case "combo", "addr", "raw", "rawtr":
		return nil, fmt.Errorf("%w: %s()", ErrUnsupported, t.Name)
	}

	script, err := parseScript(t, miniscript.Legacy, "top level")
	if err != nil {
		return nil, err
	}
	if err := checkSize(script, txscript.MaxScriptSize); err != nil {
		return nil, err
	}

	return &Bare{script: script}, nil
}

func singleKey(t *expr.Tree, ctx miniscript.Context) (*Key, error) {
	if len(t.Args) != 1 || !t.Args[0].IsTerminal() {
		return nil, fmt.Errorf("%s takes a single key", t.Name)
	}

	return ParseKey(t.Args[0].Name, ctx)
}

// parseScript parses a miniscript in the given context, rejecting
// descriptor functions that are misplaced.
func parseScript(t *expr.Tree, ctx miniscript.Context,
	where string) (*msScript, error) {

	if descriptorFuncs[t.Name] {
		return nil, fmt.Errorf("%s() is not allowed %s", t.Name, where)
	}

	node, err := miniscript.FromTree(t, ctx)
	if err != nil {
		return nil, err
	}

	return newMsScript(node, ctx)
}

func parseSortedMulti(t *expr.Tree, ctx miniscript.Context) (*SortedMulti,
	error) {

	if len(t.Args) < 2 {
		return nil, fmt.Errorf("sortedmulti needs a threshold and at " +
			"least one key")
	}
	k, err := t.Args[0].Uint32()
	if err != nil {
		return nil, fmt.Errorf("sortedmulti: %w", err)
	}

	multi := &SortedMulti{K: k, ctx: ctx}
	for _, arg := range t.Args[1:] {
		if !arg.IsTerminal() {
			return nil, fmt.Errorf("sortedmulti: expected key, "+
				"got %v", arg)
		}
		key, err := ParseKey(arg.Name, ctx)
		if err != nil {
			return nil, err
		}
		multi.Keys = append(multi.Keys, key)
	}

	if len(multi.Keys) > miniscript.MaxMultiKeys {
		return nil, fmt.Errorf("sortedmulti: too many keys (%d > %d)",
			len(multi.Keys), miniscript.MaxMultiKeys)
	}
	if k == 0 || int(k) > len(multi.Keys) {
		return nil, fmt.Errorf("sortedmulti: threshold %d out of "+
			"range for %d keys", k, len(multi.Keys))
	}

	return multi, nil
}

func parseSh(t *expr.Tree) (*Sh, error) {
	d := &Sh{}

	var err error
	switch t.Name {
	case "wsh":
		if len(t.Args) != 1 {
			return nil, fmt.Errorf("wsh takes a single argument")
		}
		d.Wsh, err = parseWsh(t.Args[0])
		if err != nil {
			return nil, err
		}

	case "wpkh":
		key, err := singleKey(t, miniscript.SegwitV0)
		if err != nil {
			return nil, err
		}
		d.Wpkh = &Wpkh{Key: key}

	case "sortedmulti":
		d.SortedMulti, err = parseSortedMulti(t, miniscript.Legacy)
		if err != nil {
			return nil, err
		}

	default:
		d.script, err = parseScript(t, miniscript.Legacy, "inside sh")
		if err != nil {
			return nil, err
		}
	}

	redeem, err := d.redeemScript(0)
	if err != nil {
		return nil, err
	}
	if len(redeem) > txscript.MaxScriptElementSize {
		return nil, fmt.Errorf("redeem script size %d exceeds %d",
			len(redeem), txscript.MaxScriptElementSize)
	}

	return d, nil
}

func parseWsh(t *expr.Tree) (*Wsh, error) {
	d := &Wsh{}

	var err error
	if t.Name == "sortedmulti" {
		d.SortedMulti, err = parseSortedMulti(t, miniscript.SegwitV0)
	} else {
		d.script, err = parseScript(t, miniscript.SegwitV0, "inside wsh")
	}
	if err != nil {
		return nil, err
	}

	witness, err := d.witnessScript(0)
	if err != nil {
		return nil, err
	}
	if len(witness) > maxWitnessScriptSize {
		return nil, fmt.Errorf("witness script size %d exceeds %d",
			len(witness), maxWitnessScriptSize)
	}

	return d, nil
}

func parseTr(t *expr.Tree) (*Tr, error) {
	if len(t.Args) < 1 || len(t.Args) > 2 || !t.Args[0].IsTerminal() {
		return nil, fmt.Errorf("tr takes an internal key and an " +
			"optional script tree")
	}

	key, err := ParseKey(t.Args[0].Name, miniscript.Tap)
	if err != nil {
		return nil, err
	}
	d := &Tr{InternalKey: key}

	if len(t.Args) == 2 {
		d.Tree, err = parseTapTree(t.Args[1], 0)
		if err != nil {
			return nil, err
		}
	}

	// Build the output once to surface encoding errors at parse time.
	if _, err := d.SpendInfo(0); err != nil {
		return nil, err
	}

	return d, nil
}

func parseTapTree(t *expr.Tree, depth int) (*TapTree, error) {
	if depth > maxTapTreeDepth {
		return nil, fmt.Errorf("tap tree deeper than %d",
			maxTapTreeDepth)
	}

	if t.Name == expr.BraceName {
		left, err := parseTapTree(t.Args[0], depth+1)
		if err != nil {
			return nil, err
		}
		right, err := parseTapTree(t.Args[1], depth+1)
		if err != nil {
			return nil, err
		}

		return &TapTree{Left: left, Right: right}, nil
	}

	leaf, err := parseScript(t, miniscript.Tap, "inside tr")
	if err != nil {
		return nil, err
	}

	return &TapTree{leaf: leaf}, nil
}

// checkSize makes sure the script of a miniscript fits the limit.
func checkSize(m *msScript, limit int) error {
	script, err := m.encode(0)
	if err != nil {
		return err
	}
	if len(script) > limit {
		return fmt.Errorf("script size %d exceeds %d", len(script),
			limit)
	}

	return nil
}
