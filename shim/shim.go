// Package shim exposes descriptor classification and taproot construction
// through a small string based API, suitable for a browser or CLI frontend.
package shim

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/miniscript-shim/descriptor"
	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/miniscript"
	"github.com/lightninglabs/miniscript-shim/taproot"
	"golang.org/x/exp/slices"
)

// TypeTable is an ordered list of descriptor types. It marshals as a JSON
// object that maps each label to itself, in list order.
type TypeTable []descriptor.Type

// MarshalJSON implements json.Marshaler.
func (t TypeTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, typ := range t {
		if i > 0 {
			buf.WriteByte(',')
		}

		label, err := json.Marshal(typ.String())
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(label)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// KeyTab maps symbolic key names used in miniscript fragments to hex encoded
// x-only public keys.
type KeyTab map[string]string

// Shim is the classification module. The zero value is not usable, use New.
type Shim struct {
	parse func(string) (descriptor.Descriptor, error)
}

// New returns a shim that parses descriptors with descriptor.Parse.
func New() *Shim {
	return &Shim{
		parse: descriptor.Parse,
	}
}

// DescriptorTypes returns every type a descriptor can be classified as.
func (s *Shim) DescriptorTypes() TypeTable {
	return append(TypeTable(nil), descriptor.AllTypes...)
}

// parseSafe parses a descriptor, turning a panic into a critical error so
// that callers abort instead of reporting it as a malformed line.
func (s *Shim) parseSafe(desc string) (d descriptor.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic parsing descriptor %q: %v", desc, r)

			d = nil
			err = fn.NewCriticalError(
				fmt.Errorf("internal error parsing %q: %v",
					desc, r),
			)
		}
	}()

	return s.parse(desc)
}

// ErrorFields maps err onto the object handed back to script callers.
// Critical errors use the "fatal" key so the caller aborts its run, every
// other error uses "error".
func ErrorFields(err error) map[string]interface{} {
	key := "error"
	if fn.ErrorAs[*fn.CriticalError](err) {
		key = "fatal"
	}

	return map[string]interface{}{
		key: err.Error(),
	}
}

// ScriptType returns the type label of a single descriptor. Malformed input
// results in a plain error, internal failures in a *fn.CriticalError.
func (s *Shim) ScriptType(desc string) (string, error) {
	d, err := s.parseSafe(desc)
	if err != nil {
		return "", err
	}

	return d.Type().String(), nil
}

// ThresholdCount returns the number of signatures required by the
// sortedmulti of a descriptor.
func (s *Shim) ThresholdCount(desc string) (uint32, error) {
	d, err := s.parseSafe(desc)
	if err != nil {
		return 0, err
	}

	return descriptor.Threshold(d)
}

// Taproot commits the tapscript fragments to a Huffman tree with equal leaf
// weights under the NUMS internal key. Key names in the fragments are
// resolved through the key table.
func (s *Shim) Taproot(fragments []string,
	keyTab KeyTab) (*taproot.SpendInfo, error) {

	keys, err := parseKeyTab(keyTab)
	if err != nil {
		return nil, err
	}

	leaves, err := fn.MapErr(
		fragments, func(frag string) (taproot.WeightedLeaf, error) {
			script, err := encodeFragment(frag, keys)
			if err != nil {
				return taproot.WeightedLeaf{}, err
			}

			return taproot.WeightedLeaf{
				Weight: 1,
				Leaf:   txscript.NewBaseTapLeaf(script),
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	root, err := taproot.BuildHuffmanTree(leaves)
	if err != nil {
		return nil, err
	}

	return taproot.NewSpendInfo(taproot.NUMSKey(), root)
}

// parseKeyTab decodes the key table. Names are processed in sorted order so
// the reported error doesn't depend on map iteration.
func parseKeyTab(keyTab KeyTab) (map[string]*btcec.PublicKey, error) {
	names := make([]string, 0, len(keyTab))
	for name := range keyTab {
		names = append(names, name)
	}
	slices.Sort(names)

	keys := make(map[string]*btcec.PublicKey, len(names))
	for _, name := range names {
		raw, err := hex.DecodeString(keyTab[name])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", name, err)
		}
		key, err := schnorr.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", name, err)
		}
		keys[name] = key
	}

	return keys, nil
}

// encodeFragment parses a tapscript miniscript and encodes it with the named
// keys substituted.
func encodeFragment(frag string,
	keys map[string]*btcec.PublicKey) ([]byte, error) {

	node, err := miniscript.Parse(frag, miniscript.Tap)
	if err != nil {
		return nil, err
	}

	// Keys are checked in script order. Hashed keys can't be resolved
	// from an x-only key table.
	var resolveErr error
	node.Walk(func(n *miniscript.Node) {
		if resolveErr != nil {
			return
		}
		for _, name := range n.Keys {
			if n.Frag == miniscript.FragPkH {
				resolveErr = fmt.Errorf("No PKH Support for %s",
					name)
				return
			}
			if _, ok := keys[name]; !ok {
				resolveErr = fmt.Errorf("Missing Key: %s", name)
				return
			}
		}
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	return node.Encode(miniscript.Tap, func(name string) ([]byte, error) {
		return schnorr.SerializePubKey(keys[name]), nil
	})
}
