package descriptor

import (
	"fmt"
	"strings"

	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/miniscript"
)

// Type classifies a descriptor by its script template.
type Type uint8

const (
	// TypeBare is a bare script, including native P2PK.
	TypeBare Type = iota

	// TypeSh is a P2SH descriptor that does not contain nested segwit.
	TypeSh

	// TypePkh is a P2PKH descriptor.
	TypePkh

	// TypeWpkh is a P2WPKH descriptor.
	TypeWpkh

	// TypeWsh is a P2WSH descriptor.
	TypeWsh

	// TypeShWsh is a P2WSH descriptor nested in P2SH.
	TypeShWsh

	// TypeShWpkh is a P2WPKH descriptor nested in P2SH.
	TypeShWpkh

	// TypeShSortedMulti is a sorted multisig in P2SH.
	TypeShSortedMulti

	// TypeWshSortedMulti is a sorted multisig in P2WSH.
	TypeWshSortedMulti

	// TypeShWshSortedMulti is a sorted multisig in P2SH wrapped P2WSH.
	TypeShWshSortedMulti

	// TypeTr is a taproot descriptor.
	TypeTr
)

// typeLabels are the names reported for each type. Every type has a
// non-empty label, including plain sh() and sh(wpkh()), so each script
// type can be told apart in a report.
var typeLabels = [...]string{
	TypeBare:             "Bare",
	TypeSh:               "Sh",
	TypePkh:              "Pkh",
	TypeWpkh:             "Wpkh",
	TypeWsh:              "Wsh",
	TypeShWsh:            "ShWsh",
	TypeShWpkh:           "ShWpkh",
	TypeShSortedMulti:    "ShSortedMulti",
	TypeWshSortedMulti:   "WshSortedMulti",
	TypeShWshSortedMulti: "ShWshSortedMulti",
	TypeTr:               "Tr",
}

// AllTypes lists every descriptor type in declaration order.
var AllTypes = []Type{
	TypeBare, TypeSh, TypePkh, TypeWpkh, TypeWsh, TypeShWsh, TypeShWpkh,
	TypeShSortedMulti, TypeWshSortedMulti, TypeShWshSortedMulti, TypeTr,
}

// String returns the label of the type.
func (t Type) String() string {
	if int(t) < len(typeLabels) {
		return typeLabels[t]
	}

	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Descriptor is a parsed output descriptor.
type Descriptor interface {
	// Type returns the classification of the descriptor.
	Type() Type

	// Keys returns all key expressions in order of appearance.
	Keys() []*Key

	// ScriptPubKey returns the output script at the given derivation
	// index.
	ScriptPubKey(index uint32) ([]byte, error)

	// body returns the descriptor without checksum.
	body() string
}

// String returns the canonical form of the descriptor including its
// checksum.
func String(d Descriptor) string {
	s, err := AddChecksum(d.body())
	if err != nil {
		// The body was built from validated parts, so every character
		// is in the checksum alphabet.
		return d.body()
	}

	return s
}

// IsRange returns true if any key of the descriptor has a wildcard.
func IsRange(d Descriptor) bool {
	return fn.Any(d.Keys(), (*Key).IsRange)
}

// msScript is a miniscript expression together with its parsed keys.
type msScript struct {
	node *miniscript.Node
	ctx  miniscript.Context
	keys []*Key
	byID map[string]*Key
}

func newMsScript(node *miniscript.Node, ctx miniscript.Context) (*msScript,
	error) {

	m := &msScript{
		node: node,
		ctx:  ctx,
		byID: make(map[string]*Key),
	}
	err := fn.ForEachErr(node.KeyExprs(), func(s string) error {
		key, err := ParseKey(s, ctx)
		if err != nil {
			return err
		}
		m.keys = append(m.keys, key)
		m.byID[s] = key

		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *msScript) encode(index uint32) ([]byte, error) {
	return m.node.Encode(m.ctx, func(s string) ([]byte, error) {
		key, ok := m.byID[s]
		if !ok {
			return nil, fmt.Errorf("unknown key %s", s)
		}

		return key.Serialize(m.ctx, index)
	})
}

// SortedMulti is a `sortedmulti(k,...)` expression, whose keys are sorted
// lexicographically by their serialization at each index.
type SortedMulti struct {
	K    uint32
	Keys []*Key

	ctx miniscript.Context
}

func (s *SortedMulti) body() string {
	keys := fn.Map(s.Keys, (*Key).String)
	return fmt.Sprintf("sortedmulti(%d,%s)", s.K, strings.Join(keys, ","))
}

// Bare is a top level miniscript that is used as output script directly.
type Bare struct {
	script *msScript
}

// Type returns TypeBare.
func (d *Bare) Type() Type { return TypeBare }

// Keys returns the keys of the script.
func (d *Bare) Keys() []*Key { return d.script.keys }

func (d *Bare) body() string { return d.script.node.String() }

// Pkh is a `pkh(KEY)` descriptor.
type Pkh struct {
	Key *Key
}

// Type returns TypePkh.
func (d *Pkh) Type() Type { return TypePkh }

// Keys returns the single key.
func (d *Pkh) Keys() []*Key { return []*Key{d.Key} }

func (d *Pkh) body() string { return "pkh(" + d.Key.String() + ")" }

// Wpkh is a `wpkh(KEY)` descriptor.
type Wpkh struct {
	Key *Key
}

// Type returns TypeWpkh.
func (d *Wpkh) Type() Type { return TypeWpkh }

// Keys returns the single key.
func (d *Wpkh) Keys() []*Key { return []*Key{d.Key} }

func (d *Wpkh) body() string { return "wpkh(" + d.Key.String() + ")" }

// Wsh is a `wsh(...)` descriptor. Exactly one of the fields is set.
type Wsh struct {
	SortedMulti *SortedMulti
	script      *msScript
}

// Type returns TypeWshSortedMulti or TypeWsh.
func (d *Wsh) Type() Type {
	if d.SortedMulti != nil {
		return TypeWshSortedMulti
	}

	return TypeWsh
}

// Keys returns the keys of the witness script.
func (d *Wsh) Keys() []*Key {
	if d.SortedMulti != nil {
		return d.SortedMulti.Keys
	}

	return d.script.keys
}

func (d *Wsh) body() string {
	if d.SortedMulti != nil {
		return "wsh(" + d.SortedMulti.body() + ")"
	}

	return "wsh(" + d.script.node.String() + ")"
}

// Sh is a `sh(...)` descriptor. Exactly one of the fields is set.
type Sh struct {
	Wsh         *Wsh
	Wpkh        *Wpkh
	SortedMulti *SortedMulti
	script      *msScript
}

// Type returns the P2SH flavour of the descriptor.
func (d *Sh) Type() Type {
	switch {
	case d.Wsh != nil && d.Wsh.SortedMulti != nil:
		return TypeShWshSortedMulti
	case d.Wsh != nil:
		return TypeShWsh
	case d.Wpkh != nil:
		return TypeShWpkh
	case d.SortedMulti != nil:
		return TypeShSortedMulti
	default:
		return TypeSh
	}
}

// Keys returns the keys of the redeem script.
func (d *Sh) Keys() []*Key {
	switch {
	case d.Wsh != nil:
		return d.Wsh.Keys()
	case d.Wpkh != nil:
		return d.Wpkh.Keys()
	case d.SortedMulti != nil:
		return d.SortedMulti.Keys
	default:
		return d.script.keys
	}
}

func (d *Sh) body() string {
	switch {
	case d.Wsh != nil:
		return "sh(" + d.Wsh.body() + ")"
	case d.Wpkh != nil:
		return "sh(" + d.Wpkh.body() + ")"
	case d.SortedMulti != nil:
		return "sh(" + d.SortedMulti.body() + ")"
	default:
		return "sh(" + d.script.node.String() + ")"
	}
}

// TapTree is a taproot script tree: either a leaf script or a branch with
// two children.
type TapTree struct {
	Left, Right *TapTree

	leaf *msScript
}

// IsLeaf returns true if the tree node is a leaf script.
func (t *TapTree) IsLeaf() bool {
	return t.leaf != nil
}

// keys returns the keys of all leaves, left to right.
func (t *TapTree) keys() []*Key {
	if t.IsLeaf() {
		return t.leaf.keys
	}

	return append(append([]*Key(nil), t.Left.keys()...),
		t.Right.keys()...)
}

func (t *TapTree) String() string {
	if t.IsLeaf() {
		return t.leaf.node.String()
	}

	return "{" + t.Left.String() + "," + t.Right.String() + "}"
}

// Tr is a `tr(KEY)` or `tr(KEY,TREE)` descriptor.
type Tr struct {
	InternalKey *Key

	// Tree is nil for key path only outputs.
	Tree *TapTree
}

// Type returns TypeTr.
func (d *Tr) Type() Type { return TypeTr }

// Keys returns the internal key followed by the keys of the script tree.
func (d *Tr) Keys() []*Key {
	keys := []*Key{d.InternalKey}
	if d.Tree != nil {
		keys = append(keys, d.Tree.keys()...)
	}

	return keys
}

func (d *Tr) body() string {
	if d.Tree == nil {
		return "tr(" + d.InternalKey.String() + ")"
	}

	return "tr(" + d.InternalKey.String() + "," + d.Tree.String() + ")"
}
