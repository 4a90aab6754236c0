package miniscript

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Context is the script context a miniscript expression is interpreted in.
// It decides which fragments are available and how keys are serialized.
type Context uint8

const (
	// Legacy is the bare and P2SH context. Uncompressed keys are allowed.
	Legacy Context = iota

	// SegwitV0 is the P2WSH context.
	SegwitV0

	// Tap is the tapscript context. Keys are 32-byte x-only keys.
	Tap
)

// String returns a human readable name of the context.
func (c Context) String() string {
	switch c {
	case Legacy:
		return "legacy"
	case SegwitV0:
		return "segwitv0"
	case Tap:
		return "tapscript"
	default:
		return fmt.Sprintf("Context(%d)", uint8(c))
	}
}

// Fragment identifies a miniscript fragment or wrapper.
type Fragment uint8

const (
	FragFalse Fragment = iota
	FragTrue
	FragPkK
	FragPkH
	FragOlder
	FragAfter
	FragSha256
	FragHash256
	FragRipemd160
	FragHash160
	FragAndOr
	FragAndV
	FragAndB
	FragOrB
	FragOrC
	FragOrD
	FragOrI
	FragThresh
	FragMulti
	FragMultiA
	FragSortedMultiA
	FragWrapA
	FragWrapS
	FragWrapC
	FragWrapD
	FragWrapV
	FragWrapJ
	FragWrapN
)

// fragNames maps the fragments that have a textual function name.
var fragNames = map[Fragment]string{
	FragPkK:          "pk_k",
	FragPkH:          "pk_h",
	FragOlder:        "older",
	FragAfter:        "after",
	FragSha256:       "sha256",
	FragHash256:      "hash256",
	FragRipemd160:    "ripemd160",
	FragHash160:      "hash160",
	FragAndOr:        "andor",
	FragAndV:         "and_v",
	FragAndB:         "and_b",
	FragOrB:          "or_b",
	FragOrC:          "or_c",
	FragOrD:          "or_d",
	FragOrI:          "or_i",
	FragThresh:       "thresh",
	FragMulti:        "multi",
	FragMultiA:       "multi_a",
	FragSortedMultiA: "sortedmulti_a",
}

// wrapperChars maps the single letter wrappers to their fragment.
var wrapperChars = map[byte]Fragment{
	'a': FragWrapA,
	's': FragWrapS,
	'c': FragWrapC,
	'd': FragWrapD,
	'v': FragWrapV,
	'j': FragWrapJ,
	'n': FragWrapN,
}

// isWrapper returns true for the single-child wrapper fragments.
func (f Fragment) isWrapper() bool {
	return f >= FragWrapA && f <= FragWrapN
}

// Node is a single miniscript fragment together with its children.
type Node struct {
	Frag Fragment

	// Subs are the child expressions, in argument order.
	Subs []*Node

	// Keys holds the key expressions of pk_k, pk_h and the multi
	// fragments. They are resolved to bytes only at encoding time.
	Keys []string

	// K is the threshold of thresh/multi or the value of a timelock.
	K uint32

	// Hash is the digest committed to by the hash fragments.
	Hash []byte

	typ Type
}

// Type returns the type that was computed for the node when it was parsed.
func (n *Node) Type() Type {
	return n.typ
}

// KeyExprs returns all key expressions in the order they appear.
func (n *Node) KeyExprs() []string {
	var keys []string
	n.Walk(func(node *Node) {
		keys = append(keys, node.Keys...)
	})

	return keys
}

// Walk visits the node and all of its children depth first.
func (n *Node) Walk(f func(*Node)) {
	f(n)
	for _, sub := range n.Subs {
		sub.Walk(f)
	}
}

// String returns the canonical textual form of the expression.
func (n *Node) String() string {
	var wrappers strings.Builder
	inner := n

	for {
		c, next := inner.wrapperLetter()
		if c == 0 {
			break
		}
		wrappers.WriteByte(c)
		inner = next
	}

	if wrappers.Len() == 0 {
		return inner.bareString()
	}

	return wrappers.String() + ":" + inner.bareString()
}

// wrapperLetter returns the letter this node is printed as when it acts as a
// wrapper, and the wrapped child.
func (n *Node) wrapperLetter() (byte, *Node) {
	switch {
	case n.Frag == FragWrapC && n.Subs[0].Frag == FragPkK,
		n.Frag == FragWrapC && n.Subs[0].Frag == FragPkH:

		// Printed as pk() and pkh().
		return 0, nil

	case n.Frag.isWrapper():
		for c, f := range wrapperChars {
			if f == n.Frag {
				return c, n.Subs[0]
			}
		}

	case n.Frag == FragAndV && n.Subs[1].Frag == FragTrue:
		return 't', n.Subs[0]

	case n.Frag == FragOrI && n.Subs[0].Frag == FragFalse:
		return 'l', n.Subs[1]

	case n.Frag == FragOrI && n.Subs[1].Frag == FragFalse:
		return 'u', n.Subs[0]
	}

	return 0, nil
}

func (n *Node) bareString() string {
	switch n.Frag {
	case FragFalse:
		return "0"

	case FragTrue:
		return "1"

	case FragWrapC:
		if n.Subs[0].Frag == FragPkK {
			return "pk(" + n.Subs[0].Keys[0] + ")"
		}
		return "pkh(" + n.Subs[0].Keys[0] + ")"

	case FragPkK, FragPkH:
		return fragNames[n.Frag] + "(" + n.Keys[0] + ")"

	case FragOlder, FragAfter:
		return fmt.Sprintf("%s(%d)", fragNames[n.Frag], n.K)

	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		return fragNames[n.Frag] + "(" + hex.EncodeToString(n.Hash) +
			")"

	case FragMulti, FragMultiA, FragSortedMultiA:
		return fmt.Sprintf("%s(%d,%s)", fragNames[n.Frag], n.K,
			strings.Join(n.Keys, ","))

	case FragAndOr:
		if n.Subs[2].Frag == FragFalse {
			return "and_n(" + n.Subs[0].String() + "," +
				n.Subs[1].String() + ")"
		}
	}

	args := make([]string, 0, len(n.Subs)+1)
	if n.Frag == FragThresh {
		args = append(args, fmt.Sprintf("%d", n.K))
	}
	for _, sub := range n.Subs {
		args = append(args, sub.String())
	}

	return fragNames[n.Frag] + "(" + strings.Join(args, ",") + ")"
}
