package miniscript

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lightninglabs/miniscript-shim/internal/expr"
)

const (
	// MaxMultiKeys is the maximum number of keys in a multi fragment.
	MaxMultiKeys = 20

	// MaxMultiAKeys is the maximum number of keys in a multi_a fragment.
	MaxMultiAKeys = 999

	// maxLockTime is the exclusive upper bound of a timelock argument.
	maxLockTime = 1 << 31
)

var (
	// ErrNotTopLevel is returned when an expression that is not of type B
	// is used as a complete script.
	ErrNotTopLevel = errors.New("miniscript is not of type B")
)

// Parse parses and type checks a complete miniscript expression in the given
// context.
func Parse(s string, ctx Context) (*Node, error) {
	tree, err := expr.Parse(s)
	if err != nil {
		return nil, err
	}

	return FromTree(tree, ctx)
}

// FromTree builds and type checks a complete miniscript expression from an
// already parsed expression tree. The result is guaranteed to be of type B.
func FromTree(t *expr.Tree, ctx Context) (*Node, error) {
	n, err := fromTree(t, ctx)
	if err != nil {
		return nil, err
	}

	if n.typ.Base != TypeB {
		return nil, fmt.Errorf("%w: %v has type %v", ErrNotTopLevel, n,
			n.typ)
	}

	log.Tracef("Parsed %v miniscript %v with type %v", ctx, n, n.typ)

	return n, nil
}

// fromTree recursively converts an expression tree, applying the wrappers
// that prefix the fragment name from the innermost outwards.
func fromTree(t *expr.Tree, ctx Context) (*Node, error) {
	name := t.Name
	var wrappers string
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		wrappers, name = name[:idx], name[idx+1:]
		if wrappers == "" {
			return nil, fmt.Errorf("empty wrapper list in %q",
				t.Name)
		}
	}

	n, err := fragmentFromTree(&expr.Tree{Name: name, Args: t.Args}, ctx)
	if err != nil {
		return nil, err
	}

	for i := len(wrappers) - 1; i >= 0; i-- {
		n, err = wrap(wrappers[i], n, ctx)
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}

// wrap applies a single wrapper letter to a node.
func wrap(c byte, x *Node, ctx Context) (*Node, error) {
	switch c {
	case 't':
		return newNode(ctx, &Node{
			Frag: FragAndV, Subs: []*Node{x, leaf(FragTrue)},
		})

	case 'l':
		return newNode(ctx, &Node{
			Frag: FragOrI, Subs: []*Node{leaf(FragFalse), x},
		})

	case 'u':
		return newNode(ctx, &Node{
			Frag: FragOrI, Subs: []*Node{x, leaf(FragFalse)},
		})
	}

	frag, ok := wrapperChars[c]
	if !ok {
		return nil, fmt.Errorf("unknown wrapper %q", c)
	}

	return newNode(ctx, &Node{Frag: frag, Subs: []*Node{x}})
}

// leaf returns a typed constant node.
func leaf(f Fragment) *Node {
	n := &Node{Frag: f}
	n.typ, _ = computeType(n, Legacy)

	return n
}

// newNode type checks a node whose children are already typed.
func newNode(ctx Context, n *Node) (*Node, error) {
	typ, err := computeType(n, ctx)
	if err != nil {
		return nil, err
	}
	n.typ = typ

	return n, nil
}

// fragmentArity lists the fixed number of sub expressions per fragment.
var fragmentArity = map[string]int{
	"andor": 3,
	"and_v": 2,
	"and_b": 2,
	"and_n": 2,
	"or_b":  2,
	"or_c":  2,
	"or_d":  2,
	"or_i":  2,
}

func fragmentFromTree(t *expr.Tree, ctx Context) (*Node, error) {
	switch t.Name {
	case "0", "1":
		if !t.IsTerminal() {
			return nil, fmt.Errorf("%s takes no arguments", t.Name)
		}
		if t.Name == "0" {
			return leaf(FragFalse), nil
		}
		return leaf(FragTrue), nil

	case "pk_k", "pk_h", "pk", "pkh":
		if len(t.Args) != 1 || !t.Args[0].IsTerminal() {
			return nil, fmt.Errorf("%s takes a single key", t.Name)
		}
		key := t.Args[0].Name

		frag := FragPkK
		if t.Name == "pk_h" || t.Name == "pkh" {
			frag = FragPkH
		}
		n, err := newNode(ctx, &Node{Frag: frag, Keys: []string{key}})
		if err != nil {
			return nil, err
		}
		if t.Name == "pk" || t.Name == "pkh" {
			return wrap('c', n, ctx)
		}
		return n, nil

	case "older", "after":
		if len(t.Args) != 1 {
			return nil, fmt.Errorf("%s takes a single number",
				t.Name)
		}
		k, err := t.Args[0].Uint32()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		if k == 0 || k >= maxLockTime {
			return nil, fmt.Errorf("%s: timelock %d out of range",
				t.Name, k)
		}
		frag := FragOlder
		if t.Name == "after" {
			frag = FragAfter
		}
		return newNode(ctx, &Node{Frag: frag, K: k})

	case "sha256", "hash256", "ripemd160", "hash160":
		return hashFromTree(t, ctx)

	case "thresh":
		if len(t.Args) < 2 {
			return nil, fmt.Errorf("thresh needs a threshold and " +
				"at least one sub expression")
		}
		k, err := t.Args[0].Uint32()
		if err != nil {
			return nil, fmt.Errorf("thresh: %w", err)
		}
		subs, err := subsFromTrees(t.Args[1:], ctx)
		if err != nil {
			return nil, err
		}
		if k == 0 || int(k) > len(subs) {
			return nil, fmt.Errorf("thresh: threshold %d out of "+
				"range for %d sub expressions", k, len(subs))
		}
		return newNode(ctx, &Node{Frag: FragThresh, K: k, Subs: subs})

	case "multi", "multi_a", "sortedmulti_a":
		return multiFromTree(t, ctx)
	}

	arity, ok := fragmentArity[t.Name]
	if !ok {
		return nil, fmt.Errorf("unknown fragment %q", t.Name)
	}
	if len(t.Args) != arity {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", t.Name,
			arity, len(t.Args))
	}

	subs, err := subsFromTrees(t.Args, ctx)
	if err != nil {
		return nil, err
	}

	var frag Fragment
	switch t.Name {
	case "andor":
		frag = FragAndOr
	case "and_v":
		frag = FragAndV
	case "and_b":
		frag = FragAndB
	case "and_n":
		frag = FragAndOr
		subs = append(subs, leaf(FragFalse))
	case "or_b":
		frag = FragOrB
	case "or_c":
		frag = FragOrC
	case "or_d":
		frag = FragOrD
	case "or_i":
		frag = FragOrI
	}

	return newNode(ctx, &Node{Frag: frag, Subs: subs})
}

func subsFromTrees(trees []*expr.Tree, ctx Context) ([]*Node, error) {
	subs := make([]*Node, 0, len(trees))
	for _, t := range trees {
		sub, err := fromTree(t, ctx)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

func hashFromTree(t *expr.Tree, ctx Context) (*Node, error) {
	frag, size := FragSha256, 32
	switch t.Name {
	case "hash256":
		frag = FragHash256
	case "ripemd160":
		frag, size = FragRipemd160, 20
	case "hash160":
		frag, size = FragHash160, 20
	}

	if len(t.Args) != 1 || !t.Args[0].IsTerminal() {
		return nil, fmt.Errorf("%s takes a single hex digest", t.Name)
	}
	digest, err := hex.DecodeString(t.Args[0].Name)
	if err != nil || len(digest) != size {
		return nil, fmt.Errorf("%s: expected %d byte hex digest, got "+
			"%q", t.Name, size, t.Args[0].Name)
	}

	return newNode(ctx, &Node{Frag: frag, Hash: digest})
}

func multiFromTree(t *expr.Tree, ctx Context) (*Node, error) {
	if len(t.Args) < 2 {
		return nil, fmt.Errorf("%s needs a threshold and at least "+
			"one key", t.Name)
	}
	k, err := t.Args[0].Uint32()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}

	keys := make([]string, 0, len(t.Args)-1)
	for _, arg := range t.Args[1:] {
		if !arg.IsTerminal() {
			return nil, fmt.Errorf("%s: expected key, got %v",
				t.Name, arg)
		}
		keys = append(keys, arg.Name)
	}

	frag, maxKeys := FragMulti, MaxMultiKeys
	switch t.Name {
	case "multi_a":
		frag, maxKeys = FragMultiA, MaxMultiAKeys
	case "sortedmulti_a":
		frag, maxKeys = FragSortedMultiA, MaxMultiAKeys
	}

	if len(keys) > maxKeys {
		return nil, fmt.Errorf("%s: too many keys (%d > %d)", t.Name,
			len(keys), maxKeys)
	}
	if k == 0 || int(k) > len(keys) {
		return nil, fmt.Errorf("%s: threshold %d out of range for %d "+
			"keys", t.Name, k, len(keys))
	}

	return newNode(ctx, &Node{Frag: frag, K: k, Keys: keys})
}
