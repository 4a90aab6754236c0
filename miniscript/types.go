package miniscript

import (
	"fmt"
	"strings"
)

// BasicType is one of the four miniscript basic types.
type BasicType uint8

const (
	// TypeB pushes a nonzero value on satisfaction and an exact zero on
	// dissatisfaction.
	TypeB BasicType = iota

	// TypeV continues execution on satisfaction and cannot be
	// dissatisfied.
	TypeV

	// TypeK pushes a public key that still needs a signature check.
	TypeK

	// TypeW takes its input from one below the top of the stack.
	TypeW
)

// String returns the single letter name of the type.
func (b BasicType) String() string {
	return [...]string{"B", "V", "K", "W"}[b]
}

// Type is the basic type of an expression plus its correctness properties.
type Type struct {
	Base BasicType

	// Z: consumes exactly 0 stack elements.
	Z bool

	// O: consumes exactly 1 stack element.
	O bool

	// N: the top input is never zero when satisfied.
	N bool

	// D: has a dissatisfaction that needs no signature.
	D bool

	// U: leaves exactly 1 on the stack when satisfied.
	U bool
}

// String formats the type like "Bondu".
func (t Type) String() string {
	var b strings.Builder
	b.WriteString(t.Base.String())
	for _, p := range []struct {
		set bool
		c   byte
	}{{t.Z, 'z'}, {t.O, 'o'}, {t.N, 'n'}, {t.D, 'd'}, {t.U, 'u'}} {
		if p.set {
			b.WriteByte(p.c)
		}
	}

	return b.String()
}

// typeError builds an error describing an argument with an unexpected type.
func typeError(frag string, arg int, want string, got Type) error {
	return fmt.Errorf("%s: argument %d must be type %s, got %v", frag, arg,
		want, got)
}

// isBase reports whether t has the basic type b and every one of the
// requested properties.
func isBase(t Type, b BasicType, props string) bool {
	if t.Base != b {
		return false
	}
	for _, p := range props {
		switch p {
		case 'z':
			if !t.Z {
				return false
			}
		case 'o':
			if !t.O {
				return false
			}
		case 'n':
			if !t.N {
				return false
			}
		case 'd':
			if !t.D {
				return false
			}
		case 'u':
			if !t.U {
				return false
			}
		}
	}

	return true
}

// computeType derives the type of a node from the already computed types of
// its children, returning an error if the children do not fit.
func computeType(n *Node, ctx Context) (Type, error) {
	sub := func(i int) Type { return n.Subs[i].typ }
	name := n.name()

	switch n.Frag {
	case FragFalse:
		return Type{Base: TypeB, Z: true, U: true, D: true}, nil

	case FragTrue:
		return Type{Base: TypeB, Z: true, U: true}, nil

	case FragPkK:
		return Type{Base: TypeK, O: true, N: true, D: true, U: true}, nil

	case FragPkH:
		return Type{Base: TypeK, N: true, D: true, U: true}, nil

	case FragOlder, FragAfter:
		return Type{Base: TypeB, Z: true}, nil

	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		return Type{Base: TypeB, O: true, N: true, D: true, U: true}, nil

	case FragAndOr:
		x, y, z := sub(0), sub(1), sub(2)
		if !isBase(x, TypeB, "du") {
			return Type{}, typeError(name, 1, "Bdu", x)
		}
		if y.Base != z.Base || y.Base == TypeW {
			return Type{}, fmt.Errorf("%s: arguments 2 and 3 must "+
				"both be B, K or V, got %v and %v", name, y, z)
		}
		return Type{
			Base: y.Base,
			Z:    x.Z && y.Z && z.Z,
			O:    (x.Z && y.O && z.O) || (x.O && y.Z && z.Z),
			U:    y.U && z.U,
			D:    z.D,
		}, nil

	case FragAndV:
		x, y := sub(0), sub(1)
		if x.Base != TypeV {
			return Type{}, typeError(name, 1, "V", x)
		}
		if y.Base == TypeW {
			return Type{}, typeError(name, 2, "B, K or V", y)
		}
		return Type{
			Base: y.Base,
			Z:    x.Z && y.Z,
			O:    (x.Z && y.O) || (x.O && y.Z),
			N:    x.N || (x.Z && y.N),
			U:    y.U,
		}, nil

	case FragAndB:
		x, y := sub(0), sub(1)
		if x.Base != TypeB {
			return Type{}, typeError(name, 1, "B", x)
		}
		if y.Base != TypeW {
			return Type{}, typeError(name, 2, "W", y)
		}
		return Type{
			Base: TypeB,
			Z:    x.Z && y.Z,
			O:    (x.Z && y.O) || (x.O && y.Z),
			N:    x.N || (x.Z && y.N),
			D:    x.D && y.D,
			U:    true,
		}, nil

	case FragOrB:
		x, z := sub(0), sub(1)
		if !isBase(x, TypeB, "d") {
			return Type{}, typeError(name, 1, "Bd", x)
		}
		if !isBase(z, TypeW, "d") {
			return Type{}, typeError(name, 2, "Wd", z)
		}
		return Type{
			Base: TypeB,
			Z:    x.Z && z.Z,
			O:    (x.Z && z.O) || (x.O && z.Z),
			D:    true,
			U:    true,
		}, nil

	case FragOrC:
		x, z := sub(0), sub(1)
		if !isBase(x, TypeB, "du") {
			return Type{}, typeError(name, 1, "Bdu", x)
		}
		if z.Base != TypeV {
			return Type{}, typeError(name, 2, "V", z)
		}
		return Type{
			Base: TypeV,
			Z:    x.Z && z.Z,
			O:    x.O && z.Z,
		}, nil

	case FragOrD:
		x, z := sub(0), sub(1)
		if !isBase(x, TypeB, "du") {
			return Type{}, typeError(name, 1, "Bdu", x)
		}
		if z.Base != TypeB {
			return Type{}, typeError(name, 2, "B", z)
		}
		return Type{
			Base: TypeB,
			Z:    x.Z && z.Z,
			O:    x.O && z.Z,
			D:    z.D,
			U:    z.U,
		}, nil

	case FragOrI:
		x, z := sub(0), sub(1)
		if x.Base != z.Base || x.Base == TypeW {
			return Type{}, fmt.Errorf("%s: arguments must both be "+
				"B, K or V, got %v and %v", name, x, z)
		}
		return Type{
			Base: x.Base,
			O:    x.Z && z.Z,
			U:    x.U && z.U,
			D:    x.D || z.D,
		}, nil

	case FragThresh:
		t := Type{Base: TypeB, Z: true, D: true, U: true}
		numO := 0
		for i, s := range n.Subs {
			want, base := "Wdu", TypeW
			if i == 0 {
				want, base = "Bdu", TypeB
			}
			if !isBase(s.typ, base, "du") {
				return Type{}, typeError(name, i+2, want, s.typ)
			}
			t.Z = t.Z && s.typ.Z
			switch {
			case s.typ.O:
				numO++
			case !s.typ.Z:
				numO = len(n.Subs) + 1
			}
		}
		t.O = numO == 1
		return t, nil

	case FragMulti:
		if ctx == Tap {
			return Type{}, fmt.Errorf("multi is not allowed in " +
				"tapscript, use multi_a")
		}
		return Type{Base: TypeB, N: true, D: true, U: true}, nil

	case FragMultiA, FragSortedMultiA:
		if ctx != Tap {
			return Type{}, fmt.Errorf("%s is only allowed in "+
				"tapscript", name)
		}
		return Type{Base: TypeB, D: true, U: true}, nil

	case FragWrapA:
		x := sub(0)
		if x.Base != TypeB {
			return Type{}, typeError(name, 1, "B", x)
		}
		return Type{Base: TypeW, D: x.D, U: x.U}, nil

	case FragWrapS:
		x := sub(0)
		if !isBase(x, TypeB, "o") {
			return Type{}, typeError(name, 1, "Bo", x)
		}
		return Type{Base: TypeW, D: x.D, U: x.U}, nil

	case FragWrapC:
		x := sub(0)
		if x.Base != TypeK {
			return Type{}, typeError(name, 1, "K", x)
		}
		return Type{Base: TypeB, O: x.O, N: x.N, D: x.D, U: true}, nil

	case FragWrapD:
		x := sub(0)
		if !isBase(x, TypeV, "z") {
			return Type{}, typeError(name, 1, "Vz", x)
		}
		return Type{
			Base: TypeB, O: true, N: true, D: true, U: ctx == Tap,
		}, nil

	case FragWrapV:
		x := sub(0)
		if x.Base != TypeB {
			return Type{}, typeError(name, 1, "B", x)
		}
		return Type{Base: TypeV, Z: x.Z, O: x.O, N: x.N}, nil

	case FragWrapJ:
		x := sub(0)
		if !isBase(x, TypeB, "n") {
			return Type{}, typeError(name, 1, "Bn", x)
		}
		return Type{Base: TypeB, O: x.O, N: true, D: true, U: x.U}, nil

	case FragWrapN:
		x := sub(0)
		if x.Base != TypeB {
			return Type{}, typeError(name, 1, "B", x)
		}
		return Type{
			Base: TypeB, Z: x.Z, O: x.O, N: x.N, D: x.D, U: true,
		}, nil
	}

	return Type{}, fmt.Errorf("unknown fragment %d", n.Frag)
}

// name returns the textual name used for the node in error messages.
func (n *Node) name() string {
	if name, ok := fragNames[n.Frag]; ok {
		return name
	}
	for c, f := range wrapperChars {
		if f == n.Frag {
			return string(c) + ":"
		}
	}
	if n.Frag == FragTrue {
		return "1"
	}

	return "0"
}
