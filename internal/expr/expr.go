// Package expr parses the nested function-call syntax shared by output
// descriptors and miniscript, e.g. `wsh(and_v(v:pk(A),older(10)))`, into a
// generic tree. Taproot script trees use braces, `{left,right}`, which are
// returned as nodes named BraceName.
package expr

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// BraceName is the name given to a `{a,b}` tap tree branch.
	BraceName = "{}"

	// MaxDepth is the maximum nesting depth accepted by the parser.
	MaxDepth = 402
)

var (
	// ErrEmpty is returned when parsing an empty expression.
	ErrEmpty = errors.New("empty expression")
)

// Tree is a parsed expression. A terminal has no arguments.
type Tree struct {
	Name string
	Args []*Tree
}

// IsTerminal returns true if the tree is a bare token such as a key or a
// number.
func (t *Tree) IsTerminal() bool {
	return len(t.Args) == 0
}

// String re-serializes the tree.
func (t *Tree) String() string {
	if t.IsTerminal() && t.Name != BraceName {
		return t.Name
	}

	openTok, closeTok := "(", ")"
	prefix := t.Name
	if t.Name == BraceName {
		openTok, closeTok = "{", "}"
		prefix = ""
	}

	s := prefix + openTok
	for i, a := range t.Args {
		if i > 0 {
			s += ","
		}
		s += a.String()
	}

	return s + closeTok
}

// Uint32 interprets a terminal as a decimal number.
func (t *Tree) Uint32() (uint32, error) {
	if !t.IsTerminal() {
		return 0, fmt.Errorf("expected number, got %v", t)
	}

	// Leading zeros and signs are not part of the grammar.
	if len(t.Name) > 1 && t.Name[0] == '0' {
		return 0, fmt.Errorf("invalid number %q", t.Name)
	}

	n, err := strconv.ParseUint(t.Name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", t.Name)
	}

	return uint32(n), nil
}

// Error is a parse error positioned at a byte offset of the input.
type Error struct {
	Pos int
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

// Parse parses the full input into a single tree.
func Parse(s string) (*Tree, error) {
	if len(s) == 0 {
		return nil, ErrEmpty
	}

	p := &parser{in: s}
	t, err := p.parse(0)
	if err != nil {
		return nil, err
	}

	if p.pos != len(s) {
		return nil, p.errorf("unexpected %q", s[p.pos])
	}

	return t, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &Error{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) parse(depth int) (*Tree, error) {
	if depth > MaxDepth {
		return nil, p.errorf("maximum nesting depth exceeded")
	}

	if p.peek() == '{' {
		p.pos++
		left, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		if p.peek() != ',' {
			return nil, p.errorf("expected ','")
		}
		p.pos++
		right, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		if p.peek() != '}' {
			return nil, p.errorf("expected '}'")
		}
		p.pos++

		return &Tree{Name: BraceName, Args: []*Tree{left, right}}, nil
	}

	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c == '(' || c == ')' || c == ',' || c == '{' || c == '}' {
			break
		}
		p.pos++
	}
	name := p.in[start:p.pos]
	if name == "" {
		return nil, p.errorf("expected name")
	}

	t := &Tree{Name: name}
	if p.peek() != '(' {
		return t, nil
	}
	p.pos++

	for {
		arg, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		t.Args = append(t.Args, arg)

		switch p.peek() {
		case ',':
			p.pos++

		case ')':
			p.pos++
			return t, nil

		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}
