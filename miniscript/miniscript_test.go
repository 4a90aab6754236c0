package miniscript

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// testKeys maps symbolic key names to fixed 33-byte compressed keys. The
// x-only form is the same bytes without the leading parity byte.
var testKeys = map[string][]byte{
	"A": bytes.Repeat([]byte{0x02}, 33),
	"B": append([]byte{0x03}, bytes.Repeat([]byte{0x11}, 32)...),
	"C": append([]byte{0x02}, bytes.Repeat([]byte{0x22}, 32)...),
}

func segwitKey(key string) ([]byte, error) {
	b, ok := testKeys[key]
	if !ok {
		return nil, fmt.Errorf("missing key %s", key)
	}
	return b, nil
}

func tapKey(key string) ([]byte, error) {
	b, err := segwitKey(key)
	if err != nil {
		return nil, err
	}
	return b[1:], nil
}

func TestParseTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		ctx  Context
		typ  string
		keys []string
	}{
		{in: "pk(A)", ctx: SegwitV0, typ: "Bondu", keys: []string{"A"}},
		{in: "pkh(A)", ctx: Legacy, typ: "Bndu", keys: []string{"A"}},
		{in: "older(144)", ctx: SegwitV0, typ: "Bz"},
		{
			in:   "and_v(v:pk(A),older(144))",
			ctx:  SegwitV0,
			typ:  "Bon",
			keys: []string{"A"},
		},
		{
			in:   "or_d(pk(A),and_v(v:pkh(B),older(10)))",
			ctx:  SegwitV0,
			typ:  "B",
			keys: []string{"A", "B"},
		},
		{
			in:   "or_b(pk(A),s:pk(B))",
			ctx:  SegwitV0,
			typ:  "Bdu",
			keys: []string{"A", "B"},
		},
		{
			in:   "thresh(2,pk(A),s:pk(B),sln:older(12960))",
			ctx:  SegwitV0,
			typ:  "Bdu",
			keys: []string{"A", "B"},
		},
		{
			in:   "and_n(pk(A),older(1))",
			ctx:  SegwitV0,
			typ:  "Bod",
			keys: []string{"A"},
		},
		{
			in:   "t:or_c(pk(A),v:pk(B))",
			ctx:  SegwitV0,
			typ:  "Bu",
			keys: []string{"A", "B"},
		},
		{
			in:   "multi(2,A,B,C)",
			ctx:  SegwitV0,
			typ:  "Bndu",
			keys: []string{"A", "B", "C"},
		},
		{
			in:   "multi_a(1,A,B)",
			ctx:  Tap,
			typ:  "Bdu",
			keys: []string{"A", "B"},
		},
		{
			in:  "sha256(" + hex.EncodeToString(make([]byte, 32)) + ")",
			ctx: Tap,
			typ: "Bondu",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			t.Parallel()

			node, err := Parse(test.in, test.ctx)
			require.NoError(t, err)
			require.Equal(t, test.typ, node.Type().String())
			require.Equal(t, test.keys, node.KeyExprs())
			require.Equal(t, test.in, node.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		ctx    Context
		errStr string
	}{
		{
			in:     "and_v(pk(A),pk(B))",
			ctx:    SegwitV0,
			errStr: "and_v: argument 1 must be type V",
		},
		{
			in:     "v:pk(A)",
			ctx:    SegwitV0,
			errStr: ErrNotTopLevel.Error(),
		},
		{
			in:     "multi(1,A,B)",
			ctx:    Tap,
			errStr: "multi is not allowed in tapscript",
		},
		{
			in:     "multi_a(1,A,B)",
			ctx:    SegwitV0,
			errStr: "multi_a is only allowed in tapscript",
		},
		{
			in:     "thresh(2,pk(A),pk(B))",
			ctx:    SegwitV0,
			errStr: "thresh: argument 3 must be type Wdu",
		},
		{
			in:     "older(0)",
			ctx:    SegwitV0,
			errStr: "out of range",
		},
		{
			in:     "multi(3,A,B)",
			ctx:    SegwitV0,
			errStr: "threshold 3 out of range",
		},
		{
			in:     "sha256(00)",
			ctx:    SegwitV0,
			errStr: "expected 32 byte hex digest",
		},
		{
			in:     "x:pk(A)",
			ctx:    SegwitV0,
			errStr: "unknown wrapper",
		},
		{
			in:     "foo(A)",
			ctx:    SegwitV0,
			errStr: `unknown fragment "foo"`,
		},
		{
			in:     "or_i(pk(A))",
			ctx:    SegwitV0,
			errStr: "or_i takes 2 arguments, got 1",
		},
	}

	for _, test := range tests {
		_, err := Parse(test.in, test.ctx)
		require.ErrorContains(t, err, test.errStr, test.in)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	a, b, c := testKeys["A"], testKeys["B"], testKeys["C"]
	push := func(k []byte) []byte {
		return append([]byte{byte(len(k))}, k...)
	}
	cat := func(parts ...[]byte) []byte {
		return bytes.Join(parts, nil)
	}

	tests := []struct {
		in     string
		ctx    Context
		script []byte
	}{
		{
			in:     "pk(A)",
			ctx:    SegwitV0,
			script: cat(push(a), []byte{txscript.OP_CHECKSIG}),
		},
		{
			in:  "and_v(v:pk(A),older(144))",
			ctx: SegwitV0,
			script: cat(
				push(a), []byte{txscript.OP_CHECKSIGVERIFY},
				[]byte{0x02, 0x90, 0x00},
				[]byte{txscript.OP_CHECKSEQUENCEVERIFY},
			),
		},
		{
			in:  "pkh(B)",
			ctx: SegwitV0,
			script: cat(
				[]byte{txscript.OP_DUP, txscript.OP_HASH160},
				push(btcutil.Hash160(b)),
				[]byte{txscript.OP_EQUALVERIFY,
					txscript.OP_CHECKSIG},
			),
		},
		{
			in:  "and_v(v:multi(1,A,B),pk(C))",
			ctx: SegwitV0,
			script: cat(
				[]byte{txscript.OP_1}, push(a), push(b),
				[]byte{txscript.OP_2,
					txscript.OP_CHECKMULTISIGVERIFY},
				push(c), []byte{txscript.OP_CHECKSIG},
			),
		},
		{
			in:  "multi_a(1,A,B)",
			ctx: Tap,
			script: cat(
				push(a[1:]), []byte{txscript.OP_CHECKSIG},
				push(b[1:]), []byte{txscript.OP_CHECKSIGADD},
				[]byte{txscript.OP_1, txscript.OP_NUMEQUAL},
			),
		},
		{
			in:  "sortedmulti_a(1,C,A)",
			ctx: Tap,
			script: cat(
				push(a[1:]), []byte{txscript.OP_CHECKSIG},
				push(c[1:]), []byte{txscript.OP_CHECKSIGADD},
				[]byte{txscript.OP_1, txscript.OP_NUMEQUAL},
			),
		},
		{
			in:  "or_i(pk(A),1)",
			ctx: SegwitV0,
			script: cat(
				[]byte{txscript.OP_IF}, push(a),
				[]byte{txscript.OP_CHECKSIG, txscript.OP_ELSE,
					txscript.OP_1, txscript.OP_ENDIF},
			),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			t.Parallel()

			node, err := Parse(test.in, test.ctx)
			require.NoError(t, err)

			keyFn := segwitKey
			if test.ctx == Tap {
				keyFn = tapKey
			}
			script, err := node.Encode(test.ctx, keyFn)
			require.NoError(t, err)
			require.Equal(t, test.script, script)
		})
	}
}

func TestEncodeKeyLength(t *testing.T) {
	t.Parallel()

	node, err := Parse("pk(A)", SegwitV0)
	require.NoError(t, err)

	_, err = node.Encode(SegwitV0, tapKey)
	require.ErrorContains(t, err, "invalid length 32")

	_, err = node.Encode(SegwitV0, segwitKey)
	require.NoError(t, err)

	missing, err := Parse("pk(Z)", SegwitV0)
	require.NoError(t, err)
	_, err = missing.Encode(SegwitV0, segwitKey)
	require.ErrorContains(t, err, "missing key Z")
}
