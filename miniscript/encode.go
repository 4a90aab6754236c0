package miniscript

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/miniscript-shim/fn"
)

// KeyFunc resolves a key expression to its serialized form for the context
// the script is encoded in: 33 (or 65 in legacy) bytes, or 32 bytes x-only in
// tapscript.
type KeyFunc func(key string) ([]byte, error)

// verifyOps maps the opcodes a v: wrapper can fold into to their VERIFY
// variant.
var verifyOps = map[byte]byte{
	txscript.OP_CHECKSIG:      txscript.OP_CHECKSIGVERIFY,
	txscript.OP_EQUAL:         txscript.OP_EQUALVERIFY,
	txscript.OP_NUMEQUAL:      txscript.OP_NUMEQUALVERIFY,
	txscript.OP_CHECKMULTISIG: txscript.OP_CHECKMULTISIGVERIFY,
}

// Encode returns the script for the expression, resolving keys through the
// given function.
func (n *Node) Encode(ctx Context, keyFn KeyFunc) ([]byte, error) {
	resolve := func(key string) ([]byte, error) {
		b, err := keyFn(key)
		if err != nil {
			return nil, err
		}
		if err := checkKeyLen(ctx, key, b); err != nil {
			return nil, err
		}

		return b, nil
	}

	return n.encode(resolve)
}

// checkKeyLen makes sure the serialized key fits the script context.
func checkKeyLen(ctx Context, key string, b []byte) error {
	switch {
	case ctx == Tap && len(b) == 32:
	case ctx == SegwitV0 && len(b) == 33:
	case ctx == Legacy && (len(b) == 33 || len(b) == 65):
	default:
		return fmt.Errorf("key %s has invalid length %d for %v "+
			"context", key, len(b), ctx)
	}

	return nil
}

func (n *Node) encode(keyFn KeyFunc) ([]byte, error) {
	// Children are encoded first since almost every fragment is a
	// concatenation of them with a few opcodes in between.
	subs, err := fn.MapErr(n.Subs, func(s *Node) ([]byte, error) {
		return s.encode(keyFn)
	})
	if err != nil {
		return nil, err
	}

	b := txscript.NewScriptBuilder()
	raw := func(parts ...[]byte) []byte {
		return bytes.Join(parts, nil)
	}
	ops := func(o ...byte) []byte {
		return o
	}

	switch n.Frag {
	case FragFalse:
		return ops(txscript.OP_0), nil

	case FragTrue:
		return ops(txscript.OP_1), nil

	case FragPkK:
		key, err := keyFn(n.Keys[0])
		if err != nil {
			return nil, err
		}
		return b.AddData(key).Script()

	case FragPkH:
		key, err := keyFn(n.Keys[0])
		if err != nil {
			return nil, err
		}
		return b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
			AddData(btcutil.Hash160(key)).
			AddOp(txscript.OP_EQUALVERIFY).Script()

	case FragOlder:
		return b.AddInt64(int64(n.K)).
			AddOp(txscript.OP_CHECKSEQUENCEVERIFY).Script()

	case FragAfter:
		return b.AddInt64(int64(n.K)).
			AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).Script()

	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		hashOp := map[Fragment]byte{
			FragSha256:    txscript.OP_SHA256,
			FragHash256:   txscript.OP_HASH256,
			FragRipemd160: txscript.OP_RIPEMD160,
			FragHash160:   txscript.OP_HASH160,
		}[n.Frag]
		return b.AddOp(txscript.OP_SIZE).AddInt64(32).
			AddOp(txscript.OP_EQUALVERIFY).AddOp(hashOp).
			AddData(n.Hash).AddOp(txscript.OP_EQUAL).Script()

	case FragAndOr:
		return raw(
			subs[0], ops(txscript.OP_NOTIF), subs[2],
			ops(txscript.OP_ELSE), subs[1], ops(txscript.OP_ENDIF),
		), nil

	case FragAndV:
		return raw(subs[0], subs[1]), nil

	case FragAndB:
		return raw(subs[0], subs[1], ops(txscript.OP_BOOLAND)), nil

	case FragOrB:
		return raw(subs[0], subs[1], ops(txscript.OP_BOOLOR)), nil

	case FragOrC:
		return raw(
			subs[0], ops(txscript.OP_NOTIF), subs[1],
			ops(txscript.OP_ENDIF),
		), nil

	case FragOrD:
		return raw(
			subs[0], ops(txscript.OP_IFDUP, txscript.OP_NOTIF),
			subs[1], ops(txscript.OP_ENDIF),
		), nil

	case FragOrI:
		return raw(
			ops(txscript.OP_IF), subs[0], ops(txscript.OP_ELSE),
			subs[1], ops(txscript.OP_ENDIF),
		), nil

	case FragThresh:
		script := subs[0]
		for _, s := range subs[1:] {
			script = raw(script, s, ops(txscript.OP_ADD))
		}
		tail, err := b.AddInt64(int64(n.K)).AddOp(txscript.OP_EQUAL).
			Script()
		if err != nil {
			return nil, err
		}
		return raw(script, tail), nil

	case FragMulti:
		keys, err := fn.MapErr(n.Keys, keyFn)
		if err != nil {
			return nil, err
		}
		b.AddInt64(int64(n.K))
		for _, key := range keys {
			b.AddData(key)
		}
		return b.AddInt64(int64(len(keys))).
			AddOp(txscript.OP_CHECKMULTISIG).Script()

	case FragMultiA, FragSortedMultiA:
		keys, err := fn.MapErr(n.Keys, keyFn)
		if err != nil {
			return nil, err
		}
		if n.Frag == FragSortedMultiA {
			sort.Slice(keys, func(i, j int) bool {
				return bytes.Compare(keys[i], keys[j]) < 0
			})
		}
		for i, key := range keys {
			b.AddData(key)
			if i == 0 {
				b.AddOp(txscript.OP_CHECKSIG)
			} else {
				b.AddOp(txscript.OP_CHECKSIGADD)
			}
		}
		return b.AddInt64(int64(n.K)).AddOp(txscript.OP_NUMEQUAL).
			Script()

	case FragWrapA:
		return raw(
			ops(txscript.OP_TOALTSTACK), subs[0],
			ops(txscript.OP_FROMALTSTACK),
		), nil

	case FragWrapS:
		return raw(ops(txscript.OP_SWAP), subs[0]), nil

	case FragWrapC:
		return raw(subs[0], ops(txscript.OP_CHECKSIG)), nil

	case FragWrapD:
		return raw(
			ops(txscript.OP_DUP, txscript.OP_IF), subs[0],
			ops(txscript.OP_ENDIF),
		), nil

	case FragWrapV:
		inner := subs[0]
		if n.Subs[0].endsInVerifiable() {
			last := len(inner) - 1
			folded := make([]byte, len(inner))
			copy(folded, inner)
			folded[last] = verifyOps[inner[last]]

			return folded, nil
		}
		return raw(inner, ops(txscript.OP_VERIFY)), nil

	case FragWrapJ:
		return raw(
			ops(txscript.OP_SIZE, txscript.OP_0NOTEQUAL,
				txscript.OP_IF),
			subs[0], ops(txscript.OP_ENDIF),
		), nil

	case FragWrapN:
		return raw(subs[0], ops(txscript.OP_0NOTEQUAL)), nil
	}

	return nil, fmt.Errorf("unknown fragment %d", n.Frag)
}

// endsInVerifiable reports whether the script of the node ends in an opcode
// that has a VERIFY variant.
func (n *Node) endsInVerifiable() bool {
	switch n.Frag {
	case FragWrapC, FragSha256, FragHash256, FragRipemd160, FragHash160,
		FragThresh, FragMulti, FragMultiA, FragSortedMultiA:

		return true

	case FragAndV:
		return n.Subs[1].endsInVerifiable()
	}

	return false
}
