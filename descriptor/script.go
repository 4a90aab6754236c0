package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/miniscript"
	"github.com/lightninglabs/miniscript-shim/taproot"
)

// ErrNoAddress is returned for output scripts that have no address
// encoding, such as bare multisig.
var ErrNoAddress = errors.New("output script has no address form")

// payToScriptHash returns the P2SH output script for the redeem script.
func payToScriptHash(redeem []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeem)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// payToWitnessScriptHash returns the P2WSH output script for the witness
// script.
func payToWitnessScriptHash(witness []byte) ([]byte, error) {
	h := chainhash.HashB(witness)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(h).
		Script()
}

func payToPubKeyHash(pub []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pub)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func payToWitnessPubKeyHash(pub []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pub)).
		Script()
}

// script returns the CHECKMULTISIG script with the keys sorted by their
// serialization at the given index.
func (s *SortedMulti) script(index uint32) ([]byte, error) {
	keys, err := fn.MapErr(s.Keys, func(k *Key) ([]byte, error) {
		return k.Serialize(s.ctx, index)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})

	b := txscript.NewScriptBuilder().AddInt64(int64(s.K))
	for _, k := range keys {
		b.AddData(k)
	}

	return b.AddInt64(int64(len(keys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// ScriptPubKey returns the script itself.
func (d *Bare) ScriptPubKey(index uint32) ([]byte, error) {
	return d.script.encode(index)
}

// ScriptPubKey returns the P2PKH script of the key.
func (d *Pkh) ScriptPubKey(index uint32) ([]byte, error) {
	pub, err := d.Key.Serialize(miniscript.Legacy, index)
	if err != nil {
		return nil, err
	}

	return payToPubKeyHash(pub)
}

// ScriptPubKey returns the P2WPKH script of the key.
func (d *Wpkh) ScriptPubKey(index uint32) ([]byte, error) {
	pub, err := d.Key.PubKey(index)
	if err != nil {
		return nil, err
	}

	return payToWitnessPubKeyHash(pub.SerializeCompressed())
}

// witnessScript returns the script committed to by the output.
func (d *Wsh) witnessScript(index uint32) ([]byte, error) {
	if d.SortedMulti != nil {
		return d.SortedMulti.script(index)
	}

	return d.script.encode(index)
}

// ScriptPubKey returns the P2WSH script.
func (d *Wsh) ScriptPubKey(index uint32) ([]byte, error) {
	witness, err := d.witnessScript(index)
	if err != nil {
		return nil, err
	}

	return payToWitnessScriptHash(witness)
}

// redeemScript returns the script committed to by the P2SH output. For
// nested segwit this is the witness program.
func (d *Sh) redeemScript(index uint32) ([]byte, error) {
	switch {
	case d.Wsh != nil:
		return d.Wsh.ScriptPubKey(index)
	case d.Wpkh != nil:
		return d.Wpkh.ScriptPubKey(index)
	case d.SortedMulti != nil:
		return d.SortedMulti.script(index)
	default:
		return d.script.encode(index)
	}
}

// ScriptPubKey returns the P2SH script.
func (d *Sh) ScriptPubKey(index uint32) ([]byte, error) {
	redeem, err := d.redeemScript(index)
	if err != nil {
		return nil, err
	}

	return payToScriptHash(redeem)
}

// tapNode converts the tree into a script tree at the given index.
func (t *TapTree) tapNode(index uint32) (txscript.TapNode, error) {
	if t.IsLeaf() {
		script, err := t.leaf.encode(index)
		if err != nil {
			return nil, err
		}

		return txscript.NewBaseTapLeaf(script), nil
	}

	left, err := t.Left.tapNode(index)
	if err != nil {
		return nil, err
	}
	right, err := t.Right.tapNode(index)
	if err != nil {
		return nil, err
	}

	return txscript.NewTapBranch(left, right), nil
}

// SpendInfo returns the taproot output data at the given index.
func (d *Tr) SpendInfo(index uint32) (*taproot.SpendInfo, error) {
	internal, err := d.InternalKey.PubKey(index)
	if err != nil {
		return nil, err
	}

	var root txscript.TapNode
	if d.Tree != nil {
		root, err = d.Tree.tapNode(index)
		if err != nil {
			return nil, err
		}
	}

	return taproot.NewSpendInfo(internal, root)
}

// ScriptPubKey returns the P2TR script.
func (d *Tr) ScriptPubKey(index uint32) ([]byte, error) {
	info, err := d.SpendInfo(index)
	if err != nil {
		return nil, err
	}

	return info.PkScript()
}

// Address returns the address of the descriptor's output at the given index.
func Address(d Descriptor, index uint32,
	params *chaincfg.Params) (btcutil.Address, error) {

	pkScript, err := d.ScriptPubKey(index)
	if err != nil {
		return nil, err
	}

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil {
		return nil, err
	}

	switch class {
	case txscript.PubKeyHashTy, txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy:

		if len(addrs) == 1 {
			return addrs[0], nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrNoAddress, class)
}

// Derivations returns the BIP-32 derivation records of all keys with a known
// origin at the given index.
func Derivations(d Descriptor, index uint32) ([]*psbt.Bip32Derivation,
	error) {

	derivations, err := fn.MapErr(
		d.Keys(), func(k *Key) (*psbt.Bip32Derivation, error) {
			return k.Derivation(index)
		},
	)
	if err != nil {
		return nil, err
	}

	return fn.Filter(derivations, func(b *psbt.Bip32Derivation) bool {
		return b != nil
	}), nil
}
