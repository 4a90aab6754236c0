package taproot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// MaxTreeDepth is the maximum depth of a leaf in a taproot script tree.
const MaxTreeDepth = 128

// Network is a named set of chain parameters that P2TR addresses are
// rendered for.
type Network struct {
	Name   string
	Params *chaincfg.Params
}

// Networks are the networks SpendInfo.Addresses renders, in output order.
var Networks = []Network{
	{Name: "main", Params: &chaincfg.MainNetParams},
	{Name: "test", Params: &chaincfg.TestNet3Params},
	{Name: "regtest", Params: &chaincfg.RegressionNetParams},
	{Name: "signet", Params: &chaincfg.SigNetParams},
}

// LeafInfo is a leaf script of the tree together with what is needed to
// spend it.
type LeafInfo struct {
	Leaf         txscript.TapLeaf
	ControlBlock txscript.ControlBlock
}

// SpendInfo is everything needed to create and spend a taproot output.
type SpendInfo struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey

	// Tweak is the tap tweak hash committing to the internal key and the
	// merkle root.
	Tweak chainhash.Hash

	// MerkleRoot is nil for key path only outputs.
	MerkleRoot *chainhash.Hash

	// Leaves is ordered left to right as the leaves appear in the tree.
	Leaves []LeafInfo
}

// NewSpendInfo computes the output of an internal key committed to the given
// script tree. A nil root creates a key path only output.
func NewSpendInfo(internalKey *btcec.PublicKey,
	root txscript.TapNode) (*SpendInfo, error) {

	// Only the x coordinate of the internal key is committed to.
	internalKey, err := schnorr.ParsePubKey(
		schnorr.SerializePubKey(internalKey),
	)
	if err != nil {
		return nil, err
	}

	info := &SpendInfo{InternalKey: internalKey}

	var rootBytes []byte
	if root != nil {
		rootHash := root.TapHash()
		info.MerkleRoot = &rootHash
		rootBytes = rootHash[:]
	}

	info.Tweak = *chainhash.TaggedHash(
		chainhash.TagTapTweak, schnorr.SerializePubKey(internalKey),
		rootBytes,
	)
	info.OutputKey = txscript.ComputeTaprootOutputKey(
		internalKey, rootBytes,
	)

	if root == nil {
		return info, nil
	}

	yIsOdd := info.OutputKey.SerializeCompressed()[0] ==
		secp256k1.PubKeyFormatCompressedOdd

	for _, proof := range collectLeaves(root, nil) {
		if len(proof.siblings) > MaxTreeDepth {
			return nil, fmt.Errorf("leaf depth %d exceeds %d",
				len(proof.siblings), MaxTreeDepth)
		}

		var inclusion []byte
		for _, s := range proof.siblings {
			inclusion = append(inclusion, s...)
		}

		info.Leaves = append(info.Leaves, LeafInfo{
			Leaf: proof.leaf,
			ControlBlock: txscript.ControlBlock{
				InternalKey:     internalKey,
				OutputKeyYIsOdd: yIsOdd,
				LeafVersion:     proof.leaf.LeafVersion,
				InclusionProof:  inclusion,
			},
		})
	}

	log.Tracef("Built spend info for %d leaves, output key %x",
		len(info.Leaves), schnorr.SerializePubKey(info.OutputKey))

	return info, nil
}

// PkScript returns the P2TR output script.
func (s *SpendInfo) PkScript() ([]byte, error) {
	return txscript.PayToTaprootScript(s.OutputKey)
}

// Address returns the P2TR address of the output on the given network.
func (s *SpendInfo) Address(params *chaincfg.Params) (*btcutil.AddressTaproot,
	error) {

	return btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(s.OutputKey), params,
	)
}

// Addresses returns the P2TR address for every entry of Networks, keyed by
// network name.
func (s *SpendInfo) Addresses() (map[string]string, error) {
	addrs := make(map[string]string, len(Networks))
	for _, n := range Networks {
		addr, err := s.Address(n.Params)
		if err != nil {
			return nil, err
		}
		addrs[n.Name] = addr.EncodeAddress()
	}

	return addrs, nil
}

// LeafJSON is the JSON form of a leaf.
type LeafJSON struct {
	Script       string `json:"script"`
	LeafVersion  uint8  `json:"leaf_version"`
	ControlBlock string `json:"control_block"`
}

// SpendInfoJSON is the JSON form of a SpendInfo.
type SpendInfoJSON struct {
	Tweak       string            `json:"tweak"`
	InternalKey string            `json:"internal_key"`
	OutputKey   string            `json:"output_key"`
	MerkleRoot  *string           `json:"merkle_root"`
	Scripts     []LeafJSON        `json:"scripts"`
	Address     map[string]string `json:"address"`
}

// NewSpendInfoJSON converts the spend info into its JSON form.
func NewSpendInfoJSON(s *SpendInfo) (*SpendInfoJSON, error) {
	addrs, err := s.Addresses()
	if err != nil {
		return nil, err
	}

	js := &SpendInfoJSON{
		Tweak: hex.EncodeToString(s.Tweak[:]),
		InternalKey: hex.EncodeToString(
			schnorr.SerializePubKey(s.InternalKey),
		),
		OutputKey: hex.EncodeToString(
			schnorr.SerializePubKey(s.OutputKey),
		),
		Scripts: make([]LeafJSON, 0, len(s.Leaves)),
		Address: addrs,
	}
	if s.MerkleRoot != nil {
		root := hex.EncodeToString(s.MerkleRoot[:])
		js.MerkleRoot = &root
	}

	for _, l := range s.Leaves {
		cb, err := l.ControlBlock.ToBytes()
		if err != nil {
			return nil, err
		}
		js.Scripts = append(js.Scripts, LeafJSON{
			Script:       hex.EncodeToString(l.Leaf.Script),
			LeafVersion:  uint8(l.Leaf.LeafVersion),
			ControlBlock: hex.EncodeToString(cb),
		})
	}

	return js, nil
}

// MarshalJSON implements json.Marshaler.
func (s *SpendInfo) MarshalJSON() ([]byte, error) {
	js, err := NewSpendInfoJSON(s)
	if err != nil {
		return nil, err
	}

	return json.Marshal(js)
}
