package descriptor

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightninglabs/miniscript-shim/miniscript"
)

// Wildcard describes the trailing `*` of an extended key expression.
type Wildcard uint8

const (
	// WildcardNone means the key has a fixed derivation path.
	WildcardNone Wildcard = iota

	// WildcardUnhardened is a trailing `/*`.
	WildcardUnhardened

	// WildcardHardened is a trailing `/*'` or `/*h`.
	WildcardHardened
)

var (
	// ErrHardenedFromPublic is returned when a hardened derivation step
	// follows an extended public key.
	ErrHardenedFromPublic = errors.New("hardened derivation requires " +
		"a private extended key")

	// ErrMultipath is returned for `<a;b>` multipath steps, which are not
	// supported.
	ErrMultipath = errors.New("multipath key expressions are not " +
		"supported")
)

// KeyOrigin is the `[fingerprint/path]` prefix of a key expression.
type KeyOrigin struct {
	Fingerprint [4]byte
	Path        []uint32
}

// Key is a parsed key expression: a single public key, a WIF private key or
// an extended key with a derivation path.
type Key struct {
	raw string

	// Origin is the optional key origin information.
	Origin *KeyOrigin

	// single is set for hex and WIF keys.
	single *btcec.PublicKey

	// uncompressed is set for 65-byte hex keys and uncompressed WIFs.
	uncompressed bool

	// ext is set for xpub/xprv keys.
	ext *hdkeychain.ExtendedKey

	// Path is the derivation path below the extended key, excluding the
	// wildcard step.
	Path []uint32

	// Wildcard is the kind of trailing wildcard.
	Wildcard Wildcard
}

// ParseKey parses a key expression for use in the given script context.
func ParseKey(s string, ctx miniscript.Context) (*Key, error) {
	k := &Key{raw: s}

	rest := s
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("key %s: missing ']' in origin",
				s)
		}
		origin, err := parseOrigin(rest[1:end])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", s, err)
		}
		k.Origin = origin
		rest = rest[end+1:]
	}

	parts := strings.Split(rest, "/")
	body, steps := parts[0], parts[1:]

	var err error
	switch {
	case isExtendedKey(body):
		err = k.parseExtended(body, steps)

	default:
		if len(steps) > 0 {
			return nil, fmt.Errorf("key %s: derivation path on a "+
				"non-extended key", s)
		}
		err = k.parseSingle(body, ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", s, err)
	}

	return k, nil
}

// isExtendedKey reports whether the key body looks like a base58 extended
// key.
func isExtendedKey(body string) bool {
	for _, prefix := range []string{"xpub", "xprv", "tpub", "tprv"} {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}

	return false
}

func parseOrigin(s string) (*KeyOrigin, error) {
	parts := strings.Split(s, "/")
	fp, err := hex.DecodeString(parts[0])
	if err != nil || len(fp) != 4 {
		return nil, fmt.Errorf("invalid fingerprint %q", parts[0])
	}

	origin := &KeyOrigin{}
	copy(origin.Fingerprint[:], fp)
	for _, step := range parts[1:] {
		idx, err := parseStep(step)
		if err != nil {
			return nil, err
		}
		origin.Path = append(origin.Path, idx)
	}

	return origin, nil
}

// parseStep parses a single derivation step such as `44'` or `0h`.
func parseStep(step string) (uint32, error) {
	if strings.HasPrefix(step, "<") {
		return 0, ErrMultipath
	}

	hardened := strings.HasSuffix(step, "'") ||
		strings.HasSuffix(step, "h")
	if hardened {
		step = step[:len(step)-1]
	}

	idx, err := strconv.ParseUint(step, 10, 32)
	if err != nil || idx >= hdkeychain.HardenedKeyStart {
		return 0, fmt.Errorf("invalid derivation step %q", step)
	}
	if hardened {
		idx += hdkeychain.HardenedKeyStart
	}

	return uint32(idx), nil
}

func (k *Key) parseExtended(body string, steps []string) error {
	ext, err := hdkeychain.NewKeyFromString(body)
	if err != nil {
		return err
	}
	k.ext = ext

	for i, step := range steps {
		if i == len(steps)-1 {
			switch step {
			case "*":
				k.Wildcard = WildcardUnhardened
				continue
			case "*'", "*h":
				k.Wildcard = WildcardHardened
				if !ext.IsPrivate() {
					return ErrHardenedFromPublic
				}
				continue
			}
		}

		idx, err := parseStep(step)
		if err != nil {
			return err
		}
		if idx >= hdkeychain.HardenedKeyStart && !ext.IsPrivate() {
			return ErrHardenedFromPublic
		}
		k.Path = append(k.Path, idx)
	}

	return nil
}

func (k *Key) parseSingle(body string, ctx miniscript.Context) error {
	if raw, err := hex.DecodeString(body); err == nil {
		return k.parseHex(raw, ctx)
	}

	wif, err := btcutil.DecodeWIF(body)
	if err != nil {
		return fmt.Errorf("unrecognized key format")
	}
	if !wif.CompressPubKey && ctx != miniscript.Legacy {
		return fmt.Errorf("uncompressed keys are not allowed in %v "+
			"context", ctx)
	}
	k.single = wif.PrivKey.PubKey()
	k.uncompressed = !wif.CompressPubKey

	return nil
}

func (k *Key) parseHex(raw []byte, ctx miniscript.Context) error {
	var err error
	switch len(raw) {
	case schnorr.PubKeyBytesLen:
		if ctx != miniscript.Tap {
			return fmt.Errorf("x-only keys are only allowed in " +
				"tapscript context")
		}
		k.single, err = schnorr.ParsePubKey(raw)

	case btcec.PubKeyBytesLenCompressed:
		k.single, err = btcec.ParsePubKey(raw)

	case secp256k1.PubKeyBytesLenUncompressed:
		if ctx != miniscript.Legacy {
			return fmt.Errorf("uncompressed keys are not allowed "+
				"in %v context", ctx)
		}
		k.single, err = btcec.ParsePubKey(raw)
		k.uncompressed = true

	default:
		return fmt.Errorf("invalid public key length %d", len(raw))
	}

	return err
}

// String returns the key expression as it was given.
func (k *Key) String() string {
	return k.raw
}

// IsRange returns true if the key has a wildcard and therefore describes a
// range of keys.
func (k *Key) IsRange() bool {
	return k.Wildcard != WildcardNone
}

// childPath returns the full derivation path below the extended key for the
// given index.
func (k *Key) childPath(index uint32) []uint32 {
	path := append([]uint32(nil), k.Path...)
	switch k.Wildcard {
	case WildcardUnhardened:
		path = append(path, index)
	case WildcardHardened:
		path = append(path, index+hdkeychain.HardenedKeyStart)
	}

	return path
}

// PubKey returns the public key at the given index. The index is ignored for
// keys without a wildcard.
func (k *Key) PubKey(index uint32) (*btcec.PublicKey, error) {
	if k.single != nil {
		return k.single, nil
	}

	if k.IsRange() && index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("index %d out of range", index)
	}

	ext := k.ext
	for _, step := range k.childPath(index) {
		var err error
		ext, err = ext.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("deriving %s: %w", k, err)
		}
	}

	return ext.ECPubKey()
}

// Serialize returns the key bytes at the given index as they appear in a
// script of the given context.
func (k *Key) Serialize(ctx miniscript.Context, index uint32) ([]byte,
	error) {

	pub, err := k.PubKey(index)
	if err != nil {
		return nil, err
	}

	switch {
	case ctx == miniscript.Tap:
		return schnorr.SerializePubKey(pub), nil

	case k.uncompressed:
		return pub.SerializeUncompressed(), nil

	default:
		return pub.SerializeCompressed(), nil
	}
}

// Derivation returns the BIP-32 derivation record for the key at the given
// index. Keys without an origin that aren't extended keys have no record and
// return nil.
func (k *Key) Derivation(index uint32) (*psbt.Bip32Derivation, error) {
	var (
		fingerprint [4]byte
		path        []uint32
	)

	switch {
	case k.Origin != nil:
		fingerprint = k.Origin.Fingerprint
		path = append(path, k.Origin.Path...)

	case k.ext != nil && k.ext.Depth() == 0:
		// A master key is its own origin.
		pub, err := k.ext.ECPubKey()
		if err != nil {
			return nil, err
		}
		copy(fingerprint[:], btcutil.Hash160(pub.SerializeCompressed()))

	default:
		return nil, nil
	}

	if k.ext != nil {
		path = append(path, k.childPath(index)...)
	}

	pub, err := k.PubKey(index)
	if err != nil {
		return nil, err
	}

	return &psbt.Bip32Derivation{
		PubKey: pub.SerializeCompressed(),
		MasterKeyFingerprint: binary.LittleEndian.Uint32(
			fingerprint[:],
		),
		Bip32Path: path,
	}, nil
}
