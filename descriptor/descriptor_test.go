package descriptor

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

const (
	// demoDescriptor is the nested multisig the demo driver classifies.
	demoDescriptor = "sh(wsh(sortedmulti(1,xpub661MyMwAqRbcFW31YEwpkMuc5" +
		"THy2PSt5bDMsktWQcFF8syAmRUapSCGu8ED9W6oDMSgv6Zz8idoc4a6mr8B" +
		"DzTJY47LJhkJ8UB7WEGuduB/1/0/*,xpub69H7F5d8KSRgmmdJg2KhpAK8S" +
		"R3DjMwAdkxj3ZuxV27CprR9LgpeyGmXUbC6wb7ERfvrnKZjXoUmmDznezpbZ" +
		"b7ap6r1D3tgFxHmwMkQTPH/0/0/*)))"

	keyA = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b9" +
		"5c709ee5"
	keyB = "02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113" +
		"bce036f9"
	keyC = "03fff97bd5755eeea420453a14355235d382f6472f8568a18b2f057a14" +
		"60297556"
	keyUncompressed = "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28" +
		"d959f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a6" +
		"8554199c47d08ffb10d4b8"

	// wifUncompressed is a WIF private key for an uncompressed public
	// key.
	wifUncompressed = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"

	// masterXprv and masterXpub are the master keys of BIP-32 test
	// vector 1.
	masterXprv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jP" +
		"PqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	masterXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGh" +
		"ePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	sum, err := Checksum("raw(deadbeef)")
	require.NoError(t, err)
	require.Equal(t, "89f8spxm", sum)

	withSum, err := AddChecksum("raw(deadbeef)")
	require.NoError(t, err)
	require.Equal(t, "raw(deadbeef)#89f8spxm", withSum)

	_, err = splitChecksum("raw(deadbeef)#89f8spxn")
	require.ErrorIs(t, err, ErrInvalidChecksum)

	_, err = splitChecksum("raw(deadbeef)#89f8")
	require.ErrorIs(t, err, ErrInvalidChecksum)

	_, err = Checksum("pkh(é)")
	require.ErrorContains(t, err, "invalid character")
}

// TestTypeLabels makes sure every type, plain sh() and sh(wpkh()) included,
// is reported under its own label.
func TestTypeLabels(t *testing.T) {
	t.Parallel()

	seen := make(map[string]Type)
	for _, typ := range AllTypes {
		label := typ.String()
		require.NotEmpty(t, label)

		prev, ok := seen[label]
		require.False(t, ok, "%v and %v share label %q", prev, typ,
			label)
		seen[label] = typ
	}

	require.Equal(t, "Sh", TypeSh.String())
	require.Equal(t, "ShWpkh", TypeShWpkh.String())
}

func TestParseTypes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc string
		typ  Type
	}{
		{desc: "pk(" + keyA + ")", typ: TypeBare},
		{desc: "pkh(" + keyA + ")", typ: TypePkh},
		{desc: "wpkh(" + keyB + ")", typ: TypeWpkh},
		{desc: "sh(wpkh(" + keyC + "))", typ: TypeShWpkh},
		{desc: "sh(pk(" + keyA + "))", typ: TypeSh},
		{desc: "wsh(pk(" + keyA + "))", typ: TypeWsh},
		{desc: "sh(wsh(pk(" + keyA + ")))", typ: TypeShWsh},
		{
			desc: "sh(sortedmulti(1," + keyA + "," + keyB + "))",
			typ:  TypeShSortedMulti,
		},
		{
			desc: "wsh(sortedmulti(2," + keyA + "," + keyB + "))",
			typ:  TypeWshSortedMulti,
		},
		{desc: demoDescriptor, typ: TypeShWshSortedMulti},
		{desc: "tr(" + keyA[2:] + ")", typ: TypeTr},
		{
			desc: "tr(" + keyA[2:] + ",{pk(" + keyB[2:] + "),pk(" +
				keyC[2:] + ")})",
			typ: TypeTr,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.typ.String(), func(t *testing.T) {
			t.Parallel()

			d, err := Parse(tc.desc)
			require.NoError(t, err)
			require.Equal(t, tc.typ, d.Type(), spew.Sdump(d))

			// The canonical form round trips including its
			// checksum.
			s := String(d)
			require.Equal(t, tc.desc, s[:len(s)-ChecksumLength-1])

			again, err := Parse(s)
			require.NoError(t, err)
			require.Equal(t, s, String(again))
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		desc    string
		wantErr error
		errText string
	}{{
		name:    "empty",
		desc:    "",
		errText: "empty",
	}, {
		name:    "top level sortedmulti",
		desc:    "sortedmulti(1," + keyA + ")",
		errText: "must be inside sh or wsh",
	}, {
		name:    "raw",
		desc:    "raw(deadbeef)",
		wantErr: ErrUnsupported,
	}, {
		name:    "addr",
		desc:    "addr(1GAehh7TsJAHuUAeKZcXf5CnwuGuGgyX2S)",
		wantErr: ErrUnsupported,
	}, {
		name:    "wpkh in wsh",
		desc:    "wsh(wpkh(" + keyA + "))",
		errText: "not allowed inside wsh",
	}, {
		name:    "sh in sh",
		desc:    "sh(sh(pk(" + keyA + ")))",
		errText: "not allowed inside sh",
	}, {
		name:    "uncompressed wif in wpkh",
		desc:    "wpkh(" + wifUncompressed + ")",
		errText: "uncompressed keys are not allowed",
	}, {
		name:    "uncompressed key in wsh",
		desc:    "wsh(pk(" + keyUncompressed + "))",
		errText: "uncompressed keys are not allowed",
	}, {
		name:    "x-only key outside tr",
		desc:    "pkh(" + keyA[2:] + ")",
		errText: "x-only keys",
	}, {
		name:    "hardened step after xpub",
		desc:    "pkh(" + masterXpub + "/0'/1)",
		wantErr: ErrHardenedFromPublic,
	}, {
		name:    "hardened wildcard after xpub",
		desc:    "wpkh(" + masterXpub + "/*')",
		wantErr: ErrHardenedFromPublic,
	}, {
		name:    "multipath",
		desc:    "wpkh(" + masterXpub + "/<0;1>/*)",
		wantErr: ErrMultipath,
	}, {
		name:    "bad checksum",
		desc:    "pkh(" + keyA + ")#aaaaaaaa",
		wantErr: ErrInvalidChecksum,
	}, {
		name:    "threshold too high",
		desc:    "wsh(sortedmulti(3," + keyA + "," + keyB + "))",
		errText: "out of range",
	}, {
		name:    "multi_a outside tapscript",
		desc:    "wsh(multi_a(1," + keyA + "))",
		errText: "multi_a",
	}, {
		name:    "not type B",
		desc:    "wsh(v:pk(" + keyA + "))",
		errText: "not of type B",
	}, {
		name:    "tr without key",
		desc:    "tr(pk(" + keyA[2:] + "))",
		errText: "internal key",
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.desc)
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			require.ErrorContains(t, err, tc.errText)
		})
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc    string
		want    uint32
		wantErr string
	}{{
		desc: demoDescriptor,
		want: 1,
	}, {
		desc: "wsh(sortedmulti(2," + keyA + "," + keyB + "," + keyC +
			"))",
		want: 2,
	}, {
		desc: "sh(sortedmulti(2," + keyA + "," + keyB + "))",
		want: 2,
	}, {
		desc:    "sh(wsh(pk(" + keyA + ")))",
		wantErr: "no multisig found in nested wsh",
	}, {
		desc:    "sh(wpkh(" + keyA + "))",
		wantErr: "No threshold",
	}, {
		desc:    "wsh(pk(" + keyA + "))",
		wantErr: "No threshold",
	}, {
		desc:    "pkh(" + keyA + ")",
		wantErr: "Descriptor type does not have threshold",
	}, {
		desc:    "tr(" + keyA[2:] + ")",
		wantErr: "Descriptor type does not have threshold",
	}}

	for _, tc := range testCases {
		d, err := Parse(tc.desc)
		require.NoError(t, err)

		k, err := Threshold(d)
		if tc.wantErr != "" {
			require.EqualError(t, err, tc.wantErr)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, k)
	}
}

func TestScriptPubKey(t *testing.T) {
	t.Parallel()

	pubA, err := btcec.ParsePubKey(mustHex(t, keyA))
	require.NoError(t, err)

	pkScript := func(addr btcutil.Address, err error) []byte {
		require.NoError(t, err)
		script, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)

		return script
	}

	// The witness script of wsh(pk(A)) is <A> CHECKSIG.
	pkA, err := txscript.NewScriptBuilder().
		AddData(mustHex(t, keyA)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	// Sorted multisig puts keyA (02c6..) before keyB (02f9..).
	multi, err := txscript.MultiSigScript([]*btcutil.AddressPubKey{
		mustAddrPubKey(t, keyA), mustAddrPubKey(t, keyB),
	}, 1)
	require.NoError(t, err)

	wpkhC := pkScript(btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(mustHex(t, keyC)), &chaincfg.MainNetParams,
	))

	testCases := []struct {
		name string
		desc string
		want []byte
	}{{
		name: "pkh",
		desc: "pkh(" + keyA + ")",
		want: mustHex(t, "76a91406afd46bcdfd22ef94ac122aa11f241244a37ec"+
			"c88ac"),
	}, {
		name: "wpkh",
		desc: "wpkh(" + keyB + ")",
		want: pkScript(btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(mustHex(t, keyB)),
			&chaincfg.MainNetParams,
		)),
	}, {
		name: "pkh uncompressed",
		desc: "pkh(" + keyUncompressed + ")",
		want: pkScript(btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(mustHex(t, keyUncompressed)),
			&chaincfg.MainNetParams,
		)),
	}, {
		name: "bare pk",
		desc: "pk(" + keyA + ")",
		want: pkA,
	}, {
		name: "wsh",
		desc: "wsh(pk(" + keyA + "))",
		want: pkScript(btcutil.NewAddressWitnessScriptHash(
			chainhash.HashB(pkA), &chaincfg.MainNetParams,
		)),
	}, {
		name: "sh wpkh",
		desc: "sh(wpkh(" + keyC + "))",
		want: pkScript(btcutil.NewAddressScriptHash(
			wpkhC, &chaincfg.MainNetParams,
		)),
	}, {
		name: "sh sortedmulti",
		desc: "sh(sortedmulti(1," + keyB + "," + keyA + "))",
		want: pkScript(btcutil.NewAddressScriptHash(
			multi, &chaincfg.MainNetParams,
		)),
	}, {
		name: "tr key path",
		desc: "tr(" + keyA[2:] + ")",
		want: pkScript(btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(
				txscript.ComputeTaprootKeyNoScript(pubA),
			), &chaincfg.MainNetParams,
		)),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse(tc.desc)
			require.NoError(t, err)

			script, err := d.ScriptPubKey(0)
			require.NoError(t, err)
			require.Equal(t, tc.want, script)
		})
	}
}

func mustAddrPubKey(t *testing.T, key string) *btcutil.AddressPubKey {
	t.Helper()

	addr, err := btcutil.NewAddressPubKey(
		mustHex(t, key), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	return addr
}

func TestTrScriptTree(t *testing.T) {
	t.Parallel()

	d, err := Parse(
		"tr(" + keyA[2:] + ",{pk(" + keyB[2:] + "),pk(" + keyC[2:] +
			")})",
	)
	require.NoError(t, err)

	leaf := func(key string) txscript.TapLeaf {
		script, err := txscript.NewScriptBuilder().
			AddData(mustHex(t, key)[1:]).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		require.NoError(t, err)

		return txscript.NewBaseTapLeaf(script)
	}
	tree := txscript.AssembleTaprootScriptTree(leaf(keyB), leaf(keyC))
	root := tree.RootNode.TapHash()

	info, err := d.(*Tr).SpendInfo(0)
	require.NoError(t, err)
	require.Equal(t, root, *info.MerkleRoot)
	require.Len(t, info.Leaves, 2)

	pubA, err := schnorr.ParsePubKey(mustHex(t, keyA)[1:])
	require.NoError(t, err)
	want := txscript.ComputeTaprootOutputKey(pubA, root[:])
	require.True(t, want.IsEqual(info.OutputKey))
}

func TestKeyDerivation(t *testing.T) {
	t.Parallel()

	master, err := hdkeychain.NewKeyFromString(masterXprv)
	require.NoError(t, err)

	derive := func(path ...uint32) *btcec.PublicKey {
		k := master
		for _, step := range path {
			k, err = k.Derive(step)
			require.NoError(t, err)
		}
		pub, err := k.ECPubKey()
		require.NoError(t, err)

		return pub
	}

	const h = hdkeychain.HardenedKeyStart

	testCases := []struct {
		name  string
		key   string
		index uint32
		want  *btcec.PublicKey
	}{{
		name: "master",
		key:  masterXpub,
		want: derive(),
	}, {
		name: "hardened from xprv",
		key:  masterXprv + "/0'/1",
		want: derive(h, 1),
	}, {
		name: "h marker",
		key:  masterXprv + "/0h/1",
		want: derive(h, 1),
	}, {
		name:  "unhardened wildcard",
		key:   masterXpub + "/1/*",
		index: 5,
		want:  derive(1, 5),
	}, {
		name:  "hardened wildcard",
		key:   masterXprv + "/1/*'",
		index: 7,
		want:  derive(1, h+7),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse("wpkh(" + tc.key + ")")
			require.NoError(t, err)

			pub, err := d.Keys()[0].PubKey(tc.index)
			require.NoError(t, err)
			require.True(t, tc.want.IsEqual(pub))
		})
	}
}

func TestIsRange(t *testing.T) {
	t.Parallel()

	d, err := Parse(demoDescriptor)
	require.NoError(t, err)
	require.True(t, IsRange(d))

	// Every index produces a different output.
	s0, err := d.ScriptPubKey(0)
	require.NoError(t, err)
	s1, err := d.ScriptPubKey(1)
	require.NoError(t, err)
	require.NotEqual(t, s0, s1)

	d, err = Parse("pkh(" + keyA + ")")
	require.NoError(t, err)
	require.False(t, IsRange(d))
}

func TestAddress(t *testing.T) {
	t.Parallel()

	d, err := Parse("pkh(" + wifUncompressed + ")")
	require.NoError(t, err)

	addr, err := Address(d, 0, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, "1GAehh7TsJAHuUAeKZcXf5CnwuGuGgyX2S",
		addr.EncodeAddress())

	d, err = Parse(demoDescriptor)
	require.NoError(t, err)
	addr, err = Address(d, 0, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.IsType(t, &btcutil.AddressScriptHash{}, addr)

	d, err = Parse("pk(" + keyA + ")")
	require.NoError(t, err)
	_, err = Address(d, 0, &chaincfg.MainNetParams)
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestDerivations(t *testing.T) {
	t.Parallel()

	d, err := Parse("wpkh([d34db33f/84'/0'/0']" + masterXpub + "/0/*)")
	require.NoError(t, err)

	derivations, err := Derivations(d, 3)
	require.NoError(t, err)
	require.Len(t, derivations, 1)

	const h = hdkeychain.HardenedKeyStart
	require.Equal(t, binary.LittleEndian.Uint32(
		[]byte{0xd3, 0x4d, 0xb3, 0x3f},
	), derivations[0].MasterKeyFingerprint)
	require.Equal(t, []uint32{h + 84, h, h, 0, 3},
		derivations[0].Bip32Path)

	// A master key is its own origin.
	d, err = Parse("wpkh(" + masterXpub + "/*)")
	require.NoError(t, err)
	derivations, err = Derivations(d, 2)
	require.NoError(t, err)
	require.Len(t, derivations, 1)
	require.Equal(t, binary.LittleEndian.Uint32(
		[]byte{0x34, 0x42, 0x19, 0x3e},
	), derivations[0].MasterKeyFingerprint)
	require.Equal(t, []uint32{2}, derivations[0].Bip32Path)

	// Plain keys have no origin.
	d, err = Parse("pkh(" + keyA + ")")
	require.NoError(t, err)
	derivations, err = Derivations(d, 0)
	require.NoError(t, err)
	require.Empty(t, derivations)
}
