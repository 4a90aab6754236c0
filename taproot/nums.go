package taproot

import (
	"crypto/sha256"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// numsSeed is the preimage the NUMS key chain starts from.
const numsSeed = "Hello"

var (
	numsOnce sync.Once
	numsKey  *btcec.PublicKey
)

// NUMSKey returns a key nobody knows the discrete log of. It is the first
// valid x-only key in the hash chain sha256(seed), sha256(sha256(seed)), ...
// and is used as internal key when only script path spends are wanted.
func NUMSKey() *btcec.PublicKey {
	numsOnce.Do(func() {
		h := sha256.Sum256([]byte(numsSeed))
		for {
			key, err := schnorr.ParsePubKey(h[:])
			if err == nil {
				numsKey = key
				return
			}
			h = sha256.Sum256(h[:])
		}
	})

	return numsKey
}
