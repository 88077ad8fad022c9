// Package cryptoutil wraps the cryptographic primitives the core treats as black boxes:
// SHA-256 hashing, Merkle tree construction, and address derivation.
package cryptoutil

import "crypto/sha256"

// Hash returns the SHA-256 digest of data.
func Hash(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ToAddress derives a wallet address from a raw RSA public key: SHA256(pubKey).
func ToAddress(pubKey []byte) [32]byte {
	return Hash(pubKey)
}

// RecallHash derives the pseudorandom seed used to select a block's recall block:
// SHA256(indepHash || height), resolving the spec's "pseudorandom recall block selected from
// the current block's hash" definition into a concrete seed. Callers reduce the seed mod
// height+1 (the number of blocks in the index) to get a recall index.
func RecallHash(indepHash [32]byte, height uint64) [32]byte {
	var hb [8]byte
	for i := 0; i < 8; i++ {
		hb[7-i] = byte(height >> (8 * i))
	}
	return Hash(indepHash[:], hb[:])
}
