package cryptoutil

import (
	"encoding/binary"
	"math/bits"
)

// CheckPoW reports whether hashing indepHash‖nonce‖recallHash under SHA-256 yields a digest
// numerically at or below the target implied by diff (higher diff => smaller target => harder).
func CheckPoW(indepHash, recallHash [32]byte, nonce, diff uint64) bool {
	return HashMeetsDifficulty(PoWHash(indepHash, recallHash, nonce), diff)
}

// PoWHash computes the candidate digest for a given nonce and recall block.
func PoWHash(indepHash, recallHash [32]byte, nonce uint64) [32]byte {
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	return Hash(indepHash[:], nb[:], recallHash[:])
}

// HashMeetsDifficulty reports whether digest, read as a big-endian integer, is at or below the
// target implied by diff. diff 0 always succeeds; target shrinks geometrically with diff.
func HashMeetsDifficulty(digest [32]byte, diff uint64) bool {
	target := difficultyTarget(diff)
	for i := 0; i < 32; i++ {
		if digest[i] < target[i] {
			return true
		}
		if digest[i] > target[i] {
			return false
		}
	}
	return true // exactly equal to target
}

// difficultyTarget renders diff as a 256-bit target: the maximum digest (all 0xff) divided
// by (diff+1), so increasing diff monotonically shrinks the accepted digest space.
func difficultyTarget(diff uint64) [32]byte {
	var max [32]byte
	for i := range max {
		max[i] = 0xff
	}
	if diff == 0 {
		return max
	}
	return divBig(max, diff+1)
}

// divBig divides the 256-bit big-endian integer b by d, returning the big-endian quotient.
func divBig(b [32]byte, d uint64) [32]byte {
	var out [32]byte
	var rem uint64
	for i := 0; i < 32; i++ {
		// rem < d, so rem*256 + b[i] fits in 128 bits with a high word below d.
		q, r := bits.Div64(rem>>56, rem<<8|uint64(b[i]), d)
		out[i] = byte(q)
		rem = r
	}
	return out
}
