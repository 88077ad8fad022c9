package cryptoutil

import (
	"crypto/sha256"
	"sort"

	merkle "github.com/xsleonard/go-merkle"

	"github.com/weavecore/arnode/internal/chain"
)

func sha256Leaf(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// MerkleRoot builds a Merkle tree over leaves (e.g. per-tx id||data_root chunks) and returns
// its root hash. An empty leaf set hashes to the zero-input SHA-256 digest.
func MerkleRoot(leaves [][]byte) [32]byte {
	if len(leaves) == 0 {
		return Hash()
	}

	tree := merkle.NewTree()
	if err := tree.Generate(leaves, sha256.New()); err != nil {
		// Generate only fails on a misconfigured hash; sha256.New() is always valid.
		panic(err)
	}

	root := tree.Root()
	var out [32]byte
	copy(out[:], root.Hash)
	return out
}

// TxLeaf builds the Merkle leaf for a transaction: id ‖ data_root.
func TxLeaf(id, dataRoot [32]byte) []byte {
	leaf := make([]byte, 0, 64)
	leaf = append(leaf, id[:]...)
	leaf = append(leaf, dataRoot[:]...)
	return leaf
}

// WalletLeaf builds the Merkle leaf for one wallet entry: addr ‖ balance (big-endian u64) ‖
// last_tx, committed into a block's wallet_root.
func WalletLeaf(addr [32]byte, balance uint64, lastTx [32]byte) []byte {
	leaf := make([]byte, 0, 72)
	leaf = append(leaf, addr[:]...)
	var balBuf [8]byte
	for i := 0; i < 8; i++ {
		balBuf[7-i] = byte(balance >> (8 * i))
	}
	leaf = append(leaf, balBuf[:]...)
	leaf = append(leaf, lastTx[:]...)
	return leaf
}

// WalletRoot is the Merkle root committed into a block's wallet_root: one WalletLeaf per
// entry, ordered by address so the root is independent of map iteration order.
func WalletRoot(wallets chain.WalletList) [32]byte {
	addrs := make([]chain.Address, 0, len(wallets))
	for a := range wallets {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	leaves := make([][]byte, len(addrs))
	for i, a := range addrs {
		e := wallets[a]
		leaves[i] = WalletLeaf([32]byte(a), e.Balance, [32]byte(e.LastTx))
	}
	return MerkleRoot(leaves)
}
