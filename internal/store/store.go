// Package store implements the node's persistence boundary (spec §6 Store contract):
// blocks, transactions, the block index, and wallet list chunks.
package store

import (
	"errors"

	"github.com/weavecore/arnode/internal/chain"
)

// ErrUnavailable is returned when the requested entity is not present.
var ErrUnavailable = errors.New("store: unavailable")

// ErrNotEnoughSpace is returned when a write is refused for lack of space.
var ErrNotEnoughSpace = errors.New("store: not enough space")

// ErrFirewallReject is returned when operator policy silently rejects a tx write.
var ErrFirewallReject = errors.New("store: firewall reject")

// Store is the opaque persistence boundary. Implementations: BadgerStore (disk, production)
// and MemStore (in-memory, tests).
type Store interface {
	WriteBlock(b *chain.Block) error
	ReadBlockByHash(hash chain.BlockHash) (*chain.Block, error)
	ReadBlockByHeight(height uint64, index []chain.BlockIndexEntry) (*chain.Block, error)

	WriteTx(tx *chain.Tx) error
	ReadTx(id chain.TxID) (*chain.Tx, error)

	WriteBlockIndex(index []chain.BlockIndexEntry) error
	ReadBlockIndex() ([]chain.BlockIndexEntry, error)

	WriteWalletList(root [32]byte, wallets chain.WalletList) error
	ReadWalletList(root [32]byte) (chain.WalletList, error)

	Close() error
}
