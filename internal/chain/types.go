// Package chain defines the logical entity shapes shared across the node: transactions,
// blocks, wallets, and the block index. Persistence and wire formats are out of scope
// (internal/store and internal/gossip own those); this package only carries the shapes.
package chain

import "encoding/hex"

// Address is a 32-byte wallet address, SHA-256 of the owning RSA public key.
type Address [32]byte

// MarshalText renders the address as hex so it can be used as a JSON object key.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

// UnmarshalText parses a hex-rendered address.
func (a *Address) UnmarshalText(text []byte) error {
	_, err := hex.Decode(a[:], text)
	return err
}

// TxID identifies a transaction by its 32-byte id.
type TxID [32]byte

// MarshalText renders the tx id as hex.
func (t TxID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(t[:])), nil
}

// UnmarshalText parses a hex-rendered tx id.
func (t *TxID) UnmarshalText(text []byte) error {
	_, err := hex.Decode(t[:], text)
	return err
}

// BlockHash identifies a block by its 32-byte independent hash.
type BlockHash [32]byte

// MarshalText renders the block hash as hex.
func (h BlockHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText parses a hex-rendered block hash.
func (h *BlockHash) UnmarshalText(text []byte) error {
	_, err := hex.Decode(h[:], text)
	return err
}

// UnclaimedAddr is the sentinel reward address meaning "no payout".
var UnclaimedAddr = Address{}

// Tx is the logical transaction schema from the wire contract (size limits enforced at
// ingestion by internal/cryptoutil.ValidateTxShape).
type Tx struct {
	ID        TxID
	LastTx    TxID
	Owner     []byte // raw RSA public key, used to derive Address via ToAddress
	OwnerAddr Address
	Target    Address
	Quantity  uint64
	Reward    uint64
	Data      []byte
	DataRoot  [32]byte
	DataSize  uint64
	Tags      []byte
	Signature []byte
	Format    int
}

// IsArchival reports whether tx carries no value transfer (a pure data/archival tx).
func (t *Tx) IsArchival() bool {
	return t.Quantity == 0
}

// BlockIndexEntry is the tuple tracked per block in the node's block index, tip to genesis.
type BlockIndexEntry struct {
	Hash      BlockHash
	WeaveSize uint64
	TxRoot    [32]byte
}

// Block is the logical block entity.
type Block struct {
	IndepHash    BlockHash
	PreviousHash BlockHash
	Height       uint64
	Timestamp    int64
	Diff         uint64
	LastRetarget int64
	Nonce        uint64
	TxRoot       [32]byte
	WalletRoot   [32]byte
	Txs          []TxID
	RewardAddr   Address
	RewardPool   uint64
	WeaveSize    uint64
	BlockSize    uint64 // size of this block's own data, used when it is recalled by a later block
}

// WalletEntry is the confirmed or floating state of one address.
type WalletEntry struct {
	Balance uint64
	LastTx  TxID
}

// WalletList maps addresses to their ledger entry.
type WalletList map[Address]WalletEntry

// Clone returns a deep copy of the wallet list.
func (w WalletList) Clone() WalletList {
	out := make(WalletList, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
