package store

import (
	"sync"

	"github.com/weavecore/arnode/internal/chain"
)

// MemStore is an in-memory Store used by tests and by nodes running with no data directory.
type MemStore struct {
	mu      sync.RWMutex
	blocks  map[chain.BlockHash]*chain.Block
	txs     map[chain.TxID]*chain.Tx
	index   []chain.BlockIndexEntry
	wallets map[[32]byte]chain.WalletList
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks:  make(map[chain.BlockHash]*chain.Block),
		txs:     make(map[chain.TxID]*chain.Tx),
		wallets: make(map[[32]byte]chain.WalletList),
	}
}

func (m *MemStore) WriteBlock(b *chain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.blocks[b.IndepHash] = &cp
	return nil
}

func (m *MemStore) ReadBlockByHash(hash chain.BlockHash) (*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[hash]
	if !ok {
		return nil, ErrUnavailable
	}
	cp := *b
	return &cp, nil
}

func (m *MemStore) ReadBlockByHeight(height uint64, index []chain.BlockIndexEntry) (*chain.Block, error) {
	if height >= uint64(len(index)) {
		return nil, ErrUnavailable
	}
	// index is tip-to-genesis; height 0 is genesis, at the tail.
	pos := uint64(len(index)) - 1 - height
	return m.ReadBlockByHash(index[pos].Hash)
}

func (m *MemStore) WriteTx(tx *chain.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.txs[tx.ID] = &cp
	return nil
}

func (m *MemStore) ReadTx(id chain.TxID) (*chain.Tx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, ErrUnavailable
	}
	cp := *tx
	return &cp, nil
}

func (m *MemStore) WriteBlockIndex(index []chain.BlockIndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = append([]chain.BlockIndexEntry(nil), index...)
	return nil
}

func (m *MemStore) ReadBlockIndex() ([]chain.BlockIndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return nil, ErrUnavailable
	}
	return append([]chain.BlockIndexEntry(nil), m.index...), nil
}

func (m *MemStore) WriteWalletList(root [32]byte, wallets chain.WalletList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[root] = wallets.Clone()
	return nil
}

func (m *MemStore) ReadWalletList(root [32]byte) (chain.WalletList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[root]
	if !ok {
		return nil, ErrUnavailable
	}
	return w.Clone(), nil
}

func (m *MemStore) Close() error { return nil }
