package store

import (
	"encoding/json"
	"os"

	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/util"
)

const (
	prefixBlock  = "b:"
	prefixTx     = "t:"
	prefixIndex  = "idx"
	prefixWallet = "w:"
)

// BadgerStore is the disk-backed Store, grounded on the badger open/close shape used
// throughout the retrieval pack's database layers, fronted by an LRU block-read cache.
type BadgerStore struct {
	db        *badger.DB
	blockCache *lru.Cache
}

// NewBadgerStore opens (creating if necessary) a badger-backed store at dir.
func NewBadgerStore(dir string, cacheEntries int) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dir)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if cacheEntries <= 0 {
		cacheEntries = 1024
	}
	cache, err := lru.New(cacheEntries)
	if err != nil {
		db.Close()
		return nil, err
	}

	util.Infof("store: opened badger db at %s (cache=%d)", dir, cacheEntries)
	return &BadgerStore{db: db, blockCache: cache}, nil
}

func (s *BadgerStore) WriteBlock(b *chain.Block) error {
	buf, err := json.Marshal(b)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixBlock+string(b.IndepHash[:])), buf)
	})
	if err != nil {
		return err
	}
	cp := *b
	s.blockCache.Add(b.IndepHash, &cp)
	return nil
}

func (s *BadgerStore) ReadBlockByHash(hash chain.BlockHash) (*chain.Block, error) {
	if v, ok := s.blockCache.Get(hash); ok {
		cp := *v.(*chain.Block)
		return &cp, nil
	}

	var block chain.Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixBlock + string(hash[:])))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &block)
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	cp := block
	s.blockCache.Add(hash, &cp)
	return &block, nil
}

func (s *BadgerStore) ReadBlockByHeight(height uint64, index []chain.BlockIndexEntry) (*chain.Block, error) {
	if height >= uint64(len(index)) {
		return nil, ErrUnavailable
	}
	pos := uint64(len(index)) - 1 - height
	return s.ReadBlockByHash(index[pos].Hash)
}

func (s *BadgerStore) WriteTx(tx *chain.Tx) error {
	buf, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixTx+string(tx.ID[:])), buf)
	})
}

func (s *BadgerStore) ReadTx(id chain.TxID) (*chain.Tx, error) {
	var tx chain.Tx
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixTx + string(id[:])))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &tx)
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *BadgerStore) WriteBlockIndex(index []chain.BlockIndexEntry) error {
	buf, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixIndex), buf)
	})
}

func (s *BadgerStore) ReadBlockIndex() ([]chain.BlockIndexEntry, error) {
	var index []chain.BlockIndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixIndex))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &index)
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	return index, nil
}

func (s *BadgerStore) WriteWalletList(root [32]byte, wallets chain.WalletList) error {
	buf, err := json.Marshal(wallets)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixWallet+string(root[:])), buf)
	})
}

func (s *BadgerStore) ReadWalletList(root [32]byte) (chain.WalletList, error) {
	var wallets chain.WalletList
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixWallet + string(root[:])))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &wallets)
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
