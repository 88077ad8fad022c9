// Package txpool implements the node's transaction pool manager (spec component 4.B):
// conflict detection, the propagation-delay admission gate, and the memory-pressure promotion
// check. The pool holds no state of its own — internal/node.State owns txs/waiting_txs/
// potential_txs, and the node worker is the only goroutine that calls these functions, so the
// single-writer discipline of spec.md §4.A extends down into this package for free.
package txpool

import (
	"strconv"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/wallet"
)

// Pools is the three-way tx pool partition carried in node.State.
type Pools struct {
	Txs          []*chain.Tx // ready to mine
	WaitingTxs   []*chain.Tx // admitted, still in propagation delay
	PotentialTxs []*chain.Tx // conflicting or arrived too late; reconsidered on fork recovery
}

// Conflicting implements spec.md §4.B's conflict predicate: two txs from the same owner
// chained off the same last_tx cannot both be valid.
func Conflicting(a, b *chain.Tx) bool {
	return a.LastTx == b.LastTx && a.OwnerAddr == b.OwnerAddr
}

// Config holds the pool's tunables, set once from internal/config.PoolConfig.
type Config struct {
	FixedDelay           time.Duration // constant D(b) used when UseFixedDelay is set
	UseFixedDelay        bool          // enables the test override of D(b)
	MemoryHeadroomFactor uint64        // spec.md's "4x" constant, kept configurable for tests
}

// PropagationDelay computes D(b): the time a tx of dataSize bytes must wait in WaitingTxs
// before a Promote is attempted, per spec.md §4.B.
func (c Config) PropagationDelay(dataSize uint64) time.Duration {
	if c.UseFixedDelay {
		return c.FixedDelay
	}
	return time.Duration(30000+(dataSize*300)/1000) * time.Millisecond
}

// Diagnostics is the out-of-band tx diagnostics side-store (spec.md §4.B), backed in
// production by Redis and in tests by an in-process map.
type Diagnostics interface {
	Flag(txID chain.TxID, reason string)
}

func containsConflict(tx *chain.Tx, pools ...[]*chain.Tx) bool {
	for _, p := range pools {
		for _, other := range p {
			if Conflicting(tx, other) {
				return true
			}
		}
	}
	return false
}

func containsID(id chain.TxID, pools ...[]*chain.Tx) bool {
	for _, p := range pools {
		for _, other := range p {
			if other.ID == id {
				return true
			}
		}
	}
	return false
}

// AddTx implements spec.md §4.B's add_tx. On success it returns the updated pools and a
// non-zero delay after which the caller (internal/node.Worker) must post an EncounterNewTx
// event for tx; a zero delay means tx failed shape validation, was rejected as a duplicate,
// or was routed straight to PotentialTxs, and no timer should be scheduled.
func AddTx(pools Pools, tx *chain.Tx, cfg Config, diag Diagnostics) (Pools, time.Duration) {
	if err := cryptoutil.ValidateTxShape(tx.Owner, tx.Signature, tx.Tags,
		strconv.FormatUint(tx.Quantity, 10), strconv.FormatUint(tx.Reward, 10), tx.Data); err != nil {
		if diag != nil {
			diag.Flag(tx.ID, "invalid_shape")
		}
		return pools, 0
	}

	if containsID(tx.ID, pools.Txs, pools.WaitingTxs, pools.PotentialTxs) {
		return pools, 0
	}

	if containsConflict(tx, pools.Txs, pools.WaitingTxs, pools.PotentialTxs) {
		if diag != nil {
			diag.Flag(tx.ID, "last_tx_not_valid")
		}
		pools.PotentialTxs = append(pools.PotentialTxs, tx)
		return pools, 0
	}

	pools.WaitingTxs = append(pools.WaitingTxs, tx)
	return pools, cfg.PropagationDelay(tx.DataSize)
}

// FreeMemoryFn reports currently available system memory in bytes, backed in production by
// gopsutil and overridable in tests.
type FreeMemoryFn func() (uint64, error)

// Promote implements spec.md §4.B's promote: the event fired when tx's propagation-delay
// timer expires. tx moves from WaitingTxs to Txs only if free memory clears the configured
// headroom factor over tx's data size; otherwise it is dropped from WaitingTxs entirely. The
// floating wallet list is recomputed by applying tx, mirroring the spec's coupling between
// pool admission and the floating ledger.
func Promote(pools Pools, floating chain.WalletList, tx *chain.Tx, cfg Config, free FreeMemoryFn) (Pools, chain.WalletList) {
	pools.WaitingTxs = removeByID(pools.WaitingTxs, tx.ID)

	headroom := cfg.MemoryHeadroomFactor
	if headroom == 0 {
		headroom = 4
	}

	if free != nil {
		available, err := free()
		if err != nil || available < headroom*tx.DataSize {
			return pools, floating
		}
	}

	pools.Txs = append(pools.Txs, tx)
	newFloating, _ := wallet.ApplyTx(floating, tx)
	return pools, newFloating
}

// Aggregate implements spec.md §4.B's aggregate: the full set of txs the pool is tracking,
// across all three partitions.
func Aggregate(pools Pools) []*chain.Tx {
	out := make([]*chain.Tx, 0, len(pools.Txs)+len(pools.WaitingTxs)+len(pools.PotentialTxs))
	out = append(out, pools.Txs...)
	out = append(out, pools.WaitingTxs...)
	out = append(out, pools.PotentialTxs...)
	return out
}

func removeByID(txs []*chain.Tx, id chain.TxID) []*chain.Tx {
	out := txs[:0:0]
	for _, t := range txs {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
