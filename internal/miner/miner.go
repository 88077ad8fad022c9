// Package miner implements the miner supervisor (spec component 4.G): it owns the single
// in-process proof-of-work search, restarting it whenever the worker hands it a new job and
// cancelling cooperatively whenever a newer job or a reset arrives first.
package miner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/node"
)

// Poster is the narrow slice of *node.Worker the miner needs: the ability to hand a finished
// job back to the event loop. Defined here so the miner never has to import the concrete
// worker type.
type Poster interface {
	Post(e node.Event)
}

// Miner runs at most one PoW search at a time, grounded on the job-replace shape of
// tos-pool's jobBacklog/refreshJob cycle: a new job always supersedes whatever is running.
type Miner struct {
	poster Poster

	mu     sync.Mutex
	cancel *atomic.Bool // set true to stop the currently running search; nil if none is running
}

// NewMiner constructs a miner supervisor that posts completed work to poster.
func NewMiner(poster Poster) *Miner {
	return &Miner{poster: poster}
}

// StartMining implements spec.md §4.G's start_mining: cancel whatever search is running and
// begin a fresh one for job in its own goroutine.
func (m *Miner) StartMining(job node.MiningJob) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel.Store(true)
	}
	cancel := &atomic.Bool{}
	m.cancel = cancel
	m.mu.Unlock()

	go m.search(cancel, job)
}

// ResetMiner implements spec.md §4.G's reset_miner: invalidate any in-flight search without
// starting a new one.
func (m *Miner) ResetMiner() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel.Store(true)
		m.cancel = nil
	}
	m.mu.Unlock()
}

// waitOrCancel sleeps for d in small slices, polling cancel between them, so a ResetMiner or
// a superseding StartMining during the wait stops the delay early instead of still producing a
// stale block once it finally elapses. It reports whether the full delay ran uninterrupted.
func waitOrCancel(d time.Duration, cancel *atomic.Bool) bool {
	const slice = 10 * time.Millisecond
	for remaining := d; remaining > 0; remaining -= slice {
		if cancel.Load() {
			return false
		}
		step := slice
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
	return !cancel.Load()
}

// preimage builds the nonce-independent candidate hash: everything about the block except the
// winning nonce, the same value both the miner and internal/validator treat as indep_hash.
func preimage(job node.MiningJob) [32]byte {
	parts := make([][]byte, 0, len(job.Txs)+4)
	prevHash := job.PrevBlock.IndepHash
	parts = append(parts, prevHash[:])
	for _, tx := range job.Txs {
		id := tx.ID
		parts = append(parts, id[:])
	}
	rewardAddr := job.RewardAddr
	parts = append(parts, rewardAddr[:])
	parts = append(parts, job.Tags)
	return cryptoutil.Hash(parts...)
}

// search sweeps nonces from zero, checking cancel at a modest interval. There is no
// hash-rate limiting here; spec.md leaves the PoW search itself out of scope and this exists
// only to give WorkComplete a producer. A positive job.Delay holds the sweep back before it
// starts, so a newer job (or ResetMiner) racing in during the wait cancels it before it ever
// touches a nonce.
func (m *Miner) search(cancel *atomic.Bool, job node.MiningJob) {
	if job.Delay > 0 && !waitOrCancel(job.Delay, cancel) {
		return
	}

	indepHash := preimage(job)
	recallHash := [32]byte(job.RecallBlock.IndepHash)

	const checkEvery = 4096
	for nonce := uint64(0); ; nonce++ {
		if nonce%checkEvery == 0 && cancel.Load() {
			return
		}

		if cryptoutil.CheckPoW(indepHash, recallHash, nonce, job.Diff) {
			if cancel.Load() {
				return
			}
			m.poster.Post(node.WorkCompleteEvent{
				Txs:       job.Txs,
				Diff:      job.Diff,
				Nonce:     nonce,
				Timestamp: time.Now().UnixMilli(),
				IndepHash: chain.BlockHash(indepHash),
			})
			return
		}
	}
}
