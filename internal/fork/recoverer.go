// Package fork implements the fork recoverer (spec component 4.H): an explicit state machine
// that walks a gossiped block's ancestor chain back to a known common ancestor and, on
// success, reports the new head's hash list to the node worker.
package fork

import (
	"sync"
	"sync/atomic"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/node"
	"github.com/weavecore/arnode/internal/store"
	"github.com/weavecore/arnode/internal/util"
)

// State is one of the recoverer's four explicit states, replacing the process-dictionary flag
// the teacher's Erlang ancestor used with a plain field.
type State string

const (
	StateIdle       State = "idle"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// maxWalkDepth guards against an unbounded ancestor walk if Store ever contains a cycle or a
// target block is malicious/malformed.
const maxWalkDepth = 1 << 20

// Poster is the narrow slice of *node.Worker the recoverer needs.
type Poster interface {
	Post(e node.Event)
}

// Recoverer implements node.ForkRecoverer. At most one recovery runs at a time; a second
// Recover call while one is active is rejected rather than queued, matching spec.md §9's
// exclusive-registration note.
type Recoverer struct {
	store  store.Store
	poster Poster

	active atomic.Bool

	mu    sync.RWMutex
	state State
}

// NewRecoverer constructs an idle recoverer backed by st, posting completions to poster.
func NewRecoverer(st store.Store, poster Poster) *Recoverer {
	return &Recoverer{store: st, poster: poster, state: StateIdle}
}

// State reports the recoverer's current phase, for status reporting.
func (r *Recoverer) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// InProgress implements node.ForkRecoverer: true from the moment Recover accepts a
// registration until its goroutine finishes (success or failure).
func (r *Recoverer) InProgress() bool {
	return r.active.Load()
}

// Recover implements node.ForkRecoverer's exclusive registration: it returns false without
// doing anything if a recovery is already in flight.
func (r *Recoverer) Recover(peer gossip.Peer, target *chain.Block) bool {
	if !r.active.CompareAndSwap(false, true) {
		return false
	}

	r.setState(StateRecovering)
	go r.run(peer, target)
	return true
}

func (r *Recoverer) run(peer gossip.Peer, target *chain.Block) {
	defer r.active.Store(false)

	hashes, ok := r.walk(target)
	if !ok {
		util.Warnf("fork: recovery from peer %s failed to resolve ancestor chain at height %d", peer, target.Height)
		r.setState(StateFailed)
		return
	}

	r.setState(StateCompleted)
	r.poster.Post(node.ForkRecoveredEvent{NewHashes: hashes})
}

// walk builds a tip-to-genesis hash list by following previous_hash pointers through Store.
// Once any peer has gossiped a chain segment it is durable in Store, so the common ancestor is
// found locally rather than by a second round trip to the peer.
func (r *Recoverer) walk(target *chain.Block) ([]chain.BlockHash, bool) {
	hashes := make([]chain.BlockHash, 0, target.Height+1)
	cur := target

	for {
		hashes = append(hashes, cur.IndepHash)
		if cur.Height == 0 {
			return hashes, true
		}
		if len(hashes) > maxWalkDepth {
			return nil, false
		}

		prev, err := r.store.ReadBlockByHash(cur.PreviousHash)
		if err != nil {
			return nil, false
		}
		cur = prev
	}
}

func (r *Recoverer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
