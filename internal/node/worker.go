package node

import (
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/store"
	"github.com/weavecore/arnode/internal/txpool"
	"github.com/weavecore/arnode/internal/util"
)

// MiningJob is everything the miner supervisor needs to start a PoW attempt, assembled by
// the worker from current state.
type MiningJob struct {
	Txs         []*chain.Tx
	Diff        uint64
	RecallBlock *chain.Block
	PrevBlock   *chain.Block
	RewardAddr  chain.Address
	Tags        []byte
	// Delay holds the search start back by this long, simulating a throttled miner the same
	// way GossipConfig's delay/loss/xfer-speed knobs simulate a throttled network.
	Delay time.Duration
}

// MinerSupervisor is the worker's view of spec component 4.G. Defined here (the consumer)
// rather than in internal/miner, so node never has to import it; internal/miner implements
// this interface and imports node to post WorkCompleteEvent back.
type MinerSupervisor interface {
	StartMining(job MiningJob)
	ResetMiner()
}

// ForkRecoverer is the worker's view of spec component 4.H.
type ForkRecoverer interface {
	// Recover attempts to register a new recovery toward target observed from peer. It
	// returns false if a recovery is already in progress (exclusive registration).
	Recover(peer gossip.Peer, target *chain.Block) bool
	// InProgress reports whether a recovery is currently running, so the worker can route a
	// would-be integration to fork recovery instead while one is in flight.
	InProgress() bool
}

// Worker is the single-writer event loop of spec.md §4.F. Exactly one goroutine (run) ever
// touches state; every other caller communicates by posting to events.
type Worker struct {
	events chan Event

	state *State

	mu sync.RWMutex // write-held while an event is handled and by SetMiner/SetFork; read-held by Snapshot/LookupFields

	store   store.Store
	gossip  gossip.Gossip
	miner   MinerSupervisor
	fork    ForkRecoverer
	txCfg   txpool.Config
	diag    txpool.Diagnostics
	freeMem txpool.FreeMemoryFn

	stopped chan struct{}
}

// WorkerConfig bundles the worker's external dependencies, wired once at startup.
type WorkerConfig struct {
	Store   store.Store
	Gossip  gossip.Gossip
	Miner   MinerSupervisor
	Fork    ForkRecoverer
	TxPool  txpool.Config
	Diag    txpool.Diagnostics
	FreeMem txpool.FreeMemoryFn
	Tags    []byte
}

// NewWorker constructs a worker with a fresh NotJoined state and a buffered event channel.
func NewWorker(id []byte, rewardAddr chain.Address, cfg WorkerConfig) *Worker {
	state := NewState(id, rewardAddr)
	state.Tags = cfg.Tags
	return &Worker{
		events:  make(chan Event, 4096),
		state:   state,
		store:   cfg.Store,
		gossip:  cfg.Gossip,
		miner:   cfg.Miner,
		fork:    cfg.Fork,
		txCfg:   cfg.TxPool,
		diag:    cfg.Diag,
		freeMem: cfg.FreeMem,
		stopped: make(chan struct{}),
	}
}

// Post enqueues an event. It never blocks the caller on handling, only on a full queue.
func (w *Worker) Post(e Event) {
	w.events <- e
}

// SetMiner late-binds the miner supervisor. internal/miner's constructor takes the worker
// itself as its Poster, so main wires the worker first with Miner left nil and attaches it
// here before starting Run.
func (w *Worker) SetMiner(m MinerSupervisor) {
	w.mu.Lock()
	w.miner = m
	w.mu.Unlock()
}

// SetFork late-binds the fork recoverer, for the same construction-order reason as SetMiner.
func (w *Worker) SetFork(f ForkRecoverer) {
	w.mu.Lock()
	w.fork = f
	w.mu.Unlock()
}

// Run is the event loop itself; call it in its own goroutine. It returns once a StopEvent
// has been handled.
func (w *Worker) Run() {
	defer close(w.stopped)
	for e := range w.events {
		if w.dispatch(e) {
			return
		}
	}
}

// Stopped is closed once Run has returned.
func (w *Worker) Stopped() <-chan struct{} {
	return w.stopped
}

// dispatch runs handle with panic recovery, matching spec.md §4.F's exception-safety
// requirement: a failing handler is logged and the loop continues with unchanged state. It
// returns true once a StopEvent has been processed, signaling Run to exit.
func (w *Worker) dispatch(e Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			util.Errorf("NodeWorkerEXCEPTION | EXIT | ERROR: %v\n%s", r, debug.Stack())
		}
	}()

	if done, ok := e.(StopEvent); ok {
		w.handle(done)
		return true
	}

	w.handleLocked(e)
	return false
}

// handleLocked wraps handle with the snapshot mutex so Snapshot/Lookup never observe a
// partially-updated state, per spec.md §4.A's "no partial observers".
func (w *Worker) handleLocked(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handle(e)
}

func (w *Worker) handle(e Event) {
	switch ev := e.(type) {
	case AddTxEvent:
		w.handleAddTx(ev)
	case EncounterNewTxEvent:
		w.handleEncounterNewTx(ev)
	case ProcessNewBlockEvent:
		w.handleProcessNewBlock(ev)
	case WorkCompleteEvent:
		w.handleWorkComplete(ev)
	case ForkRecoveredEvent:
		w.handleForkRecovered(ev)
	case MineEvent:
		w.startMining(0)
	case MineAtDiffEvent:
		w.startMining(ev.Diff)
	case AutoMineEvent:
		w.state.Automine = ev.Enabled
		if ev.Enabled {
			w.startMining(0)
		}
	case ReplaceBlockListEvent:
		w.handleReplaceBlockList(ev)
	case IgnoreEvent:
		// "Just update gossip cursor": record the sender as a known peer, do nothing else.
		if ev.Gossip != "" {
			w.state.Gossip = w.gossip.AddPeers(w.state.Gossip, []gossip.Peer{ev.Gossip})
		}
	case SetRewardAddrEvent:
		w.state.RewardAddr = ev.Addr
	case SetLossProbabilityEvent:
		w.state.Gossip = w.gossip.SetLossProbability(w.state.Gossip, ev.Probability)
	case SetDelayEvent:
		w.state.Gossip = w.gossip.SetDelay(w.state.Gossip, ev.Ms)
	case SetXferSpeedEvent:
		w.state.Gossip = w.gossip.SetXferSpeed(w.state.Gossip, ev.Bps)
	case SetMiningDelayEvent:
		w.state.MiningDelay = ev.Ms
	case AddPeersEvent:
		w.state.Gossip = w.gossip.AddPeers(w.state.Gossip, ev.Peers)
	case StopEvent:
		if ev.Done != nil {
			close(ev.Done)
		}
	}
}

// handleAddTx implements spec.md §4.B add_tx as driven by the worker: on admission it
// schedules the propagation-delay timer that will post EncounterNewTx back to this worker.
func (w *Worker) handleAddTx(ev AddTxEvent) {
	pools, delay := txpool.AddTx(w.state.Pools, ev.Tx, w.txCfg, w.diag)
	w.state.Pools = pools

	if delay > 0 {
		tx := ev.Tx
		time.AfterFunc(delay, func() {
			w.Post(EncounterNewTxEvent{Tx: tx})
		})
	}
}

// handleEncounterNewTx implements spec.md §4.B promote.
func (w *Worker) handleEncounterNewTx(ev EncounterNewTxEvent) {
	pools, floating := txpool.Promote(w.state.Pools, w.state.FloatingWalletList, ev.Tx, w.txCfg, w.freeMem)
	w.state.Pools = pools
	w.state.FloatingWalletList = floating
}

// handleReplaceBlockList implements spec.md §4.F's ReplaceBlockList: an operator/test override
// that force-sets the head to a given block list (genesis-to-tip order), bypassing validation.
// The wallet list at the new tip is read from Store by its committed wallet root, the same
// mechanism fork recovery uses, rather than replayed from the blocks' tx ids.
func (w *Worker) handleReplaceBlockList(ev ReplaceBlockListEvent) {
	if len(ev.Blocks) == 0 {
		return
	}
	tip := ev.Blocks[len(ev.Blocks)-1]

	index := make([]chain.BlockIndexEntry, len(ev.Blocks))
	for i, b := range ev.Blocks {
		index[len(ev.Blocks)-1-i] = chain.BlockIndexEntry{
			Hash:      b.IndepHash,
			WeaveSize: b.WeaveSize,
			TxRoot:    b.TxRoot,
		}
		_ = w.store.WriteBlock(b)
	}

	wallets, err := w.store.ReadWalletList(tip.WalletRoot)
	if err != nil {
		wallets = chain.WalletList{}
	}

	w.state.BlockIndex = index
	w.state.Height = tip.Height
	w.state.WalletList = wallets
	w.state.FloatingWalletList = wallets.Clone()
	w.state.RewardPool = tip.RewardPool
	w.state.Diff = tip.Diff
	w.state.LastRetarget = tip.LastRetarget
	w.state.WeaveSize = tip.WeaveSize
	w.state.Pools = txpool.Pools{}

	_ = w.store.WriteBlockIndex(index)
	w.resetMiner()
}

// startMining implements spec.md §4.G's start_mining preconditions and job assembly; the
// actual PoW search runs in internal/miner, outside the worker goroutine.
func (w *Worker) startMining(diffOverride uint64) {
	if !w.state.Joined() || w.miner == nil {
		return
	}

	diff := w.state.Diff
	if diffOverride != 0 {
		diff = diffOverride
	}

	tip := w.state.BlockIndex[0]
	recallSeed := recallIndex(tip.Hash, w.state.Height)

	var recallBlock *chain.Block
	if recallSeed < uint64(len(w.state.BlockIndex)) {
		entry := w.state.BlockIndex[recallSeed]
		b, err := w.store.ReadBlockByHash(entry.Hash)
		if err == nil {
			recallBlock = b
		}
	}
	if recallBlock == nil {
		return
	}

	prevBlock, err := w.store.ReadBlockByHash(tip.Hash)
	if err != nil {
		return
	}

	w.miner.StartMining(MiningJob{
		Txs:         w.state.Pools.Txs,
		Diff:        diff,
		RecallBlock: recallBlock,
		PrevBlock:   prevBlock,
		RewardAddr:  w.state.RewardAddr,
		Tags:        w.state.Tags,
		Delay:       time.Duration(w.state.MiningDelay) * time.Millisecond,
	})
}

func (w *Worker) resetMiner() {
	if w.miner != nil {
		w.miner.ResetMiner()
	}
	if w.state.Automine {
		w.startMining(0)
	}
}

// recallIndex implements RecallHash(block) mod (height+1), resolving spec.md's
// "pseudorandom recall block selected from the current block's hash" definition (see
// internal/cryptoutil.RecallHash). The result indexes directly into a tip-to-genesis
// block_index of length height+1.
func recallIndex(hash chain.BlockHash, height uint64) uint64 {
	if height == 0 {
		return 0
	}
	seed := cryptoutil.RecallHash([32]byte(hash), height)
	var n uint64
	for _, b := range seed[:8] {
		n = n<<8 | uint64(b)
	}
	return n % (height + 1)
}

// maybeWipe implements the 20%-probability pool wipe from spec.md §4.F's WorkComplete
// failure path, an explicit Open Question decision to keep this non-deterministic.
func maybeWipe() bool {
	return rand.Float64() < 0.2
}
