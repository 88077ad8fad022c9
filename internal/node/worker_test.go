package node

import (
	"testing"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/store"
	"github.com/weavecore/arnode/internal/txpool"
	"github.com/weavecore/arnode/internal/wallet"
)

type fakeMiner struct {
	started []MiningJob
	resets  int
}

func (f *fakeMiner) StartMining(job MiningJob) { f.started = append(f.started, job) }
func (f *fakeMiner) ResetMiner()               { f.resets++ }

type fakeFork struct {
	calls      []*chain.Block
	inProgress bool
}

func (f *fakeFork) Recover(peer gossip.Peer, target *chain.Block) bool {
	f.calls = append(f.calls, target)
	return true
}

func (f *fakeFork) InProgress() bool { return f.inProgress }

func newTestWorker() (*Worker, store.Store, *gossip.MemGossip, *fakeMiner, *fakeFork) {
	st := store.NewMemStore()
	gs := gossip.NewMemGossip()
	miner := &fakeMiner{}
	fork := &fakeFork{}

	w := NewWorker([]byte("node-1"), chain.Address{1}, WorkerConfig{
		Store:  st,
		Gossip: gs,
		Miner:  miner,
		Fork:   fork,
		TxPool: txpool.Config{UseFixedDelay: true, FixedDelay: time.Millisecond},
		Diag:   txpool.NewMemDiagnostics(),
	})
	return w, st, gs, miner, fork
}

// TestAddTxNotJoinedStillPools verifies S1-style propagation-delay behavior: an admitted tx
// sits in waiting_txs until its timer fires, regardless of join state.
func TestAddTxNotJoinedStillPools(t *testing.T) {
	w, _, _, _, _ := newTestWorker()

	tx := &chain.Tx{ID: chain.TxID{1}, OwnerAddr: chain.Address{1}}
	w.handle(AddTxEvent{Tx: tx})

	snap := w.Snapshot()
	if len(snap.Pools.WaitingTxs) != 1 {
		t.Fatalf("expected tx in waiting_txs, got pools %+v", snap.Pools)
	}
}

// TestEncounterNewTxPromotes exercises the EncounterNewTx precondition: tx moves from
// waiting_txs to txs with no memory gate configured (nil FreeMemoryFn means no rejection).
func TestEncounterNewTxPromotes(t *testing.T) {
	w, _, _, _, _ := newTestWorker()

	tx := &chain.Tx{ID: chain.TxID{1}, OwnerAddr: chain.Address{1}}
	w.handle(AddTxEvent{Tx: tx})
	w.handle(EncounterNewTxEvent{Tx: tx})

	snap := w.Snapshot()
	if len(snap.Pools.WaitingTxs) != 0 || len(snap.Pools.Txs) != 1 {
		t.Fatalf("expected tx promoted to txs, got pools %+v", snap.Pools)
	}
}

// TestConflictingTxRoutedToPotential covers S2: two txs with the same owner and last_tx
// conflict; the second is routed to potential_txs.
func TestConflictingTxRoutedToPotential(t *testing.T) {
	w, _, _, _, _ := newTestWorker()

	owner := chain.Address{1}
	first := &chain.Tx{ID: chain.TxID{1}, OwnerAddr: owner, LastTx: chain.TxID{9}}
	second := &chain.Tx{ID: chain.TxID{2}, OwnerAddr: owner, LastTx: chain.TxID{9}}

	w.handle(AddTxEvent{Tx: first})
	w.handle(AddTxEvent{Tx: second})

	snap := w.Snapshot()
	if len(snap.Pools.WaitingTxs) != 1 || len(snap.Pools.PotentialTxs) != 1 {
		t.Fatalf("expected one waiting, one potential; got %+v", snap.Pools)
	}
	if snap.Pools.PotentialTxs[0].ID != second.ID {
		t.Fatalf("expected second tx to be the conflicting one")
	}
}

// TestProcessNewBlockNotJoinedTriggersRecovery verifies the NotJoined branch of
// ProcessNewBlock: no core state mutation, fork recovery is invoked instead.
func TestProcessNewBlockNotJoinedTriggersRecovery(t *testing.T) {
	w, _, _, _, fork := newTestWorker()

	block := &chain.Block{IndepHash: chain.BlockHash{1}, Height: 5}
	w.handle(ProcessNewBlockEvent{Block: block, Peer: "peer-a"})

	if len(fork.calls) != 1 {
		t.Fatalf("expected fork recovery to be triggered once, got %d", len(fork.calls))
	}
	if w.state.Joined() {
		t.Fatalf("state should remain NotJoined")
	}
}

func seedJoinedWorker(t *testing.T, w *Worker, st store.Store) *chain.Block {
	t.Helper()

	genesis := &chain.Block{
		IndepHash:  chain.BlockHash{0xaa},
		Height:     0,
		WeaveSize:  0,
		Diff:       0,
		RewardPool: 1000,
	}
	if err := st.WriteBlock(genesis); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	index := []chain.BlockIndexEntry{{Hash: genesis.IndepHash, WeaveSize: 0, TxRoot: genesis.TxRoot}}
	w.handle(ForkRecoveredEvent{NewHashes: []chain.BlockHash{genesis.IndepHash}})
	_ = index

	if !w.state.Joined() {
		t.Fatalf("expected worker to be joined after ForkRecovered")
	}
	return genesis
}

func TestForkRecoveredJoinsNode(t *testing.T) {
	w, st, _, _, _ := newTestWorker()
	genesis := seedJoinedWorker(t, w, st)

	snap := w.Snapshot()
	if snap.Height != genesis.Height {
		t.Fatalf("expected height %d, got %d", genesis.Height, snap.Height)
	}
	if len(snap.BlockIndex) != 1 {
		t.Fatalf("expected single-entry block index, got %d", len(snap.BlockIndex))
	}
}

// TestProcessNewBlockHigherThanExpectedTriggersFork covers the height > height+1 branch.
func TestProcessNewBlockHigherThanExpectedTriggersFork(t *testing.T) {
	w, st, _, _, fork := newTestWorker()
	seedJoinedWorker(t, w, st)

	farBlock := &chain.Block{IndepHash: chain.BlockHash{0xbb}, Height: 10}
	w.handle(ProcessNewBlockEvent{Block: farBlock, Peer: "peer-b"})

	if len(fork.calls) != 1 {
		t.Fatalf("expected fork recovery triggered for distant block, got %d calls", len(fork.calls))
	}
}

// TestProcessNewBlockStaleIsIgnored covers the height <= height branch: no mutation, no
// fork recovery, peer recorded into the gossip cursor.
func TestProcessNewBlockStaleIsIgnored(t *testing.T) {
	w, st, _, _, fork := newTestWorker()
	seedJoinedWorker(t, w, st)

	staleBlock := &chain.Block{IndepHash: chain.BlockHash{0xcc}, Height: 0}
	w.handle(ProcessNewBlockEvent{Block: staleBlock, Peer: "peer-c"})

	if len(fork.calls) != 0 {
		t.Fatalf("stale block should not trigger fork recovery")
	}
	snap := w.Snapshot()
	if snap.Height != 0 {
		t.Fatalf("height should be unchanged, got %d", snap.Height)
	}
}

// TestProcessNewBlockAcceptsNextBlockAndIntegrates covers S3: a height+1 candidate that
// passes every validator check is integrated rather than routed to fork recovery.
func TestProcessNewBlockAcceptsNextBlockAndIntegrates(t *testing.T) {
	w, st, _, _, fork := newTestWorker()
	genesis := seedJoinedWorker(t, w, st)

	rewardAddr := chain.Address{0x01}
	walletsAfter := wallet.ApplyMiningReward(chain.WalletList{}, rewardAddr, genesis.RewardPool)
	walletRoot := cryptoutil.WalletRoot(walletsAfter)

	candidate := &chain.Block{
		IndepHash:    chain.BlockHash{0xbb},
		PreviousHash: genesis.IndepHash,
		Height:       1,
		Timestamp:    1000,
		Diff:         0,
		TxRoot:       cryptoutil.MerkleRoot(nil),
		WalletRoot:   walletRoot,
		RewardAddr:   rewardAddr,
		WeaveSize:    0,
	}
	if err := st.WriteBlock(candidate); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	w.handle(ProcessNewBlockEvent{Block: candidate, Recall: genesis, Peer: "peer-d"})

	if len(fork.calls) != 0 {
		t.Fatalf("valid next block should not trigger fork recovery, got %d calls", len(fork.calls))
	}
	snap := w.Snapshot()
	if snap.Height != 1 {
		t.Fatalf("expected height 1 after integration, got %d", snap.Height)
	}
	if len(snap.BlockIndex) != 2 {
		t.Fatalf("expected block index to grow to 2 entries, got %d", len(snap.BlockIndex))
	}
	if snap.BlockIndex[0].Hash != candidate.IndepHash {
		t.Fatalf("expected new tip to be the candidate's hash")
	}
}

// TestProcessNewBlockValidDuringRecoveryDefersToFork covers the "no fork recovery in
// progress" clause: a candidate that would otherwise integrate is instead handed to fork
// recovery while one is already active.
func TestProcessNewBlockValidDuringRecoveryDefersToFork(t *testing.T) {
	w, st, _, _, fork := newTestWorker()
	genesis := seedJoinedWorker(t, w, st)
	fork.inProgress = true

	rewardAddr := chain.Address{0x01}
	walletsAfter := wallet.ApplyMiningReward(chain.WalletList{}, rewardAddr, genesis.RewardPool)

	candidate := &chain.Block{
		IndepHash:    chain.BlockHash{0xbb},
		PreviousHash: genesis.IndepHash,
		Height:       1,
		Timestamp:    1000,
		Diff:         0,
		TxRoot:       cryptoutil.MerkleRoot(nil),
		WalletRoot:   cryptoutil.WalletRoot(walletsAfter),
		RewardAddr:   rewardAddr,
		WeaveSize:    0,
	}
	if err := st.WriteBlock(candidate); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	w.handle(ProcessNewBlockEvent{Block: candidate, Recall: genesis, Peer: "peer-e"})

	if len(fork.calls) != 1 {
		t.Fatalf("expected the candidate to be routed to fork recovery, got %d calls", len(fork.calls))
	}
	if w.state.Height != 0 {
		t.Fatalf("height must not advance while a recovery is in progress, got %d", w.state.Height)
	}
}

// TestWorkCompleteWipesPoolsOnInvalidCandidate covers S6: a mined block that fails
// validation may clear the tx pools with the spec's 20% probability. Since maybeWipe draws
// from the unseeded global source, the wipe is asserted over enough trials that its absence
// in all of them would be a 1-in-many-billion fluke, while every trial also checks the
// invariant that the wipe is all-or-nothing and the miner is always reset.
func TestWorkCompleteWipesPoolsOnInvalidCandidate(t *testing.T) {
	wiped := false
	for i := 0; i < 200; i++ {
		w, st, _, miner, _ := newTestWorker()
		seedJoinedWorker(t, w, st)

		tx := &chain.Tx{ID: chain.TxID{byte(i + 1)}, OwnerAddr: chain.Address{1}}
		w.state.Pools.Txs = []*chain.Tx{tx}
		w.state.Pools.PotentialTxs = []*chain.Tx{tx}

		resetsBefore := miner.resets

		// A timestamp not after the previous block's fails validation deterministically,
		// regardless of every other field, landing on the WorkComplete failure path.
		w.handle(WorkCompleteEvent{Txs: nil, IndepHash: chain.BlockHash{0xee}, Timestamp: -1, Diff: 0})

		if miner.resets != resetsBefore+1 {
			t.Fatalf("expected resetMiner to run on every failed WorkComplete, trial %d", i)
		}

		txsGone := len(w.state.Pools.Txs) == 0
		potentialGone := len(w.state.Pools.PotentialTxs) == 0
		if txsGone != potentialGone {
			t.Fatalf("wipe must clear both pools together or neither, trial %d", i)
		}
		if txsGone {
			wiped = true
		}
	}

	if !wiped {
		t.Fatalf("expected maybeWipe to trigger at least once across 200 trials")
	}
}

func TestStopEventSignalsDone(t *testing.T) {
	w, _, _, _, _ := newTestWorker()
	go w.Run()

	done := make(chan struct{})
	w.Post(StopEvent{Done: done})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop event was never acknowledged")
	}

	select {
	case <-w.Stopped():
	case <-time.After(time.Second):
		t.Fatal("worker did not report stopped after StopEvent")
	}
}

// TestSetMiningDelayFeedsMiningJob verifies the spec.md §3 mining_delay state field actually
// reaches the miner's job, rather than sitting inert once set.
func TestSetMiningDelayFeedsMiningJob(t *testing.T) {
	w, st, _, miner, _ := newTestWorker()
	seedJoinedWorker(t, w, st)

	w.handle(SetMiningDelayEvent{Ms: 250})
	w.handle(MineEvent{})

	if len(miner.started) != 1 {
		t.Fatalf("expected exactly one mining job started, got %d", len(miner.started))
	}
	if got := miner.started[0].Delay; got != 250*time.Millisecond {
		t.Fatalf("expected mining job delay of 250ms, got %v", got)
	}
}

func TestSetRewardAddrUpdatesState(t *testing.T) {
	w, _, _, _, _ := newTestWorker()
	addr := chain.Address{0x42}
	w.handle(SetRewardAddrEvent{Addr: addr})

	if w.Snapshot().RewardAddr != addr {
		t.Fatalf("reward address was not updated")
	}
}

func TestLookupFieldsRestrictsToRequestedKeys(t *testing.T) {
	w, _, _, _, _ := newTestWorker()
	got := w.LookupFields(FieldHeight, FieldJoined)

	if _, ok := got[FieldHeight]; !ok {
		t.Fatalf("expected FieldHeight present")
	}
	if _, ok := got[FieldDiff]; ok {
		t.Fatalf("FieldDiff should not be present when not requested")
	}
}
