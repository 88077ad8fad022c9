package miner

import (
	"sync"
	"testing"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/node"
)

type fakePoster struct {
	mu     sync.Mutex
	events []node.Event
	done   chan struct{}
}

func newFakePoster() *fakePoster {
	return &fakePoster{done: make(chan struct{}, 1)}
}

func (f *fakePoster) Post(e node.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakePoster) last() node.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func TestStartMiningFindsAndPostsCompletion(t *testing.T) {
	poster := newFakePoster()
	m := NewMiner(poster)

	job := node.MiningJob{
		Diff:        0, // diff 0 always satisfies CheckPoW, so nonce 0 wins immediately
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{1}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{2}},
		RewardAddr:  chain.Address{9},
	}

	m.StartMining(job)

	select {
	case <-poster.done:
	case <-time.After(2 * time.Second):
		t.Fatal("miner never posted WorkCompleteEvent")
	}

	ev, ok := poster.last().(node.WorkCompleteEvent)
	if !ok {
		t.Fatalf("expected WorkCompleteEvent, got %T", poster.last())
	}
	if ev.Diff != 0 {
		t.Fatalf("expected diff 0, got %d", ev.Diff)
	}
}

func TestResetMinerStopsInFlightSearch(t *testing.T) {
	poster := newFakePoster()
	m := NewMiner(poster)

	job := node.MiningJob{
		Diff:        1 << 63, // effectively unreachable, the search should run until reset
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{1}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{2}},
		RewardAddr:  chain.Address{9},
	}

	m.StartMining(job)
	m.ResetMiner()

	select {
	case <-poster.done:
		t.Fatal("miner posted completion after reset")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartMiningSupersedesPreviousSearch(t *testing.T) {
	poster := newFakePoster()
	m := NewMiner(poster)

	stale := node.MiningJob{
		Diff:        1 << 63,
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{1}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{2}},
	}
	fresh := node.MiningJob{
		Diff:        0,
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{3}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{4}},
	}

	m.StartMining(stale)
	m.StartMining(fresh)

	select {
	case <-poster.done:
	case <-time.After(2 * time.Second):
		t.Fatal("miner never completed the superseding job")
	}

	ev, ok := poster.last().(node.WorkCompleteEvent)
	if !ok {
		t.Fatalf("expected WorkCompleteEvent, got %T", poster.last())
	}
	if ev.Diff != 0 {
		t.Fatalf("expected the fresh job's diff (0) to win, got %d", ev.Diff)
	}
}

// TestStartMiningHonorsDelay verifies a positive Delay holds the search back: no completion
// arrives before the delay elapses, but one does arrive once it has.
func TestStartMiningHonorsDelay(t *testing.T) {
	poster := newFakePoster()
	m := NewMiner(poster)

	job := node.MiningJob{
		Diff:        0,
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{1}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{2}},
		Delay:       150 * time.Millisecond,
	}

	m.StartMining(job)

	select {
	case <-poster.done:
		t.Fatal("miner completed before its delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-poster.done:
	case <-time.After(2 * time.Second):
		t.Fatal("miner never completed after its delay elapsed")
	}
}

// TestResetMinerCancelsDuringDelay verifies a reset mid-delay suppresses the search entirely,
// rather than letting it start once the delay elapses.
func TestResetMinerCancelsDuringDelay(t *testing.T) {
	poster := newFakePoster()
	m := NewMiner(poster)

	job := node.MiningJob{
		Diff:        0,
		PrevBlock:   &chain.Block{IndepHash: chain.BlockHash{1}},
		RecallBlock: &chain.Block{IndepHash: chain.BlockHash{2}},
		Delay:       150 * time.Millisecond,
	}

	m.StartMining(job)
	m.ResetMiner()

	select {
	case <-poster.done:
		t.Fatal("miner posted completion for a job reset during its delay")
	case <-time.After(300 * time.Millisecond):
	}
}
