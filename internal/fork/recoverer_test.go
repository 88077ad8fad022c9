package fork

import (
	"sync"
	"testing"
	"time"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/node"
	"github.com/weavecore/arnode/internal/store"
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

func seedChain(t *testing.T, st store.Store, length int) *chain.Block {
	t.Helper()

	var prev *chain.Block
	for h := 0; h < length; h++ {
		b := &chain.Block{
			IndepHash: chain.BlockHash{byte(h + 1)},
			Height:    uint64(h),
		}
		if prev != nil {
			b.PreviousHash = prev.IndepHash
		}
		if err := st.WriteBlock(b); err != nil {
			t.Fatalf("seed block %d: %v", h, err)
		}
		prev = b
	}
	return prev
}

func TestRecoverWalksToGenesisAndPostsHashList(t *testing.T) {
	st := store.NewMemStore()
	tip := seedChain(t, st, 5)

	poster := newFakePoster()
	r := NewRecoverer(st, poster)

	if !r.Recover("peer-a", tip) {
		t.Fatal("expected Recover to accept the first registration")
	}

	select {
	case <-poster.done:
	case <-time.After(time.Second):
		t.Fatal("recovery never completed")
	}

	ev, ok := poster.last().(node.ForkRecoveredEvent)
	if !ok {
		t.Fatalf("expected ForkRecoveredEvent, got %T", poster.last())
	}
	if len(ev.NewHashes) != 5 {
		t.Fatalf("expected 5 hashes tip-to-genesis, got %d", len(ev.NewHashes))
	}
	if ev.NewHashes[0] != tip.IndepHash {
		t.Fatalf("expected first hash to be the tip")
	}
	if r.State() != StateCompleted {
		t.Fatalf("expected StateCompleted, got %s", r.State())
	}
}

func TestRecoverFailsOnMissingAncestor(t *testing.T) {
	st := store.NewMemStore()

	orphan := &chain.Block{
		IndepHash:    chain.BlockHash{0xaa},
		PreviousHash: chain.BlockHash{0xff}, // never written
		Height:       3,
	}

	poster := newFakePoster()
	r := NewRecoverer(st, poster)

	if !r.Recover("peer-b", orphan) {
		t.Fatal("expected Recover to accept the registration")
	}

	deadline := time.After(time.Second)
	for r.State() == StateRecovering || r.State() == StateIdle {
		select {
		case <-deadline:
			t.Fatal("recoverer never settled")
		case <-time.After(time.Millisecond):
		}
	}

	if r.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %s", r.State())
	}
	if poster.last() != nil {
		t.Fatalf("expected no event posted on failure")
	}
}

func TestRecoverRejectsConcurrentRegistration(t *testing.T) {
	st := store.NewMemStore()
	tip := seedChain(t, st, 2)

	poster := newFakePoster()
	r := NewRecoverer(st, poster)
	r.active.Store(true) // simulate a recovery already in flight

	if r.Recover("peer-c", tip) {
		t.Fatal("expected Recover to reject a concurrent registration")
	}
}
