// Package node implements the node worker (spec components 4.A state store + 4.F serializer):
// the single-writer event loop that owns all consensus state and is the only goroutine
// allowed to mutate it.
package node

import (
	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/txpool"
)

// NotJoined is the sentinel block index meaning the node has not yet completed its first
// fork recovery against any peer.
var NotJoined []chain.BlockIndexEntry = nil

// State is the full node record of spec.md §3, owned exclusively by the worker goroutine.
// Every field named there is carried verbatim.
type State struct {
	ID []byte

	BlockIndex []chain.BlockIndexEntry // nil means NotJoined
	Height     uint64

	WalletList         chain.WalletList
	FloatingWalletList chain.WalletList

	Pools txpool.Pools

	RewardPool uint64
	RewardAddr chain.Address

	WeaveSize    uint64
	Diff         uint64
	LastRetarget int64

	Tags        []byte
	MiningDelay int64

	Gossip gossip.Cursor

	Automine bool
}

// Joined reports whether the node has completed its first fork recovery.
func (s *State) Joined() bool {
	return s.BlockIndex != nil
}

// NewState returns the initial NotJoined state for a fresh node process.
func NewState(id []byte, rewardAddr chain.Address) *State {
	return &State{
		ID:                 id,
		BlockIndex:         NotJoined,
		WalletList:         chain.WalletList{},
		FloatingWalletList: chain.WalletList{},
		RewardAddr:         rewardAddr,
	}
}

// Clone returns a deep copy of s, used by Worker.Snapshot to hand readers an
// all-or-nothing view per spec.md §4.A.
func (s *State) Clone() *State {
	cp := *s

	if s.BlockIndex != nil {
		cp.BlockIndex = append([]chain.BlockIndexEntry(nil), s.BlockIndex...)
	}
	cp.WalletList = s.WalletList.Clone()
	cp.FloatingWalletList = s.FloatingWalletList.Clone()
	cp.Pools = txpool.Pools{
		Txs:          append([]*chain.Tx(nil), s.Pools.Txs...),
		WaitingTxs:   append([]*chain.Tx(nil), s.Pools.WaitingTxs...),
		PotentialTxs: append([]*chain.Tx(nil), s.Pools.PotentialTxs...),
	}
	cp.Tags = append([]byte(nil), s.Tags...)
	cp.Gossip.Peers = append([]gossip.Peer(nil), s.Gossip.Peers...)

	return &cp
}

// Field names a readable attribute of State, for Lookup and Worker.LookupFields.
type Field string

const (
	FieldHeight     Field = "height"
	FieldDiff       Field = "diff"
	FieldRewardPool Field = "reward_pool"
	FieldWeaveSize  Field = "weave_size"
	FieldAutomine   Field = "automine"
	FieldJoined     Field = "joined"
)

// Lookup restricts a snapshot to the requested fields, matching spec.md §4.A's
// lookup(keys) -> tuple restricted to requested fields.
func Lookup(s *State, keys ...Field) map[Field]any {
	out := make(map[Field]any, len(keys))
	for _, k := range keys {
		switch k {
		case FieldHeight:
			out[k] = s.Height
		case FieldDiff:
			out[k] = s.Diff
		case FieldRewardPool:
			out[k] = s.RewardPool
		case FieldWeaveSize:
			out[k] = s.WeaveSize
		case FieldAutomine:
			out[k] = s.Automine
		case FieldJoined:
			out[k] = s.Joined()
		}
	}
	return out
}
