package node

import (
	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/gossip"
)

// Event is the closed tagged-union of everything that can be posted to the worker's inbound
// queue, matching the event set of spec.md §4.F exactly.
type Event interface {
	isEvent()
}

type AddTxEvent struct {
	Tx     *chain.Tx
	Gossip gossip.Peer // zero value means locally originated
}

type EncounterNewTxEvent struct {
	Tx *chain.Tx
}

type ProcessNewBlockEvent struct {
	Gossip   gossip.Peer
	Block    *chain.Block
	Recall   *chain.Block // nil means Unavailable
	Peer     gossip.Peer
	HashList []chain.BlockHash
}

type WorkCompleteEvent struct {
	Txs       []*chain.Tx
	Diff      uint64
	Nonce     uint64
	Timestamp int64
	IndepHash chain.BlockHash
}

type ForkRecoveredEvent struct {
	NewHashes []chain.BlockHash
}

type MineEvent struct{}

type MineAtDiffEvent struct {
	Diff uint64
}

type AutoMineEvent struct {
	Enabled bool
}

type ReplaceBlockListEvent struct {
	Blocks []*chain.Block
}

type IgnoreEvent struct {
	Gossip gossip.Peer
}

type SetRewardAddrEvent struct {
	Addr chain.Address
}

type SetLossProbabilityEvent struct {
	Probability float64
}

type SetDelayEvent struct {
	Ms int64
}

type SetXferSpeedEvent struct {
	Bps int64
}

type SetMiningDelayEvent struct {
	Ms int64
}

type AddPeersEvent struct {
	Peers []gossip.Peer
}

type StopEvent struct {
	Done chan struct{}
}

func (AddTxEvent) isEvent()             {}
func (EncounterNewTxEvent) isEvent()    {}
func (ProcessNewBlockEvent) isEvent()   {}
func (WorkCompleteEvent) isEvent()      {}
func (ForkRecoveredEvent) isEvent()     {}
func (MineEvent) isEvent()              {}
func (MineAtDiffEvent) isEvent()        {}
func (AutoMineEvent) isEvent()          {}
func (ReplaceBlockListEvent) isEvent()  {}
func (IgnoreEvent) isEvent()            {}
func (SetRewardAddrEvent) isEvent()     {}
func (SetLossProbabilityEvent) isEvent() {}
func (SetDelayEvent) isEvent()          {}
func (SetXferSpeedEvent) isEvent()      {}
func (SetMiningDelayEvent) isEvent()    {}
func (AddPeersEvent) isEvent()          {}
func (StopEvent) isEvent()              {}
