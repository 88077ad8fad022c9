// Package gossip implements the node's peer transport boundary (spec §6 Gossip contract):
// peer discovery, message fan-out, and the loss/delay/xfer-speed knobs the simulator exposes.
package gossip

import "github.com/weavecore/arnode/internal/chain"

// Peer identifies a remote node by its gossip-reachable address.
type Peer string

// Cursor is the opaque per-node gossip state: peer set plus simulated network conditions.
// It lives in node.State and is mutated only by the node worker (spec §5).
type Cursor struct {
	Peers           []Peer
	LossProbability float64
	Delay           int64 // milliseconds
	XferSpeedBps    int64
}

// NewBlockMsg announces a newly accepted block, at the given chain height, with its recall
// block attached so receivers don't need a round trip to fetch it.
type NewBlockMsg struct {
	Height uint64
	Block  *chain.Block
	Recall *chain.Block
}

// NewTxMsg announces a new transaction.
type NewTxMsg struct {
	Tx *chain.Tx
}

// Gossip is the opaque transport boundary. Implementations: WSGossip (websocket fan-out,
// production) and MemGossip (direct in-process delivery, tests).
type Gossip interface {
	Peers(cursor Cursor) []Peer
	SendBlock(cursor Cursor, msg NewBlockMsg) (Cursor, []Peer)
	SendTx(cursor Cursor, msg NewTxMsg) (Cursor, []Peer)
	AddPeers(cursor Cursor, peers []Peer) Cursor
	SetLossProbability(cursor Cursor, p float64) Cursor
	SetDelay(cursor Cursor, ms int64) Cursor
	SetXferSpeed(cursor Cursor, bps int64) Cursor
}
