package gossip

import "sync"

// MemGossip delivers messages directly to in-process subscribers, used by tests and by a
// single-node devnet with no real peers.
type MemGossip struct {
	mu          sync.Mutex
	blockSubs   []func(Peer, NewBlockMsg)
	txSubs      []func(Peer, NewTxMsg)
}

// NewMemGossip creates an in-process gossip transport.
func NewMemGossip() *MemGossip {
	return &MemGossip{}
}

// OnBlock registers a callback invoked for every SendBlock, simulating another node's receipt.
func (g *MemGossip) OnBlock(f func(Peer, NewBlockMsg)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockSubs = append(g.blockSubs, f)
}

// OnTx registers a callback invoked for every SendTx.
func (g *MemGossip) OnTx(f func(Peer, NewTxMsg)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txSubs = append(g.txSubs, f)
}

func (g *MemGossip) Peers(cursor Cursor) []Peer {
	return cursor.Peers
}

func (g *MemGossip) SendBlock(cursor Cursor, msg NewBlockMsg) (Cursor, []Peer) {
	g.mu.Lock()
	subs := append([]func(Peer, NewBlockMsg){}, g.blockSubs...)
	g.mu.Unlock()

	delivered := make([]Peer, 0, len(cursor.Peers))
	for _, p := range cursor.Peers {
		for _, f := range subs {
			f(p, msg)
		}
		delivered = append(delivered, p)
	}
	return cursor, delivered
}

func (g *MemGossip) SendTx(cursor Cursor, msg NewTxMsg) (Cursor, []Peer) {
	g.mu.Lock()
	subs := append([]func(Peer, NewTxMsg){}, g.txSubs...)
	g.mu.Unlock()

	delivered := make([]Peer, 0, len(cursor.Peers))
	for _, p := range cursor.Peers {
		for _, f := range subs {
			f(p, msg)
		}
		delivered = append(delivered, p)
	}
	return cursor, delivered
}

func (g *MemGossip) AddPeers(cursor Cursor, peers []Peer) Cursor {
	cursor.Peers = append(cursor.Peers, peers...)
	return cursor
}

func (g *MemGossip) SetLossProbability(cursor Cursor, p float64) Cursor {
	cursor.LossProbability = p
	return cursor
}

func (g *MemGossip) SetDelay(cursor Cursor, ms int64) Cursor {
	cursor.Delay = ms
	return cursor
}

func (g *MemGossip) SetXferSpeed(cursor Cursor, bps int64) Cursor {
	cursor.XferSpeedBps = bps
	return cursor
}
