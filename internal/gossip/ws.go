package gossip

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weavecore/arnode/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireMsg is the JSON envelope sent over the websocket transport.
type wireMsg struct {
	Kind  string          `json:"kind"` // "block" | "tx"
	Block *NewBlockMsg    `json:"block,omitempty"`
	Tx    *NewTxMsg       `json:"tx,omitempty"`
}

// WSGossip fans messages out to peers over websocket connections, simulating the configured
// loss probability, delay, and transfer speed the way the opaque Gossip contract allows.
// Grounded on the teacher's gorilla/websocket client/server shape (internal/slave/websocket.go),
// repurposed from miner GetWork delivery to peer block/tx gossip.
type WSGossip struct {
	bind string

	mu    sync.Mutex
	conns map[Peer]*websocket.Conn

	server *http.Server

	onBlock func(Peer, NewBlockMsg)
	onTx    func(Peer, NewTxMsg)
}

// NewWSGossip creates a websocket gossip transport listening on bind for inbound peers.
func NewWSGossip(bind string) *WSGossip {
	return &WSGossip{bind: bind, conns: make(map[Peer]*websocket.Conn)}
}

// OnBlock registers the callback invoked for inbound block announcements.
func (g *WSGossip) OnBlock(f func(Peer, NewBlockMsg)) { g.onBlock = f }

// OnTx registers the callback invoked for inbound tx announcements.
func (g *WSGossip) OnTx(f func(Peer, NewTxMsg)) { g.onTx = f }

// Start begins accepting inbound peer connections.
func (g *WSGossip) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", g.handleInbound)
	g.server = &http.Server{Addr: g.bind, Handler: mux}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("gossip: listener stopped: %v", err)
		}
	}()
	util.Infof("gossip: listening on %s", g.bind)
	return nil
}

// Stop closes the inbound listener and all peer connections.
func (g *WSGossip) Stop() {
	if g.server != nil {
		_ = g.server.Close()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.Close()
	}
}

func (g *WSGossip) handleInbound(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("gossip: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Kind {
		case "block":
			if g.onBlock != nil && msg.Block != nil {
				g.onBlock(Peer(r.RemoteAddr), *msg.Block)
			}
		case "tx":
			if g.onTx != nil && msg.Tx != nil {
				g.onTx(Peer(r.RemoteAddr), *msg.Tx)
			}
		}
	}
}

func (g *WSGossip) dial(peer Peer) (*websocket.Conn, error) {
	g.mu.Lock()
	if c, ok := g.conns[peer]; ok {
		g.mu.Unlock()
		return c, nil
	}
	g.mu.Unlock()

	c, _, err := websocket.DefaultDialer.Dial(string(peer), nil)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.conns[peer] = c
	g.mu.Unlock()
	return c, nil
}

func (g *WSGossip) send(cursor Cursor, msg wireMsg, payloadSize int) (Cursor, []Peer) {
	delivered := make([]Peer, 0, len(cursor.Peers))
	buf, err := json.Marshal(msg)
	if err != nil {
		return cursor, delivered
	}

	for _, p := range cursor.Peers {
		if cursor.LossProbability > 0 && rand.Float64() < cursor.LossProbability {
			continue
		}
		if cursor.Delay > 0 {
			time.Sleep(time.Duration(cursor.Delay) * time.Millisecond)
		}
		if cursor.XferSpeedBps > 0 {
			time.Sleep(time.Duration(int64(payloadSize)*1000/cursor.XferSpeedBps) * time.Millisecond)
		}

		conn, err := g.dial(p)
		if err != nil {
			util.Warnf("gossip: dial %s failed: %v", p, err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			util.Warnf("gossip: send to %s failed: %v", p, err)
			continue
		}
		delivered = append(delivered, p)
	}
	return cursor, delivered
}

func (g *WSGossip) Peers(cursor Cursor) []Peer {
	return cursor.Peers
}

func (g *WSGossip) SendBlock(cursor Cursor, msg NewBlockMsg) (Cursor, []Peer) {
	return g.send(cursor, wireMsg{Kind: "block", Block: &msg}, len(msg.Block.Txs)*32)
}

func (g *WSGossip) SendTx(cursor Cursor, msg NewTxMsg) (Cursor, []Peer) {
	return g.send(cursor, wireMsg{Kind: "tx", Tx: &msg}, int(msg.Tx.DataSize))
}

func (g *WSGossip) AddPeers(cursor Cursor, peers []Peer) Cursor {
	cursor.Peers = append(cursor.Peers, peers...)
	return cursor
}

func (g *WSGossip) SetLossProbability(cursor Cursor, p float64) Cursor {
	cursor.LossProbability = p
	return cursor
}

func (g *WSGossip) SetDelay(cursor Cursor, ms int64) Cursor {
	cursor.Delay = ms
	return cursor
}

func (g *WSGossip) SetXferSpeed(cursor Cursor, bps int64) Cursor {
	cursor.XferSpeedBps = bps
	return cursor
}
