package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/config"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/node"
)

type fakeStatusSource struct {
	state *node.State
}

func (f *fakeStatusSource) Snapshot() *node.State { return f.state }

func TestHandleStatusReportsSnapshotFields(t *testing.T) {
	state := node.NewState([]byte("n"), chain.Address{1})
	state.BlockIndex = []chain.BlockIndexEntry{{Hash: chain.BlockHash{1}}}
	state.Height = 42
	state.Diff = 7
	state.RewardPool = 1000
	state.WeaveSize = 2048
	state.Gossip = gossip.Cursor{Peers: []gossip.Peer{"a", "b"}}

	srv := NewServer(&config.APIConfig{Bind: "127.0.0.1:0"}, &fakeStatusSource{state: state})

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Height != 42 || got.Diff != 7 || got.Peers != 2 || !got.Joined {
		t.Fatalf("unexpected status response: %+v", got)
	}
}

func TestHandleHealthzAlwaysOK(t *testing.T) {
	srv := NewServer(&config.APIConfig{Bind: "127.0.0.1:0"}, &fakeStatusSource{state: node.NewState([]byte("n"), chain.Address{})})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
