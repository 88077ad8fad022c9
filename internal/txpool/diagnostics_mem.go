package txpool

import (
	"sync"

	"github.com/weavecore/arnode/internal/chain"
)

// MemDiagnostics is an in-process Diagnostics store for tests and single-node devnets; the
// package's own tests use it too, so no test needs a Redis server.
type MemDiagnostics struct {
	mu     sync.Mutex
	flags  map[chain.TxID]string
}

// NewMemDiagnostics returns a ready in-process diagnostics store.
func NewMemDiagnostics() *MemDiagnostics {
	return &MemDiagnostics{flags: make(map[chain.TxID]string)}
}

// Flag records reason against txID, overwriting any prior flag.
func (d *MemDiagnostics) Flag(txID chain.TxID, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flags[txID] = reason
}

// Reason returns the most recent flag for txID, if any.
func (d *MemDiagnostics) Reason(txID chain.TxID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.flags[txID]
	return v, ok
}
