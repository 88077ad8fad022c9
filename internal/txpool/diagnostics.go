package txpool

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/util"
)

const diagKeyPrefix = "arnode:txdiag:"

// RedisDiagnostics is the production Diagnostics side-store, grounded on the teacher's
// storage.RedisClient wrapper shape. Flags are best-effort: a write failure is logged and
// dropped, never propagated back into the node worker's event handling.
type RedisDiagnostics struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewRedisDiagnostics connects to addr and returns a ready Diagnostics store.
func NewRedisDiagnostics(addr, password string, db int) (*RedisDiagnostics, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	util.Infof("txpool: connected to diagnostics store at %s", addr)
	return &RedisDiagnostics{client: client, ctx: ctx, ttl: 24 * time.Hour}, nil
}

// Flag records reason against txID, overwriting any prior flag.
func (d *RedisDiagnostics) Flag(txID chain.TxID, reason string) {
	key := diagKeyPrefix + util.BytesToHex(txID[:])
	if err := d.client.Set(d.ctx, key, reason, d.ttl).Err(); err != nil {
		util.Warnf("txpool: diagnostics write failed for %x: %v", txID, err)
	}
}

// Reason returns the most recent flag for txID, if any.
func (d *RedisDiagnostics) Reason(txID chain.TxID) (string, bool) {
	key := diagKeyPrefix + util.BytesToHex(txID[:])
	val, err := d.client.Get(d.ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Close closes the underlying Redis connection.
func (d *RedisDiagnostics) Close() error {
	return d.client.Close()
}
