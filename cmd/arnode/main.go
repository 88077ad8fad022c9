// Command arnode runs a single blockweave consensus node: the event-loop worker, its miner
// supervisor and fork recoverer, the gossip transport, and the read-only status API.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/weavecore/arnode/internal/api"
	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/config"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/fork"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/miner"
	"github.com/weavecore/arnode/internal/node"
	"github.com/weavecore/arnode/internal/store"
	"github.com/weavecore/arnode/internal/telemetry"
	"github.com/weavecore/arnode/internal/txpool"
	"github.com/weavecore/arnode/internal/util"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arnode v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("arnode v%s starting", version)

	st, err := store.NewBadgerStore(cfg.Store.Dir, cfg.Store.CacheEntries)
	if err != nil {
		util.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	diag := newDiagnostics(cfg)

	rewardAddr, err := parseRewardAddr(cfg.Mining.RewardAddr)
	if err != nil {
		util.Fatalf("invalid mining.reward_addr: %v", err)
	}

	gw := gossip.NewWSGossip(cfg.Gossip.Bind)

	w := node.NewWorker([]byte(cfg.Node.ID), rewardAddr, node.WorkerConfig{
		Store:  st,
		Gossip: gw,
		TxPool: txpool.Config{
			FixedDelay:           cfg.Pool.FixedDelay,
			UseFixedDelay:        cfg.Pool.UseFixedDelay,
			MemoryHeadroomFactor: uint64(cfg.Pool.MemoryHeadroomFactor),
		},
		Diag:    diag,
		FreeMem: txpool.SystemFreeMemory,
		Tags:    tagBytes(cfg.Mining.Tags),
	})

	gw.OnBlock(func(peer gossip.Peer, msg gossip.NewBlockMsg) {
		w.Post(node.ProcessNewBlockEvent{Gossip: peer, Peer: peer, Block: msg.Block, Recall: msg.Recall})
	})
	gw.OnTx(func(peer gossip.Peer, msg gossip.NewTxMsg) {
		w.Post(node.AddTxEvent{Tx: msg.Tx, Gossip: peer})
	})
	if err := gw.Start(); err != nil {
		util.Fatalf("failed to start gossip transport: %v", err)
	}
	defer gw.Stop()

	m := miner.NewMiner(w)
	fr := fork.NewRecoverer(st, w)
	w.SetMiner(m)
	w.SetFork(fr)

	nrAgent := telemetry.NewAgent(&cfg.Telemetry)
	if err := nrAgent.Start(); err != nil {
		util.Errorf("failed to start telemetry agent: %v", err)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(&cfg.API, w)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("failed to start API server: %v", err)
		}
	}

	go w.Run()

	joinOrBootstrap(w, st, cfg)
	applyGossipTuning(w, cfg)

	if len(cfg.Gossip.Peers) > 0 {
		peers := make([]gossip.Peer, len(cfg.Gossip.Peers))
		for i, p := range cfg.Gossip.Peers {
			peers[i] = gossip.Peer(p)
		}
		w.Post(node.AddPeersEvent{Peers: peers})
	}

	if cfg.Node.Automine {
		w.Post(node.AutoMineEvent{Enabled: true})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("node started, press Ctrl+C to stop")
	<-sigChan
	util.Info("shutting down")

	if apiServer != nil {
		apiServer.Stop()
	}
	nrAgent.Stop()

	done := make(chan struct{})
	w.Post(node.StopEvent{Done: done})
	<-done
	<-w.Stopped()

	util.Info("node stopped")
}

// newDiagnostics wires the tx pool's Redis-backed diagnostics sink when configured, falling
// back to the in-process recorder both when Redis is unconfigured and when it's unreachable.
func newDiagnostics(cfg *config.Config) txpool.Diagnostics {
	if cfg.Redis.Addr == "" {
		return txpool.NewMemDiagnostics()
	}
	d, err := txpool.NewRedisDiagnostics(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		util.Errorf("failed to connect to redis diagnostics sink, falling back to in-process: %v", err)
		return txpool.NewMemDiagnostics()
	}
	return d
}

// parseRewardAddr decodes cfg.Mining.RewardAddr's hex text into a chain.Address, treating an
// empty string as the unclaimed sentinel address.
func parseRewardAddr(hexAddr string) (chain.Address, error) {
	if hexAddr == "" {
		return chain.UnclaimedAddr, nil
	}
	var addr chain.Address
	if err := addr.UnmarshalText([]byte(hexAddr)); err != nil {
		return chain.Address{}, err
	}
	return addr, nil
}

// tagBytes concatenates the configured mining tags into the flat byte string the block header
// and the miner's preimage hash both expect.
func tagBytes(tags []string) []byte {
	out := make([]byte, 0)
	for _, t := range tags {
		out = append(out, []byte(t)...)
	}
	return out
}

// applyGossipTuning posts the configured network-simulation knobs to the worker, which is the
// only goroutine allowed to touch the gossip cursor.
func applyGossipTuning(w *node.Worker, cfg *config.Config) {
	if cfg.Gossip.LossProbability != 0 {
		w.Post(node.SetLossProbabilityEvent{Probability: cfg.Gossip.LossProbability})
	}
	if cfg.Gossip.Delay != 0 {
		w.Post(node.SetDelayEvent{Ms: cfg.Gossip.Delay.Milliseconds()})
	}
	if cfg.Gossip.XferSpeedBps != 0 {
		w.Post(node.SetXferSpeedEvent{Bps: cfg.Gossip.XferSpeedBps})
	}
	if cfg.Mining.MiningDelay != 0 {
		w.Post(node.SetMiningDelayEvent{Ms: cfg.Mining.MiningDelay.Milliseconds()})
	}
}

// joinOrBootstrap resumes from a persisted chain if Store already has one, otherwise seeds a
// fresh genesis block and joins to it. A node started with peers configured but no local
// chain stays NotJoined until gossip drives fork recovery instead.
func joinOrBootstrap(w *node.Worker, st store.Store, cfg *config.Config) {
	if index, err := st.ReadBlockIndex(); err == nil && len(index) > 0 {
		hashes := make([]chain.BlockHash, len(index))
		for i, e := range index {
			hashes[i] = e.Hash
		}
		w.Post(node.ForkRecoveredEvent{NewHashes: hashes})
		return
	}

	if len(cfg.Gossip.Peers) > 0 {
		// Peers are configured; wait for them to supply a chain rather than minting a
		// competing genesis.
		return
	}

	genesis := &chain.Block{
		WalletRoot: cryptoutil.WalletRoot(chain.WalletList{}),
		Diff:       cfg.Mining.InitialDiff,
		RewardPool: 0,
	}
	genesis.IndepHash = cryptoutil.Hash([]byte("genesis"), genesis.WalletRoot[:])

	if err := st.WriteBlock(genesis); err != nil {
		util.Fatalf("failed to write genesis block: %v", err)
	}
	if err := st.WriteWalletList(genesis.WalletRoot, chain.WalletList{}); err != nil {
		util.Fatalf("failed to write genesis wallet list: %v", err)
	}

	w.Post(node.ForkRecoveredEvent{NewHashes: []chain.BlockHash{genesis.IndepHash}})
}
