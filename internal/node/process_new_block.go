package node

import (
	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/gossip"
	"github.com/weavecore/arnode/internal/reward"
	"github.com/weavecore/arnode/internal/txpool"
	"github.com/weavecore/arnode/internal/util"
	"github.com/weavecore/arnode/internal/validator"
	"github.com/weavecore/arnode/internal/wallet"
)

// handleProcessNewBlock implements the ProcessNewBlock algorithm of spec.md §4.F verbatim.
func (w *Worker) handleProcessNewBlock(ev ProcessNewBlockEvent) {
	if !w.state.Joined() {
		if w.fork != nil {
			w.fork.Recover(ev.Peer, ev.Block)
		}
		return
	}

	if ev.Block.Height <= w.state.Height {
		util.Debugf("node: ignoring block at height %d <= current height %d", ev.Block.Height, w.state.Height)
		if ev.Peer != "" {
			w.state.Gossip = w.gossip.AddPeers(w.state.Gossip, []gossip.Peer{ev.Peer})
		}
		return
	}

	if ev.Block.Height > w.state.Height+1 {
		if w.fork != nil {
			w.fork.Recover(ev.Peer, ev.Block)
		}
		return
	}

	recall := ev.Recall
	if recall == nil {
		recall = w.fetchRecallBlock(ev.Block, ev.HashList)
		if recall == nil {
			return
		}
	}

	txs, ok := w.reconstructTxs(ev.Block.Txs)
	if !ok {
		if w.fork != nil {
			w.fork.Recover(ev.Peer, ev.Block)
		}
		return
	}

	proportion := reward.Proportion(recall.BlockSize, ev.Block.WeaveSize, ev.Block.Height)

	prevBlock, err := w.store.ReadBlockByHash(w.state.BlockIndex[0].Hash)
	if err != nil {
		if w.fork != nil {
			w.fork.Recover(ev.Peer, ev.Block)
		}
		return
	}

	in := validator.Input{
		Candidate:  ev.Block,
		Txs:        txs,
		PrevHead:   &w.state.BlockIndex[0],
		PrevBlock:  prevBlock,
		Recall:     recall,
		WalletList: w.state.WalletList,
		NowMs:      nowMs(),
		Proportion: proportion,
	}

	ok, reason, walletsAfter := validator.Validate(in)
	if !ok {
		util.Warnf("node: rejecting candidate block at height %d: %s", ev.Block.Height, reason)
		if w.fork != nil {
			w.fork.Recover(ev.Peer, ev.Block)
		}
		return
	}

	if w.fork != nil && w.fork.InProgress() {
		// A recovery is already running; let it finish rather than integrating a second,
		// possibly conflicting head concurrently.
		w.fork.Recover(ev.Peer, ev.Block)
		return
	}

	w.integrate(ev.Block, txs, walletsAfter)
}

// fetchRecallBlock implements find_recall_hash(block, hash_list): the recall block is
// selected deterministically from the candidate's own hash and height (RecallHash), then
// located in the peer-supplied hash list.
func (w *Worker) fetchRecallBlock(block *chain.Block, hashList []chain.BlockHash) *chain.Block {
	if len(hashList) == 0 {
		return nil
	}
	idx := recallIndex(block.IndepHash, block.Height)
	if idx >= uint64(len(hashList)) {
		return nil
	}
	b, err := w.store.ReadBlockByHash(hashList[idx])
	if err != nil {
		return nil
	}
	return b
}

// reconstructTxs resolves each tx id against the aggregate pool, falling back to Store.
func (w *Worker) reconstructTxs(ids []chain.TxID) ([]*chain.Tx, bool) {
	pool := txpool.Aggregate(w.state.Pools)
	byID := make(map[chain.TxID]*chain.Tx, len(pool))
	for _, tx := range pool {
		byID[tx.ID] = tx
	}

	out := make([]*chain.Tx, 0, len(ids))
	for _, id := range ids {
		if tx, ok := byID[id]; ok {
			out = append(out, tx)
			continue
		}
		tx, err := w.store.ReadTx(id)
		if err != nil {
			return nil, false
		}
		out = append(out, tx)
	}
	return out, true
}

// integrate implements the "Integration (new head) post-conditions" of spec.md §4.F.
func (w *Worker) integrate(block *chain.Block, txs []*chain.Tx, walletsAfter chain.WalletList) {
	included := make(map[chain.TxID]bool, len(txs))
	for _, tx := range txs {
		included[tx.ID] = true
	}

	// The recall block gossiped with the new head is the one the miner's PoW was bound to:
	// selected from the previous tip, exactly as startMining and handleWorkComplete do.
	var recall *chain.Block
	if idx := recallIndex(w.state.BlockIndex[0].Hash, w.state.Height); idx < uint64(len(w.state.BlockIndex)) {
		recall, _ = w.store.ReadBlockByHash(w.state.BlockIndex[idx].Hash)
	}

	remaining := make([]*chain.Tx, 0, len(w.state.Pools.Txs))
	for _, tx := range w.state.Pools.Txs {
		if !included[tx.ID] {
			remaining = append(remaining, tx)
		}
	}

	w.state.BlockIndex = append([]chain.BlockIndexEntry{{
		Hash:      block.IndepHash,
		WeaveSize: block.WeaveSize,
		TxRoot:    block.TxRoot,
	}}, w.state.BlockIndex...)
	w.state.Height++

	w.state.WalletList = walletsAfter
	w.state.Pools.Txs = wallet.FilterOutOfOrder(walletsAfter, remaining)
	w.state.Pools.PotentialTxs = nil
	w.state.FloatingWalletList, _ = wallet.ApplyTxs(walletsAfter, w.state.Pools.Txs)

	w.state.RewardPool = block.RewardPool
	w.state.WeaveSize = block.WeaveSize
	w.state.Diff = block.Diff
	w.state.LastRetarget = block.LastRetarget

	_ = w.store.WriteBlock(block)
	_ = w.store.WriteBlockIndex(w.state.BlockIndex)
	_ = w.store.WriteWalletList(block.WalletRoot, walletsAfter)

	if w.gossip != nil {
		w.state.Gossip, _ = w.gossip.SendBlock(w.state.Gossip, gossip.NewBlockMsg{
			Height: w.state.Height,
			Block:  block,
			Recall: recall,
		})
	}

	w.resetMiner()
}
