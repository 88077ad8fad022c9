package node

import (
	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/reward"
	"github.com/weavecore/arnode/internal/util"
	"github.com/weavecore/arnode/internal/validator"
	"github.com/weavecore/arnode/internal/wallet"
)

// handleWorkComplete implements spec.md §4.F's WorkComplete: assemble the mined block as a
// candidate, validate it exactly as a gossiped block would be, and either integrate or apply
// the 20%-probability pool wipe on failure.
func (w *Worker) handleWorkComplete(ev WorkCompleteEvent) {
	if !w.state.Joined() {
		return
	}

	tip := w.state.BlockIndex[0]
	prevBlock, err := w.store.ReadBlockByHash(tip.Hash)
	if err != nil {
		w.resetMiner()
		return
	}

	recallIdx := recallIndex(tip.Hash, w.state.Height)
	var recall *chain.Block
	if recallIdx < uint64(len(w.state.BlockIndex)) {
		recall, _ = w.store.ReadBlockByHash(w.state.BlockIndex[recallIdx].Hash)
	}
	if recall == nil {
		w.resetMiner()
		return
	}

	var dataSize uint64
	txIDs := make([]chain.TxID, len(ev.Txs))
	leaves := make([][]byte, len(ev.Txs))
	for i, tx := range ev.Txs {
		txIDs[i] = tx.ID
		leaves[i] = cryptoutil.TxLeaf([32]byte(tx.ID), tx.DataRoot)
		dataSize += tx.DataSize
	}

	proportion := reward.Proportion(recall.BlockSize, w.state.WeaveSize+dataSize, w.state.Height+1)

	applied, ok := wallet.ApplyTxs(w.state.WalletList, ev.Txs)
	var walletRoot [32]byte
	if ok {
		txFees := reward.TxFees(txRewards(ev.Txs))
		finder, _ := reward.Calculate(w.state.RewardPool, txFees, proportion)
		withReward := wallet.ApplyMiningReward(applied, w.state.RewardAddr, finder)
		walletRoot = cryptoutil.WalletRoot(withReward)
	}

	candidate := &chain.Block{
		IndepHash:    ev.IndepHash,
		PreviousHash: tip.Hash,
		Height:       w.state.Height + 1,
		Timestamp:    ev.Timestamp,
		Diff:         ev.Diff,
		LastRetarget: w.retargetTimestamp(ev.Timestamp),
		Nonce:        ev.Nonce,
		TxRoot:       cryptoutil.MerkleRoot(leaves),
		WalletRoot:   walletRoot,
		Txs:          txIDs,
		RewardAddr:   w.state.RewardAddr,
		RewardPool:   0, // filled from newPool below when the txs apply cleanly
		WeaveSize:    w.state.WeaveSize + dataSize,
	}
	if ok {
		_, newPool := reward.Calculate(w.state.RewardPool, reward.TxFees(txRewards(ev.Txs)), proportion)
		candidate.RewardPool = newPool
	}

	in := validator.Input{
		Candidate:  candidate,
		Txs:        ev.Txs,
		PrevHead:   &tip,
		PrevBlock:  prevBlock,
		Recall:     recall,
		WalletList: w.state.WalletList,
		NowMs:      nowMs(),
		Proportion: proportion,
	}

	valid, reason, walletsAfter := validator.Validate(in)
	if !valid {
		util.Warnf("node: locally mined block failed validation: %s", reason)
		if maybeWipe() {
			w.state.Pools.Txs = nil
			w.state.Pools.PotentialTxs = nil
		}
		w.resetMiner()
		return
	}

	w.integrate(candidate, ev.Txs, walletsAfter)
}

// retargetTimestamp returns last_retarget unchanged between retargets, or the candidate's own
// timestamp when this block lands on a retarget boundary, per internal/validator's schedule.
func (w *Worker) retargetTimestamp(candidateTs int64) int64 {
	if (w.state.Height+1)%validator.RetargetBlocks == 0 {
		return candidateTs
	}
	return w.state.LastRetarget
}

func txRewards(txs []*chain.Tx) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Reward
	}
	return out
}

// handleForkRecovered implements spec.md §4.F's ForkRecovered: adopt the peer-supplied hash
// chain as the new head, reclassify pending txs against the new wallet list, and reseed the
// miner.
func (w *Worker) handleForkRecovered(ev ForkRecoveredEvent) {
	if len(ev.NewHashes) == 0 {
		return
	}
	if w.state.Joined() && len(ev.NewHashes) <= len(w.state.BlockIndex) {
		// Not longer than what we already have: adopting it would roll height backward and
		// break the monotonic-height invariant.
		return
	}

	tipHash := ev.NewHashes[0]
	tipBlock, err := w.store.ReadBlockByHash(tipHash)
	if err != nil {
		util.Errorf("node: fork recovery produced unreadable tip %x: %v", tipHash, err)
		return
	}

	index := make([]chain.BlockIndexEntry, len(ev.NewHashes))
	for i, h := range ev.NewHashes {
		b, err := w.store.ReadBlockByHash(h)
		if err != nil {
			util.Errorf("node: fork recovery hash chain has unreadable block %x: %v", h, err)
			return
		}
		index[i] = chain.BlockIndexEntry{Hash: h, WeaveSize: b.WeaveSize, TxRoot: b.TxRoot}
	}

	wallets, err := w.store.ReadWalletList(tipBlock.WalletRoot)
	if err != nil {
		wallets = chain.WalletList{}
	}

	w.state.BlockIndex = index
	w.state.Height = tipBlock.Height
	w.state.WalletList = wallets
	w.state.RewardPool = tipBlock.RewardPool
	w.state.Diff = tipBlock.Diff
	w.state.LastRetarget = tipBlock.LastRetarget
	w.state.WeaveSize = tipBlock.WeaveSize

	combined := append(append([]*chain.Tx{}, w.state.Pools.Txs...), w.state.Pools.PotentialTxs...)
	survivors := wallet.FilterOutOfOrder(wallets, combined)
	w.state.Pools.Txs = survivors
	w.state.Pools.PotentialTxs = nil
	w.state.FloatingWalletList, _ = wallet.ApplyTxs(wallets, survivors)

	_ = w.store.WriteBlockIndex(index)
	w.resetMiner()
}
