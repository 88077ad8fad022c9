// Package validator implements the block validator (spec component 4.E): ten ordered,
// short-circuiting checks a candidate block must pass before the node worker integrates it.
package validator

import (
	"strconv"

	"github.com/weavecore/arnode/internal/chain"
	"github.com/weavecore/arnode/internal/cryptoutil"
	"github.com/weavecore/arnode/internal/reward"
	"github.com/weavecore/arnode/internal/wallet"
)

// Reason tags why a candidate was rejected.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonHeight          Reason = "invalid_height"
	ReasonPreviousHash    Reason = "invalid_previous_hash"
	ReasonTimestamp       Reason = "invalid_timestamp"
	ReasonDifficulty      Reason = "invalid_difficulty"
	ReasonPoW             Reason = "invalid_pow"
	ReasonTxRoot          Reason = "invalid_tx_root"
	ReasonWalletApply     Reason = "invalid_wallet_apply"
	ReasonWalletRoot      Reason = "invalid_wallet_root"
	ReasonWeaveSize       Reason = "invalid_weave_size"
	ReasonTxShape         Reason = "invalid_tx_shape"
)

// Retarget constants, resolving spec.md §4.E's silence on the exact schedule.
const (
	RetargetBlocks    = 10
	TargetBlockTimeMs = 120000
	MaxFutureSkewMs   = 900000 // 15 minutes
)

// Input bundles everything Validate needs beyond the candidate itself.
type Input struct {
	Candidate  *chain.Block
	Txs        []*chain.Tx
	PrevHead   *chain.BlockIndexEntry
	PrevBlock  *chain.Block // full previous block, for height/timestamp/diff/weave_size checks
	Recall     *chain.Block
	WalletList chain.WalletList
	NowMs      int64
	Proportion uint64 // 4.D input, derived from recall/weave size and height by the caller
}

// Validate runs the ten checks of spec.md §4.E in order, returning the first failure.
// On success it also returns the wallet list with txs and the mining reward applied, so the
// caller does not need to redo that work to integrate the block.
func Validate(in Input) (ok bool, reason Reason, walletsAfter chain.WalletList) {
	prev := in.PrevBlock
	cand := in.Candidate

	if cand.Height != prev.Height+1 {
		return false, ReasonHeight, nil
	}

	if cand.PreviousHash != prev.IndepHash {
		return false, ReasonPreviousHash, nil
	}

	if cand.Timestamp <= prev.Timestamp || cand.Timestamp > in.NowMs+MaxFutureSkewMs {
		return false, ReasonTimestamp, nil
	}

	if !validDifficulty(cand, prev) {
		return false, ReasonDifficulty, nil
	}

	if !cryptoutil.CheckPoW([32]byte(cand.IndepHash), [32]byte(in.Recall.IndepHash), cand.Nonce, cand.Diff) {
		return false, ReasonPoW, nil
	}

	for _, tx := range in.Txs {
		if err := cryptoutil.ValidateTxShape(tx.Owner, tx.Signature, tx.Tags,
			strconv.FormatUint(tx.Quantity, 10), strconv.FormatUint(tx.Reward, 10), tx.Data); err != nil {
			return false, ReasonTxShape, nil
		}
	}

	leaves := make([][]byte, len(in.Txs))
	for i, tx := range in.Txs {
		leaves[i] = cryptoutil.TxLeaf([32]byte(tx.ID), tx.DataRoot)
	}
	if cryptoutil.MerkleRoot(leaves) != cand.TxRoot {
		return false, ReasonTxRoot, nil
	}

	applied, ok := wallet.ApplyTxs(in.WalletList, in.Txs)
	if !ok {
		return false, ReasonWalletApply, nil
	}

	txFees := reward.TxFees(txRewards(in.Txs))
	finder, _ := reward.Calculate(prev.RewardPool, txFees, in.Proportion)
	withReward := wallet.ApplyMiningReward(applied, cand.RewardAddr, finder)
	if cryptoutil.WalletRoot(withReward) != cand.WalletRoot {
		return false, ReasonWalletRoot, nil
	}

	var dataSize uint64
	for _, tx := range in.Txs {
		dataSize += tx.DataSize
	}
	if cand.WeaveSize != prev.WeaveSize+dataSize {
		return false, ReasonWeaveSize, nil
	}

	return true, ReasonNone, withReward
}

func txRewards(txs []*chain.Tx) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Reward
	}
	return out
}

func validDifficulty(cand, prev *chain.Block) bool {
	if cand.Height%RetargetBlocks != 0 {
		return cand.Diff == prev.Diff
	}

	elapsed := cand.Timestamp - prev.LastRetarget
	expected := RetargetDifficulty(prev.Diff, elapsed, RetargetBlocks*TargetBlockTimeMs)
	return cand.Diff == expected
}

// RetargetDifficulty adjusts diff by the ratio of expected to actual elapsed time over the
// last RetargetBlocks blocks, clamped to [1/4, 4] to prevent single-retarget oscillation.
func RetargetDifficulty(prevDiff uint64, actualMs, targetMs int64) uint64 {
	if actualMs <= 0 {
		actualMs = 1
	}

	adjusted := int64(prevDiff) * targetMs / actualMs
	min := int64(prevDiff) / 4
	max := int64(prevDiff) * 4
	if adjusted < min {
		adjusted = min
	}
	if adjusted > max {
		adjusted = max
	}
	if adjusted < 1 {
		adjusted = 1
	}
	return uint64(adjusted)
}
