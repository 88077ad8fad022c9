// Package wallet implements the wallet ledger (spec component 4.C): applying transactions
// and mining rewards to a wallet map, and filtering a tx sequence down to the longest
// prefix that applies cleanly.
package wallet

import "github.com/weavecore/arnode/internal/chain"

// ApplyTx debits the owner and credits the target for a value transfer, or debits only the
// reward for an archival tx. It always stamps the owner's last_tx. If the debit would
// underflow the owner's balance, wallets is returned unchanged and ok is false.
func ApplyTx(wallets chain.WalletList, tx *chain.Tx) (chain.WalletList, bool) {
	owner := wallets[tx.OwnerAddr]

	var debit uint64
	if !tx.IsArchival() {
		debit = tx.Quantity + tx.Reward
	} else {
		debit = tx.Reward
	}

	if owner.Balance < debit {
		return wallets, false
	}

	out := wallets.Clone()
	owner.Balance -= debit
	owner.LastTx = tx.ID
	out[tx.OwnerAddr] = owner

	if !tx.IsArchival() && tx.Quantity > 0 {
		target := out[tx.Target]
		target.Balance += tx.Quantity
		out[tx.Target] = target
	}

	return out, true
}

// ApplyTxs folds ApplyTx over txs in order. The first invalid tx aborts the fold and
// ApplyTxs returns false; the caller is expected to recover via FilterOutOfOrder.
func ApplyTxs(wallets chain.WalletList, txs []*chain.Tx) (chain.WalletList, bool) {
	cur := wallets
	for _, tx := range txs {
		next, ok := ApplyTx(cur, tx)
		if !ok {
			return wallets, false
		}
		cur = next
	}
	return cur, true
}

// FilterOutOfOrder returns the longest prefix-closed subsequence of txs for which each
// successive ApplyTx succeeds against the running wallet state, skipping (not reinserting)
// any tx that fails application at its position. It is idempotent: running it again over
// its own output reproduces that output unchanged, since every surviving tx already applies
// cleanly against the running state.
func FilterOutOfOrder(wallets chain.WalletList, txs []*chain.Tx) []*chain.Tx {
	cur := wallets
	out := make([]*chain.Tx, 0, len(txs))
	for _, tx := range txs {
		next, ok := ApplyTx(cur, tx)
		if !ok {
			continue
		}
		cur = next
		out = append(out, tx)
	}
	return out
}

// ApplyMiningReward credits amount to addr, unless addr is the Unclaimed sentinel.
func ApplyMiningReward(wallets chain.WalletList, addr chain.Address, amount uint64) chain.WalletList {
	if addr == chain.UnclaimedAddr {
		return wallets
	}
	out := wallets.Clone()
	entry := out[addr]
	entry.Balance += amount
	out[addr] = entry
	return out
}
