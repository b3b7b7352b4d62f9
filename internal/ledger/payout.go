package ledger

import "github.com/holiman/uint256"

// BasisPoints is the fee-rate denominator: 10000 bp = 100%.
const BasisPoints = 10000

// DefaultMaxFeeRate caps the platform fee at 10% of the losing pool.
const DefaultMaxFeeRate = 1000

// Fee returns floor(losingPool * rateBPS / 10000).
func Fee(losingPool *uint256.Int, rateBPS uint64) *uint256.Int {
	fee, _ := new(uint256.Int).MulDivOverflow(losingPool, uint256.NewInt(rateBPS), uint256.NewInt(BasisPoints))
	return fee
}

// Payout returns what a winner with the given stake receives: the stake back
// plus its floor share of the losing pool after the fee. The fee is taken once
// from the whole losing pool, so rounding dust stays with the ledger.
// With an empty winning pool the stake is refunded without a fee.
func Payout(stake, winningPool, losingPool *uint256.Int, rateBPS uint64) *uint256.Int {
	if winningPool.IsZero() {
		return stake.Clone()
	}
	net := new(uint256.Int).Sub(losingPool, Fee(losingPool, rateBPS))
	// stake <= winningPool, so the share never exceeds net.
	share, _ := new(uint256.Int).MulDivOverflow(stake, net, winningPool)
	return share.Add(share, stake)
}
