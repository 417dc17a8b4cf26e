// internal/pool/tranche.go
package pool

import "CoverPool/internal/fpmath"

// Tranche carries the share totals of one active 91-day stake window.
type Tranche struct {
	StakeShares   int64
	RewardsShares int64
}

// ExpiredTranche freezes the values needed to settle withdrawals from a
// tranche after it has left the active window. Stake and rewards for an
// expired deposit are pro-rated against these snapshots, never against
// live pool state.
type ExpiredTranche struct {
	AccAtExpiry         int64 // AccRewardPerShare at the boundary
	StakeAtExpiry       int64 // coins backing the tranche at the boundary
	ShareSupplyAtExpiry int64 // global stake-share supply at the boundary
}

func (p *Pool) tranche(id int64) *Tranche {
	t := p.tranches[id]
	if t == nil {
		t = &Tranche{}
		p.tranches[id] = t
	}
	return t
}

// TrancheStake derives the coins backing an active tranche from its share
// of the global supply. Deriving instead of storing keeps every tranche's
// stake consistent after proportional burns.
func (p *Pool) TrancheStake(id int64) int64 {
	t := p.tranches[id]
	if t == nil || p.StakeSharesSupply == 0 {
		return 0
	}
	return fpmath.MulDiv(p.ActiveStake, t.StakeShares, p.StakeSharesSupply, fpmath.RoundDown)
}

// MaxDepositTranche returns the last tranche accepting deposits at ts.
func MaxDepositTranche(ts int64) int64 {
	return TrancheAt(ts) + MaxActiveTranches - 1
}
