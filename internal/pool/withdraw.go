// internal/pool/withdraw.go
package pool

import (
	"github.com/google/uuid"

	"CoverPool/internal/fpmath"
)

// WithdrawResult reports the coins released by a withdrawal. Funds are
// always paid to the position's current owner regardless of who submitted
// the request.
type WithdrawResult struct {
	Stake   int64
	Rewards int64
}

// Withdraw settles a position across the given tranches. Stake only
// leaves expired tranches; requesting stake from a still-active tranche
// is a no-op for that tranche, not an error. Rewards can be collected
// from active and expired tranches alike. Withdrawals work on a halted
// pool: exit is never blocked by a burn.
func (p *Pool) Withdraw(now int64, position uuid.UUID, withdrawStake, withdrawRewards bool, trancheIDs []int64) (WithdrawResult, error) {
	p.CatchUp(now, true)

	if withdrawStake && position == p.ManagerPosition && p.ManagerLocked {
		return WithdrawResult{}, ErrGovernanceLockActive
	}

	var res WithdrawResult
	for _, trancheID := range trancheIDs {
		d := p.deposits[DepositKey{Position: position, TrancheID: trancheID}]
		if d == nil {
			continue
		}

		if trancheID >= p.FirstActiveTrancheID {
			// Active tranche: rewards checkpoint only.
			if withdrawRewards {
				p.checkpoint(d)
				res.Rewards += d.PendingRewards
				d.PendingRewards = 0
			}
			continue
		}

		snap := p.expired[trancheID]
		if snap == nil {
			continue
		}
		if withdrawRewards {
			if d.RewardsShares > 0 {
				d.PendingRewards += fpmath.MulDiv(
					d.RewardsShares, snap.AccAtExpiry-d.LastAccRewardPerShare,
					fpmath.AccScale, fpmath.RoundDown,
				)
				d.LastAccRewardPerShare = snap.AccAtExpiry
			}
			res.Rewards += d.PendingRewards
			d.PendingRewards = 0
		}
		if withdrawStake && d.StakeShares > 0 {
			if snap.ShareSupplyAtExpiry > 0 {
				res.Stake += fpmath.MulDiv(
					snap.StakeAtExpiry, d.StakeShares,
					snap.ShareSupplyAtExpiry, fpmath.RoundDown,
				)
			}
			d.StakeShares = 0
		}
	}
	return res, nil
}
