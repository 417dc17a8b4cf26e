// internal/pool/shares.go
package pool

import (
	"github.com/google/uuid"

	"CoverPool/internal/fpmath"
)

// Deposit is one position's stake in one tranche. PendingRewards
// accumulates checkpointed but unwithdrawn rewards.
type Deposit struct {
	StakeShares           int64
	RewardsShares         int64
	LastAccRewardPerShare int64
	PendingRewards        int64
}

// DepositResult reports the shares minted by a deposit.
type DepositResult struct {
	StakeShares   int64
	RewardsShares int64
	FeeShares     int64
}

// DepositStake stakes amount coins into trancheID for position. The first
// deposit into an empty pool mints sqrt(amount) shares; later deposits
// mint pro rata against active stake. Manager fee shares are minted on
// top so that the manager's cut of future rewards equals Fee percent.
func (p *Pool) DepositStake(now int64, position uuid.UUID, trancheID, amount int64) (DepositResult, error) {
	p.CatchUp(now, true)

	if p.Halted {
		return DepositResult{}, ErrPoolHalted
	}
	if amount <= 0 {
		return DepositResult{}, errNonPositiveAmount(amount)
	}
	first := p.FirstActiveTrancheID
	last := MaxDepositTranche(now)
	if trancheID < first || trancheID > last {
		return DepositResult{}, errTrancheOutOfWindow(trancheID, first, last)
	}

	var stakeShares int64
	if p.StakeSharesSupply == 0 {
		stakeShares = fpmath.Sqrt(amount)
	} else {
		stakeShares = fpmath.MulDiv(amount, p.StakeSharesSupply, p.ActiveStake, fpmath.RoundDown)
	}
	if stakeShares <= 0 {
		return DepositResult{}, errNonPositiveAmount(amount)
	}

	rewardsShares := stakeShares
	var feeShares int64
	if p.Fee > 0 {
		feeShares = fpmath.MulDiv(rewardsShares, p.Fee, FeeDenominator-p.Fee, fpmath.RoundDown)
	}

	d := p.depositFor(position, trancheID)
	p.checkpoint(d)
	d.StakeShares += stakeShares
	d.RewardsShares += rewardsShares

	if feeShares > 0 {
		md := p.depositFor(p.ManagerPosition, trancheID)
		p.checkpoint(md)
		md.RewardsShares += feeShares
	}

	t := p.tranche(trancheID)
	t.StakeShares += stakeShares
	t.RewardsShares += rewardsShares + feeShares

	p.ActiveStake += amount
	p.StakeSharesSupply += stakeShares
	p.RewardsSharesSupply += rewardsShares + feeShares

	return DepositResult{
		StakeShares:   stakeShares,
		RewardsShares: rewardsShares,
		FeeShares:     feeShares,
	}, nil
}

// ExtendDeposit moves a position's stake from one active tranche to a
// later one, optionally topping up with fresh coins. An expired source
// tranche cannot be extended; its stake is settled via Withdraw.
func (p *Pool) ExtendDeposit(now int64, position uuid.UUID, fromTrancheID, toTrancheID, topUp int64) (DepositResult, error) {
	p.CatchUp(now, true)

	if p.Halted {
		return DepositResult{}, ErrPoolHalted
	}
	if fromTrancheID < p.FirstActiveTrancheID {
		return DepositResult{}, errExpiredSourceTranche(fromTrancheID)
	}
	if toTrancheID <= fromTrancheID {
		return DepositResult{}, errTrancheOrder(fromTrancheID, toTrancheID)
	}
	last := MaxDepositTranche(now)
	if toTrancheID > last {
		return DepositResult{}, errTrancheOutOfWindow(toTrancheID, p.FirstActiveTrancheID, last)
	}

	src := p.deposits[DepositKey{Position: position, TrancheID: fromTrancheID}]
	if src != nil && (src.StakeShares > 0 || src.RewardsShares > 0) {
		dst := p.depositFor(position, toTrancheID)
		p.checkpoint(src)
		p.checkpoint(dst)

		from := p.tranche(fromTrancheID)
		to := p.tranche(toTrancheID)
		from.StakeShares -= src.StakeShares
		from.RewardsShares -= src.RewardsShares
		to.StakeShares += src.StakeShares
		to.RewardsShares += src.RewardsShares

		dst.StakeShares += src.StakeShares
		dst.RewardsShares += src.RewardsShares
		dst.PendingRewards += src.PendingRewards
		src.StakeShares = 0
		src.RewardsShares = 0
		src.PendingRewards = 0
	}

	if topUp > 0 {
		return p.DepositStake(now, position, toTrancheID, topUp)
	}
	return DepositResult{}, nil
}

// checkpoint settles a deposit's reward entitlement against the live
// accumulator. Must run before any change to the deposit's reward shares.
func (p *Pool) checkpoint(d *Deposit) {
	if d.RewardsShares > 0 {
		d.PendingRewards += fpmath.MulDiv(
			d.RewardsShares, p.AccRewardPerShare-d.LastAccRewardPerShare,
			fpmath.AccScale, fpmath.RoundDown,
		)
	}
	d.LastAccRewardPerShare = p.AccRewardPerShare
}
