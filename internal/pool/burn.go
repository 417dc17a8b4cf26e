// internal/pool/burn.go
package pool

import "CoverPool/internal/fpmath"

// BurnRequest carries a claim payout burn from the cover contract. The
// optional deallocation fields release the claimed cover's capacity in
// the same step.
type BurnRequest struct {
	Amount int64 // coins to burn from active stake

	AllocationID       int64 // 0 when no capacity release accompanies the burn
	DeallocationAmount int64 // coins of committed capacity to release
}

// BurnResult reports the coins actually burned.
type BurnResult struct {
	Burned     int64
	Halted     bool
	Boundaries []BoundaryEvent
}

// BurnStake destroys stake to fund a claim payout. The burn is clamped so
// at least MinActiveStake coins remain; share supplies are untouched, so
// every deposit loses value pro rata through the derived tranche stake. A
// burn that eats the stake down to the floor halts the pool; a burn
// against a pool already at or below the floor burns nothing and does
// not halt.
func (p *Pool) BurnStake(now int64, req BurnRequest) (BurnResult, error) {
	boundaries := p.CatchUp(now, true)

	if req.Amount < 0 {
		return BurnResult{}, errNonPositiveAmount(req.Amount)
	}

	burned := req.Amount
	if maxBurn := p.ActiveStake - MinActiveStake; burned >= maxBurn {
		if maxBurn <= 0 {
			burned = 0
		} else {
			burned = maxBurn
			p.Halted = true
		}
	}
	p.ActiveStake -= burned

	if req.AllocationID != 0 && req.DeallocationAmount > 0 {
		p.burnDeallocate(req.AllocationID, req.DeallocationAmount)
	}

	return BurnResult{Burned: burned, Halted: p.Halted, Boundaries: boundaries}, nil
}

// burnDeallocate releases claimed capacity. Unknown, already-deallocated
// and naturally-expired allocations are silent no-ops here: the claim
// payout must never fail on the capacity side.
func (p *Pool) burnDeallocate(allocationID, amount int64) {
	a := p.allocations[allocationID]
	if a == nil || a.Deallocated {
		return
	}
	if p.FirstActiveBucketID >= a.ExpirationBucketID {
		return
	}
	units := fpmath.CeilDiv(amount, AllocationUnit)
	p.releaseAllocation(a, units)
}
