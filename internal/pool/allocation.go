// internal/pool/allocation.go
package pool

import "CoverPool/internal/fpmath"

// Allocation is the durable record of one cover's capacity commitment.
// The reward stream is reversed from this record on deallocation, never
// recomputed from price state.
type Allocation struct {
	ID                 int64
	ProductID          int64
	FirstTrancheID     int64
	Units              [MaxActiveTranches]int64 // per tranche offset from FirstTrancheID
	ExpirationBucketID int64
	RewardPerSecond    int64
	StreamEnd          int64
	CoverStart         int64
	CoverEnd           int64
	Deallocated        bool
}

// AllocationRequest carries one cover buy from the cover contract.
type AllocationRequest struct {
	ProductID              int64
	Amount                 int64 // coins, rounded up to units exactly once
	Period                 int64 // seconds of cover
	RewardsRatio           int64 // of premium, out of RewardsDenominator
	CapacityRatio          int64 // global, out of CapacityDenominator
	CapacityReductionRatio int64 // out of CapacityReductionDenominator
}

// AllocationResult reports a committed allocation. RewardsMinted is
// exactly RewardPerSecond times the stream length, so the stream drains
// to zero with no dust.
type AllocationResult struct {
	AllocationID  int64
	Premium       int64
	RewardsMinted int64
	Boundaries    []BoundaryEvent
}

// RequestAllocation fills a cover buy greedily from the oldest active
// tranche forward. Either the whole amount fits and every counter is
// committed, or nothing is and ErrInsufficientCapacity is returned.
func (p *Pool) RequestAllocation(now int64, req AllocationRequest) (AllocationResult, error) {
	boundaries := p.CatchUp(now, true)

	prod := p.products[req.ProductID]
	if prod == nil {
		return AllocationResult{}, errUnknownProduct(req.ProductID)
	}
	if req.Amount <= 0 {
		return AllocationResult{}, errNonPositiveAmount(req.Amount)
	}
	if req.Period <= 0 {
		return AllocationResult{}, errNonPositivePeriod(req.Period)
	}

	amountUnits := fpmath.CeilDiv(req.Amount, AllocationUnit)
	first := p.FirstActiveTrancheID

	// Cover must stay claimable through its grace period, so it can only
	// draw on tranches that outlive coverEnd + grace.
	coverEnd := now + req.Period
	firstUsable := TrancheAt(coverEnd + GracePeriod)
	if firstUsable < first {
		firstUsable = first
	}

	var capacity [MaxActiveTranches]int64
	var total int64
	for i := int64(0); i < MaxActiveTranches; i++ {
		trancheID := first + i
		if trancheID < firstUsable {
			continue
		}
		capacity[i] = capacityUnits(
			p.TrancheStake(trancheID), prod.Weight,
			req.CapacityRatio, req.CapacityReductionRatio,
		)
		total += capacity[i]
	}

	active := p.ActiveAllocationUnits(req.ProductID, first)

	var fills [MaxActiveTranches]int64
	remaining := amountUnits
	for i := int64(0); i < MaxActiveTranches && remaining > 0; i++ {
		free := capacity[i] - active[i]
		if free <= 0 {
			continue
		}
		take := fpmath.Min(free, remaining)
		fills[i] = take
		remaining -= take
	}
	if remaining > 0 {
		return AllocationResult{Boundaries: boundaries}, ErrInsufficientCapacity
	}

	price := prod.BasePrice(now)
	premium := premiumFor(price, amountUnits, req.Period)
	prod.bump(now, amountUnits, total)

	expirationBucket := fpmath.CeilDiv(coverEnd, BucketDuration)
	streamEnd := expirationBucket * BucketDuration

	rewards := fpmath.MulDiv(premium, req.RewardsRatio, RewardsDenominator, fpmath.RoundDown)
	streamSeconds := streamEnd - now
	rps := rewards / streamSeconds
	minted := rps * streamSeconds

	id := p.NextAllocationID
	p.NextAllocationID++

	for i := int64(0); i < MaxActiveTranches; i++ {
		if fills[i] == 0 {
			continue
		}
		trancheID := first + i
		groupID := GroupOf(trancheID)
		p.group(req.ProductID, groupID).AddSlot(trancheID, fills[i])
		p.expiringGroup(req.ProductID, expirationBucket, groupID).AddSlot(trancheID, fills[i])
	}

	p.RewardPerSecond += rps
	p.bucketCuts[expirationBucket] += rps

	p.allocations[id] = &Allocation{
		ID:                 id,
		ProductID:          req.ProductID,
		FirstTrancheID:     first,
		Units:              fills,
		ExpirationBucketID: expirationBucket,
		RewardPerSecond:    rps,
		StreamEnd:          streamEnd,
		CoverStart:         now,
		CoverEnd:           coverEnd,
	}

	return AllocationResult{
		AllocationID:  id,
		Premium:       premium,
		RewardsMinted: minted,
		Boundaries:    boundaries,
	}, nil
}

// DeallocationResult reports the reversed remainder of a reward stream.
type DeallocationResult struct {
	RewardsReverted int64
	Boundaries      []BoundaryEvent
}

// RequestDeallocation releases an allocation's remaining capacity and
// reverses the unstreamed part of its rewards. Deallocating a cover that
// has already expired naturally is a recorded no-op; deallocating twice
// is an error.
func (p *Pool) RequestDeallocation(now int64, allocationID int64) (DeallocationResult, error) {
	boundaries := p.CatchUp(now, true)

	a := p.allocations[allocationID]
	if a == nil {
		return DeallocationResult{Boundaries: boundaries}, errUnknownAllocation(allocationID)
	}
	if a.Deallocated {
		return DeallocationResult{Boundaries: boundaries}, ErrAlreadyDeallocated
	}
	a.Deallocated = true

	if p.FirstActiveBucketID >= a.ExpirationBucketID {
		// Expired naturally: counters already settled, stream already cut.
		return DeallocationResult{Boundaries: boundaries}, nil
	}

	p.releaseAllocation(a, a.totalUnits())

	var reverted int64
	if now < a.StreamEnd {
		reverted = a.RewardPerSecond * (a.StreamEnd - now)
	}
	p.RewardPerSecond -= a.RewardPerSecond
	if p.RewardPerSecond < 0 {
		p.RewardPerSecond = 0
	}
	p.bucketCuts[a.ExpirationBucketID] -= a.RewardPerSecond
	if p.bucketCuts[a.ExpirationBucketID] <= 0 {
		delete(p.bucketCuts, a.ExpirationBucketID)
	}
	a.RewardPerSecond = 0

	return DeallocationResult{RewardsReverted: reverted, Boundaries: boundaries}, nil
}

func (a *Allocation) totalUnits() int64 {
	var sum int64
	for _, u := range a.Units {
		sum += u
	}
	return sum
}

// releaseAllocation removes up to units of the allocation's committed
// capacity, oldest tranche first, skipping tranches that already expired.
func (p *Pool) releaseAllocation(a *Allocation, units int64) {
	for i := int64(0); i < MaxActiveTranches && units > 0; i++ {
		trancheID := a.FirstTrancheID + i
		if a.Units[i] == 0 || trancheID < p.FirstActiveTrancheID {
			continue
		}
		take := fpmath.Min(a.Units[i], units)
		groupID := GroupOf(trancheID)
		g := p.group(a.ProductID, groupID)
		p.settleGroup(a.ProductID, groupID, g)
		g.SubSlot(trancheID, take)
		p.expiringGroup(a.ProductID, a.ExpirationBucketID, groupID).SubSlot(trancheID, take)
		a.Units[i] -= take
		units -= take
	}
}
