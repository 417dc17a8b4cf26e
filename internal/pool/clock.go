// internal/pool/clock.go
package pool

import "CoverPool/internal/fpmath"

// BoundaryKind distinguishes the two clock boundaries.
type BoundaryKind int

const (
	BoundaryBucketExpired BoundaryKind = iota
	BoundaryTrancheExpired
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryBucketExpired:
		return "BUCKET_EXPIRED"
	case BoundaryTrancheExpired:
		return "TRANCHE_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// BoundaryEvent records one bucket or tranche boundary the clock crossed.
type BoundaryEvent struct {
	Kind BoundaryKind
	ID   int64 // the bucket or tranche that just ended
	At   int64 // the boundary timestamp
}

// CatchUp advances the pool clock from its frontier toward now, accruing
// rewards and processing bucket and tranche boundaries strictly in
// timestamp order. A boundary falling exactly on now is processed.
//
// With forceToNow the clock runs all the way to now; every state-mutating
// operation calls this form before touching the pool. Without it at most
// one boundary is crossed, which keeps the periodic sweep's work per call
// bounded; the sweeper simply calls again until nothing is left.
func (p *Pool) CatchUp(now int64, forceToNow bool) []BoundaryEvent {
	var crossed []BoundaryEvent
	for {
		bucketEnd := BucketEnd(p.FirstActiveBucketID)
		trancheEnd := TrancheEnd(p.FirstActiveTrancheID)

		next := now
		if bucketEnd < next {
			next = bucketEnd
		}
		if trancheEnd < next {
			next = trancheEnd
		}

		p.accrue(next)

		boundary := false
		if next == bucketEnd {
			crossed = append(crossed, p.expireBucket(next))
			boundary = true
		}
		if next == trancheEnd {
			crossed = append(crossed, p.expireTranche(next))
			boundary = true
		}
		if !boundary {
			return crossed
		}
		if !forceToNow {
			return crossed
		}
	}
}

// accrue advances the reward accumulator to ts. With no reward shares
// outstanding the elapsed stream is simply not distributed.
func (p *Pool) accrue(ts int64) {
	if ts <= p.LastAccUpdate {
		return
	}
	if p.RewardsSharesSupply > 0 && p.RewardPerSecond > 0 {
		p.AccRewardPerShare += fpmath.MulDiv3(
			p.RewardPerSecond, ts-p.LastAccUpdate, fpmath.AccScale,
			p.RewardsSharesSupply, fpmath.RoundDown,
		)
	}
	p.LastAccUpdate = ts
}

// expireBucket enters the next bucket and retires the reward streams of
// every cover whose expiration bucket it is. The cut is keyed by the
// bucket being entered: a cover expiring in bucket B streams through the
// whole of B-1 and stops at B's start.
func (p *Pool) expireBucket(at int64) BoundaryEvent {
	ended := p.FirstActiveBucketID
	p.FirstActiveBucketID++

	if cut, ok := p.bucketCuts[p.FirstActiveBucketID]; ok {
		p.RewardPerSecond -= cut
		if p.RewardPerSecond < 0 {
			p.RewardPerSecond = 0
		}
		delete(p.bucketCuts, p.FirstActiveBucketID)
	}
	return BoundaryEvent{Kind: BoundaryBucketExpired, ID: ended, At: at}
}

// expireTranche retires the oldest active tranche: snapshot first, then
// strip its stake and shares from the live totals.
func (p *Pool) expireTranche(at int64) BoundaryEvent {
	id := p.FirstActiveTrancheID
	t := p.tranches[id]

	stakeAtExpiry := p.TrancheStake(id)
	p.expired[id] = &ExpiredTranche{
		AccAtExpiry:         p.AccRewardPerShare,
		StakeAtExpiry:       stakeAtExpiry,
		ShareSupplyAtExpiry: p.StakeSharesSupply,
	}

	if t != nil {
		p.ActiveStake -= stakeAtExpiry
		p.StakeSharesSupply -= t.StakeShares
		p.RewardsSharesSupply -= t.RewardsShares
		delete(p.tranches, id)
	}
	p.FirstActiveTrancheID++
	return BoundaryEvent{Kind: BoundaryTrancheExpired, ID: id, At: at}
}
