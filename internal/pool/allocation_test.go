package pool_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/pool"
)

const coverPeriod = 30 * pool.DaySeconds

// newCoveredPool stakes 10^10 coins into tranche 107 and registers
// product 1 with a 200bp initial price decaying toward 100bp.
func newCoveredPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := newTestPool(0)
	if _, err := p.DepositStake(t0, uuid.New(), 107, 10_000_000_000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := p.SetProduct(t0, pool.ProductParams{
		ProductID:    1,
		Weight:       100,
		TargetPrice:  100,
		InitialPrice: 200,
	}); err != nil {
		t.Fatalf("SetProduct: %v", err)
	}
	return p
}

func allocationRequest(units int64) pool.AllocationRequest {
	return pool.AllocationRequest{
		ProductID:     1,
		Amount:        units * pool.AllocationUnit,
		Period:        coverPeriod,
		RewardsRatio:  5_000,
		CapacityRatio: 10_000,
	}
}

func TestRequestAllocation_PremiumAndStream(t *testing.T) {
	p := newCoveredPool(t)

	res, err := p.RequestAllocation(t0, allocationRequest(8_000))
	if err != nil {
		t.Fatalf("RequestAllocation: %v", err)
	}
	if res.AllocationID != 1 {
		t.Errorf("AllocationID = %d, want 1", res.AllocationID)
	}
	// 8e9 coins at 200bp/year for 30 days
	if res.Premium != 13_150_684 {
		t.Errorf("Premium = %d, want 13150684", res.Premium)
	}

	a := p.Allocation(1)
	if a == nil {
		t.Fatal("allocation record missing")
	}
	// coverEnd lands inside bucket 326, so the stream runs to the start
	// of bucket 327.
	if a.ExpirationBucketID != 327 {
		t.Errorf("ExpirationBucketID = %d, want 327", a.ExpirationBucketID)
	}
	if a.StreamEnd != 327*pool.BucketDuration {
		t.Errorf("StreamEnd = %d, want %d", a.StreamEnd, 327*pool.BucketDuration)
	}

	// Minted rewards are exactly rate times stream length: the stream
	// drains to zero with no dust.
	streamSeconds := a.StreamEnd - t0
	if p.RewardPerSecond != 1 {
		t.Errorf("RewardPerSecond = %d, want 1", p.RewardPerSecond)
	}
	if res.RewardsMinted != p.RewardPerSecond*streamSeconds {
		t.Errorf("RewardsMinted = %d, want %d", res.RewardsMinted, p.RewardPerSecond*streamSeconds)
	}

	units := p.ActiveAllocationUnits(1, 100)
	if units[7] != 8_000 {
		t.Errorf("active units = %v, want 8000 in tranche 107", units)
	}
}

func TestRequestAllocation_InsufficientCapacityIsAtomic(t *testing.T) {
	p := newCoveredPool(t)

	_, err := p.RequestAllocation(t0, allocationRequest(20_000))
	if !errors.Is(err, pool.ErrInsufficientCapacity) {
		t.Fatalf("err = %v, want ErrInsufficientCapacity", err)
	}

	// The failed request leaves no trace.
	if p.NextAllocationID != 1 {
		t.Errorf("NextAllocationID = %d, want 1", p.NextAllocationID)
	}
	if p.RewardPerSecond != 0 {
		t.Errorf("RewardPerSecond = %d, want 0", p.RewardPerSecond)
	}
	if prod := p.Product(1); prod.BumpedPrice != 200 {
		t.Errorf("BumpedPrice = %d, want 200 (no bump)", prod.BumpedPrice)
	}
	for i, u := range p.ActiveAllocationUnits(1, 100) {
		if u != 0 {
			t.Errorf("units[%d] = %d, want 0", i, u)
		}
	}
}

func TestRequestAllocation_GreedyOldestFirst(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()
	if _, err := p.DepositStake(t0, staker, 106, 5_000_000_000); err != nil {
		t.Fatal(err)
	}
	if _, err := p.DepositStake(t0, staker, 107, 5_000_000_000); err != nil {
		t.Fatal(err)
	}
	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 100, TargetPrice: 100, InitialPrice: 200}); err != nil {
		t.Fatal(err)
	}

	if _, err := p.RequestAllocation(t0, allocationRequest(8_000)); err != nil {
		t.Fatalf("RequestAllocation: %v", err)
	}

	// Each tranche offers 5000 units; the older one fills first.
	units := p.ActiveAllocationUnits(1, 100)
	if units[6] != 5_000 || units[7] != 3_000 {
		t.Errorf("active units = %v, want 5000/3000 split across tranches 106/107", units)
	}
}

func TestRequestAllocation_GracePeriodExcludesExpiringTranches(t *testing.T) {
	p := newTestPool(0)
	if _, err := p.DepositStake(t0, uuid.New(), 100, 10_000_000_000); err != nil {
		t.Fatal(err)
	}
	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 100, TargetPrice: 100, InitialPrice: 200}); err != nil {
		t.Fatal(err)
	}

	// 60 days of cover plus the grace period outlives tranche 100, the
	// only tranche with stake.
	long := allocationRequest(1_000)
	long.Period = 60 * pool.DaySeconds
	if _, err := p.RequestAllocation(t0, long); !errors.Is(err, pool.ErrInsufficientCapacity) {
		t.Errorf("err = %v, want ErrInsufficientCapacity", err)
	}

	// 30 days still fits inside tranche 100's lifetime plus grace.
	if _, err := p.RequestAllocation(t0, allocationRequest(1_000)); err != nil {
		t.Errorf("short cover: %v", err)
	}
}

func TestRequestAllocation_Validation(t *testing.T) {
	p := newCoveredPool(t)

	req := allocationRequest(10)
	req.ProductID = 42
	if _, err := p.RequestAllocation(t0, req); err == nil {
		t.Error("expected error for unknown product")
	}

	req = allocationRequest(10)
	req.Amount = 0
	if _, err := p.RequestAllocation(t0, req); err == nil {
		t.Error("expected error for zero amount")
	}

	req = allocationRequest(10)
	req.Period = 0
	if _, err := p.RequestAllocation(t0, req); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestRequestDeallocation_RevertsUnstreamedRemainder(t *testing.T) {
	p := newCoveredPool(t)

	res, err := p.RequestAllocation(t0, allocationRequest(8_000))
	if err != nil {
		t.Fatal(err)
	}

	now := t0 + 1_000
	dres, err := p.RequestDeallocation(now, res.AllocationID)
	if err != nil {
		t.Fatalf("RequestDeallocation: %v", err)
	}

	streamEnd := int64(327 * pool.BucketDuration)
	if want := 1 * (streamEnd - now); dres.RewardsReverted != want {
		t.Errorf("RewardsReverted = %d, want %d", dres.RewardsReverted, want)
	}
	if p.RewardPerSecond != 0 {
		t.Errorf("RewardPerSecond = %d, want 0", p.RewardPerSecond)
	}
	for i, u := range p.ActiveAllocationUnits(1, 100) {
		if u != 0 {
			t.Errorf("units[%d] = %d, want 0 after release", i, u)
		}
	}

	if _, err := p.RequestDeallocation(now+1, res.AllocationID); !errors.Is(err, pool.ErrAlreadyDeallocated) {
		t.Errorf("second deallocation: %v, want ErrAlreadyDeallocated", err)
	}
}

func TestRequestDeallocation_AfterNaturalExpiryIsNoop(t *testing.T) {
	p := newCoveredPool(t)

	res, err := p.RequestAllocation(t0, allocationRequest(8_000))
	if err != nil {
		t.Fatal(err)
	}

	// Past the stream end the clock has already cut the stream and the
	// expiring counters settle out on the next read.
	now := int64(327*pool.BucketDuration) + 10
	dres, err := p.RequestDeallocation(now, res.AllocationID)
	if err != nil {
		t.Fatalf("late deallocation: %v", err)
	}
	if dres.RewardsReverted != 0 {
		t.Errorf("RewardsReverted = %d, want 0", dres.RewardsReverted)
	}
	if p.RewardPerSecond != 0 {
		t.Errorf("RewardPerSecond = %d, want 0 after bucket cut", p.RewardPerSecond)
	}
	for i, u := range p.ActiveAllocationUnits(1, 100) {
		if u != 0 {
			t.Errorf("units[%d] = %d, want 0 after expiry", i, u)
		}
	}

	if _, err := p.RequestDeallocation(now+1, res.AllocationID); !errors.Is(err, pool.ErrAlreadyDeallocated) {
		t.Errorf("second deallocation: %v, want ErrAlreadyDeallocated", err)
	}
}

func TestBurnStake_WithCapacityRelease(t *testing.T) {
	p := newCoveredPool(t)

	res, err := p.RequestAllocation(t0, allocationRequest(8_000))
	if err != nil {
		t.Fatal(err)
	}

	bres, err := p.BurnStake(t0+10, pool.BurnRequest{
		Amount:             1_000_000,
		AllocationID:       res.AllocationID,
		DeallocationAmount: 3_000 * pool.AllocationUnit,
	})
	if err != nil {
		t.Fatalf("BurnStake: %v", err)
	}
	if bres.Burned != 1_000_000 || bres.Halted {
		t.Errorf("burn result = %+v", bres)
	}

	units := p.ActiveAllocationUnits(1, 100)
	if units[7] != 5_000 {
		t.Errorf("active units = %v, want 5000 remaining in tranche 107", units)
	}

	// Unknown allocations must not fail the payout side.
	if _, err := p.BurnStake(t0+11, pool.BurnRequest{Amount: 1, AllocationID: 999, DeallocationAmount: 1}); err != nil {
		t.Errorf("burn with unknown allocation: %v", err)
	}
}

func TestRewardAccrual_StreamsToStakers(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()
	if _, err := p.DepositStake(t0, staker, 107, 10_000_000_000); err != nil {
		t.Fatal(err)
	}
	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 100, TargetPrice: 100, InitialPrice: 200}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RequestAllocation(t0, allocationRequest(8_000)); err != nil {
		t.Fatal(err)
	}

	// Sole staker collects the entire stream: 1 coin/sec for 10^6 secs.
	res, err := p.Withdraw(t0+1_000_000, staker, false, true, []int64{107})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Rewards != 1_000_000 {
		t.Errorf("Rewards = %d, want 1000000", res.Rewards)
	}
	if res.Stake != 0 {
		t.Errorf("Stake = %d, want 0", res.Stake)
	}
}

func TestBasePrice_DecayAndBump(t *testing.T) {
	p := newCoveredPool(t)
	prod := p.Product(1)

	if got := prod.BasePrice(t0); got != 200 {
		t.Errorf("BasePrice(t0) = %d, want 200", got)
	}
	if got := prod.BasePrice(t0 + pool.DaySeconds); got != 150 {
		t.Errorf("BasePrice(+1d) = %d, want 150", got)
	}
	// Decay floors at the target price.
	if got := prod.BasePrice(t0 + 10*pool.DaySeconds); got != 100 {
		t.Errorf("BasePrice(+10d) = %d, want 100", got)
	}

	// Consuming 80% of 10000 units of capacity bumps by 1600bp.
	if _, err := p.RequestAllocation(t0, allocationRequest(8_000)); err != nil {
		t.Fatal(err)
	}
	if prod.BumpedPrice != 1_800 {
		t.Errorf("BumpedPrice = %d, want 1800", prod.BumpedPrice)
	}
	if got := prod.BasePrice(t0 + 4*pool.DaySeconds); got != 1_600 {
		t.Errorf("BasePrice(+4d) = %d, want 1600", got)
	}
}

func TestFixedPriceProduct(t *testing.T) {
	p := newTestPool(0)
	if _, err := p.DepositStake(t0, uuid.New(), 107, 10_000_000_000); err != nil {
		t.Fatal(err)
	}
	if err := p.SetProduct(t0, pool.ProductParams{
		ProductID:   2,
		Weight:      100,
		TargetPrice: 150,
		FixedPrice:  true,
	}); err != nil {
		t.Fatal(err)
	}
	prod := p.Product(2)

	req := allocationRequest(8_000)
	req.ProductID = 2
	if _, err := p.RequestAllocation(t0, req); err != nil {
		t.Fatal(err)
	}

	// No decay, no bump: the price is pinned to the target.
	if got := prod.BasePrice(t0 + 30*pool.DaySeconds); got != 150 {
		t.Errorf("BasePrice = %d, want fixed 150", got)
	}
}

func TestSetProduct_Validation(t *testing.T) {
	p := newTestPool(0)

	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 101, TargetPrice: 100}); err == nil {
		t.Error("expected error for weight above denominator")
	}
	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 100, TargetPrice: 10_001}); err == nil {
		t.Error("expected error for price above denominator")
	}

	// InitialPrice below target is raised to the target.
	if err := p.SetProduct(t0, pool.ProductParams{ProductID: 1, Weight: 100, TargetPrice: 300, InitialPrice: 50}); err != nil {
		t.Fatal(err)
	}
	if got := p.Product(1).BasePrice(t0); got != 300 {
		t.Errorf("BasePrice = %d, want 300", got)
	}
}
