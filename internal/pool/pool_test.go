package pool_test

import (
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/pool"
)

// t0 sits exactly on the start of tranche 100, which is also the start
// of bucket 325 (9100 days is a whole number of 28-day buckets).
const t0 = 100 * pool.TrancheDuration

var managerPosition = uuid.MustParse("00000000-0000-0000-0000-00000000f00d")

func newTestPool(fee int64) *pool.Pool {
	return pool.NewPool(t0, managerPosition, fee, pool.MaxFeeCeiling)
}

func TestNewPool_Frontier(t *testing.T) {
	p := newTestPool(0)
	if p.FirstActiveTrancheID != 100 {
		t.Errorf("FirstActiveTrancheID = %d, want 100", p.FirstActiveTrancheID)
	}
	if p.FirstActiveBucketID != 325 {
		t.Errorf("FirstActiveBucketID = %d, want 325", p.FirstActiveBucketID)
	}
	if p.NextAllocationID != 1 {
		t.Errorf("NextAllocationID = %d, want 1", p.NextAllocationID)
	}
}

func TestNewPool_FeeClamped(t *testing.T) {
	p := pool.NewPool(t0, managerPosition, 80, 0)
	if p.MaxFee != pool.MaxFeeCeiling {
		t.Errorf("MaxFee = %d, want ceiling %d", p.MaxFee, pool.MaxFeeCeiling)
	}
	if p.Fee != pool.MaxFeeCeiling {
		t.Errorf("Fee = %d, want clamped to %d", p.Fee, pool.MaxFeeCeiling)
	}
}

func TestSetFee_Range(t *testing.T) {
	p := newTestPool(0)
	if err := p.SetFee(t0, 20); err != nil {
		t.Fatalf("SetFee(20): %v", err)
	}
	if p.Fee != 20 {
		t.Errorf("Fee = %d, want 20", p.Fee)
	}
	if err := p.SetFee(t0, p.MaxFee+1); err == nil {
		t.Error("expected error for fee above MaxFee")
	}
	if err := p.SetFee(t0, -1); err == nil {
		t.Error("expected error for negative fee")
	}
}

func TestCatchUp_SingleStepPerSweep(t *testing.T) {
	p := newTestPool(0)
	now := t0 + 60*pool.DaySeconds // two bucket boundaries behind

	crossed := p.CatchUp(now, false)
	if len(crossed) != 1 {
		t.Fatalf("expected 1 boundary, got %d", len(crossed))
	}
	if crossed[0].Kind != pool.BoundaryBucketExpired || crossed[0].ID != 325 {
		t.Errorf("boundary = %+v, want bucket 325", crossed[0])
	}
	if p.FirstActiveBucketID != 326 {
		t.Errorf("FirstActiveBucketID = %d, want 326", p.FirstActiveBucketID)
	}

	crossed = p.CatchUp(now, false)
	if len(crossed) != 1 || crossed[0].ID != 326 {
		t.Fatalf("second sweep: got %+v, want bucket 326", crossed)
	}

	crossed = p.CatchUp(now, false)
	if len(crossed) != 0 {
		t.Errorf("third sweep crossed %d boundaries, want 0", len(crossed))
	}
	if p.LastAccUpdate != now {
		t.Errorf("LastAccUpdate = %d, want %d", p.LastAccUpdate, now)
	}
}

func TestCatchUp_ForceProcessesAll(t *testing.T) {
	p := newTestPool(0)
	now := t0 + 60*pool.DaySeconds

	crossed := p.CatchUp(now, true)
	if len(crossed) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(crossed))
	}
	if p.FirstActiveBucketID != 327 {
		t.Errorf("FirstActiveBucketID = %d, want 327", p.FirstActiveBucketID)
	}
	if p.LastAccUpdate != now {
		t.Errorf("LastAccUpdate = %d, want %d", p.LastAccUpdate, now)
	}
}

func TestCatchUp_TrancheExpiry(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 100, 1_000_000); err != nil {
		t.Fatalf("DepositStake: %v", err)
	}

	end := pool.TrancheEnd(100)
	crossed := p.CatchUp(end, true)

	// Three bucket boundaries fall inside the 91-day tranche, then the
	// tranche itself, in timestamp order.
	if len(crossed) != 4 {
		t.Fatalf("expected 4 boundaries, got %d: %+v", len(crossed), crossed)
	}
	last := crossed[3]
	if last.Kind != pool.BoundaryTrancheExpired || last.ID != 100 || last.At != end {
		t.Errorf("last boundary = %+v, want tranche 100 at %d", last, end)
	}

	if p.ActiveStake != 0 {
		t.Errorf("ActiveStake = %d, want 0 after expiry", p.ActiveStake)
	}
	if p.StakeSharesSupply != 0 {
		t.Errorf("StakeSharesSupply = %d, want 0", p.StakeSharesSupply)
	}

	snap := p.ExpiredTrancheSnapshot(100)
	if snap == nil {
		t.Fatal("missing expired tranche snapshot")
	}
	if snap.StakeAtExpiry != 1_000_000 {
		t.Errorf("StakeAtExpiry = %d, want 1000000", snap.StakeAtExpiry)
	}
	if snap.ShareSupplyAtExpiry != 1_000 {
		t.Errorf("ShareSupplyAtExpiry = %d, want 1000", snap.ShareSupplyAtExpiry)
	}

	// Expiry is idempotent: catching up again crosses nothing.
	if again := p.CatchUp(end, true); len(again) != 0 {
		t.Errorf("second catch-up crossed %d boundaries, want 0", len(again))
	}
}
