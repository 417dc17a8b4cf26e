package pool_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/pool"
)

func TestDepositStake_FirstMintIsSqrt(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	res, err := p.DepositStake(t0, staker, 100, 1_000_000)
	if err != nil {
		t.Fatalf("DepositStake: %v", err)
	}
	if res.StakeShares != 1_000 {
		t.Errorf("StakeShares = %d, want sqrt(1000000) = 1000", res.StakeShares)
	}
	if res.RewardsShares != 1_000 {
		t.Errorf("RewardsShares = %d, want 1000", res.RewardsShares)
	}
	if res.FeeShares != 0 {
		t.Errorf("FeeShares = %d, want 0 at zero fee", res.FeeShares)
	}
	if p.ActiveStake != 1_000_000 || p.StakeSharesSupply != 1_000 {
		t.Errorf("pool totals = (%d, %d), want (1000000, 1000)", p.ActiveStake, p.StakeSharesSupply)
	}
}

func TestDepositStake_ProRataAfterFirst(t *testing.T) {
	p := newTestPool(0)
	a, b := uuid.New(), uuid.New()

	if _, err := p.DepositStake(t0, a, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}
	res, err := p.DepositStake(t0, b, 101, 500_000)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	// 500000 * 1000 / 1000000
	if res.StakeShares != 500 {
		t.Errorf("StakeShares = %d, want 500", res.StakeShares)
	}
	if p.StakeSharesSupply != 1_500 {
		t.Errorf("StakeSharesSupply = %d, want 1500", p.StakeSharesSupply)
	}
}

func TestDepositStake_ManagerFeeShares(t *testing.T) {
	p := newTestPool(20)
	staker := uuid.New()

	res, err := p.DepositStake(t0, staker, 100, 1_000_000)
	if err != nil {
		t.Fatalf("DepositStake: %v", err)
	}
	// feeShares = rewardsShares * fee / (100 - fee) = 1000 * 20 / 80
	if res.FeeShares != 250 {
		t.Errorf("FeeShares = %d, want 250", res.FeeShares)
	}
	if p.RewardsSharesSupply != 1_250 {
		t.Errorf("RewardsSharesSupply = %d, want 1250", p.RewardsSharesSupply)
	}

	md := p.Deposit(managerPosition, 100)
	if md == nil || md.RewardsShares != 250 {
		t.Errorf("manager deposit = %+v, want 250 rewards shares", md)
	}
	if md != nil && md.StakeShares != 0 {
		t.Errorf("manager got %d stake shares from fee, want 0", md.StakeShares)
	}
}

func TestDepositStake_WindowBounds(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 99, 1_000); err == nil {
		t.Error("expected error for tranche before the active window")
	}
	// MaxDepositTranche(t0) = 107
	if _, err := p.DepositStake(t0, staker, 108, 1_000); err == nil {
		t.Error("expected error for tranche past the stakeable window")
	}
	if _, err := p.DepositStake(t0, staker, 107, 1_000); err != nil {
		t.Errorf("deposit into last window tranche: %v", err)
	}
	if _, err := p.DepositStake(t0, staker, 100, 0); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestExtendDeposit_MovesShares(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 101, 1_000_000); err != nil {
		t.Fatal(err)
	}

	if _, err := p.ExtendDeposit(t0, staker, 101, 103, 0); err != nil {
		t.Fatalf("ExtendDeposit: %v", err)
	}

	src := p.Deposit(staker, 101)
	if src == nil || src.StakeShares != 0 || src.RewardsShares != 0 {
		t.Errorf("source deposit not emptied: %+v", src)
	}
	dst := p.Deposit(staker, 103)
	if dst == nil || dst.StakeShares != 1_000 {
		t.Errorf("destination deposit = %+v, want 1000 stake shares", dst)
	}

	// Totals are untouched by a pure move.
	if p.ActiveStake != 1_000_000 || p.StakeSharesSupply != 1_000 {
		t.Errorf("pool totals changed: (%d, %d)", p.ActiveStake, p.StakeSharesSupply)
	}
}

func TestExtendDeposit_TopUpMintsShares(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 101, 1_000_000); err != nil {
		t.Fatal(err)
	}
	res, err := p.ExtendDeposit(t0, staker, 101, 104, 500_000)
	if err != nil {
		t.Fatalf("ExtendDeposit with top-up: %v", err)
	}
	if res.StakeShares != 500 {
		t.Errorf("top-up StakeShares = %d, want 500", res.StakeShares)
	}
	if p.ActiveStake != 1_500_000 {
		t.Errorf("ActiveStake = %d, want 1500000", p.ActiveStake)
	}
}

func TestExtendDeposit_Validation(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.ExtendDeposit(t0, staker, 99, 103, 0); err == nil {
		t.Error("expected error for expired source tranche")
	}
	if _, err := p.ExtendDeposit(t0, staker, 103, 103, 0); err == nil {
		t.Error("expected error for non-increasing target tranche")
	}
	if _, err := p.ExtendDeposit(t0, staker, 101, 108, 0); err == nil {
		t.Error("expected error for target past the stakeable window")
	}
}

func TestBurnStake_ProportionalLoss(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}
	res, err := p.BurnStake(t0, pool.BurnRequest{Amount: 400_000})
	if err != nil {
		t.Fatalf("BurnStake: %v", err)
	}
	if res.Burned != 400_000 || res.Halted {
		t.Errorf("result = %+v, want 400000 burned, not halted", res)
	}
	if p.ActiveStake != 600_000 {
		t.Errorf("ActiveStake = %d, want 600000", p.ActiveStake)
	}
	// Shares untouched; the tranche's derived stake shrinks instead.
	if p.StakeSharesSupply != 1_000 {
		t.Errorf("StakeSharesSupply = %d, want 1000", p.StakeSharesSupply)
	}
	if got := p.TrancheStake(100); got != 600_000 {
		t.Errorf("TrancheStake = %d, want 600000", got)
	}
}

func TestBurnStake_ClampsAndHalts(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}

	res, err := p.BurnStake(t0, pool.BurnRequest{Amount: 5_000_000})
	if err != nil {
		t.Fatalf("BurnStake: %v", err)
	}
	if res.Burned != 1_000_000-pool.MinActiveStake {
		t.Errorf("Burned = %d, want %d", res.Burned, 1_000_000-pool.MinActiveStake)
	}
	if !res.Halted || !p.Halted {
		t.Error("pool should be halted after a clamped burn")
	}
	if p.ActiveStake != pool.MinActiveStake {
		t.Errorf("ActiveStake = %d, want %d", p.ActiveStake, pool.MinActiveStake)
	}

	// Halted pools reject deposits and extensions but not withdrawals.
	if _, err := p.DepositStake(t0, staker, 101, 1_000); !errors.Is(err, pool.ErrPoolHalted) {
		t.Errorf("deposit on halted pool: %v, want ErrPoolHalted", err)
	}
	if _, err := p.ExtendDeposit(t0, staker, 100, 102, 0); !errors.Is(err, pool.ErrPoolHalted) {
		t.Errorf("extend on halted pool: %v, want ErrPoolHalted", err)
	}
	if _, err := p.Withdraw(t0, staker, true, true, []int64{100}); err != nil {
		t.Errorf("withdraw on halted pool: %v, want nil", err)
	}
}

func TestBurnStake_NoHaltWhenStakeAlreadyGone(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}

	// All stake expires naturally; a late burn against the settled cover
	// finds nothing above the floor and must not brick the pool.
	after := pool.TrancheEnd(100) + 1
	res, err := p.BurnStake(after, pool.BurnRequest{Amount: 5})
	if err != nil {
		t.Fatalf("BurnStake: %v", err)
	}
	if res.Burned != 0 {
		t.Errorf("Burned = %d, want 0", res.Burned)
	}
	if res.Halted || p.Halted {
		t.Error("burn against an empty pool should not halt it")
	}

	if _, err := p.DepositStake(after, staker, 101, 1_000); err != nil {
		t.Errorf("deposit after empty burn: %v", err)
	}
}

func TestWithdraw_StakeOnlyFromExpiredTranches(t *testing.T) {
	p := newTestPool(0)
	staker := uuid.New()

	if _, err := p.DepositStake(t0, staker, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}

	// Tranche 100 is still active: stake request is a per-tranche no-op.
	res, err := p.Withdraw(t0+1, staker, true, false, []int64{100})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Stake != 0 {
		t.Errorf("Stake = %d, want 0 from active tranche", res.Stake)
	}

	// After expiry the stake settles against the frozen snapshot.
	end := pool.TrancheEnd(100)
	res, err = p.Withdraw(end+1, staker, true, false, []int64{100})
	if err != nil {
		t.Fatalf("Withdraw after expiry: %v", err)
	}
	if res.Stake != 1_000_000 {
		t.Errorf("Stake = %d, want 1000000", res.Stake)
	}

	// A second settlement gets nothing.
	res, _ = p.Withdraw(end+2, staker, true, false, []int64{100})
	if res.Stake != 0 {
		t.Errorf("double settlement paid %d", res.Stake)
	}
}

func TestWithdraw_GovernanceHoldBlocksManagerStake(t *testing.T) {
	p := newTestPool(0)

	if _, err := p.DepositStake(t0, managerPosition, 100, 1_000_000); err != nil {
		t.Fatal(err)
	}
	p.SetManagerLocked(t0, true)

	if _, err := p.Withdraw(t0+1, managerPosition, true, false, []int64{100}); !errors.Is(err, pool.ErrGovernanceLockActive) {
		t.Errorf("locked manager stake withdrawal: %v, want ErrGovernanceLockActive", err)
	}
	// Rewards-only withdrawals pass, as do other members.
	if _, err := p.Withdraw(t0+1, managerPosition, false, true, []int64{100}); err != nil {
		t.Errorf("locked manager rewards withdrawal: %v", err)
	}
	if _, err := p.Withdraw(t0+1, uuid.New(), true, false, []int64{100}); err != nil {
		t.Errorf("unrelated member withdrawal: %v", err)
	}

	p.SetManagerLocked(t0+2, false)
	if _, err := p.Withdraw(t0+3, managerPosition, true, false, []int64{100}); err != nil {
		t.Errorf("unlocked manager withdrawal: %v", err)
	}
}
