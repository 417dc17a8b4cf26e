// internal/pool/pool.go
package pool

import (
	"github.com/google/uuid"
)

// DepositKey identifies one position's stake in one tranche.
type DepositKey struct {
	Position  uuid.UUID
	TrancheID int64
}

// ExpiringKey addresses the per-bucket expiring units of one counter group.
type ExpiringKey struct {
	ProductID int64
	BucketID  int64
	GroupID   int64
}

// Pool holds the complete capacity, pricing and reward state of one
// staking pool. It is owned by the deterministic core and must only be
// mutated from the single event-processing goroutine. All timestamps come
// from event payloads; the pool never reads the wall clock.
type Pool struct {
	// Stake and share accounting.
	ActiveStake         int64
	StakeSharesSupply   int64
	RewardsSharesSupply int64

	// Reward streaming.
	RewardPerSecond   int64
	AccRewardPerShare int64 // scaled by fpmath.AccScale
	LastAccUpdate     int64

	// Lazy clock frontier.
	FirstActiveTrancheID int64
	FirstActiveBucketID  int64

	NextAllocationID int64

	// Manager fee configuration. Fee shares are minted to the manager
	// position on every deposit.
	ManagerPosition uuid.UUID
	Fee             int64
	MaxFee          int64

	// Halted is set once a burn consumes the entire active stake. A
	// halted pool rejects new deposits and extensions.
	Halted bool

	// ManagerLocked mirrors an external governance hold on the manager's
	// stake.
	ManagerLocked bool

	tranches    map[int64]*Tranche
	expired     map[int64]*ExpiredTranche
	bucketCuts  map[int64]int64 // bucketID -> rewardPerSecond retired on entry
	deposits    map[DepositKey]*Deposit
	products    map[int64]*Product
	active      map[int64]map[int64]*AllocationGroup // productID -> groupID
	expiring    map[ExpiringKey]*AmountGroup
	allocations map[int64]*Allocation
}

// NewPool creates a pool whose clock frontier starts at createdAt.
func NewPool(createdAt int64, managerPosition uuid.UUID, fee, maxFee int64) *Pool {
	if maxFee <= 0 || maxFee > MaxFeeCeiling {
		maxFee = MaxFeeCeiling
	}
	if fee > maxFee {
		fee = maxFee
	}
	return &Pool{
		LastAccUpdate:        createdAt,
		FirstActiveTrancheID: TrancheAt(createdAt),
		FirstActiveBucketID:  BucketAt(createdAt),
		NextAllocationID:     1,
		ManagerPosition:      managerPosition,
		Fee:                  fee,
		MaxFee:               maxFee,
		tranches:             make(map[int64]*Tranche),
		expired:              make(map[int64]*ExpiredTranche),
		bucketCuts:           make(map[int64]int64),
		deposits:             make(map[DepositKey]*Deposit),
		products:             make(map[int64]*Product),
		active:               make(map[int64]map[int64]*AllocationGroup),
		expiring:             make(map[ExpiringKey]*AmountGroup),
		allocations:          make(map[int64]*Allocation),
	}
}

// SetFee updates the manager fee, capped at the pool's immutable MaxFee.
func (p *Pool) SetFee(now int64, fee int64) error {
	p.CatchUp(now, true)
	if fee < 0 || fee > p.MaxFee {
		return errFeeOutOfRange(fee, p.MaxFee)
	}
	p.Fee = fee
	return nil
}

// SetManagerLocked toggles the governance hold on the manager position.
func (p *Pool) SetManagerLocked(now int64, locked bool) {
	p.CatchUp(now, true)
	p.ManagerLocked = locked
}

// Deposit returns the record for a position/tranche pair, or nil.
func (p *Pool) Deposit(position uuid.UUID, trancheID int64) *Deposit {
	return p.deposits[DepositKey{Position: position, TrancheID: trancheID}]
}

// Product returns the configured product, or nil.
func (p *Pool) Product(productID int64) *Product {
	return p.products[productID]
}

// Allocation returns the allocation record, or nil.
func (p *Pool) Allocation(allocationID int64) *Allocation {
	return p.allocations[allocationID]
}

// ExpiredTrancheSnapshot returns the expiry snapshot for a tranche, or nil.
func (p *Pool) ExpiredTrancheSnapshot(trancheID int64) *ExpiredTranche {
	return p.expired[trancheID]
}

func (p *Pool) depositFor(position uuid.UUID, trancheID int64) *Deposit {
	key := DepositKey{Position: position, TrancheID: trancheID}
	d := p.deposits[key]
	if d == nil {
		d = &Deposit{LastAccRewardPerShare: p.AccRewardPerShare}
		p.deposits[key] = d
	}
	return d
}
