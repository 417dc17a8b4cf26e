// internal/pool/snapshot.go
package pool

import "github.com/google/uuid"

// Snapshot is the JSON-serializable image of the full pool state, used
// for persistence snapshots and crash recovery. Maps become sorted-free
// slices; restore rebuilds the lookup maps.
type Snapshot struct {
	ActiveStake         int64 `json:"active_stake"`
	StakeSharesSupply   int64 `json:"stake_shares_supply"`
	RewardsSharesSupply int64 `json:"rewards_shares_supply"`
	RewardPerSecond     int64 `json:"reward_per_second"`
	AccRewardPerShare   int64 `json:"acc_reward_per_share"`
	LastAccUpdate       int64 `json:"last_acc_update"`

	FirstActiveTrancheID int64 `json:"first_active_tranche_id"`
	FirstActiveBucketID  int64 `json:"first_active_bucket_id"`
	NextAllocationID     int64 `json:"next_allocation_id"`

	ManagerPosition uuid.UUID `json:"manager_position"`
	Fee             int64     `json:"fee"`
	MaxFee          int64     `json:"max_fee"`
	Halted          bool      `json:"halted"`
	ManagerLocked   bool      `json:"manager_locked"`

	Tranches    []TrancheSnapshot   `json:"tranches"`
	Expired     []ExpiredSnapshot   `json:"expired"`
	BucketCuts  []BucketCutSnapshot `json:"bucket_cuts"`
	Deposits    []DepositSnapshot   `json:"deposits"`
	Products    []Product           `json:"products"`
	Active      []GroupSnapshot     `json:"active"`
	Expiring    []ExpiringSnapshot  `json:"expiring"`
	Allocations []Allocation        `json:"allocations"`
}

type TrancheSnapshot struct {
	TrancheID     int64 `json:"tranche_id"`
	StakeShares   int64 `json:"stake_shares"`
	RewardsShares int64 `json:"rewards_shares"`
}

type ExpiredSnapshot struct {
	TrancheID           int64 `json:"tranche_id"`
	AccAtExpiry         int64 `json:"acc_at_expiry"`
	StakeAtExpiry       int64 `json:"stake_at_expiry"`
	ShareSupplyAtExpiry int64 `json:"share_supply_at_expiry"`
}

type BucketCutSnapshot struct {
	BucketID        int64 `json:"bucket_id"`
	RewardPerSecond int64 `json:"reward_per_second"`
}

type DepositSnapshot struct {
	Position              uuid.UUID `json:"position"`
	TrancheID             int64     `json:"tranche_id"`
	StakeShares           int64     `json:"stake_shares"`
	RewardsShares         int64     `json:"rewards_shares"`
	LastAccRewardPerShare int64     `json:"last_acc_reward_per_share"`
	PendingRewards        int64     `json:"pending_rewards"`
}

type GroupSnapshot struct {
	ProductID    int64             `json:"product_id"`
	GroupID      int64             `json:"group_id"`
	LastBucketID int64             `json:"last_bucket_id"`
	Slots        [GroupSize]uint32 `json:"slots"`
}

type ExpiringSnapshot struct {
	ProductID int64             `json:"product_id"`
	BucketID  int64             `json:"bucket_id"`
	GroupID   int64             `json:"group_id"`
	Slots     [GroupSize]uint32 `json:"slots"`
}

// ToSnapshot copies the pool into its serializable form.
func (p *Pool) ToSnapshot() *Snapshot {
	s := &Snapshot{
		ActiveStake:          p.ActiveStake,
		StakeSharesSupply:    p.StakeSharesSupply,
		RewardsSharesSupply:  p.RewardsSharesSupply,
		RewardPerSecond:      p.RewardPerSecond,
		AccRewardPerShare:    p.AccRewardPerShare,
		LastAccUpdate:        p.LastAccUpdate,
		FirstActiveTrancheID: p.FirstActiveTrancheID,
		FirstActiveBucketID:  p.FirstActiveBucketID,
		NextAllocationID:     p.NextAllocationID,
		ManagerPosition:      p.ManagerPosition,
		Fee:                  p.Fee,
		MaxFee:               p.MaxFee,
		Halted:               p.Halted,
		ManagerLocked:        p.ManagerLocked,
	}
	for id, t := range p.tranches {
		s.Tranches = append(s.Tranches, TrancheSnapshot{
			TrancheID: id, StakeShares: t.StakeShares, RewardsShares: t.RewardsShares,
		})
	}
	for id, e := range p.expired {
		s.Expired = append(s.Expired, ExpiredSnapshot{
			TrancheID: id, AccAtExpiry: e.AccAtExpiry,
			StakeAtExpiry: e.StakeAtExpiry, ShareSupplyAtExpiry: e.ShareSupplyAtExpiry,
		})
	}
	for id, cut := range p.bucketCuts {
		s.BucketCuts = append(s.BucketCuts, BucketCutSnapshot{BucketID: id, RewardPerSecond: cut})
	}
	for key, d := range p.deposits {
		s.Deposits = append(s.Deposits, DepositSnapshot{
			Position: key.Position, TrancheID: key.TrancheID,
			StakeShares: d.StakeShares, RewardsShares: d.RewardsShares,
			LastAccRewardPerShare: d.LastAccRewardPerShare, PendingRewards: d.PendingRewards,
		})
	}
	for _, prod := range p.products {
		s.Products = append(s.Products, *prod)
	}
	for productID, groups := range p.active {
		for groupID, g := range groups {
			s.Active = append(s.Active, GroupSnapshot{
				ProductID: productID, GroupID: groupID,
				LastBucketID: g.LastBucketID, Slots: g.slots,
			})
		}
	}
	for key, g := range p.expiring {
		s.Expiring = append(s.Expiring, ExpiringSnapshot{
			ProductID: key.ProductID, BucketID: key.BucketID, GroupID: key.GroupID,
			Slots: g.slots,
		})
	}
	for _, a := range p.allocations {
		s.Allocations = append(s.Allocations, *a)
	}
	return s
}

// FromSnapshot rebuilds a pool from its serializable form.
func FromSnapshot(s *Snapshot) *Pool {
	p := NewPool(s.LastAccUpdate, s.ManagerPosition, s.Fee, s.MaxFee)
	p.ActiveStake = s.ActiveStake
	p.StakeSharesSupply = s.StakeSharesSupply
	p.RewardsSharesSupply = s.RewardsSharesSupply
	p.RewardPerSecond = s.RewardPerSecond
	p.AccRewardPerShare = s.AccRewardPerShare
	p.LastAccUpdate = s.LastAccUpdate
	p.FirstActiveTrancheID = s.FirstActiveTrancheID
	p.FirstActiveBucketID = s.FirstActiveBucketID
	p.NextAllocationID = s.NextAllocationID
	p.Fee = s.Fee
	p.MaxFee = s.MaxFee
	p.Halted = s.Halted
	p.ManagerLocked = s.ManagerLocked

	for _, t := range s.Tranches {
		p.tranches[t.TrancheID] = &Tranche{StakeShares: t.StakeShares, RewardsShares: t.RewardsShares}
	}
	for _, e := range s.Expired {
		p.expired[e.TrancheID] = &ExpiredTranche{
			AccAtExpiry: e.AccAtExpiry, StakeAtExpiry: e.StakeAtExpiry,
			ShareSupplyAtExpiry: e.ShareSupplyAtExpiry,
		}
	}
	for _, c := range s.BucketCuts {
		p.bucketCuts[c.BucketID] = c.RewardPerSecond
	}
	for _, d := range s.Deposits {
		p.deposits[DepositKey{Position: d.Position, TrancheID: d.TrancheID}] = &Deposit{
			StakeShares: d.StakeShares, RewardsShares: d.RewardsShares,
			LastAccRewardPerShare: d.LastAccRewardPerShare, PendingRewards: d.PendingRewards,
		}
	}
	for i := range s.Products {
		prod := s.Products[i]
		p.products[prod.ID] = &prod
	}
	for _, g := range s.Active {
		groups := p.active[g.ProductID]
		if groups == nil {
			groups = make(map[int64]*AllocationGroup)
			p.active[g.ProductID] = groups
		}
		groups[g.GroupID] = &AllocationGroup{LastBucketID: g.LastBucketID, slots: g.Slots}
	}
	for _, g := range s.Expiring {
		key := ExpiringKey{ProductID: g.ProductID, BucketID: g.BucketID, GroupID: g.GroupID}
		p.expiring[key] = &AmountGroup{slots: g.Slots}
	}
	for i := range s.Allocations {
		a := s.Allocations[i]
		p.allocations[a.ID] = &a
	}
	return p
}
