package query

import (
	"github.com/google/uuid"
)

// PoolStatusResponse is the live pool summary served from core state.
type PoolStatusResponse struct {
	ActiveStake          int64 `json:"active_stake"`
	StakeSharesSupply    int64 `json:"stake_shares_supply"`
	RewardsSharesSupply  int64 `json:"rewards_shares_supply"`
	RewardPerSecond      int64 `json:"reward_per_second"`
	FirstActiveTrancheID int64 `json:"first_active_tranche_id"`
	FirstActiveBucketID  int64 `json:"first_active_bucket_id"`
	Fee                  int64 `json:"fee"`
	MaxFee               int64 `json:"max_fee"`
	Halted               bool  `json:"halted"`
	ManagerLocked        bool  `json:"manager_locked"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// DepositStateResponse is a position's share state in one tranche.
type DepositStateResponse struct {
	Position              uuid.UUID `json:"position"`
	TrancheID             int64     `json:"tranche_id"`
	StakeShares           int64     `json:"stake_shares"`
	RewardsShares         int64     `json:"rewards_shares"`
	PendingRewards        int64     `json:"pending_rewards"`
	LastAccRewardPerShare int64     `json:"last_acc_reward_per_share"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// TrancheStateResponse is the derived state of one active tranche.
type TrancheStateResponse struct {
	TrancheID     int64 `json:"tranche_id"`
	StakeShares   int64 `json:"stake_shares"`
	RewardsShares int64 `json:"rewards_shares"`
	Stake         int64 `json:"stake"` // derived from share proportion

	AsOfSequence int64 `json:"as_of_sequence"`
}

// ProductStateResponse is a product's pricing state.
type ProductStateResponse struct {
	ProductID             int64 `json:"product_id"`
	Weight                int64 `json:"weight"`
	TargetPrice           int64 `json:"target_price"`
	FixedPrice            bool  `json:"fixed_price"`
	BumpedPrice           int64 `json:"bumped_price"`
	BumpedPriceUpdateTime int64 `json:"bumped_price_update_time"`
	BasePrice             int64 `json:"base_price"` // decayed to as_of time

	AsOfSequence int64 `json:"as_of_sequence"`
}

// AllocationStateResponse is the live state of one cover allocation.
type AllocationStateResponse struct {
	AllocationID       int64   `json:"allocation_id"`
	ProductID          int64   `json:"product_id"`
	FirstTrancheID     int64   `json:"first_tranche_id"`
	Units              []int64 `json:"units"`
	ExpirationBucketID int64   `json:"expiration_bucket_id"`
	RewardPerSecond    int64   `json:"reward_per_second"`
	CoverStart         int64   `json:"cover_start"`
	CoverEnd           int64   `json:"cover_end"`
	Deallocated        bool    `json:"deallocated"`

	AsOfSequence int64 `json:"as_of_sequence"`
}
