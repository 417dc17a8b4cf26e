package ingestion

import (
	"CoverPool/internal/event"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The ingestion shell validates, parses, and assigns
// the caller role before sending to the deterministic core. The role comes
// from the subject namespace, never from the payload.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "StakeDeposited":
		return parseStakeDeposited(raw.Data)
	case "DepositExtended":
		return parseDepositExtended(raw.Data)
	case "WithdrawalRequested":
		return parseWithdrawalRequested(raw.Data)
	case "AllocationRequested":
		return parseAllocationRequested(raw.Data)
	case "DeallocationRequested":
		return parseDeallocationRequested(raw.Data)
	case "StakeBurned":
		return parseStakeBurned(raw.Data)
	case "ProductUpdated":
		return parseProductUpdated(raw.Data)
	case "PoolFeeUpdated":
		return parsePoolFeeUpdated(raw.Data)
	case "GovernanceHoldSet":
		return parseGovernanceHoldSet(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.
// Timestamps are epoch seconds.

type stakeDepositJSON struct {
	RequestID string `json:"request_id"`
	Position  string `json:"position"`
	TrancheID int64  `json:"tranche_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseStakeDeposited(data []byte) (*event.StakeDeposited, error) {
	var j stakeDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeDeposited: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	position, err := uuid.Parse(j.Position)
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}
	return &event.StakeDeposited{
		RequestID: requestID,
		Position:  position,
		TrancheID: j.TrancheID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
		Role:      event.RoleMember,
	}, nil
}

type depositExtendJSON struct {
	RequestID     string `json:"request_id"`
	Position      string `json:"position"`
	FromTrancheID int64  `json:"from_tranche_id"`
	ToTrancheID   int64  `json:"to_tranche_id"`
	TopUpAmount   int64  `json:"top_up_amount"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
}

func parseDepositExtended(data []byte) (*event.DepositExtended, error) {
	var j depositExtendJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositExtended: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	position, err := uuid.Parse(j.Position)
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}
	return &event.DepositExtended{
		RequestID:     requestID,
		Position:      position,
		FromTrancheID: j.FromTrancheID,
		ToTrancheID:   j.ToTrancheID,
		TopUpAmount:   j.TopUpAmount,
		Sequence:      j.Sequence,
		Timestamp:     j.Timestamp,
		Role:          event.RoleMember,
	}, nil
}

type withdrawalJSON struct {
	RequestID       string  `json:"request_id"`
	Position        string  `json:"position"`
	WithdrawStake   bool    `json:"withdraw_stake"`
	WithdrawRewards bool    `json:"withdraw_rewards"`
	TrancheIDs      []int64 `json:"tranche_ids"`
	Sequence        int64   `json:"sequence"`
	Timestamp       int64   `json:"timestamp"`
}

func parseWithdrawalRequested(data []byte) (*event.WithdrawalRequested, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	position, err := uuid.Parse(j.Position)
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}
	return &event.WithdrawalRequested{
		RequestID:       requestID,
		Position:        position,
		WithdrawStake:   j.WithdrawStake,
		WithdrawRewards: j.WithdrawRewards,
		TrancheIDs:      j.TrancheIDs,
		Sequence:        j.Sequence,
		Timestamp:       j.Timestamp,
		Role:            event.RoleMember,
	}, nil
}

type allocationJSON struct {
	RequestID              string `json:"request_id"`
	ProductID              int64  `json:"product_id"`
	Amount                 int64  `json:"amount"`
	Period                 int64  `json:"period"`
	RewardsRatio           int64  `json:"rewards_ratio"`
	CapacityRatio          int64  `json:"capacity_ratio"`
	CapacityReductionRatio int64  `json:"capacity_reduction_ratio"`
	Sequence               int64  `json:"sequence"`
	Timestamp              int64  `json:"timestamp"`
}

func parseAllocationRequested(data []byte) (*event.AllocationRequested, error) {
	var j allocationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AllocationRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.AllocationRequested{
		RequestID:              requestID,
		ProductID:              j.ProductID,
		Amount:                 j.Amount,
		Period:                 j.Period,
		RewardsRatio:           j.RewardsRatio,
		CapacityRatio:          j.CapacityRatio,
		CapacityReductionRatio: j.CapacityReductionRatio,
		Sequence:               j.Sequence,
		Timestamp:              j.Timestamp,
		Role:                   event.RoleCover,
	}, nil
}

type deallocationJSON struct {
	RequestID    string `json:"request_id"`
	AllocationID int64  `json:"allocation_id"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseDeallocationRequested(data []byte) (*event.DeallocationRequested, error) {
	var j deallocationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DeallocationRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.DeallocationRequested{
		RequestID:    requestID,
		AllocationID: j.AllocationID,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
		Role:         event.RoleCover,
	}, nil
}

type burnJSON struct {
	RequestID          string `json:"request_id"`
	Amount             int64  `json:"amount"`
	AllocationID       int64  `json:"allocation_id"`
	DeallocationAmount int64  `json:"deallocation_amount"`
	Sequence           int64  `json:"sequence"`
	Timestamp          int64  `json:"timestamp"`
}

func parseStakeBurned(data []byte) (*event.StakeBurned, error) {
	var j burnJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeBurned: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.StakeBurned{
		RequestID:          requestID,
		Amount:             j.Amount,
		AllocationID:       j.AllocationID,
		DeallocationAmount: j.DeallocationAmount,
		Sequence:           j.Sequence,
		Timestamp:          j.Timestamp,
		Role:               event.RoleCover,
	}, nil
}

type productUpdateJSON struct {
	RequestID    string `json:"request_id"`
	ProductID    int64  `json:"product_id"`
	Weight       int64  `json:"weight"`
	TargetPrice  int64  `json:"target_price"`
	InitialPrice int64  `json:"initial_price"`
	FixedPrice   bool   `json:"fixed_price"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseProductUpdated(data []byte) (*event.ProductUpdated, error) {
	var j productUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProductUpdated: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.ProductUpdated{
		RequestID:    requestID,
		ProductID:    j.ProductID,
		Weight:       j.Weight,
		TargetPrice:  j.TargetPrice,
		InitialPrice: j.InitialPrice,
		FixedPrice:   j.FixedPrice,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
		Role:         event.RoleGovernance,
	}, nil
}

type feeUpdateJSON struct {
	RequestID string `json:"request_id"`
	Fee       int64  `json:"fee"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parsePoolFeeUpdated(data []byte) (*event.PoolFeeUpdated, error) {
	var j feeUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolFeeUpdated: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.PoolFeeUpdated{
		RequestID: requestID,
		Fee:       j.Fee,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
		Role:      event.RoleGovernance,
	}, nil
}

type governanceHoldJSON struct {
	RequestID string `json:"request_id"`
	Locked    bool   `json:"locked"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseGovernanceHoldSet(data []byte) (*event.GovernanceHoldSet, error) {
	var j governanceHoldJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GovernanceHoldSet: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.GovernanceHoldSet{
		RequestID: requestID,
		Locked:    j.Locked,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
		Role:      event.RoleGovernance,
	}, nil
}
