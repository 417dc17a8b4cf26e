// internal/event/cover.go
package event

import "github.com/google/uuid"

// AllocationRequested is a cover buy from the cover contract.
type AllocationRequested struct {
	RequestID              uuid.UUID
	ProductID              int64
	Amount                 int64 // coins of cover
	Period                 int64 // seconds
	RewardsRatio           int64
	CapacityRatio          int64
	CapacityReductionRatio int64
	Sequence               int64
	Timestamp              int64
	Role                   Role
}

func (a *AllocationRequested) IdempotencyKey() string { return a.RequestID.String() }
func (a *AllocationRequested) EventType() EventType   { return EventTypeAllocationRequested }
func (a *AllocationRequested) SourceSequence() int64  { return a.Sequence }
func (a *AllocationRequested) UnixTime() int64        { return a.Timestamp }
func (a *AllocationRequested) Caller() Role           { return a.Role }

// DeallocationRequested releases an allocation's remaining capacity and
// reverses the unstreamed rewards.
type DeallocationRequested struct {
	RequestID    uuid.UUID
	AllocationID int64
	Sequence     int64
	Timestamp    int64
	Role         Role
}

func (d *DeallocationRequested) IdempotencyKey() string { return d.RequestID.String() }
func (d *DeallocationRequested) EventType() EventType   { return EventTypeDeallocationRequested }
func (d *DeallocationRequested) SourceSequence() int64  { return d.Sequence }
func (d *DeallocationRequested) UnixTime() int64        { return d.Timestamp }
func (d *DeallocationRequested) Caller() Role           { return d.Role }

// StakeBurned funds a claim payout from active stake, optionally
// releasing the claimed cover's capacity in the same step.
type StakeBurned struct {
	RequestID          uuid.UUID
	Amount             int64
	AllocationID       int64 // 0 when no capacity release
	DeallocationAmount int64
	Sequence           int64
	Timestamp          int64
	Role               Role
}

func (b *StakeBurned) IdempotencyKey() string { return b.RequestID.String() }
func (b *StakeBurned) EventType() EventType   { return EventTypeStakeBurned }
func (b *StakeBurned) SourceSequence() int64  { return b.Sequence }
func (b *StakeBurned) UnixTime() int64        { return b.Timestamp }
func (b *StakeBurned) Caller() Role           { return b.Role }
