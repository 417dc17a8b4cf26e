// internal/event/staking.go
package event

import "github.com/google/uuid"

// StakeDeposited is a member staking coins into one tranche.
type StakeDeposited struct {
	RequestID uuid.UUID
	Position  uuid.UUID
	TrancheID int64
	Amount    int64 // fixed-point coins
	Sequence  int64
	Timestamp int64 // epoch seconds
	Role      Role
}

func (d *StakeDeposited) IdempotencyKey() string { return d.RequestID.String() }
func (d *StakeDeposited) EventType() EventType   { return EventTypeStakeDeposited }
func (d *StakeDeposited) SourceSequence() int64  { return d.Sequence }
func (d *StakeDeposited) UnixTime() int64        { return d.Timestamp }
func (d *StakeDeposited) Caller() Role           { return d.Role }

// DepositExtended moves a deposit to a later tranche, optionally adding
// fresh coins.
type DepositExtended struct {
	RequestID     uuid.UUID
	Position      uuid.UUID
	FromTrancheID int64
	ToTrancheID   int64
	TopUpAmount   int64
	Sequence      int64
	Timestamp     int64
	Role          Role
}

func (e *DepositExtended) IdempotencyKey() string { return e.RequestID.String() }
func (e *DepositExtended) EventType() EventType   { return EventTypeDepositExtended }
func (e *DepositExtended) SourceSequence() int64  { return e.Sequence }
func (e *DepositExtended) UnixTime() int64        { return e.Timestamp }
func (e *DepositExtended) Caller() Role           { return e.Role }

// WithdrawalRequested settles a position across tranches. Anyone may
// submit it; funds always go to the position's current owner.
type WithdrawalRequested struct {
	RequestID       uuid.UUID
	Position        uuid.UUID
	WithdrawStake   bool
	WithdrawRewards bool
	TrancheIDs      []int64
	Sequence        int64
	Timestamp       int64
	Role            Role
}

func (w *WithdrawalRequested) IdempotencyKey() string { return w.RequestID.String() }
func (w *WithdrawalRequested) EventType() EventType   { return EventTypeWithdrawalRequested }
func (w *WithdrawalRequested) SourceSequence() int64  { return w.Sequence }
func (w *WithdrawalRequested) UnixTime() int64        { return w.Timestamp }
func (w *WithdrawalRequested) Caller() Role           { return w.Role }
