package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeStakeDeposited
	EventTypeDepositExtended
	EventTypeWithdrawalRequested
	EventTypeAllocationRequested
	EventTypeDeallocationRequested
	EventTypeStakeBurned
	EventTypeProductUpdated
	EventTypePoolFeeUpdated
	EventTypeGovernanceHoldSet
	EventTypeClockSweep
	// Derived events emitted by the core, never ingested.
	EventTypeTrancheExpired
	EventTypeBucketExpired
)

// Role is the capability attached to an inbound event by the ingestion
// layer. The core trusts the role, not the transport: allocation-side
// operations require RoleCover, parameter changes require RoleGovernance.
type Role int32

const (
	RoleMember Role = iota
	RoleCover
	RoleGovernance
	RoleOperator
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleCover:
		return "cover"
	case RoleGovernance:
		return "governance"
	case RoleOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// UnixTime returns the versioned event timestamp in epoch seconds
	UnixTime() int64

	// Caller returns the capability the ingestion layer attached
	Caller() Role
}

func (et EventType) String() string {
	switch et {
	case EventTypeStakeDeposited:
		return "StakeDeposited"
	case EventTypeDepositExtended:
		return "DepositExtended"
	case EventTypeWithdrawalRequested:
		return "WithdrawalRequested"
	case EventTypeAllocationRequested:
		return "AllocationRequested"
	case EventTypeDeallocationRequested:
		return "DeallocationRequested"
	case EventTypeStakeBurned:
		return "StakeBurned"
	case EventTypeProductUpdated:
		return "ProductUpdated"
	case EventTypePoolFeeUpdated:
		return "PoolFeeUpdated"
	case EventTypeGovernanceHoldSet:
		return "GovernanceHoldSet"
	case EventTypeClockSweep:
		return "ClockSweep"
	case EventTypeTrancheExpired:
		return "TrancheExpired"
	case EventTypeBucketExpired:
		return "BucketExpired"
	default:
		return "Unknown"
	}
}
