package event

import (
	"encoding/json"
	"fmt"
)

// UnmarshalPayload decodes a persisted envelope payload back into its typed
// event. Payloads are stored as the JSON form of the typed struct, not the
// snake_case wire format the NATS parser handles, so replay goes through here.
func UnmarshalPayload(eventType string, data []byte) (Event, error) {
	var evt Event
	switch eventType {
	case "StakeDeposited":
		evt = &StakeDeposited{}
	case "DepositExtended":
		evt = &DepositExtended{}
	case "WithdrawalRequested":
		evt = &WithdrawalRequested{}
	case "AllocationRequested":
		evt = &AllocationRequested{}
	case "DeallocationRequested":
		evt = &DeallocationRequested{}
	case "StakeBurned":
		evt = &StakeBurned{}
	case "ProductUpdated":
		evt = &ProductUpdated{}
	case "PoolFeeUpdated":
		evt = &PoolFeeUpdated{}
	case "GovernanceHoldSet":
		evt = &GovernanceHoldSet{}
	case "ClockSweep":
		evt = &ClockSweep{}
	case "TrancheExpired":
		evt = &TrancheExpired{}
	case "BucketExpired":
		evt = &BucketExpired{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}
	return evt, nil
}
