package ledger

import "fmt"

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateCustodianNonNegative checks the pool's holding accounts.
// External boundary accounts go negative by construction (they absorb the
// other side of mints and deposits), so only the system side is checked.
func (v *InvariantValidator) ValidateCustodianNonNegative() error {
	for _, sub := range []AccountSubType{
		SubTypeSystemActiveStake,
		SubTypeSystemExpiredStake,
		SubTypeSystemRewards,
	} {
		if err := v.tracker.ValidateNonNegative(NewSystemAccountKey(sub)); err != nil {
			return err
		}
	}
	return nil
}
