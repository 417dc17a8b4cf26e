package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// SetBalance overwrites an account balance (snapshot restore only)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Custodian Queries ===

// GetActiveStake returns the coins held against active tranches
func (bt *BalanceTracker) GetActiveStake() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemActiveStake))
}

// GetExpiredStake returns coins of expired tranches awaiting withdrawal
func (bt *BalanceTracker) GetExpiredStake() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemExpiredStake))
}

// GetRewardsBalance returns minted, not yet withdrawn reward coins
func (bt *BalanceTracker) GetRewardsBalance() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemRewards))
}

// GetMemberPayout returns coins released to a position owner
func (bt *BalanceTracker) GetMemberPayout(position uuid.UUID) int64 {
	return bt.GetBalance(NewMemberAccountKey(position, SubTypePayout))
}

// === Invariant Checks ===

// ComputeGlobalBalance sums all account balances (0 for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateSufficient checks that an account can cover an outflow
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("account %s insufficient: have=%d, need=%d", key.AccountPath(), balance, required)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
