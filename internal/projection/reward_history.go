package projection

import (
	"github.com/google/uuid"
)

// RewardHistoryEntry records the stake and rewards paid out for one
// position/tranche pair in a withdrawal.
type RewardHistoryEntry struct {
	Position  uuid.UUID
	TrancheID int64
	Stake     int64
	Rewards   int64
	EventRef  string
	Timestamp int64
}

// RewardHistoryProjection maintains queryable withdrawal history
type RewardHistoryProjection struct {
	entries []RewardHistoryEntry
}

func NewRewardHistoryProjection() *RewardHistoryProjection {
	return &RewardHistoryProjection{
		entries: make([]RewardHistoryEntry, 0),
	}
}

// AddEntry records a withdrawal payout
func (p *RewardHistoryProjection) AddEntry(entry RewardHistoryEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByPosition returns withdrawal history for a position, newest first
func (p *RewardHistoryProjection) QueryByPosition(position uuid.UUID, limit int) []RewardHistoryEntry {
	result := make([]RewardHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Position == position {
			result = append(result, p.entries[i])
		}
	}

	return result
}
