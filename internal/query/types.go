package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MemberBalanceResponse represents a member's payout balance for API queries.
type MemberBalanceResponse struct {
	Member       uuid.UUID `json:"member"`
	Payout       int64     `json:"payout"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// PoolAccountsResponse holds the custodian account balances of the pool.
type PoolAccountsResponse struct {
	ActiveStake  int64 `json:"active_stake"`
	ExpiredStake int64 `json:"expired_stake"`
	Rewards      int64 `json:"rewards"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// EventHistoryEntry represents an applied event for API queries.
type EventHistoryEntry struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	SourceSequence int64           `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	GlobalImbalance int64   `json:"global_imbalance"`
}
