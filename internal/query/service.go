package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables and the
// event log. Queries are served via gRPC and HTTP/JSON (gRPC-Gateway).
// All responses include as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetMemberBalance returns a member's payout balance.
func (qs *QueryService) GetMemberBalance(
	ctx context.Context,
	member uuid.UUID,
) (*MemberBalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	payoutPath := fmt.Sprintf("member:%s:payout", member)
	payout, err := qs.getProjectedBalance(ctx, payoutPath)
	if err != nil {
		return nil, err
	}

	return &MemberBalanceResponse{
		Member:       member,
		Payout:       payout,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetPoolAccounts returns the custodian account balances of the pool.
func (qs *QueryService) GetPoolAccounts(ctx context.Context) (*PoolAccountsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	activeStake, err := qs.getProjectedBalance(ctx, "system:active_stake")
	if err != nil {
		return nil, err
	}
	expiredStake, err := qs.getProjectedBalance(ctx, "system:expired_stake")
	if err != nil {
		return nil, err
	}
	rewards, err := qs.getProjectedBalance(ctx, "system:rewards")
	if err != nil {
		return nil, err
	}

	return &PoolAccountsResponse{
		ActiveStake:  activeStake,
		ExpiredStake: expiredStake,
		Rewards:      rewards,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetJournalHistory returns journal entries touching a member's accounts,
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	member uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("member:%s:%%", member)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp
		FROM staking.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEventHistory returns applied events, newest first, with cursor-based
// pagination. Filter by event type when eventType is non-nil.
func (qs *QueryService) GetEventHistory(
	ctx context.Context,
	eventType *string,
	limit int,
	afterSequence *int64,
) ([]EventHistoryEntry, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, payload, timestamp, source_sequence
		FROM staking.events
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if eventType != nil {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, *eventType)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		var e EventHistoryEntry
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey,
			&e.Payload, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the zero-sum ledger
// invariant over the projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM staking.events e1
		LEFT JOIN staking.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// All accounts together must sum to zero
	var total sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT SUM(balance) FROM projections.balances
	`).Scan(&total); err != nil {
		return nil, err
	}
	if total.Valid {
		report.GlobalImbalance = total.Int64
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.GlobalImbalance == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
