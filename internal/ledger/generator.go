package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for pool cash flows.
// Every batch moves coins between the external boundary, the system
// custody accounts and member payout accounts; the pool package decides
// the amounts, the generator only records them.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // for pre-checks on outflows
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence realigns the generator after snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit records staked coins entering custody.
// Moves funds: external:deposits → system:active_stake
func (jg *JournalGenerator) GenerateDeposit(eventRef string, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeSystemActiveStake),
		NewExternalAccountKey(SubTypeExternalDeposits),
		amount, JournalTypeDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateRewardMint records premium rewards minted into custody.
// Moves funds: external:minted_rewards → system:rewards
func (jg *JournalGenerator) GenerateRewardMint(eventRef string, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reward mint must be positive: %d", amount)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeSystemRewards),
		NewExternalAccountKey(SubTypeExternalMintedRewards),
		amount, JournalTypeRewardMint)
	jg.sequence++
	return batch, nil
}

// GenerateRewardRevoke reverses the unstreamed remainder of a reward
// stream on deallocation.
// Moves funds: system:rewards → external:minted_rewards
func (jg *JournalGenerator) GenerateRewardRevoke(eventRef string, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reward revoke must be positive: %d", amount)
	}
	if err := jg.balanceTracker.ValidateSufficient(NewSystemAccountKey(SubTypeSystemRewards), amount); err != nil {
		return nil, fmt.Errorf("reward revoke pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalMintedRewards),
		NewSystemAccountKey(SubTypeSystemRewards),
		amount, JournalTypeRewardRevoke)
	jg.sequence++
	return batch, nil
}

// GenerateStakeBurn records a claim payout leaving active custody.
// Moves funds: system:active_stake → external:burns
func (jg *JournalGenerator) GenerateStakeBurn(eventRef string, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("burn amount must be positive: %d", amount)
	}
	if err := jg.balanceTracker.ValidateSufficient(NewSystemAccountKey(SubTypeSystemActiveStake), amount); err != nil {
		return nil, fmt.Errorf("burn pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalBurns),
		NewSystemAccountKey(SubTypeSystemActiveStake),
		amount, JournalTypeStakeBurn)
	jg.sequence++
	return batch, nil
}

// GenerateTrancheExpiry moves an expired tranche's stake out of the
// active custody account so later burns cannot touch it.
// Moves funds: system:active_stake → system:expired_stake
func (jg *JournalGenerator) GenerateTrancheExpiry(eventRef string, amount, timestamp int64) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("expiry amount must be positive: %d", amount)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeSystemExpiredStake),
		NewSystemAccountKey(SubTypeSystemActiveStake),
		amount, JournalTypeStakeExpiry)
	jg.sequence++
	return batch, nil
}

// GenerateWithdrawal pays out settled stake and rewards to the position's
// current owner. Either leg may be zero; at least one must be positive.
// Moves funds: system:expired_stake → member:payout (stake leg)
//              system:rewards → member:payout (rewards leg)
func (jg *JournalGenerator) GenerateWithdrawal(eventRef string, owner uuid.UUID, stake, rewards, timestamp int64) (*Batch, error) {
	if stake <= 0 && rewards <= 0 {
		return nil, fmt.Errorf("withdrawal with no positive leg: stake=%d rewards=%d", stake, rewards)
	}
	if stake > 0 {
		if err := jg.balanceTracker.ValidateSufficient(NewSystemAccountKey(SubTypeSystemExpiredStake), stake); err != nil {
			return nil, fmt.Errorf("stake withdrawal pre-check failed: %w", err)
		}
	}
	if rewards > 0 {
		if err := jg.balanceTracker.ValidateSufficient(NewSystemAccountKey(SubTypeSystemRewards), rewards); err != nil {
			return nil, fmt.Errorf("reward withdrawal pre-check failed: %w", err)
		}
	}

	batch := jg.newBatch(eventRef, timestamp)
	payout := NewMemberAccountKey(owner, SubTypePayout)
	if stake > 0 {
		jg.appendJournal(batch, payout,
			NewSystemAccountKey(SubTypeSystemExpiredStake),
			stake, JournalTypeStakeWithdrawal)
	}
	if rewards > 0 {
		jg.appendJournal(batch, payout,
			NewSystemAccountKey(SubTypeSystemRewards),
			rewards, JournalTypeRewardWithdrawal)
	}
	jg.sequence++
	return batch, nil
}
