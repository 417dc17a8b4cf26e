package core_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/pool"
)

// --- Test helpers ---

// openTime puts the pool exactly on a tranche boundary that is also a
// bucket boundary, so every expected expiry timestamp is a round number.
const openTime = 100 * pool.TrancheDuration

var testManager = uuid.MustParse("00000000-0000-0000-0000-00000000f00d")

// newTestCore creates a DeterministicCore with buffered channels and no
// DB checker.
func newTestCore(owners core.OwnerResolver) (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	p := pool.NewPool(openTime, testManager, 0, pool.MaxFeeCeiling)
	c := core.NewDeterministicCore(0, p, owners, persistChan, projChan, nil, nil)
	return c, persistChan, projChan
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case out := <-ch:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func mustStakeDeposited(position uuid.UUID, trancheID, amount, seq, ts int64) *event.StakeDeposited {
	return &event.StakeDeposited{
		RequestID: uuid.New(),
		Position:  position,
		TrancheID: trancheID,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: ts,
		Role:      event.RoleMember,
	}
}

func mustWithdrawalRequested(position uuid.UUID, stake, rewards bool, tranches []int64, seq, ts int64) *event.WithdrawalRequested {
	return &event.WithdrawalRequested{
		RequestID:       uuid.New(),
		Position:        position,
		WithdrawStake:   stake,
		WithdrawRewards: rewards,
		TrancheIDs:      tranches,
		Sequence:        seq,
		Timestamp:       ts,
		Role:            event.RoleMember,
	}
}

func mustProductUpdated(productID, seq, ts int64) *event.ProductUpdated {
	return &event.ProductUpdated{
		RequestID:    uuid.New(),
		ProductID:    productID,
		Weight:       100,
		TargetPrice:  100,
		InitialPrice: 200,
		Sequence:     seq,
		Timestamp:    ts,
		Role:         event.RoleGovernance,
	}
}

func mustAllocationRequested(productID, units, seq, ts int64) *event.AllocationRequested {
	return &event.AllocationRequested{
		RequestID:     uuid.New(),
		ProductID:     productID,
		Amount:        units * pool.AllocationUnit,
		Period:        30 * pool.DaySeconds,
		RewardsRatio:  5_000,
		CapacityRatio: 10_000,
		Sequence:      seq,
		Timestamp:     ts,
		Role:          event.RoleCover,
	}
}

func activeStakeBalance(c *core.DeterministicCore) int64 {
	return c.Balances().GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemActiveStake))
}

// ============================================================
// Test: deposit through the full pipeline
// ============================================================

func TestProcessEvent_DepositProducesEnvelopeAndJournal(t *testing.T) {
	c, persistChan, _ := newTestCore(nil)

	res, err := c.ProcessEvent(mustStakeDeposited(uuid.New(), 100, 1_000_000, 0, openTime))
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if res == nil || res.StakeShares != 1_000 {
		t.Fatalf("result = %+v, want 1000 stake shares", res)
	}

	outputs := drainOutputs(persistChan)
	if len(outputs) != 1 {
		t.Fatalf("persist outputs = %d, want 1", len(outputs))
	}
	env := outputs[0].Envelope
	if env.Sequence != 0 {
		t.Errorf("envelope sequence = %d, want 0", env.Sequence)
	}
	if env.EventType != event.EventTypeStakeDeposited {
		t.Errorf("envelope type = %s", env.EventType)
	}
	if env.PrevHash != [32]byte{} {
		t.Error("first envelope should chain from the zero hash")
	}
	if env.StateHash == [32]byte{} {
		t.Error("state hash not set")
	}
	if len(outputs[0].Batch.Journals) != 1 {
		t.Fatalf("journals = %d, want 1", len(outputs[0].Batch.Journals))
	}

	if got := activeStakeBalance(c); got != 1_000_000 {
		t.Errorf("active stake custody = %d, want 1000000", got)
	}
	deposits := c.Balances().GetBalance(ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits))
	if deposits != -1_000_000 {
		t.Errorf("external deposits = %d, want -1000000", deposits)
	}
	if c.GetSequence() != 1 {
		t.Errorf("sequence = %d, want 1", c.GetSequence())
	}
}

// ============================================================
// Test: idempotency
// ============================================================

func TestProcessEvent_DuplicateIsSilentlySkipped(t *testing.T) {
	c, persistChan, _ := newTestCore(nil)

	evt := mustStakeDeposited(uuid.New(), 100, 1_000_000, 0, openTime)
	if _, err := c.ProcessEvent(evt); err != nil {
		t.Fatal(err)
	}

	res, err := c.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("duplicate submission: %v", err)
	}
	if res != nil {
		t.Errorf("duplicate result = %+v, want nil", res)
	}

	if got := len(drainOutputs(persistChan)); got != 1 {
		t.Errorf("persist outputs = %d, want 1 (duplicate emits nothing)", got)
	}
	if got := activeStakeBalance(c); got != 1_000_000 {
		t.Errorf("active stake = %d, double-applied", got)
	}
	if c.GetSequence() != 1 {
		t.Errorf("sequence = %d, want 1", c.GetSequence())
	}
}

// ============================================================
// Test: capability enforcement
// ============================================================

func TestProcessEvent_RoleEnforcement(t *testing.T) {
	c, _, _ := newTestCore(nil)

	burn := &event.StakeBurned{
		RequestID: uuid.New(),
		Amount:    100,
		Sequence:  0,
		Timestamp: openTime,
		Role:      event.RoleMember,
	}
	if _, err := c.ProcessEvent(burn); !errors.Is(err, pool.ErrOnlyCoverContract) {
		t.Errorf("member burn: err = %v, want ErrOnlyCoverContract", err)
	}

	prod := mustProductUpdated(1, 0, openTime)
	prod.Role = event.RoleCover
	if _, err := c.ProcessEvent(prod); err == nil {
		t.Error("cover-role product update should be rejected")
	}

	if c.GetSequence() != 0 {
		t.Errorf("sequence advanced to %d on rejected events", c.GetSequence())
	}
}

// ============================================================
// Test: per-partition sequence validation
// ============================================================

func TestProcessEvent_SequenceOrdering(t *testing.T) {
	c, _, _ := newTestCore(nil)
	position := uuid.New()

	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}

	// Gap: staking partition expects 1 next.
	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000, 2, openTime)); err == nil {
		t.Error("sequence gap should be rejected")
	}

	// A new event reusing an old sequence is out of order, not a dup.
	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000, 0, openTime)); err == nil {
		t.Error("out-of-order new event should be rejected")
	}

	// The expected sequence still goes through.
	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000, 1, openTime)); err != nil {
		t.Errorf("in-order event rejected: %v", err)
	}

	// Partitions are independent: governance starts at its own zero.
	if _, err := c.ProcessEvent(mustProductUpdated(1, 0, openTime)); err != nil {
		t.Errorf("governance sequence 0 rejected: %v", err)
	}
}

// ============================================================
// Test: hash chain
// ============================================================

func TestProcessEvent_HashChainAdvances(t *testing.T) {
	c, persistChan, _ := newTestCore(nil)
	position := uuid.New()

	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ProcessEvent(mustStakeDeposited(position, 101, 2_000_000, 1, openTime+10)); err != nil {
		t.Fatal(err)
	}

	outputs := drainOutputs(persistChan)
	if len(outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(outputs))
	}
	first, second := outputs[0].Envelope, outputs[1].Envelope
	if second.PrevHash != first.StateHash {
		t.Error("second envelope does not chain from the first")
	}
	if second.StateHash == first.StateHash {
		t.Error("state hash did not change across events")
	}
	if c.GetStateHash() != second.StateHash {
		t.Error("chain tip does not match last envelope")
	}
}

// ============================================================
// Test: withdrawal pays the owner, not the submitter
// ============================================================

type staticOwners map[uuid.UUID]uuid.UUID

func (s staticOwners) Owner(position uuid.UUID) uuid.UUID {
	if owner, ok := s[position]; ok {
		return owner
	}
	return position
}

func TestProcessEvent_WithdrawalPaysOwner(t *testing.T) {
	position := uuid.New()
	owner := uuid.New()
	c, persistChan, _ := newTestCore(staticOwners{position: owner})

	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}
	drainOutputs(persistChan)

	// Withdrawing after tranche 100's end forces the clock across three
	// bucket boundaries and the tranche boundary first.
	after := pool.TrancheEnd(100) + 1
	res, err := c.ProcessEvent(mustWithdrawalRequested(position, true, false, []int64{100}, 1, after))
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if res.StakeWithdrawn != 1_000_000 {
		t.Errorf("StakeWithdrawn = %d, want 1000000", res.StakeWithdrawn)
	}

	outputs := drainOutputs(persistChan)
	if len(outputs) != 5 {
		t.Fatalf("outputs = %d, want 3 buckets + 1 tranche + withdrawal", len(outputs))
	}
	var sawTrancheExpiry bool
	for _, out := range outputs[:4] {
		if out.Envelope.EventType == event.EventTypeTrancheExpired {
			sawTrancheExpiry = true
			if out.Batch == nil || len(out.Batch.Journals) != 1 {
				t.Error("tranche expiry should carry a custody-move journal")
			}
		}
	}
	if !sawTrancheExpiry {
		t.Error("no TrancheExpired envelope among boundary outputs")
	}

	payout := c.Balances().GetBalance(ledger.NewMemberAccountKey(owner, ledger.SubTypePayout))
	if payout != 1_000_000 {
		t.Errorf("owner payout = %d, want 1000000", payout)
	}
	if self := c.Balances().GetBalance(ledger.NewMemberAccountKey(position, ledger.SubTypePayout)); self != 0 {
		t.Errorf("position payout = %d, want 0", self)
	}
	if expired := c.Balances().GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemExpiredStake)); expired != 0 {
		t.Errorf("expired stake custody = %d, want 0 after payout", expired)
	}
}

// ============================================================
// Test: rejected events keep their boundary crossings
// ============================================================

func TestProcessEvent_RejectedEventStillCommitsBoundaries(t *testing.T) {
	position := uuid.New()
	c, persistChan, _ := newTestCore(nil)

	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 1_000_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}
	drainOutputs(persistChan)

	// A rejected deposit arriving past tranche 100's end still drives
	// the clock; the crossings it triggered must reach the log and the
	// custodian even though the deposit itself fails.
	after := pool.TrancheEnd(100) + 1
	if _, err := c.ProcessEvent(mustStakeDeposited(position, 100, 0, 1, after)); err == nil {
		t.Fatal("zero-amount deposit should be rejected")
	}

	outputs := drainOutputs(persistChan)
	if len(outputs) != 4 {
		t.Fatalf("outputs = %d, want 3 buckets + 1 tranche from the rejected event", len(outputs))
	}
	var sawTrancheExpiry bool
	for _, out := range outputs {
		if out.Envelope.EventType == event.EventTypeTrancheExpired {
			sawTrancheExpiry = true
			if out.Batch == nil || len(out.Batch.Journals) != 1 {
				t.Error("tranche expiry should carry a custody-move journal")
			}
		}
	}
	if !sawTrancheExpiry {
		t.Fatal("no TrancheExpired envelope from the rejected event")
	}
	expired := c.Balances().GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemExpiredStake))
	if expired != 1_000_000 {
		t.Errorf("expired stake custody = %d, want 1000000", expired)
	}

	// The depositor can still collect the expired stake afterwards.
	res, err := c.ProcessEvent(mustWithdrawalRequested(position, true, false, []int64{100}, 2, after+1))
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if res.StakeWithdrawn != 1_000_000 {
		t.Errorf("StakeWithdrawn = %d, want 1000000", res.StakeWithdrawn)
	}
	if payout := c.Balances().GetBalance(ledger.NewMemberAccountKey(position, ledger.SubTypePayout)); payout != 1_000_000 {
		t.Errorf("payout = %d, want 1000000", payout)
	}
}

// ============================================================
// Test: sweeps emit their boundaries as log events
// ============================================================

func TestProcessEvent_SweepEmitsBoundaryEnvelope(t *testing.T) {
	c, persistChan, _ := newTestCore(nil)

	sweep := &event.ClockSweep{
		SweepID:   uuid.New(),
		Sequence:  1,
		Timestamp: pool.BucketEnd(325),
		Role:      event.RoleOperator,
	}
	if _, err := c.ProcessEvent(sweep); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	outputs := drainOutputs(persistChan)
	if len(outputs) != 2 {
		t.Fatalf("outputs = %d, want boundary + sweep", len(outputs))
	}
	boundary := outputs[0].Envelope
	if boundary.EventType != event.EventTypeBucketExpired {
		t.Errorf("first envelope type = %s, want BucketExpired", boundary.EventType)
	}
	if boundary.IdempotencyKey != "bucket-expired:325" {
		t.Errorf("boundary idempotency key = %q", boundary.IdempotencyKey)
	}
	if outputs[1].Envelope.EventType != event.EventTypeClockSweep {
		t.Errorf("second envelope type = %s, want ClockSweep", outputs[1].Envelope.EventType)
	}
	if boundary.Sequence+1 != outputs[1].Envelope.Sequence {
		t.Error("boundary and sweep sequences not consecutive")
	}
	if got := c.Pool().FirstActiveBucketID; got != 326 {
		t.Errorf("FirstActiveBucketID = %d, want 326", got)
	}
}

// ============================================================
// Test: allocation lifecycle with custody accounting
// ============================================================

func TestProcessEvent_AllocationLifecycle(t *testing.T) {
	c, persistChan, _ := newTestCore(nil)

	if _, err := c.ProcessEvent(mustStakeDeposited(uuid.New(), 107, 10_000_000_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ProcessEvent(mustProductUpdated(1, 0, openTime)); err != nil {
		t.Fatal(err)
	}

	res, err := c.ProcessEvent(mustAllocationRequested(1, 8_000, 0, openTime))
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if res.AllocationID != 1 || res.Premium != 13_150_684 || res.RewardsMinted != 4_838_400 {
		t.Fatalf("allocation result = %+v", res)
	}

	rewardsKey := ledger.NewSystemAccountKey(ledger.SubTypeSystemRewards)
	if got := c.Balances().GetBalance(rewardsKey); got != 4_838_400 {
		t.Errorf("rewards custody = %d, want 4838400", got)
	}

	dealloc := &event.DeallocationRequested{
		RequestID:    uuid.New(),
		AllocationID: res.AllocationID,
		Sequence:     1,
		Timestamp:    openTime + 1_000,
		Role:         event.RoleCover,
	}
	dres, err := c.ProcessEvent(dealloc)
	if err != nil {
		t.Fatalf("deallocation: %v", err)
	}
	if dres.RewardsReverted != 4_837_400 {
		t.Errorf("RewardsReverted = %d, want 4837400", dres.RewardsReverted)
	}
	// The thousand seconds already streamed stay in custody.
	if got := c.Balances().GetBalance(rewardsKey); got != 1_000 {
		t.Errorf("rewards custody = %d, want 1000 after revoke", got)
	}

	burn := &event.StakeBurned{
		RequestID: uuid.New(),
		Amount:    500_000,
		Sequence:  2,
		Timestamp: openTime + 1_001,
		Role:      event.RoleCover,
	}
	bres, err := c.ProcessEvent(burn)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if bres.Burned != 500_000 || bres.PoolHalted {
		t.Errorf("burn result = %+v", bres)
	}
	if got := activeStakeBalance(c); got != 9_999_500_000 {
		t.Errorf("active stake custody = %d, want 9999500000", got)
	}
	if got := c.Balances().GetBalance(ledger.NewExternalAccountKey(ledger.SubTypeExternalBurns)); got != 500_000 {
		t.Errorf("external burns = %d, want 500000", got)
	}

	drainOutputs(persistChan)
}

// ============================================================
// Test: snapshot restore reproduces the hash chain
// ============================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	live, livePersist, _ := newTestCore(nil)
	position := uuid.New()

	if _, err := live.ProcessEvent(mustStakeDeposited(position, 100, 1_000_000, 0, openTime)); err != nil {
		t.Fatal(err)
	}

	snap := live.CreateSnapshotState()
	if snap.Sequence != 0 {
		t.Fatalf("snapshot sequence = %d, want 0", snap.Sequence)
	}
	if snap.StateHash != live.GetStateHash() {
		t.Fatal("snapshot hash does not match chain tip")
	}

	restored, restoredPersist, _ := newTestCore(nil)
	restored.RestoreFromSnapshot(snap)

	if restored.GetSequence() != live.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", restored.GetSequence(), live.GetSequence())
	}
	if restored.Pool().ActiveStake != 1_000_000 {
		t.Errorf("restored ActiveStake = %d, want 1000000", restored.Pool().ActiveStake)
	}
	if got := activeStakeBalance(restored); got != 1_000_000 {
		t.Errorf("restored custody = %d, want 1000000", got)
	}

	// The same next event must produce the same state hash on both.
	next := mustStakeDeposited(position, 101, 2_000_000, 1, openTime+10)
	if _, err := live.ProcessEvent(next); err != nil {
		t.Fatalf("live: %v", err)
	}
	if _, err := restored.ProcessEvent(next); err != nil {
		t.Fatalf("restored: %v", err)
	}

	liveOut := drainOutputs(livePersist)
	restoredOut := drainOutputs(restoredPersist)
	liveEnv := liveOut[len(liveOut)-1].Envelope
	restoredEnv := restoredOut[len(restoredOut)-1].Envelope
	if liveEnv.StateHash != restoredEnv.StateHash {
		t.Error("restored core diverged from live hash chain")
	}
	if liveEnv.PrevHash != restoredEnv.PrevHash {
		t.Error("restored core chains from a different tip")
	}
}

// ============================================================
// Test: log replay bypasses the DB idempotency tier
// ============================================================

// loggedChecker stands in for the Postgres tier during replay: every
// row being replayed is in the log it queries, so it answers "seen"
// for everything.
type loggedChecker struct{}

func (loggedChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	return true, nil
}

func TestProcessEvent_ReplayBypassesDBIdempotency(t *testing.T) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	p := pool.NewPool(openTime, testManager, 0, pool.MaxFeeCeiling)
	c := core.NewDeterministicCore(0, p, nil, persistChan, projChan, loggedChecker{}, nil)

	evt := mustStakeDeposited(uuid.New(), 100, 1_000_000, 0, openTime)

	c.SetReplayMode(true)
	res, err := c.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("replayed deposit: %v", err)
	}
	if res == nil || res.StakeShares != 1_000 {
		t.Fatalf("replayed result = %+v, want 1000 stake shares", res)
	}
	if c.Pool().ActiveStake != 1_000_000 {
		t.Errorf("ActiveStake = %d, want 1000000", c.Pool().ActiveStake)
	}
	if got := activeStakeBalance(c); got != 1_000_000 {
		t.Errorf("active stake custody = %d, want 1000000", got)
	}
	if c.GetSequence() != 1 {
		t.Errorf("sequence = %d, want 1", c.GetSequence())
	}
	// Rows already live in the log; replay must not re-emit them.
	if got := len(drainOutputs(persistChan)); got != 0 {
		t.Errorf("replay emitted %d outputs, want 0", got)
	}
	c.SetReplayMode(false)

	// A redelivery of the replayed event after startup is deduplicated
	// by the LRU the replay populated.
	res, err = c.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res != nil {
		t.Errorf("redelivery result = %+v, want nil", res)
	}
	if c.Pool().ActiveStake != 1_000_000 {
		t.Errorf("ActiveStake = %d, double-applied on redelivery", c.Pool().ActiveStake)
	}
}
