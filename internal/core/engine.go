package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/observability"
	"CoverPool/internal/pool"
)

// OwnerResolver maps a position to its current owner. Withdrawals always
// pay the owner, never the submitter; positions are transferable upstream.
type OwnerResolver interface {
	Owner(position uuid.UUID) uuid.UUID
}

// IdentityOwners treats every position as self-owned. Used when no
// external position registry is wired in.
type IdentityOwners struct{}

func (IdentityOwners) Owner(position uuid.UUID) uuid.UUID { return position }

// DeterministicCore is the single-threaded event processor. It owns the
// pool state and the custodian ledger; everything else in the process
// only sees its outputs.
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	pool              *pool.Pool
	owners            OwnerResolver
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	replaying         bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// Result carries the operation outcome back to the submitter and out to
// the outbound publisher. Fields are zero unless the operation set them.
type Result struct {
	AllocationID     int64 `json:"allocation_id,omitempty"`
	Premium          int64 `json:"premium,omitempty"`
	RewardsMinted    int64 `json:"rewards_minted,omitempty"`
	RewardsReverted  int64 `json:"rewards_reverted,omitempty"`
	Burned           int64 `json:"burned,omitempty"`
	StakeShares      int64 `json:"stake_shares,omitempty"`
	StakeWithdrawn   int64 `json:"stake_withdrawn,omitempty"`
	RewardsWithdrawn int64 `json:"rewards_withdrawn,omitempty"`
	PoolHalted       bool  `json:"pool_halted,omitempty"`
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	Result     *Result
	StateDelta []byte
}

// coreAction is one unit of output: a (possibly derived) event, its
// journal batch and its result. Boundary crossings become their own
// actions so the event log shows them explicitly.
type coreAction struct {
	evt    event.Event
	batch  *ledger.Batch
	result *Result
}

func NewDeterministicCore(
	startSequence int64,
	poolState *pool.Pool,
	owners OwnerResolver,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)

	if owners == nil {
		owners = IdentityOwners{}
	}

	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		pool:              poolState,
		owners:            owners,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline.
func (c *DeterministicCore) ProcessEvent(evt event.Event) (*Result, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check. Live traffic takes the two-tier lookup;
	// replay consults only the LRU, because every row being replayed is
	// already present in the log the DB tier queries.
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.IsDuplicateLocal(eventType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation. Sweeps are timestamp-derived and
	// tolerate gaps; everything else is strictly ordered per partition.
	if sweep, ok := evt.(*event.ClockSweep); ok {
		if err := c.sequenceValidator.ValidateSweepSequence(sweep.Sequence); err != nil {
			return nil, err
		}
	} else {
		partition := c.getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			return nil, fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil, nil
	}

	// Step 3: Capability check
	if err := requireRole(evt); err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "role").Inc()
		}
		return nil, err
	}

	// Step 4: Clock catch-up. The clock runs before the operation sees
	// the pool, so no operation ever reads stale boundaries. Sweeps step
	// a single boundary; everything else forces the clock to event time.
	now := evt.UnixTime()
	var boundaries []pool.BoundaryEvent
	if evt.EventType() == event.EventTypeClockSweep {
		boundaries = c.pool.CatchUp(now, false)
	} else {
		boundaries = c.pool.CatchUp(now, true)
	}

	actions, err := c.boundaryActions(boundaries, idempotencyKey, now)
	if err != nil {
		return nil, err
	}

	// Step 5: Event dispatch. The clock has already moved the pool past
	// the crossed boundaries, so the boundary actions commit whether or
	// not dispatch accepts the triggering event; dropping them would let
	// the log and the custodian drift away from pool state.
	action, dispatchErr := c.dispatchEvent(evt)
	if dispatchErr == nil {
		actions = append(actions, action)
	}

	// Step 6-9: apply, hash, wrap and emit each action
	result, err := c.commitActions(actions, evt)
	if err != nil {
		return nil, err
	}

	if dispatchErr != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return nil, fmt.Errorf("dispatch failed: %w", dispatchErr)
	}

	// Step 10: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 11: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return result, nil
}

// commitActions validates, applies, hashes and emits a run of actions.
// The returned result belongs to the action carrying the triggering
// event. During replay nothing is re-emitted; the rows are already in
// the log.
func (c *DeterministicCore) commitActions(actions []coreAction, triggering event.Event) (*Result, error) {
	outputs := make([]CoreOutput, 0, len(actions))
	var result *Result

	for _, a := range actions {
		if a.batch != nil && len(a.batch.Journals) > 0 {
			if err := c.validator.ValidateBatchBalance(a.batch); err != nil {
				panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
			}
			if err := c.balanceTracker.ApplyBatch(a.batch); err != nil {
				return nil, fmt.Errorf("apply batch failed: %w", err)
			}
		}

		stateDigest := c.computeStateDigest(a.batch)
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		payload, marshalErr := json.Marshal(a.evt)
		if marshalErr != nil {
			panic(fmt.Sprintf("FATAL: event marshal: %v", marshalErr))
		}

		envelope := &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: a.evt.IdempotencyKey(),
			EventType:      a.evt.EventType(),
			Timestamp:      time.Unix(a.evt.UnixTime(), 0).UTC(),
			SourceSequence: a.evt.SourceSequence(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		outputs = append(outputs, CoreOutput{
			Envelope:   envelope,
			Batch:      a.batch,
			Result:     a.result,
			StateDelta: stateDigest,
		})
		if a.evt == triggering {
			result = a.result
		}
		c.sequence++
	}

	if c.replaying {
		return result, nil
	}

	// Persist channel uses a BLOCKING send (backpressure, no event lost);
	// projection channel is non-blocking with silent drop, projections
	// rebuild from the log.
	for _, output := range outputs {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			// Dropped — projection catches up via rebuild
		}
	}

	return result, nil
}

// getPartition determines partition key for sequence validation. Each
// upstream numbers its own feed.
func (c *DeterministicCore) getPartition(evt event.Event) string {
	switch evt.EventType() {
	case event.EventTypeAllocationRequested,
		event.EventTypeDeallocationRequested,
		event.EventTypeStakeBurned:
		return "cover"
	case event.EventTypeProductUpdated,
		event.EventTypePoolFeeUpdated,
		event.EventTypeGovernanceHoldSet:
		return "governance"
	default:
		return "staking"
	}
}

// requireRole enforces the capability attached by ingestion. The core
// trusts roles, not transports: a staking subject can never carry a burn.
func requireRole(evt event.Event) error {
	switch evt.EventType() {
	case event.EventTypeAllocationRequested,
		event.EventTypeDeallocationRequested,
		event.EventTypeStakeBurned:
		if evt.Caller() != event.RoleCover {
			return pool.ErrOnlyCoverContract
		}
	case event.EventTypeProductUpdated,
		event.EventTypePoolFeeUpdated,
		event.EventTypeGovernanceHoldSet:
		if evt.Caller() != event.RoleGovernance {
			return fmt.Errorf("event %s requires governance capability, got %s",
				evt.EventType(), evt.Caller())
		}
	}
	return nil
}

// boundaryActions turns clock boundary crossings into derived log events.
// A tranche expiry also moves its stake from active to expired custody.
func (c *DeterministicCore) boundaryActions(boundaries []pool.BoundaryEvent, parentKey string, now int64) ([]coreAction, error) {
	actions := make([]coreAction, 0, len(boundaries))
	for _, b := range boundaries {
		switch b.Kind {
		case pool.BoundaryTrancheExpired:
			snap := c.pool.ExpiredTrancheSnapshot(b.ID)
			derived := &event.TrancheExpired{
				TrancheID: b.ID,
				Sequence:  c.sequence,
				Timestamp: b.At,
			}
			var batch *ledger.Batch
			if snap != nil {
				derived.StakeAtExpiry = snap.StakeAtExpiry
				derived.ShareSupplyAtExpiry = snap.ShareSupplyAtExpiry
				derived.AccAtExpiry = snap.AccAtExpiry
				if snap.StakeAtExpiry > 0 {
					var err error
					batch, err = c.journalGen.GenerateTrancheExpiry(derived.IdempotencyKey(), snap.StakeAtExpiry, b.At)
					if err != nil {
						return nil, fmt.Errorf("tranche expiry journal: %w", err)
					}
				}
			}
			actions = append(actions, coreAction{evt: derived, batch: batch})

		case pool.BoundaryBucketExpired:
			derived := &event.BucketExpired{
				BucketID:        b.ID,
				RewardPerSecond: c.pool.RewardPerSecond,
				Sequence:        c.sequence,
				Timestamp:       b.At,
			}
			actions = append(actions, coreAction{evt: derived})
		}
	}
	return actions, nil
}

// computeStateDigest creates canonical bytes for the state hash: every
// account the batch touched (sorted by path) plus the pool's scalar core.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*48+96)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	for _, v := range []int64{
		c.pool.ActiveStake,
		c.pool.StakeSharesSupply,
		c.pool.RewardsSharesSupply,
		c.pool.RewardPerSecond,
		c.pool.AccRewardPerShare,
		c.pool.LastAccUpdate,
		c.pool.FirstActiveTrancheID,
		c.pool.FirstActiveBucketID,
		c.pool.NextAllocationID,
	} {
		digest = appendInt64LE(digest, v)
	}
	if c.pool.Halted {
		digest = append(digest, 1)
	} else {
		digest = append(digest, 0)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	switch evt.EventType() {
	case event.EventTypeWithdrawalRequested,
		event.EventTypeStakeBurned,
		event.EventTypeDeallocationRequested:
		if err := c.validator.ValidateCustodianNonNegative(); err != nil {
			return fmt.Errorf("post-check custodian: %w", err)
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check zero-sum at seq %d: %w", c.sequence, err)
		}
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (coreAction, error) {
	switch e := evt.(type) {
	case *event.StakeDeposited:
		return c.handleStakeDeposited(e)
	case *event.DepositExtended:
		return c.handleDepositExtended(e)
	case *event.WithdrawalRequested:
		return c.handleWithdrawalRequested(e)
	case *event.AllocationRequested:
		return c.handleAllocationRequested(e)
	case *event.DeallocationRequested:
		return c.handleDeallocationRequested(e)
	case *event.StakeBurned:
		return c.handleStakeBurned(e)
	case *event.ProductUpdated:
		return c.handleProductUpdated(e)
	case *event.PoolFeeUpdated:
		return c.handlePoolFeeUpdated(e)
	case *event.GovernanceHoldSet:
		return c.handleGovernanceHoldSet(e)
	case *event.ClockSweep:
		// Clock work already ran; the sweep itself only marks the log.
		return coreAction{evt: e, result: &Result{PoolHalted: c.pool.Halted}}, nil
	default:
		return coreAction{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) handleStakeDeposited(evt *event.StakeDeposited) (coreAction, error) {
	res, err := c.pool.DepositStake(evt.Timestamp, evt.Position, evt.TrancheID, evt.Amount)
	if err != nil {
		return coreAction{}, err
	}

	batch, err := c.journalGen.GenerateDeposit(evt.IdempotencyKey(), evt.Amount, evt.Timestamp)
	if err != nil {
		return coreAction{}, err
	}

	return coreAction{
		evt:    evt,
		batch:  batch,
		result: &Result{StakeShares: res.StakeShares},
	}, nil
}

func (c *DeterministicCore) handleDepositExtended(evt *event.DepositExtended) (coreAction, error) {
	res, err := c.pool.ExtendDeposit(evt.Timestamp, evt.Position, evt.FromTrancheID, evt.ToTrancheID, evt.TopUpAmount)
	if err != nil {
		return coreAction{}, err
	}

	var batch *ledger.Batch
	if evt.TopUpAmount > 0 {
		batch, err = c.journalGen.GenerateDeposit(evt.IdempotencyKey(), evt.TopUpAmount, evt.Timestamp)
		if err != nil {
			return coreAction{}, err
		}
	}

	return coreAction{
		evt:    evt,
		batch:  batch,
		result: &Result{StakeShares: res.StakeShares},
	}, nil
}

func (c *DeterministicCore) handleWithdrawalRequested(evt *event.WithdrawalRequested) (coreAction, error) {
	res, err := c.pool.Withdraw(evt.Timestamp, evt.Position, evt.WithdrawStake, evt.WithdrawRewards, evt.TrancheIDs)
	if err != nil {
		return coreAction{}, err
	}

	// Funds go to the current owner, not the submitter.
	var batch *ledger.Batch
	if res.Stake > 0 || res.Rewards > 0 {
		owner := c.owners.Owner(evt.Position)
		batch, err = c.journalGen.GenerateWithdrawal(evt.IdempotencyKey(), owner, res.Stake, res.Rewards, evt.Timestamp)
		if err != nil {
			return coreAction{}, err
		}
	}

	return coreAction{
		evt:   evt,
		batch: batch,
		result: &Result{
			StakeWithdrawn:   res.Stake,
			RewardsWithdrawn: res.Rewards,
		},
	}, nil
}

func (c *DeterministicCore) handleAllocationRequested(evt *event.AllocationRequested) (coreAction, error) {
	res, err := c.pool.RequestAllocation(evt.Timestamp, pool.AllocationRequest{
		ProductID:              evt.ProductID,
		Amount:                 evt.Amount,
		Period:                 evt.Period,
		RewardsRatio:           evt.RewardsRatio,
		CapacityRatio:          evt.CapacityRatio,
		CapacityReductionRatio: evt.CapacityReductionRatio,
	})
	if err != nil {
		return coreAction{}, err
	}

	var batch *ledger.Batch
	if res.RewardsMinted > 0 {
		batch, err = c.journalGen.GenerateRewardMint(evt.IdempotencyKey(), res.RewardsMinted, evt.Timestamp)
		if err != nil {
			return coreAction{}, err
		}
	}

	return coreAction{
		evt:   evt,
		batch: batch,
		result: &Result{
			AllocationID:  res.AllocationID,
			Premium:       res.Premium,
			RewardsMinted: res.RewardsMinted,
		},
	}, nil
}

func (c *DeterministicCore) handleDeallocationRequested(evt *event.DeallocationRequested) (coreAction, error) {
	res, err := c.pool.RequestDeallocation(evt.Timestamp, evt.AllocationID)
	if err != nil {
		return coreAction{}, err
	}

	var batch *ledger.Batch
	if res.RewardsReverted > 0 {
		batch, err = c.journalGen.GenerateRewardRevoke(evt.IdempotencyKey(), res.RewardsReverted, evt.Timestamp)
		if err != nil {
			return coreAction{}, err
		}
	}

	return coreAction{
		evt:    evt,
		batch:  batch,
		result: &Result{RewardsReverted: res.RewardsReverted},
	}, nil
}

func (c *DeterministicCore) handleStakeBurned(evt *event.StakeBurned) (coreAction, error) {
	res, err := c.pool.BurnStake(evt.Timestamp, pool.BurnRequest{
		Amount:             evt.Amount,
		AllocationID:       evt.AllocationID,
		DeallocationAmount: evt.DeallocationAmount,
	})
	if err != nil {
		return coreAction{}, err
	}

	var batch *ledger.Batch
	if res.Burned > 0 {
		batch, err = c.journalGen.GenerateStakeBurn(evt.IdempotencyKey(), res.Burned, evt.Timestamp)
		if err != nil {
			return coreAction{}, err
		}
	}

	return coreAction{
		evt:   evt,
		batch: batch,
		result: &Result{
			Burned:     res.Burned,
			PoolHalted: res.Halted,
		},
	}, nil
}

func (c *DeterministicCore) handleProductUpdated(evt *event.ProductUpdated) (coreAction, error) {
	err := c.pool.SetProduct(evt.Timestamp, pool.ProductParams{
		ProductID:    evt.ProductID,
		Weight:       evt.Weight,
		TargetPrice:  evt.TargetPrice,
		InitialPrice: evt.InitialPrice,
		FixedPrice:   evt.FixedPrice,
	})
	if err != nil {
		return coreAction{}, err
	}
	return coreAction{evt: evt, result: &Result{}}, nil
}

func (c *DeterministicCore) handlePoolFeeUpdated(evt *event.PoolFeeUpdated) (coreAction, error) {
	if err := c.pool.SetFee(evt.Timestamp, evt.Fee); err != nil {
		return coreAction{}, err
	}
	return coreAction{evt: evt, result: &Result{}}, nil
}

func (c *DeterministicCore) handleGovernanceHoldSet(evt *event.GovernanceHoldSet) (coreAction, error) {
	c.pool.SetManagerLocked(evt.Timestamp, evt.Locked)
	return coreAction{evt: evt, result: &Result{}}, nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Pool            *pool.Snapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a
// snapshot. On warm restart the latest snapshot loads first, then the
// event log replays on top.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign

	c.hasher.SetPrevHash(snap.StateHash)

	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	if snap.Pool != nil {
		c.pool = pool.FromSnapshot(snap.Pool)
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	c.journalGen.SetSequence(snap.Sequence)
}

// SetReplayMode toggles log replay. In replay mode the DB idempotency
// tier is bypassed — it would flag every row of the log being replayed —
// and outputs are not re-emitted to the persist/projection workers.
func (c *DeterministicCore) SetReplayMode(on bool) {
	c.replaying = on
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Pool exposes the pool for single-threaded callers (tests, snapshots).
func (c *DeterministicCore) Pool() *pool.Pool {
	return c.pool
}

// Balances exposes the custodian tracker for single-threaded callers.
func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Pool:            c.pool.ToSnapshot(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
