package ingestion

import (
	"CoverPool/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual event injection via gRPC.
// gRPC ingest is for admin operations and manual event injection, not for
// high-throughput ingestion (use NATS for that).
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// InjectDeposit manually injects a StakeDeposited event.
func (s *GRPCIngestService) InjectDeposit(
	ctx context.Context,
	position uuid.UUID,
	trancheID int64,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now()
	evt := &event.StakeDeposited{
		RequestID: uuid.New(),
		Position:  position,
		TrancheID: trancheID,
		Amount:    amount,
		Sequence:  now.UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp: now.Unix(),
		Role:      event.RoleMember,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectWithdrawal manually injects a WithdrawalRequested event.
func (s *GRPCIngestService) InjectWithdrawal(
	ctx context.Context,
	position uuid.UUID,
	withdrawStake bool,
	withdrawRewards bool,
	trancheIDs []int64,
) error {
	if len(trancheIDs) == 0 {
		return fmt.Errorf("tranche_ids must not be empty")
	}

	now := time.Now()
	evt := &event.WithdrawalRequested{
		RequestID:       uuid.New(),
		Position:        position,
		WithdrawStake:   withdrawStake,
		WithdrawRewards: withdrawRewards,
		TrancheIDs:      trancheIDs,
		Sequence:        now.UnixMicro(),
		Timestamp:       now.Unix(),
		Role:            event.RoleMember,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectProductUpdate manually injects a ProductUpdated event.
func (s *GRPCIngestService) InjectProductUpdate(
	ctx context.Context,
	productID int64,
	weight int64,
	targetPrice int64,
	initialPrice int64,
	fixedPrice bool,
) error {
	now := time.Now()
	evt := &event.ProductUpdated{
		RequestID:    uuid.New(),
		ProductID:    productID,
		Weight:       weight,
		TargetPrice:  targetPrice,
		InitialPrice: initialPrice,
		FixedPrice:   fixedPrice,
		Sequence:     now.UnixMicro(),
		Timestamp:    now.Unix(),
		Role:         event.RoleGovernance,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFeeUpdate manually injects a PoolFeeUpdated event.
func (s *GRPCIngestService) InjectFeeUpdate(
	ctx context.Context,
	fee int64,
) error {
	if fee < 0 {
		return fmt.Errorf("fee must not be negative")
	}

	now := time.Now()
	evt := &event.PoolFeeUpdated{
		RequestID: uuid.New(),
		Fee:       fee,
		Sequence:  now.UnixMicro(),
		Timestamp: now.Unix(),
		Role:      event.RoleGovernance,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectSweep manually injects a ClockSweep event, the same event the
// scheduler emits on its cron cadence.
func (s *GRPCIngestService) InjectSweep(ctx context.Context) error {
	now := time.Now()
	evt := &event.ClockSweep{
		SweepID:   uuid.New(),
		Sequence:  now.UnixMicro(),
		Timestamp: now.Unix(),
		Role:      event.RoleOperator,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
