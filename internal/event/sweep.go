// internal/event/sweep.go
package event

import (
	"fmt"

	"github.com/google/uuid"
)

// ClockSweep nudges the pool clock forward when no organic traffic
// arrives. Each sweep processes at most one boundary; the scheduler keeps
// sweeping until the clock is current.
type ClockSweep struct {
	SweepID   uuid.UUID
	Sequence  int64
	Timestamp int64
	Role      Role
}

func (s *ClockSweep) IdempotencyKey() string { return s.SweepID.String() }
func (s *ClockSweep) EventType() EventType   { return EventTypeClockSweep }
func (s *ClockSweep) SourceSequence() int64  { return s.Sequence }
func (s *ClockSweep) UnixTime() int64        { return s.Timestamp }
func (s *ClockSweep) Caller() Role           { return s.Role }

// TrancheExpired is derived by the core when the clock crosses a tranche
// boundary. It is persisted and published, never ingested.
type TrancheExpired struct {
	TrancheID           int64
	StakeAtExpiry       int64
	ShareSupplyAtExpiry int64
	AccAtExpiry         int64
	Sequence            int64
	Timestamp           int64 // the boundary, not the triggering event
}

func (t *TrancheExpired) IdempotencyKey() string {
	return fmt.Sprintf("tranche-expired:%d", t.TrancheID)
}
func (t *TrancheExpired) EventType() EventType  { return EventTypeTrancheExpired }
func (t *TrancheExpired) SourceSequence() int64 { return t.Sequence }
func (t *TrancheExpired) UnixTime() int64       { return t.Timestamp }
func (t *TrancheExpired) Caller() Role          { return RoleOperator }

// BucketExpired is derived by the core when the clock enters a new bucket.
type BucketExpired struct {
	BucketID        int64
	RewardPerSecond int64 // pool-wide rate after the cut
	Sequence        int64
	Timestamp       int64
}

func (b *BucketExpired) IdempotencyKey() string {
	return fmt.Sprintf("bucket-expired:%d", b.BucketID)
}
func (b *BucketExpired) EventType() EventType  { return EventTypeBucketExpired }
func (b *BucketExpired) SourceSequence() int64 { return b.Sequence }
func (b *BucketExpired) UnixTime() int64       { return b.Timestamp }
func (b *BucketExpired) Caller() Role          { return RoleOperator }
