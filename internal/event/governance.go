// internal/event/governance.go
package event

import "github.com/google/uuid"

// ProductUpdated creates or reconfigures a product this pool backs.
type ProductUpdated struct {
	RequestID    uuid.UUID
	ProductID    int64
	Weight       int64
	TargetPrice  int64
	InitialPrice int64
	FixedPrice   bool
	Sequence     int64
	Timestamp    int64
	Role         Role
}

func (p *ProductUpdated) IdempotencyKey() string { return p.RequestID.String() }
func (p *ProductUpdated) EventType() EventType   { return EventTypeProductUpdated }
func (p *ProductUpdated) SourceSequence() int64  { return p.Sequence }
func (p *ProductUpdated) UnixTime() int64        { return p.Timestamp }
func (p *ProductUpdated) Caller() Role           { return p.Role }

// PoolFeeUpdated changes the manager fee, capped at the pool's MaxFee.
type PoolFeeUpdated struct {
	RequestID uuid.UUID
	Fee       int64
	Sequence  int64
	Timestamp int64
	Role      Role
}

func (f *PoolFeeUpdated) IdempotencyKey() string { return f.RequestID.String() }
func (f *PoolFeeUpdated) EventType() EventType   { return EventTypePoolFeeUpdated }
func (f *PoolFeeUpdated) SourceSequence() int64  { return f.Sequence }
func (f *PoolFeeUpdated) UnixTime() int64        { return f.Timestamp }
func (f *PoolFeeUpdated) Caller() Role           { return f.Role }

// GovernanceHoldSet mirrors an external lock on the manager's stake.
type GovernanceHoldSet struct {
	RequestID uuid.UUID
	Locked    bool
	Sequence  int64
	Timestamp int64
	Role      Role
}

func (g *GovernanceHoldSet) IdempotencyKey() string { return g.RequestID.String() }
func (g *GovernanceHoldSet) EventType() EventType   { return EventTypeGovernanceHoldSet }
func (g *GovernanceHoldSet) SourceSequence() int64  { return g.Sequence }
func (g *GovernanceHoldSet) UnixTime() int64        { return g.Timestamp }
func (g *GovernanceHoldSet) Caller() Role           { return g.Role }
