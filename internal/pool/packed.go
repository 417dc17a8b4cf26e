// internal/pool/packed.go
package pool

// AllocationGroup packs the active allocation units of GroupSize
// consecutive tranches of one product into fixed-width slots, plus the
// bucket id up to which expiring covers have already been folded out.
// Slot reads and writes are O(1); a fresh read first settles any buckets
// the group missed while untouched.
type AllocationGroup struct {
	LastBucketID int64
	slots        [GroupSize]uint32
}

// Slot returns the active units for a tranche within this group.
func (g *AllocationGroup) Slot(trancheID int64) int64 {
	return int64(g.slots[trancheID%GroupSize])
}

// AddSlot commits units against a tranche.
func (g *AllocationGroup) AddSlot(trancheID, units int64) {
	g.slots[trancheID%GroupSize] += uint32(units)
}

// SubSlot releases units from a tranche, clamping at zero. Clamping
// covers units that a burn-driven deallocation already removed.
func (g *AllocationGroup) SubSlot(trancheID, units int64) {
	i := trancheID % GroupSize
	if int64(g.slots[i]) <= units {
		g.slots[i] = 0
		return
	}
	g.slots[i] -= uint32(units)
}

// AmountGroup holds per-tranche expiring units for one (product, bucket,
// group) triple. No staleness field: the owning map key carries the bucket.
type AmountGroup struct {
	slots [GroupSize]uint32
}

// Slot returns the expiring units for a tranche within this group.
func (g *AmountGroup) Slot(trancheID int64) int64 {
	return int64(g.slots[trancheID%GroupSize])
}

// AddSlot records units that will expire when the bucket is entered.
func (g *AmountGroup) AddSlot(trancheID, units int64) {
	g.slots[trancheID%GroupSize] += uint32(units)
}

// SubSlot removes expiring units, clamping at zero.
func (g *AmountGroup) SubSlot(trancheID, units int64) {
	i := trancheID % GroupSize
	if int64(g.slots[i]) <= units {
		g.slots[i] = 0
		return
	}
	g.slots[i] -= uint32(units)
}

func (p *Pool) group(productID, groupID int64) *AllocationGroup {
	groups := p.active[productID]
	if groups == nil {
		groups = make(map[int64]*AllocationGroup)
		p.active[productID] = groups
	}
	g := groups[groupID]
	if g == nil {
		g = &AllocationGroup{LastBucketID: p.FirstActiveBucketID}
		groups[groupID] = g
	}
	return g
}

func (p *Pool) expiringGroup(productID, bucketID, groupID int64) *AmountGroup {
	key := ExpiringKey{ProductID: productID, BucketID: bucketID, GroupID: groupID}
	g := p.expiring[key]
	if g == nil {
		g = &AmountGroup{}
		p.expiring[key] = g
	}
	return g
}

// settleGroup folds every bucket the group missed into its slots: units of
// covers that expired in buckets (LastBucketID, current] stop counting as
// active. Consumed expiring groups are deleted.
func (p *Pool) settleGroup(productID, groupID int64, g *AllocationGroup) {
	current := p.FirstActiveBucketID
	for b := g.LastBucketID + 1; b <= current; b++ {
		key := ExpiringKey{ProductID: productID, BucketID: b, GroupID: groupID}
		eg := p.expiring[key]
		if eg == nil {
			continue
		}
		for i := int64(0); i < GroupSize; i++ {
			g.SubSlot(i, eg.Slot(i))
		}
		delete(p.expiring, key)
	}
	g.LastBucketID = current
}

// ActiveAllocationUnits returns the settled active units for the
// MaxActiveTranches window starting at firstTrancheID.
func (p *Pool) ActiveAllocationUnits(productID, firstTrancheID int64) [MaxActiveTranches]int64 {
	var units [MaxActiveTranches]int64
	for i := int64(0); i < MaxActiveTranches; i++ {
		trancheID := firstTrancheID + i
		groupID := GroupOf(trancheID)
		g := p.group(productID, groupID)
		p.settleGroup(productID, groupID, g)
		units[i] = g.Slot(trancheID)
	}
	return units
}
