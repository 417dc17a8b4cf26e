// internal/pool/constants.go
package pool

// Time grid. Tranches and buckets are independent fixed windows counted
// from the unix epoch.
const (
	DaySeconds      int64 = 24 * 60 * 60
	TrancheDuration int64 = 91 * DaySeconds
	BucketDuration  int64 = 28 * DaySeconds
	SecondsPerYear  int64 = 365 * DaySeconds

	// MaxActiveTranches is the width of the stakeable window.
	MaxActiveTranches = 8

	// GroupSize is the number of consecutive tranche slots packed into
	// one allocation counter group.
	GroupSize = 8
)

// Capacity and unit scaling.
const (
	// AllocationUnit is the number of coins represented by one
	// allocation unit. Cover amounts are rounded up to whole units
	// exactly once, at the top of an allocation request.
	AllocationUnit int64 = 1_000_000

	CapacityDenominator          int64 = 10_000
	CapacityReductionDenominator int64 = 10_000
	WeightDenominator            int64 = 100
	RewardsDenominator           int64 = 10_000
)

// Pricing. Prices are expressed in basis points of cover amount per year.
const (
	PriceDenominator  int64 = 10_000
	PriceChangePerDay int64 = 50    // base price decay, bp per day
	PriceBumpRatio    int64 = 2_000 // bp of bump for consuming 100% of capacity
)

// Fees and rewards.
const (
	FeeDenominator int64 = 100
	MaxFeeCeiling  int64 = 50
)

// GracePeriod extends claimability of an expired cover. It narrows
// tranche eligibility at allocation time (a tranche must outlive
// coverEnd + grace to carry the cover); the committed capacity itself
// is released at the cover's expiring bucket, without a grace extension.
const GracePeriod int64 = 35 * DaySeconds

// MinActiveStake is the residue a burn must always leave behind so that
// share arithmetic never divides by zero.
const MinActiveStake int64 = 1

// TrancheAt returns the tranche occupying the given unix timestamp.
func TrancheAt(ts int64) int64 { return ts / TrancheDuration }

// BucketAt returns the bucket occupying the given unix timestamp.
func BucketAt(ts int64) int64 { return ts / BucketDuration }

// TrancheEnd returns the first timestamp after the tranche.
func TrancheEnd(id int64) int64 { return (id + 1) * TrancheDuration }

// BucketEnd returns the first timestamp after the bucket.
func BucketEnd(id int64) int64 { return (id + 1) * BucketDuration }

// GroupOf returns the allocation counter group holding the tranche slot.
func GroupOf(trancheID int64) int64 { return trancheID / GroupSize }
