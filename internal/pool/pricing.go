// internal/pool/pricing.go
package pool

import "CoverPool/internal/fpmath"

// Product is one cover product this pool backs. Prices are basis points
// of cover amount per year of cover.
type Product struct {
	ID          int64
	Weight      int64 // share of tranche stake usable as capacity, out of WeightDenominator
	TargetPrice int64 // floor the base price decays toward
	FixedPrice  bool  // fixed-price products skip decay and bumps

	BumpedPrice           int64
	BumpedPriceUpdateTime int64
}

// ProductParams carries a governance product update.
type ProductParams struct {
	ProductID    int64
	Weight       int64
	TargetPrice  int64
	InitialPrice int64
	FixedPrice   bool
}

// SetProduct creates or updates a product. New products start their price
// decay from InitialPrice; updates leave the bumped price untouched.
func (p *Pool) SetProduct(now int64, params ProductParams) error {
	p.CatchUp(now, true)

	if params.Weight < 0 || params.Weight > WeightDenominator {
		return errWeightOutOfRange(params.Weight)
	}
	if params.TargetPrice < 0 || params.TargetPrice > PriceDenominator {
		return errPriceOutOfRange(params.TargetPrice)
	}

	prod := p.products[params.ProductID]
	if prod == nil {
		initial := params.InitialPrice
		if initial < params.TargetPrice {
			initial = params.TargetPrice
		}
		p.products[params.ProductID] = &Product{
			ID:                    params.ProductID,
			Weight:                params.Weight,
			TargetPrice:           params.TargetPrice,
			FixedPrice:            params.FixedPrice,
			BumpedPrice:           initial,
			BumpedPriceUpdateTime: now,
		}
		return nil
	}

	prod.Weight = params.Weight
	prod.TargetPrice = params.TargetPrice
	prod.FixedPrice = params.FixedPrice
	return nil
}

// BasePrice returns the product's current price: the bumped price decayed
// by PriceChangePerDay per day since the last bump, floored at the target.
func (prod *Product) BasePrice(now int64) int64 {
	if prod.FixedPrice {
		return prod.TargetPrice
	}
	elapsed := now - prod.BumpedPriceUpdateTime
	if elapsed < 0 {
		elapsed = 0
	}
	drop := fpmath.MulDiv(elapsed, PriceChangePerDay, DaySeconds, fpmath.RoundDown)
	if prod.BumpedPrice-drop < prod.TargetPrice {
		return prod.TargetPrice
	}
	return prod.BumpedPrice - drop
}

// bump raises the stored price in proportion to the share of total
// capacity this allocation consumed and restarts the decay from now.
func (prod *Product) bump(now, amountUnits, totalCapacityUnits int64) {
	if prod.FixedPrice {
		return
	}
	price := prod.BasePrice(now)
	if totalCapacityUnits > 0 {
		price += fpmath.MulDiv(PriceBumpRatio, amountUnits, totalCapacityUnits, fpmath.RoundDown)
	}
	prod.BumpedPrice = price
	prod.BumpedPriceUpdateTime = now
}

// premiumFor prices amountUnits of cover for period seconds at price.
func premiumFor(price, amountUnits, period int64) int64 {
	amount := amountUnits * AllocationUnit
	perYear := fpmath.MulDiv(amount, price, PriceDenominator, fpmath.RoundDown)
	return fpmath.MulDiv(perYear, period, SecondsPerYear, fpmath.RoundDown)
}

// capacityUnits converts a tranche's stake into allocation units of
// capacity for one product, applying the global capacity ratio, the
// product weight and the per-request capacity reduction.
func capacityUnits(trancheStake, weight, capacityRatio, capacityReductionRatio int64) int64 {
	if trancheStake <= 0 || weight <= 0 {
		return 0
	}
	reduction := CapacityReductionDenominator - capacityReductionRatio
	if reduction < 0 {
		reduction = 0
	}
	capacity := fpmath.MulDiv(trancheStake, capacityRatio, CapacityDenominator, fpmath.RoundDown)
	capacity = fpmath.MulDiv(capacity, weight, WeightDenominator, fpmath.RoundDown)
	capacity = fpmath.MulDiv(capacity, reduction, CapacityReductionDenominator, fpmath.RoundDown)
	return capacity / AllocationUnit
}
