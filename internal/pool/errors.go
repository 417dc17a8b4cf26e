// internal/pool/errors.go
package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCapacity is returned when the requested cover amount
	// cannot be filled from the free capacity of the active tranches.
	// The request leaves no trace in pool state.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrOnlyCoverContract is returned when an allocation-side operation
	// arrives from a caller without the cover capability.
	ErrOnlyCoverContract = errors.New("caller lacks cover capability")

	// ErrAlreadyDeallocated is returned on a second explicit deallocation
	// of the same allocation.
	ErrAlreadyDeallocated = errors.New("allocation already deallocated")

	// ErrPoolHalted is returned for deposits and extensions after the
	// pool's active stake has been burned down to the floor.
	ErrPoolHalted = errors.New("pool is halted")

	// ErrGovernanceLockActive is returned when a withdrawal would move
	// manager stake while a governance hold is active.
	ErrGovernanceLockActive = errors.New("manager stake locked by governance hold")
)

func errFeeOutOfRange(fee, max int64) error {
	return fmt.Errorf("fee %d out of range [0, %d]", fee, max)
}

func errTrancheOutOfWindow(trancheID, first, last int64) error {
	return fmt.Errorf("tranche %d outside stakeable window [%d, %d]", trancheID, first, last)
}

func errUnknownProduct(productID int64) error {
	return fmt.Errorf("unknown product %d", productID)
}

func errUnknownAllocation(allocationID int64) error {
	return fmt.Errorf("unknown allocation %d", allocationID)
}

func errNonPositiveAmount(amount int64) error {
	return fmt.Errorf("amount %d must be positive", amount)
}

func errNonPositivePeriod(period int64) error {
	return fmt.Errorf("period %d must be positive", period)
}

func errExpiredSourceTranche(trancheID int64) error {
	return fmt.Errorf("tranche %d already expired, withdraw instead", trancheID)
}

func errTrancheOrder(from, to int64) error {
	return fmt.Errorf("target tranche %d must be later than source %d", to, from)
}

func errWeightOutOfRange(weight int64) error {
	return fmt.Errorf("weight %d out of range [0, %d]", weight, WeightDenominator)
}

func errPriceOutOfRange(price int64) error {
	return fmt.Errorf("price %d out of range [0, %d]", price, PriceDenominator)
}

