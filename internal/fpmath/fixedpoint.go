// internal/fpmath/fixedpoint.go
package fpmath

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	CoinConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}               // 0.000001 coin
	PriceConfig = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}                  // basis points
	AccConfig   = DecimalConfig{DecimalPrecision: 12, Scale: 1_000_000_000_000}      // reward accumulator
)

// AccScale is the fixed-point scale of the per-share reward accumulator.
const AccScale int64 = 1_000_000_000_000

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding.
// The numerator is consumed and returned to the pool.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// big.Int DivMod is Euclidean division, quotient already floored
	}

	putInt128(numerator)
	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv computes a * b / denominator through int128 intermediates.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	return DivideInt128(MultiplyInt128(a, b), denominator, roundingMode)
}

// MulDiv3 computes a * b * c / denominator through big.Int intermediates.
// Used for accumulator accrual where three int64 factors would overflow
// even int128 checks done term by term.
func MulDiv3(a, b, c, denominator int64, roundingMode RoundingMode) int64 {
	product := MultiplyInt128(a, b)
	product.Mul(product, big.NewInt(c))
	return DivideInt128(product, denominator, roundingMode)
}

// CeilDiv divides non-negative integers rounding up.
func CeilDiv(a, b int64) int64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}

// Sqrt returns the integer square root of v (floor).
func Sqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	root := getInt128()
	root.Sqrt(big.NewInt(v))
	result := root.Int64()
	putInt128(root)
	return result
}

// Min returns the smaller of two int64 values.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
