// Package fixedpoint provides overflow-checked integer arithmetic for the
// pricing and ledger core. All monetary values are u64 with 6 implied
// decimals; rates are basis points (1/10,000).
//
// Every operation returns an error instead of panicking or wrapping around,
// so the overflow policy lives here rather than being re-checked at every
// call site. Intermediate products are computed in 128 bits via math/bits,
// which keeps full-range u64 operands safe.
package fixedpoint

import (
	"errors"
	"math/bits"
)

// Scale is the fixed-point price scale: 6 implied decimals.
const Scale uint64 = 1_000_000

// BasisPoints is the denominator for rate math: 1bp = 1/10,000.
const BasisPoints uint64 = 10_000

var (
	// ErrOverflow is returned when a checked operation exceeds the u64 range.
	ErrOverflow = errors.New("fixedpoint: math overflow")

	// ErrDivisionByZero is returned when a denominator is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

// Add returns a+b, failing on wraparound.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing on underflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul returns a*b, failing if the product does not fit in 64 bits.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// Div returns a/b (truncating), failing when b is zero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// MulDiv returns a*b/den with a 128-bit intermediate product, truncating.
// Fails with ErrDivisionByZero when den is zero and with ErrOverflow when
// the quotient does not fit in 64 bits.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// bits.Div64 panics in this case; the quotient needs >64 bits.
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// AddSigned returns a+b for signed accumulators (realized P&L), failing on
// overflow in either direction.
func AddSigned(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Percentage applies a basis-point rate to an amount, truncating:
// amount * rateBp / 10_000.
func Percentage(amount uint64, rateBp uint16) (uint64, error) {
	return MulDiv(amount, uint64(rateBp), BasisPoints)
}

// Sqrt returns the integer square root of x via Newton's method. It is
// deterministic and exact: the result r satisfies r*r <= x < (r+1)*(r+1).
func Sqrt(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	if x < 4 {
		return 1
	}
	// For x >= 4 the seed x/2+1 is strictly below x, so the loop always
	// runs and converges to the floor.
	z := x
	y := x/2 + 1
	for y < z {
		z = y
		y = (x/y + y) / 2
	}
	return z
}

// SqrtWide returns the integer square root of the 128-bit value hi:lo.
// Used for geometric-mean LP minting where the product of two u64 deposits
// exceeds 64 bits.
func SqrtWide(hi, lo uint64) uint64 {
	if hi == 0 {
		return Sqrt(lo)
	}
	// Bisection on r in [0, 2^64): r*r <= hi:lo.
	var low, high uint64 = 0, ^uint64(0)
	for low < high {
		mid := low + (high-low)/2 + 1
		mh, ml := bits.Mul64(mid, mid)
		if mh < hi || (mh == hi && ml <= lo) {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

// PriceImpact estimates the impact of a trade against a reserve in basis
// points, capped at 10,000 (100%). A zero reserve yields zero impact; the
// caller's liquidity checks handle that case separately.
func PriceImpact(reserve, tradeAmount uint64) (uint16, error) {
	if reserve == 0 {
		return 0, nil
	}
	impact, err := MulDiv(tradeAmount, BasisPoints, reserve)
	if err != nil {
		return 0, err
	}
	if impact > BasisPoints {
		impact = BasisPoints
	}
	return uint16(impact), nil
}

// CompoundInterest projects principal forward by rateBp per period over the
// given number of periods using integer per-period compounding. This is a
// reporting helper for LP fee projections, not a settlement path.
func CompoundInterest(principal uint64, rateBp uint16, periods uint64) (uint64, error) {
	result := principal
	for i := uint64(0); i < periods; i++ {
		gain, err := Percentage(result, rateBp)
		if err != nil {
			return 0, err
		}
		result, err = Add(result, gain)
		if err != nil {
			return 0, err
		}
	}
	return result, nil
}
