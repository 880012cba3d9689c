// Package fraction implements exact rational arithmetic for on-chain prices.
//
// Auction contracts report prices as numerator/denominator pairs of
// uint256 values, with denominator zero meaning "not determined yet".
// All comparisons cross-multiply in big.Int space; nothing here ever
// touches a float.
package fraction

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Fraction is a non-negative rational number. The zero value is 0/0,
// the ledger's sentinel for an undetermined price.
type Fraction struct {
	Num *big.Int
	Den *big.Int
}

// New returns num/den from machine integers.
func New(num, den int64) Fraction {
	return Fraction{Num: big.NewInt(num), Den: big.NewInt(den)}
}

// FromBig returns num/den, copying both operands. Nil operands are
// treated as zero.
func FromBig(num, den *big.Int) Fraction {
	f := Fraction{Num: new(big.Int), Den: new(big.Int)}
	if num != nil {
		f.Num.Set(num)
	}
	if den != nil {
		f.Den.Set(den)
	}
	return f
}

// FromDecimal converts a decimal value (e.g. a reference-feed price) to
// an exact fraction: 1.25 becomes 125/100.
func FromDecimal(d decimal.Decimal) Fraction {
	exp := int64(d.Exponent())
	if exp >= 0 {
		num := new(big.Int).Set(d.Coefficient())
		num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
		return Fraction{Num: num, Den: big.NewInt(1)}
	}
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(-exp), nil)
	return Fraction{Num: new(big.Int).Set(d.Coefficient()), Den: den}
}

// Parse reads "num/den" or a plain decimal string, so config files can
// say either "101/100" or "1.01".
func Parse(s string) (Fraction, error) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		num, ok := new(big.Int).SetString(strings.TrimSpace(s[:i]), 10)
		if !ok {
			return Fraction{}, fmt.Errorf("fraction: bad numerator in %q", s)
		}
		den, ok := new(big.Int).SetString(strings.TrimSpace(s[i+1:]), 10)
		if !ok || den.Sign() == 0 {
			return Fraction{}, fmt.Errorf("fraction: bad denominator in %q", s)
		}
		return Fraction{Num: num, Den: den}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Fraction{}, fmt.Errorf("fraction: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Determined reports whether the fraction carries a usable value.
func (f Fraction) Determined() bool {
	return f.Num != nil && f.Den != nil && f.Den.Sign() != 0
}

// IsZero reports whether the fraction equals zero.
func (f Fraction) IsZero() bool {
	return f.Determined() && f.Num.Sign() == 0
}

// Cmp compares f against g by cross multiplication and returns -1, 0 or
// +1. Both fractions must be determined.
func (f Fraction) Cmp(g Fraction) int {
	left := new(big.Int).Mul(f.Num, g.Den)
	right := new(big.Int).Mul(g.Num, f.Den)
	return left.Cmp(right)
}

// Mul returns f*g.
func (f Fraction) Mul(g Fraction) Fraction {
	return Fraction{
		Num: new(big.Int).Mul(f.Num, g.Num),
		Den: new(big.Int).Mul(f.Den, g.Den),
	}
}

// Div returns f/g. g must be non-zero and determined.
func (f Fraction) Div(g Fraction) Fraction {
	return Fraction{
		Num: new(big.Int).Mul(f.Num, g.Den),
		Den: new(big.Int).Mul(f.Den, g.Num),
	}
}

// Inv returns 1/f.
func (f Fraction) Inv() Fraction {
	return Fraction{Num: new(big.Int).Set(f.Den), Den: new(big.Int).Set(f.Num)}
}

// MulCeil returns ceil(amount * f), the rounding used when sizing
// orders: never undershoot a threshold because of integer division.
func (f Fraction) MulCeil(amount *big.Int) *big.Int {
	num := new(big.Int).Mul(amount, f.Num)
	return ceilDiv(num, f.Den)
}

// Ceil returns the smallest integer at or above f.
func (f Fraction) Ceil() *big.Int {
	return ceilDiv(f.Num, f.Den)
}

// MulFloor returns floor(amount * f).
func (f Fraction) MulFloor(amount *big.Int) *big.Int {
	num := new(big.Int).Mul(amount, f.Num)
	return num.Div(num, f.Den)
}

// Decimal renders the fraction as a decimal for display and journaling.
// Not for comparisons; the division rounds.
func (f Fraction) Decimal() decimal.Decimal {
	if !f.Determined() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(f.Num, 0).Div(decimal.NewFromBigInt(f.Den, 0))
}

func (f Fraction) String() string {
	if f.Num == nil || f.Den == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%s", f.Num, f.Den)
}

// Ratio returns a/b as a fraction: (a.n*b.d)/(a.d*b.n). Used to compare
// an auction price against a reference price without ever dividing.
func Ratio(a, b Fraction) Fraction {
	return a.Div(b)
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
