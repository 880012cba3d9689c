package fraction

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRatioOfEqualFractionsIsOne(t *testing.T) {
	cases := []Fraction{
		New(1, 2),
		New(3, 7),
		New(1000000, 3),
		FromBig(big.NewInt(123456789), big.NewInt(987654321)),
	}
	one := New(1, 1)
	for _, f := range cases {
		r := Ratio(f, f)
		if r.Cmp(one) != 0 {
			t.Fatalf("Ratio(%s, %s) = %s, want 1", f, f, r)
		}
	}
}

func TestCmpIsTransitive(t *testing.T) {
	a := New(1, 3)
	b := New(2, 5)
	c := New(1, 2)
	if a.Cmp(b) >= 0 || b.Cmp(c) >= 0 {
		t.Fatalf("fixture ordering broken: a=%s b=%s c=%s", a, b, c)
	}
	if a.Cmp(c) >= 0 {
		t.Fatalf("transitivity violated: %s < %s < %s but Cmp(a,c)=%d", a, b, c, a.Cmp(c))
	}
}

func TestCmpNoDrift(t *testing.T) {
	// 10^18+1 / 10^18 vs 1: float64 cannot tell these apart.
	big1e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	f := FromBig(new(big.Int).Add(big1e18, big.NewInt(1)), big1e18)
	if f.Cmp(New(1, 1)) != 1 {
		t.Fatalf("(1e18+1)/1e18 should compare greater than 1")
	}
}

func TestUndetermined(t *testing.T) {
	var zero Fraction
	if zero.Determined() {
		t.Fatalf("zero value must be undetermined")
	}
	if !New(0, 1).Determined() {
		t.Fatalf("0/1 is a determined zero price")
	}
	if New(5, 0).Determined() {
		t.Fatalf("denominator 0 is the undetermined sentinel")
	}
}

func TestMulCeilNeverUndershoots(t *testing.T) {
	f := New(1, 3)
	got := f.MulCeil(big.NewInt(10))
	if got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("ceil(10/3) = %s, want 4", got)
	}
	if f.MulFloor(big.NewInt(10)).Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("floor(10/3) should be 3")
	}
	// Exact division must not round up.
	if f.MulCeil(big.NewInt(9)).Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("ceil(9/3) should be exactly 3")
	}
}

func TestFromDecimal(t *testing.T) {
	d := decimal.RequireFromString("1.25")
	f := FromDecimal(d)
	if f.Cmp(New(5, 4)) != 0 {
		t.Fatalf("1.25 = %s, want 5/4", f)
	}

	whole := FromDecimal(decimal.NewFromInt(42))
	if whole.Cmp(New(42, 1)) != 0 {
		t.Fatalf("42 = %s, want 42/1", whole)
	}
}

func TestMulDiv(t *testing.T) {
	got := New(2, 3).Mul(New(9, 4))
	if got.Cmp(New(3, 2)) != 0 {
		t.Fatalf("2/3 * 9/4 = %s, want 3/2", got)
	}
	got = New(2, 3).Div(New(4, 3))
	if got.Cmp(New(1, 2)) != 0 {
		t.Fatalf("(2/3)/(4/3) = %s, want 1/2", got)
	}
	inv := New(2, 5).Inv()
	if inv.Cmp(New(5, 2)) != 0 {
		t.Fatalf("inv(2/5) = %s, want 5/2", inv)
	}
}

func TestParse(t *testing.T) {
	f, err := Parse("101/100")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Cmp(New(101, 100)) != 0 {
		t.Fatalf("101/100 = %s", f)
	}

	f, err = Parse("1.01")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Cmp(New(101, 100)) != 0 {
		t.Fatalf("1.01 = %s", f)
	}

	for _, bad := range []string{"", "a/b", "1/0", "3/"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) should fail", bad)
		}
	}
}

func TestCeil(t *testing.T) {
	cases := []struct {
		f    Fraction
		want int64
	}{
		{New(4, 2), 2},
		{New(5, 2), 3},
		{New(1, 3), 1},
		{New(0, 1), 0},
	}
	for _, c := range cases {
		if got := c.f.Ceil(); got.Int64() != c.want {
			t.Fatalf("ceil(%s) = %s, want %d", c.f, got, c.want)
		}
	}
}
