package fpmath

import "testing"

func TestMulDivRounding(t *testing.T) {
	// 7 * 3 / 2 = 10.5
	if got := MulDiv(7, 3, 2, RoundDown); got != 10 {
		t.Errorf("RoundDown: got %d, want 10", got)
	}
	if got := MulDiv(7, 3, 2, RoundUp); got != 11 {
		t.Errorf("RoundUp: got %d, want 11", got)
	}
	// 10.5 rounds to even 10
	if got := MulDiv(7, 3, 2, RoundHalfEven); got != 10 {
		t.Errorf("RoundHalfEven: got %d, want 10", got)
	}
	// 11.5 rounds to even 12
	if got := MulDiv(23, 1, 2, RoundHalfEven); got != 12 {
		t.Errorf("RoundHalfEven 23/2: got %d, want 12", got)
	}
}

func TestMulDivNoOverflow(t *testing.T) {
	// 9e18-scale intermediate product must not wrap
	a := int64(3_000_000_000_000)
	b := int64(3_000_000_000_000)
	got := MulDiv(a, b, 1_000_000_000_000, RoundDown)
	if got != 9_000_000_000_000 {
		t.Errorf("got %d, want 9000000000000", got)
	}
}

func TestMulDiv3(t *testing.T) {
	// rewardPerSecond * elapsed * AccScale / supply
	got := MulDiv3(1_000, 86_400, AccScale, 2_000_000, RoundDown)
	want := int64(43_200_000_000_000)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct {
		a, b, want int64
	}{
		{0, 1_000_000, 0},
		{1, 1_000_000, 1},
		{1_000_000, 1_000_000, 1},
		{1_000_001, 1_000_000, 2},
		{2_499_999, 1_000_000, 3},
	}
	for _, c := range cases {
		if got := CeilDiv(c.a, c.b); got != c.want {
			t.Errorf("CeilDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSqrt(t *testing.T) {
	cases := []struct {
		v, want int64
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{1_000_000_000_000, 1_000_000},
		{1_000_000_000_001, 1_000_000},
	}
	for _, c := range cases {
		if got := Sqrt(c.v); got != c.want {
			t.Errorf("Sqrt(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}
