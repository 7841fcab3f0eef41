package money

import "testing"

func TestFromDollarsRoundTrip(t *testing.T) {
	cases := []float64{0, 5, 15, 0.000001, 123.456789}
	for _, d := range cases {
		m := FromDollars(d)
		got := m.Dollars()
		if diff := got - d; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("FromDollars(%v).Dollars() = %v, want ~%v", d, got, d)
		}
	}
}

func TestPerMillionTokens(t *testing.T) {
	price := FromDollars(5.00) // $5 per 1M tokens
	got := PerMillionTokens(price, 1_000_000)
	want := FromDollars(5.00)
	if got != want {
		t.Errorf("PerMillionTokens = %v, want %v", got, want)
	}

	// 200,000 tokens at $5/1M should cost $1.00.
	got = PerMillionTokens(price, 200_000)
	want = FromDollars(1.00)
	if got != want {
		t.Errorf("PerMillionTokens(200k) = %v, want %v", got, want)
	}
}

func TestString(t *testing.T) {
	m := FromDollars(1.5)
	if got, want := m.String(), "$1.500000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAddSub(t *testing.T) {
	a := FromDollars(2.50)
	b := FromDollars(1.25)
	if got, want := a.Add(b), FromDollars(3.75); got != want {
		t.Errorf("Add = %v, want %v", got, want)
	}
	if got, want := a.Sub(b), FromDollars(1.25); got != want {
		t.Errorf("Sub = %v, want %v", got, want)
	}
}
