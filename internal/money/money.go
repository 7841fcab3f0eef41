// Package money provides a fixed-precision monetary type.
//
// Every cost figure in arbiter — per-response cost, running debate totals,
// usage summaries — flows through Micros instead of float64. Token counts
// are multiplied by per-1M prices and divided back down; doing that
// repeatedly in binary floating point drifts (0.1 + 0.2 != 0.3 territory),
// and a debate's running total is exactly the kind of value that gets
// added to hundreds of times over a long session. Micros sidesteps that
// by keeping the value as an integer count of millionths of a dollar and
// only touching floats at the edges (parsing a config price, formatting
// for display).
package money

import (
	"fmt"
	"math"
)

// scale is the number of Micros per dollar. 1e6 gives six decimal digits
// of precision, comfortably more than the per-1M-token prices this package
// multiplies (e.g. $5.00 per 1,000,000 tokens implies a per-token price of
// five millionths of a dollar — exactly five Micros units).
const scale = 1_000_000

// Micros is a USD amount scaled by 1e6 and stored as an int64. Zero value
// is $0.00. Micros is safe to compare with ==, add, and pass by value.
type Micros int64

// Zero is the additive identity, provided for readability at call sites.
const Zero Micros = 0

// FromDollars builds a Micros from a plain float64 dollar amount, e.g. the
// static pricing table's "5.00" per-1M-token prices. This is the one place
// floats are expected to enter the system — everything downstream of this
// call stays integer.
func FromDollars(dollars float64) Micros {
	return Micros(math.Round(dollars * scale))
}

// Dollars returns the amount as a float64 dollar figure, for JSON
// serialization and human-facing display only. Never feed this back into
// further arithmetic — stay in Micros until the value leaves the process.
func (m Micros) Dollars() float64 {
	return float64(m) / scale
}

// Add returns m + other.
func (m Micros) Add(other Micros) Micros {
	return m + other
}

// Sub returns m - other.
func (m Micros) Sub(other Micros) Micros {
	return m - other
}

// PerMillionTokens computes the cost of n tokens at a price quoted per
// one million tokens, e.g. PerMillionTokens(FromDollars(5.00), 1500)
// is the cost of 1500 tokens at $5.00/1M.
//
// Keeping this as integer math end to end (Micros * tokens, then divide by
// 1e6) instead of converting to float avoids accumulating rounding error
// across thousands of calls in a long debate.
func PerMillionTokens(pricePerMillion Micros, tokens int64) Micros {
	return Micros((int64(pricePerMillion) * tokens) / 1_000_000)
}

// String renders the amount as "$1.234560"-style fixed-point USD, mainly
// for logging.
func (m Micros) String() string {
	neg := m < 0
	v := int64(m)
	if neg {
		v = -v
	}
	whole := v / scale
	frac := v % scale
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%d.%06d", sign, whole, frac)
}

// MarshalJSON emits the amount as a decimal-string dollar figure (e.g.
// "0.004500") rather than a binary float, so clients never round-trip
// through IEEE 754 either.
func (m Micros) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", fmt.Sprintf("%.6f", m.Dollars()))), nil
}
