// Package money implements fixed-precision monetary arithmetic at scale 2.
// Amounts are stored as integer cents so sums and splits are exact; native
// floating point is only ever touched at the API boundary, where it is
// rounded into cents once.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Amount is a monetary value in cents (scale 2).
type Amount int64

// Rate is a tax/fee rate in parts per ten thousand (basis points of a
// percent), so "0.10" parses to 1000 and arithmetic stays integral.
type Rate int64

const (
	rateScale = 10000

	// MaxAmount bounds amounts so that Amount*rateScale cannot overflow int64.
	MaxAmount Amount = math.MaxInt64 / rateScale
)

var (
	// ErrInvalidAmount reports a negative, non-finite, or out-of-range amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidRate reports a rate outside [0, 1] or with too many digits.
	ErrInvalidRate = errors.New("invalid rate")
)

// FromFloat64 converts a boundary float (JSON number) to cents, rounding
// half up. It rejects negative, NaN, infinite, and out-of-range values.
func FromFloat64(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite value", ErrInvalidAmount)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: negative value", ErrInvalidAmount)
	}
	cents := f * 100
	if cents > float64(MaxAmount) {
		return 0, fmt.Errorf("%w: value too large", ErrInvalidAmount)
	}
	return Amount(math.Floor(cents + 0.5)), nil
}

// ParseAmount parses a decimal string like "500.00", "50", or "0.5" into
// cents exactly. At most two fractional digits are accepted.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if s[0] == '-' || s[0] == '+' {
		return 0, fmt.Errorf("%w: signed value %q", ErrInvalidAmount, s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q exceeds scale 2", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var cents int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
			if cents > int64(MaxAmount)/10 {
				return 0, fmt.Errorf("%w: %q too large", ErrInvalidAmount, s)
			}
			cents = cents*10 + int64(c-'0')
		}
	}
	return Amount(cents), nil
}

// ParseRate parses a decimal string like "0.10" into a Rate. Valid rates are
// within [0, 1] with at most four fractional digits.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidRate)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 4 {
		return 0, fmt.Errorf("%w: %q exceeds scale 4", ErrInvalidRate, s)
	}
	for len(frac) < 4 {
		frac += "0"
	}

	var bp int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
			}
			bp = bp*10 + int64(c-'0')
			if bp > rateScale {
				return 0, fmt.Errorf("%w: %q above 1", ErrInvalidRate, s)
			}
		}
	}
	return Rate(bp), nil
}

// Split divides a gross amount into (tax, net) portions at the given rate.
// Tax is rounded half up to the cent; net is the exact remainder, so
// tax+net == gross holds for every valid input.
func Split(gross Amount, rate Rate) (tax, net Amount, err error) {
	if gross < 0 || gross > MaxAmount {
		return 0, 0, fmt.Errorf("%w: %d cents", ErrInvalidAmount, gross)
	}
	if rate < 0 || rate > rateScale {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	tax = Amount((int64(gross)*int64(rate) + rateScale/2) / rateScale)
	net = gross - tax
	return tax, net, nil
}

// String renders the amount as a scale-2 decimal, e.g. "495.00".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float64 returns the amount in currency units for wire representations.
func (a Amount) Float64() float64 {
	return float64(a) / 100
}

// MarshalJSON encodes the amount as a plain JSON number with two fractional
// digits, matching the wire contract ("new_balance": 495.00).
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both bare numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	if neg {
		v = -v
	}
	*a = v
	return nil
}

// String renders the rate as a scale-4 decimal, e.g. "0.1000".
func (r Rate) String() string {
	return fmt.Sprintf("%d.%04d", int64(r)/rateScale, int64(r)%rateScale)
}
