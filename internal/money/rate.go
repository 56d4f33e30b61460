package money

import "fmt"

// VatRate is a VAT rate in parts per ten thousand: 500 permyriad is 5%.
// Keeping the permyriad convention behind a type stops raw integers from
// crossing package boundaries with ambiguous units.
type VatRate int64

const (
	// StandardRate is the UAE standard 5% VAT rate.
	StandardRate VatRate = 500
	// ZeroRate marks zero-rated supplies, which are still reportable.
	ZeroRate VatRate = 0
)

// RateFromPercent converts a percentage expressed in hundredths
// (e.g. 500 hundredths = 5.00%) into a VatRate.
func RateFromPercent(hundredths int64) VatRate {
	return VatRate(hundredths)
}

// Permyriad returns the raw parts-per-10,000 value.
func (r VatRate) Permyriad() int64 {
	return int64(r)
}

// PercentString renders the rate for presentation, e.g. "5.00%".
func (r VatRate) PercentString() string {
	v := int64(r)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d%%", sign, v/100, v%100)
}

// Valid reports whether the rate lies in [0%, 100%].
func (r VatRate) Valid() bool {
	return r >= 0 && r <= 10000
}

// Apply computes the VAT amount on a net amount, rounding half-up to the
// nearest fil.
func (r VatRate) Apply(net Money) Money {
	return net.MulRatio(int64(r), 10000)
}
