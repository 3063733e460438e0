package billing

import "math"

// Round2 rounds a currency amount to two decimal places.  All monetary
// values cross component boundaries already rounded, so equality
// comparisons on money are exact at two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Cost converts billable seconds at a per-minute rate into a currency
// amount rounded to two decimals.
func Cost(seconds, pricePerMinute float64) float64 {
	return Round2(seconds / 60.0 * pricePerMinute)
}

// ClampedCost is Cost limited to the locked amount.  Settlement never
// charges more than the hold that backs it, so the refund is never
// negative.
func ClampedCost(seconds, pricePerMinute, lockedAmount float64) float64 {
	c := Cost(seconds, pricePerMinute)
	if c > lockedAmount {
		return lockedAmount
	}
	return c
}
