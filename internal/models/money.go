package models

import "math"

// Round2 normalizes a TON amount to two decimal places. Every ledger
// mutation and every profit calculation goes through this, so balances
// never accumulate float drift past a hundredth.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
