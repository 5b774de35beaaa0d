package models

import "math"

// RoundCents rounds a monetary amount to two decimal places, halves away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
