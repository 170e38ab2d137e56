// Package oddsmath provides pure numeric functions for converting between
// odds representations, removing bookmaker vig from two-sided markets, and
// deriving expected value and Kelly stake fractions. Nothing in this package
// panics on malformed input; every function reports failure through its
// return value.
package oddsmath

import (
	"fmt"
	"math"
)

// validAmerican rejects odds with no meaning in American notation: zero, or a
// magnitude below 100.
func validAmerican(american int) error {
	if american == 0 {
		return fmt.Errorf("invalid American odds: cannot be 0")
	}
	if american > -100 && american < 100 {
		return fmt.Errorf("invalid American odds %d: magnitude must be at least 100", american)
	}
	return nil
}

// AmericanToDecimal converts American odds to decimal odds.
// +150 → 2.50, -150 → 1.67.
func AmericanToDecimal(american int) (float64, error) {
	if err := validAmerican(american); err != nil {
		return 0, err
	}
	if american > 0 {
		return 1.0 + float64(american)/100.0, nil
	}
	return 1.0 + 100.0/float64(-american), nil
}

// DecimalToAmerican converts decimal odds to American odds.
// 2.50 → +150, 1.67 → -150. Decimal 2.0 is the evens boundary where -100
// and +100 are the same price; it converts to +100.
func DecimalToAmerican(decimal float64) (int, error) {
	if decimal <= 1.0 {
		return 0, fmt.Errorf("invalid decimal odds %.4f: must be > 1.0", decimal)
	}
	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}
	return int(math.Round(-100.0 / (decimal - 1.0))), nil
}

// AmericanToImpliedProbability converts American odds to implied probability.
// Favorites (-odds): |o| / (|o| + 100). Underdogs (+odds): 100 / (o + 100).
func AmericanToImpliedProbability(american int) (float64, error) {
	if err := validAmerican(american); err != nil {
		return 0, err
	}
	if american > 0 {
		return 100.0 / (float64(american) + 100.0), nil
	}
	mag := float64(-american)
	return mag / (mag + 100.0), nil
}

// DecimalToImpliedProbability converts decimal odds to implied probability.
func DecimalToImpliedProbability(decimal float64) (float64, error) {
	if decimal <= 1.0 {
		return 0, fmt.Errorf("invalid decimal odds %.4f: must be > 1.0", decimal)
	}
	return 1.0 / decimal, nil
}

// ProbabilityToDecimal converts a probability to decimal odds.
func ProbabilityToDecimal(probability float64) (float64, error) {
	if probability <= 0 || probability >= 1 {
		return 0, fmt.Errorf("invalid probability %.4f: must be between 0 and 1", probability)
	}
	return 1.0 / probability, nil
}

// ProbabilityToAmerican converts a probability to American odds.
func ProbabilityToAmerican(probability float64) (int, error) {
	decimal, err := ProbabilityToDecimal(probability)
	if err != nil {
		return 0, err
	}
	return DecimalToAmerican(decimal)
}

// Margin returns the market margin (overround) of a two-sided market. An
// efficient market carries a margin >= 0; the margin is the book's built-in
// edge.
func Margin(probOver, probUnder float64) float64 {
	return probOver + probUnder - 1.0
}
