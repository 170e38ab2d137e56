package oddsmath

import "fmt"

// SharpQuote is one reference book's price and blend weight.
type SharpQuote struct {
	Book   string  `json:"book"`
	Odds   int     `json:"odds"` // American
	Weight float64 `json:"weight"`
}

// BlendSharpOdds blends reference-book prices into a single American price by
// weighted-averaging their implied probabilities. Averaging in probability
// space matters: odds conversion is nonlinear, so averaging odds directly
// skews toward longshots. Weights must all be positive, or all omitted
// (zero), in which case the books are weighted equally. Mixing weighted and
// unweighted quotes is rejected, as are negative weights.
func BlendSharpOdds(quotes []SharpQuote) (int, error) {
	if len(quotes) == 0 {
		return 0, fmt.Errorf("no sharp quotes provided")
	}

	zeroCount := 0
	for _, quote := range quotes {
		if quote.Weight < 0 {
			return 0, fmt.Errorf("sharp book %s: negative weight %.4f", quote.Book, quote.Weight)
		}
		if quote.Weight == 0 {
			zeroCount++
		}
	}
	if zeroCount > 0 && zeroCount < len(quotes) {
		return 0, fmt.Errorf("sharp quotes mix weighted and unweighted books; set every weight or none")
	}
	equal := zeroCount == len(quotes)

	var weightedSum, totalWeight float64
	for _, quote := range quotes {
		prob, err := AmericanToImpliedProbability(quote.Odds)
		if err != nil {
			return 0, fmt.Errorf("sharp book %s: %w", quote.Book, err)
		}
		weight := quote.Weight
		if equal {
			weight = 1.0
		}
		weightedSum += prob * weight
		totalWeight += weight
	}

	return ProbabilityToAmerican(weightedSum / totalWeight)
}
