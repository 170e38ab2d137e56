package oddsmath

import "fmt"

// Side selects which outcome of a two-sided market a bet is on.
type Side string

const (
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// EV returns the expected profit fraction of a bet: fair probability times
// decimal payout, minus the stake.
func EV(fairProb, decimalOdds float64) float64 {
	return fairProb*decimalOdds - 1.0
}

// KellyFraction returns the bankroll fraction maximizing long-run log growth
// for the given edge and payout, floored at 0: there are no negative stakes.
func KellyFraction(fairProb, decimalOdds float64) float64 {
	if decimalOdds <= 1.0 {
		return 0
	}
	kelly := (fairProb*decimalOdds - 1.0) / (decimalOdds - 1.0)
	if kelly < 0 {
		return 0
	}
	return kelly
}

// MethodEV is the EV and Kelly fraction computed under one de-vig method.
type MethodEV struct {
	EV    float64 `json:"ev"`
	Kelly float64 `json:"kelly"`
}

// MultiEVCalculation aggregates EV and Kelly across every successful de-vig
// method for one side of one book offer. EVDisplay is the minimum EV across
// methods, so displayed edge never exceeds what the most conservative
// method supports.
type MultiEVCalculation struct {
	Side      Side                `json:"side"`
	Price     int                 `json:"price"` // American odds
	ByMethod  map[Method]MethodEV `json:"by_method"`
	EVWorst   float64             `json:"ev_worst"`
	EVBest    float64             `json:"ev_best"`
	EVDisplay float64             `json:"ev_display"`
}

// ComputeMultiEV derives EV and Kelly under every successful method in
// results for the given side and price. Failed methods are skipped; if none
// succeeded an error is returned.
func ComputeMultiEV(results map[Method]Result, side Side, americanOdds int) (MultiEVCalculation, error) {
	calc := MultiEVCalculation{
		Side:     side,
		Price:    americanOdds,
		ByMethod: make(map[Method]MethodEV, len(results)),
	}

	decimal, err := AmericanToDecimal(americanOdds)
	if err != nil {
		return calc, err
	}

	first := true
	for method, result := range results {
		if !result.Success {
			continue
		}
		fair := result.FairProbOver
		if side == SideUnder {
			fair = result.FairProbUnder
		}
		ev := EV(fair, decimal)
		calc.ByMethod[method] = MethodEV{EV: ev, Kelly: KellyFraction(fair, decimal)}

		if first || ev < calc.EVWorst {
			calc.EVWorst = ev
		}
		if first || ev > calc.EVBest {
			calc.EVBest = ev
		}
		first = false
	}

	if first {
		return calc, fmt.Errorf("no successful de-vig methods for %+d", americanOdds)
	}
	calc.EVDisplay = calc.EVWorst
	return calc, nil
}

// IsPositive reports whether this bet clears the +EV threshold. The worst
// method must beat minEV, not just the average.
func (m MultiEVCalculation) IsPositive(minEV float64) bool {
	return len(m.ByMethod) > 0 && m.EVWorst > minEV
}
