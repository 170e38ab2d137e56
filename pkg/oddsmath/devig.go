package oddsmath

import "math"

// Method tags one of the four de-vig algorithms. Using a closed enum keeps
// the multi-method runner exhaustive: an unknown method yields a failed
// Result, never a silent skip.
type Method string

const (
	MethodMultiplicative Method = "multiplicative"
	MethodAdditive       Method = "additive"
	MethodPower          Method = "power"
	MethodProbit         Method = "probit"
)

// AllMethods returns every supported de-vig method.
func AllMethods() []Method {
	return []Method{MethodMultiplicative, MethodAdditive, MethodPower, MethodProbit}
}

// Result is the output of one de-vig method on a two-sided market. When
// Success is true, FairProbOver + FairProbUnder sums to 1 within 1e-6. A
// non-empty Warning means the result is usable but lower-confidence (clamping
// at extreme odds, non-convergence fallback). Callers must check Success
// before trusting the probabilities.
type Result struct {
	Method        Method  `json:"method"`
	FairProbOver  float64 `json:"fair_prob_over"`
	FairProbUnder float64 `json:"fair_prob_under"`
	Margin        float64 `json:"margin"`
	Success       bool    `json:"success"`
	Warning       string  `json:"warning,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Power-method search parameters.
const (
	powerMaxIterations = 100
	powerTolerance     = 1e-10
	powerBracketLow    = 0.1
	powerBracketHigh   = 10.0
	powerSumTolerance  = 1e-3
)

// probitMarginFloor is the margin below which the probit transform is
// numerically unstable; the multiplicative result is used instead.
const probitMarginFloor = 1e-3

// impliedPair converts both sides of a market to implied probabilities.
func impliedPair(overOdds, underOdds int) (pOver, pUnder float64, err error) {
	pOver, err = AmericanToImpliedProbability(overOdds)
	if err != nil {
		return 0, 0, err
	}
	pUnder, err = AmericanToImpliedProbability(underOdds)
	if err != nil {
		return 0, 0, err
	}
	return pOver, pUnder, nil
}

// renormalize scales a probability pair so it sums to exactly 1.
func renormalize(pOver, pUnder float64) (float64, float64, bool) {
	total := pOver + pUnder
	if total <= 0 {
		return 0, 0, false
	}
	return pOver / total, pUnder / total, true
}

// DevigMultiplicative rescales both implied probabilities proportionally so
// they sum to 1. This is the standard method for two-sided markets.
func DevigMultiplicative(overOdds, underOdds int) Result {
	r := Result{Method: MethodMultiplicative}
	pOver, pUnder, err := impliedPair(overOdds, underOdds)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Margin = Margin(pOver, pUnder)

	fairOver, fairUnder, ok := renormalize(pOver, pUnder)
	if !ok {
		r.Error = "implied probabilities sum to zero"
		return r
	}
	r.FairProbOver = fairOver
	r.FairProbUnder = fairUnder
	r.Success = true
	return r
}

// DevigAdditive subtracts half the margin from each side. Results are clamped
// to [0.001, 0.999] and renormalized; clamping sets a warning because the
// method misbehaves at extreme odds.
func DevigAdditive(overOdds, underOdds int) Result {
	r := Result{Method: MethodAdditive}
	pOver, pUnder, err := impliedPair(overOdds, underOdds)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Margin = Margin(pOver, pUnder)

	half := r.Margin / 2.0
	fairOver, clampedOver := clampProbability(pOver - half)
	fairUnder, clampedUnder := clampProbability(pUnder - half)

	fairOver, fairUnder, ok := renormalize(fairOver, fairUnder)
	if !ok {
		r.Error = "implied probabilities sum to zero"
		return r
	}
	if clampedOver || clampedUnder {
		r.Warning = "additive method clamped probabilities; unreliable at extreme odds"
	}
	r.FairProbOver = fairOver
	r.FairProbUnder = fairUnder
	r.Success = true
	return r
}

func clampProbability(p float64) (float64, bool) {
	if p < 0.001 {
		return 0.001, true
	}
	if p > 0.999 {
		return 0.999, true
	}
	return p, false
}

// DevigPower binary-searches for the exponent k such that
// pOver^k + pUnder^k = 1, then applies k to both probabilities. When the
// search does not converge, the result falls back to proportional
// renormalization and carries a warning rather than failing hard.
func DevigPower(overOdds, underOdds int) Result {
	r := Result{Method: MethodPower}
	pOver, pUnder, err := impliedPair(overOdds, underOdds)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Margin = Margin(pOver, pUnder)

	// pOver^k + pUnder^k is decreasing in k for probabilities in (0, 1):
	// sum > 1 means k must grow, sum < 1 means it must shrink.
	lo, hi := powerBracketLow, powerBracketHigh
	k := 1.0
	for i := 0; i < powerMaxIterations; i++ {
		k = (lo + hi) / 2.0
		sum := math.Pow(pOver, k) + math.Pow(pUnder, k)
		if math.Abs(sum-1.0) < powerTolerance {
			break
		}
		if sum > 1.0 {
			lo = k
		} else {
			hi = k
		}
	}

	fairOver := math.Pow(pOver, k)
	fairUnder := math.Pow(pUnder, k)
	if math.Abs(fairOver+fairUnder-1.0) > powerSumTolerance {
		fairOver, fairUnder = pOver, pUnder
		r.Warning = "power method did not converge; fell back to proportional renormalization"
	}

	fairOver, fairUnder, ok := renormalize(fairOver, fairUnder)
	if !ok {
		r.Error = "implied probabilities sum to zero"
		return r
	}
	r.FairProbOver = fairOver
	r.FairProbUnder = fairUnder
	r.Success = true
	return r
}

// DevigProbit maps both probabilities to standard-normal quantiles, shifts
// them by their midpoint so they sit symmetric around zero, and maps back
// through the normal CDF. The symmetry guarantees the re-transformed pair
// sums to 1. Near-zero margins short-circuit to the multiplicative result,
// which is more stable there.
func DevigProbit(overOdds, underOdds int) Result {
	r := Result{Method: MethodProbit}
	pOver, pUnder, err := impliedPair(overOdds, underOdds)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Margin = Margin(pOver, pUnder)

	if math.Abs(r.Margin) < probitMarginFloor {
		mult := DevigMultiplicative(overOdds, underOdds)
		mult.Method = MethodProbit
		return mult
	}

	zOver := normalQuantile(pOver)
	zUnder := normalQuantile(pUnder)
	shift := (zOver + zUnder) / 2.0

	fairOver := normalCDF(zOver - shift)
	fairUnder := normalCDF(zUnder - shift)

	if !isUsableProbability(fairOver) || !isUsableProbability(fairUnder) {
		var ok bool
		fairOver, fairUnder, ok = renormalize(pOver, pUnder)
		if !ok {
			r.Error = "implied probabilities sum to zero"
			return r
		}
		r.Warning = "probit transform out of range; fell back to proportional renormalization"
		r.FairProbOver = fairOver
		r.FairProbUnder = fairUnder
		r.Success = true
		return r
	}

	// The pair sums to 1 analytically; renormalize to absorb floating error.
	fairOver, fairUnder, _ = renormalize(fairOver, fairUnder)
	r.FairProbOver = fairOver
	r.FairProbUnder = fairUnder
	r.Success = true
	return r
}

func isUsableProbability(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0 && p < 1
}

// Devig runs a single method on a two-sided market.
func Devig(method Method, overOdds, underOdds int) Result {
	switch method {
	case MethodMultiplicative:
		return DevigMultiplicative(overOdds, underOdds)
	case MethodAdditive:
		return DevigAdditive(overOdds, underOdds)
	case MethodPower:
		return DevigPower(overOdds, underOdds)
	case MethodProbit:
		return DevigProbit(overOdds, underOdds)
	default:
		return Result{Method: method, Error: "unknown de-vig method"}
	}
}

// RunMethods runs every requested method and returns all results keyed by
// method. Methods fail independently: one failure never aborts the others.
func RunMethods(methods []Method, overOdds, underOdds int) map[Method]Result {
	if len(methods) == 0 {
		methods = AllMethods()
	}
	results := make(map[Method]Result, len(methods))
	for _, method := range methods {
		results[method] = Devig(method, overOdds, underOdds)
	}
	return results
}
