package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tmash55/unjuiced/pkg/oddsmath"
)

// DevigRequest prices one two-sided market. Either side can be given
// directly as American odds, or derived by blending several reference books
// in probability space.
type DevigRequest struct {
	OverOdds  int               `json:"over_odds,omitempty"`
	UnderOdds int               `json:"under_odds,omitempty"`
	Methods   []oddsmath.Method `json:"methods,omitempty"`

	SharpsOver  []oddsmath.SharpQuote `json:"sharps_over,omitempty"`
	SharpsUnder []oddsmath.SharpQuote `json:"sharps_under,omitempty"`

	// When both are set, EV and Kelly are computed for that bet against
	// every successful method.
	Side    oddsmath.Side `json:"side,omitempty"`
	BetOdds int           `json:"bet_odds,omitempty"`
}

// DevigResponse carries every method's fair probabilities plus the optional
// EV calculation.
type DevigResponse struct {
	OverOdds  int                                 `json:"over_odds"`
	UnderOdds int                                 `json:"under_odds"`
	Results   map[oddsmath.Method]oddsmath.Result `json:"results"`
	EV        *oddsmath.MultiEVCalculation        `json:"ev,omitempty"`
}

// Devig runs the de-vig pipeline for one market.
func (h *Handler) Devig(w http.ResponseWriter, r *http.Request) {
	var req DevigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if len(req.SharpsOver) > 0 {
		odds, err := oddsmath.BlendSharpOdds(req.SharpsOver)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("blending over side: %v", err))
			return
		}
		req.OverOdds = odds
	}
	if len(req.SharpsUnder) > 0 {
		odds, err := oddsmath.BlendSharpOdds(req.SharpsUnder)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("blending under side: %v", err))
			return
		}
		req.UnderOdds = odds
	}
	if req.OverOdds == 0 || req.UnderOdds == 0 {
		respondError(w, http.StatusBadRequest, "both sides of the market are required")
		return
	}

	results := oddsmath.RunMethods(req.Methods, req.OverOdds, req.UnderOdds)
	resp := DevigResponse{
		OverOdds:  req.OverOdds,
		UnderOdds: req.UnderOdds,
		Results:   results,
	}

	if req.Side != "" && req.BetOdds != 0 {
		calc, err := oddsmath.ComputeMultiEV(results, req.Side, req.BetOdds)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("computing EV: %v", err))
			return
		}
		resp.EV = &calc
	}

	respondJSON(w, http.StatusOK, resp)
}
