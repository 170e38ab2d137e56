package models

import (
	"fmt"
	"strconv"
	"time"
)

// BookKey identifies a sportsbook. Quote maps are keyed by BookKey; keys are
// unique per map and insertion order carries no meaning.
type BookKey string

// WagerLimits holds a book's stake limits for an offer, in dollars.
type WagerLimits struct {
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// BookOffer is one book's quoted price for one selection. Offers are
// immutable snapshots: a new one is built on every fetch and the old one
// discarded.
type BookOffer struct {
	Book     BookKey      `json:"book"`
	Price    int          `json:"price"` // American odds
	DeepLink string       `json:"deep_link,omitempty"`
	Limits   *WagerLimits `json:"limits,omitempty"`
}

// Opportunity is one tradeable edge: a selection, the book offering the best
// price on it, and the EV figures computed by the refresh endpoint.
type Opportunity struct {
	EventID   string  `json:"event_id"`
	SportKey  string  `json:"sport_key"`
	Player    string  `json:"player,omitempty"`
	MarketKey string  `json:"market_key"`
	Line      float64 `json:"line"`
	Side      string  `json:"side"`

	BestBook BookOffer `json:"best_book"`

	EVWorst   float64 `json:"ev_worst"`
	EVBest    float64 `json:"ev_best"`
	EVDisplay float64 `json:"ev_display"`
	Edge      float64 `json:"edge"`
	FairPrice int     `json:"fair_price,omitempty"`

	BooksPerSide int       `json:"books_per_side,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// ID returns the stable composite identifier for this opportunity. It is
// derived from the selection identity, never from array position, so the same
// selection maps to the same ID across refreshes.
func (o *Opportunity) ID() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		o.EventID, o.Player, o.MarketKey,
		strconv.FormatFloat(o.Line, 'f', -1, 64), o.Side)
}

// ChangeDirection describes which way a numeric field moved between two
// snapshots.
type ChangeDirection string

const (
	ChangeUp   ChangeDirection = "up"
	ChangeDown ChangeDirection = "down"
)

// ChangeRecord annotates an updated opportunity with the direction each field
// moved since the prior snapshot. Records are transient and expire after the
// flash window.
type ChangeRecord struct {
	Edge  ChangeDirection `json:"edge,omitempty"`
	Price ChangeDirection `json:"price,omitempty"`
}
