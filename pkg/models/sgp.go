package models

// SgpLeg is one leg of a same-game parlay. Tokens maps each book to that
// book's opaque correlation token for this leg; books without an entry cannot
// price the leg.
type SgpLeg struct {
	EventID   string             `json:"event_id"`
	Player    string             `json:"player,omitempty"`
	MarketKey string             `json:"market_key"`
	Line      float64            `json:"line"`
	Side      string             `json:"side"`
	Tokens    map[BookKey]string `json:"tokens"`
}

// SgpLinks carries a book's deep links for a priced parlay.
type SgpLinks struct {
	Desktop string `json:"desktop,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
}

// SgpBookOdds is one book's entry in an aggregate pricing response. A book
// that could not be priced carries an Error string instead of a price; it is
// still reported so callers can show partial-support state.
type SgpBookOdds struct {
	Price  int          `json:"price,omitempty"` // American odds
	Links  *SgpLinks    `json:"links,omitempty"`
	Limits *WagerLimits `json:"limits,omitempty"`

	LegsSupported int  `json:"legs_supported"`
	TotalLegs     int  `json:"total_legs"`
	HasAllLegs    bool `json:"has_all_legs"`

	FromCache bool   `json:"from_cache,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AggregateRequest asks for a parlay to be priced across books. When
// Sportsbooks is empty, every book holding a token on any leg is priced.
type AggregateRequest struct {
	Legs        []SgpLeg  `json:"legs"`
	Sportsbooks []BookKey `json:"sportsbooks,omitempty"`
}

// AggregateResponse maps every requested book to its quote or error.
type AggregateResponse struct {
	Odds         map[BookKey]*SgpBookOdds `json:"odds"`
	TotalLegs    int                      `json:"total_legs"`
	BooksFetched []BookKey                `json:"books_fetched"`
}

// StreamHello opens a streamed pricing response: the request hash and the
// books whose quotes will follow.
type StreamHello struct {
	LegsHash     string    `json:"legs_hash"`
	BooksPending []BookKey `json:"books_pending"`
	StaleCache   bool      `json:"stale_cache,omitempty"`
}

// StreamQuote delivers one book's quote as it completes.
type StreamQuote struct {
	BookID BookKey `json:"book_id"`
	SgpBookOdds
}

// StreamDone terminates a streamed pricing response. Pending lists books that
// never completed before the stream timeout.
type StreamDone struct {
	TimedOut bool      `json:"timed_out"`
	Pending  []BookKey `json:"pending"`
}

// CachedQuoteResponse is the single-body response served when every book in a
// streamed pricing request is already cached.
type CachedQuoteResponse struct {
	LegsHash   string                   `json:"legs_hash"`
	Quotes     map[BookKey]*SgpBookOdds `json:"quotes"`
	CacheAgeMS int64                    `json:"cache_age_ms"`
}
