package sgp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tmash55/unjuiced/pkg/models"
)

// Stream event names as emitted on the wire.
const (
	EventHello = "hello"
	EventQuote = "quote"
	EventDone  = "done"
)

// StreamEvent is one server-sent event of a streamed pricing response. Data
// is a StreamHello, StreamQuote, or StreamDone depending on Name.
type StreamEvent struct {
	Name string
	Data interface{}
}

// CachedResponse serves the whole request from cache when every hash group
// is already present, as a single body instead of a stream. Returns false if
// any group needs an upstream fetch.
func (a *Aggregator) CachedResponse(ctx context.Context, req models.AggregateRequest) (*models.CachedQuoteResponse, bool) {
	if len(req.Legs) == 0 {
		return nil, false
	}

	totalLegs := len(req.Legs)
	plans := plan(req)
	groups := groupByHash(plans)
	if len(groups) == 0 {
		return nil, false
	}

	cached := make(map[string]*CachedQuote, len(groups))
	for hash := range groups {
		entry, ok := a.cache.Get(ctx, hash)
		if !ok {
			return nil, false
		}
		cached[hash] = entry
	}

	resp := &models.CachedQuoteResponse{
		LegsHash: requestHash(req),
		Quotes:   make(map[models.BookKey]*models.SgpBookOdds, len(plans)),
	}
	oldest := time.Now()
	for hash, group := range groups {
		entry := cached[hash]
		if entry.CreatedAt.Before(oldest) {
			oldest = entry.CreatedAt
		}
		quote := entry.Quote
		for _, book := range group.books {
			resp.Quotes[book] = bookOdds(plans[book], totalLegs, hashOutcome{quote: &quote, fromCache: true})
		}
	}
	for book, p := range plans {
		if p.err != "" {
			resp.Quotes[book] = errorOdds(p, totalLegs)
		}
	}
	resp.CacheAgeMS = time.Since(oldest).Milliseconds()
	return resp, true
}

// AggregateStream prices the request and delivers per-book quotes as they
// complete, instead of waiting for the slowest book. The channel carries a
// hello event, one quote event per book, and a terminal done event; books
// still unpriced at the stream timeout are reported as pending. The channel
// closes after done, or early if ctx is cancelled.
func (a *Aggregator) AggregateStream(ctx context.Context, req models.AggregateRequest) (<-chan StreamEvent, error) {
	if len(req.Legs) == 0 {
		return nil, fmt.Errorf("no legs in request")
	}

	totalLegs := len(req.Legs)
	plans := plan(req)
	if len(plans) == 0 {
		return nil, fmt.Errorf("no sportsbook holds tokens for these legs")
	}
	groups := groupByHash(plans)

	// Probe the cache up front so the hello can say whether part of the
	// response is served stale while the rest is re-fetched.
	cachedGroups := make(map[string]*CachedQuote)
	for hash := range groups {
		if entry, ok := a.cache.Get(ctx, hash); ok {
			cachedGroups[hash] = entry
		}
	}

	var pending []models.BookKey
	for book, p := range plans {
		if p.err == "" {
			pending = append(pending, book)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	hello := models.StreamHello{
		LegsHash:     requestHash(req),
		BooksPending: pending,
		StaleCache:   len(cachedGroups) > 0 && len(cachedGroups) < len(groups),
	}

	events := make(chan StreamEvent, len(plans)+2)
	go func() {
		defer close(events)

		events <- StreamEvent{Name: EventHello, Data: hello}

		// Books that never go upstream resolve immediately.
		for book, p := range plans {
			if p.err != "" {
				events <- StreamEvent{Name: EventQuote, Data: models.StreamQuote{
					BookID:      book,
					SgpBookOdds: *errorOdds(p, totalLegs),
				}}
			}
		}

		outcomes := make(chan hashOutcome, len(groups))
		for hash, group := range groups {
			if entry, ok := cachedGroups[hash]; ok {
				quote := entry.Quote
				outcomes <- hashOutcome{hash: hash, quote: &quote, fromCache: true}
				continue
			}
			go func(hash string, tokens []string) {
				outcomes <- a.fetchOne(ctx, hash, tokens)
			}(hash, group.tokens)
		}

		unresolved := make(map[string]*hashGroup, len(groups))
		for hash, group := range groups {
			unresolved[hash] = group
		}

		timeout := time.NewTimer(a.streamTimeout)
		defer timeout.Stop()

		for len(unresolved) > 0 {
			select {
			case outcome := <-outcomes:
				group := unresolved[outcome.hash]
				delete(unresolved, outcome.hash)
				for _, book := range group.books {
					events <- StreamEvent{Name: EventQuote, Data: models.StreamQuote{
						BookID:      book,
						SgpBookOdds: *bookOdds(plans[book], totalLegs, outcome),
					}}
				}
			case <-timeout.C:
				var stillPending []models.BookKey
				for _, group := range unresolved {
					stillPending = append(stillPending, group.books...)
				}
				sort.Slice(stillPending, func(i, j int) bool { return stillPending[i] < stillPending[j] })
				events <- StreamEvent{Name: EventDone, Data: models.StreamDone{
					TimedOut: true,
					Pending:  stillPending,
				}}
				return
			case <-ctx.Done():
				return
			}
		}

		events <- StreamEvent{Name: EventDone, Data: models.StreamDone{}}
	}()

	return events, nil
}
