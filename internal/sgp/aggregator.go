package sgp

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tmash55/unjuiced/pkg/models"
)

// DefaultStreamTimeout bounds how long a streamed pricing request waits for
// slow books before reporting them as pending.
const DefaultStreamTimeout = 15 * time.Second

// Aggregator prices a parlay across books. Books whose legs carry identical
// token sets are grouped by hash and share a single upstream fetch; each
// book's failure is isolated to its own entry in the response.
type Aggregator struct {
	cache         QuoteCache
	provider      QuoteProvider
	streamTimeout time.Duration
}

// NewAggregator creates an aggregator. A non-positive stream timeout uses
// the default.
func NewAggregator(cache QuoteCache, provider QuoteProvider, streamTimeout time.Duration) *Aggregator {
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	return &Aggregator{cache: cache, provider: provider, streamTimeout: streamTimeout}
}

// bookPlan is one book's share of a pricing request: the tokens it holds
// across the legs, or the reason it cannot be priced.
type bookPlan struct {
	tokens        []string
	legsSupported int
	err           string
}

// hashGroup collects the books whose token sets hashed identically.
type hashGroup struct {
	tokens []string
	books  []models.BookKey
}

// plan collects per-book token sets from the request. Books with duplicate
// tokens or fewer than two supported legs get an error plan and are never
// sent upstream.
func plan(req models.AggregateRequest) map[models.BookKey]*bookPlan {
	books := req.Sportsbooks
	if len(books) == 0 {
		seen := make(map[models.BookKey]bool)
		for _, leg := range req.Legs {
			for book := range leg.Tokens {
				if !seen[book] {
					seen[book] = true
					books = append(books, book)
				}
			}
		}
	}

	plans := make(map[models.BookKey]*bookPlan, len(books))
	for _, book := range books {
		p := &bookPlan{}
		seen := make(map[string]bool)
		for _, leg := range req.Legs {
			token, ok := leg.Tokens[book]
			if !ok || token == "" {
				continue
			}
			p.legsSupported++
			if seen[token] {
				p.err = fmt.Sprintf("duplicate SGP tokens for %s", book)
				break
			}
			seen[token] = true
			p.tokens = append(p.tokens, token)
		}
		if p.err == "" && len(p.tokens) < 2 {
			p.err = "Not enough legs with SGP support"
		}
		plans[book] = p
	}
	return plans
}

// groupByHash buckets the priceable books by token-set hash. Exactly one
// upstream fetch happens per bucket.
func groupByHash(plans map[models.BookKey]*bookPlan) map[string]*hashGroup {
	groups := make(map[string]*hashGroup)
	for book, p := range plans {
		if p.err != "" {
			continue
		}
		hash := LegsHash(p.tokens)
		group, ok := groups[hash]
		if !ok {
			group = &hashGroup{tokens: p.tokens}
			groups[hash] = group
		}
		group.books = append(group.books, book)
	}
	for _, group := range groups {
		sort.Slice(group.books, func(i, j int) bool { return group.books[i] < group.books[j] })
	}
	return groups
}

// requestHash identifies the whole request: the hash over every distinct
// token any book holds on any leg.
func requestHash(req models.AggregateRequest) string {
	seen := make(map[string]bool)
	var tokens []string
	for _, leg := range req.Legs {
		for _, token := range leg.Tokens {
			if token != "" && !seen[token] {
				seen[token] = true
				tokens = append(tokens, token)
			}
		}
	}
	return LegsHash(tokens)
}

// hashOutcome is the result of pricing one token-set hash.
type hashOutcome struct {
	hash      string
	quote     *Quote
	fromCache bool
	err       error
}

// fetchOne resolves one hash: cache read-through, then upstream. Cache write
// failures are logged, never surfaced.
func (a *Aggregator) fetchOne(ctx context.Context, hash string, tokens []string) hashOutcome {
	if cached, ok := a.cache.Get(ctx, hash); ok {
		quote := cached.Quote
		return hashOutcome{hash: hash, quote: &quote, fromCache: true}
	}

	quote, err := a.provider.FetchQuote(ctx, tokens)
	if err != nil {
		return hashOutcome{hash: hash, err: err}
	}

	if err := a.cache.Set(ctx, hash, *quote); err != nil {
		log.Printf("sgp cache write failed for %s: %v", hash, err)
	}
	return hashOutcome{hash: hash, quote: quote}
}

// bookOdds assembles one book's response entry from its plan and the outcome
// of its hash group.
func bookOdds(p *bookPlan, totalLegs int, outcome hashOutcome) *models.SgpBookOdds {
	odds := &models.SgpBookOdds{
		LegsSupported: p.legsSupported,
		TotalLegs:     totalLegs,
		HasAllLegs:    p.legsSupported == totalLegs,
	}
	if outcome.err != nil {
		odds.Error = outcome.err.Error()
		return odds
	}
	odds.Price = outcome.quote.Price
	odds.Links = outcome.quote.Links
	odds.Limits = outcome.quote.Limits
	odds.FromCache = outcome.fromCache
	return odds
}

// errorOdds is the response entry for a book that never went upstream.
func errorOdds(p *bookPlan, totalLegs int) *models.SgpBookOdds {
	return &models.SgpBookOdds{
		LegsSupported: p.legsSupported,
		TotalLegs:     totalLegs,
		HasAllLegs:    p.legsSupported == totalLegs,
		Error:         p.err,
	}
}

// Aggregate prices the request across all its books and returns the complete
// per-book map. Hash groups are fetched concurrently; a cancelled context
// aborts the whole call.
func (a *Aggregator) Aggregate(ctx context.Context, req models.AggregateRequest) (*models.AggregateResponse, error) {
	if len(req.Legs) == 0 {
		return nil, fmt.Errorf("no legs in request")
	}

	totalLegs := len(req.Legs)
	plans := plan(req)
	if len(plans) == 0 {
		return nil, fmt.Errorf("no sportsbook holds tokens for these legs")
	}
	groups := groupByHash(plans)

	resp := &models.AggregateResponse{
		Odds:      make(map[models.BookKey]*models.SgpBookOdds, len(plans)),
		TotalLegs: totalLegs,
	}
	for book, p := range plans {
		if p.err != "" {
			resp.Odds[book] = errorOdds(p, totalLegs)
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[string]hashOutcome, len(groups))
	)
	for hash, group := range groups {
		wg.Add(1)
		go func(hash string, tokens []string) {
			defer wg.Done()
			outcome := a.fetchOne(ctx, hash, tokens)
			mu.Lock()
			outcomes[hash] = outcome
			mu.Unlock()
		}(hash, group.tokens)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for hash, group := range groups {
		outcome := outcomes[hash]
		for _, book := range group.books {
			resp.Odds[book] = bookOdds(plans[book], totalLegs, outcome)
			if outcome.err == nil {
				resp.BooksFetched = append(resp.BooksFetched, book)
			}
		}
	}
	sort.Slice(resp.BooksFetched, func(i, j int) bool {
		return resp.BooksFetched[i] < resp.BooksFetched[j]
	})
	return resp, nil
}
