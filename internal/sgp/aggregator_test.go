package sgp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmash55/unjuiced/pkg/models"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]CachedQuote
	setErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]CachedQuote)}
}

func (c *fakeCache) Get(_ context.Context, hash string) (*CachedQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[hash]
	if !ok {
		return nil, false
	}
	copied := entry
	return &copied, true
}

func (c *fakeCache) Set(_ context.Context, hash string, quote Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[hash] = CachedQuote{Quote: quote, CreatedAt: time.Now()}
	c.sets++
	return nil
}

// fakeProvider resolves quotes keyed by token-set hash and counts upstream
// calls.
type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	quotes map[string]*Quote
	errs   map[string]error
	block  chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{quotes: make(map[string]*Quote), errs: make(map[string]error)}
}

func (p *fakeProvider) FetchQuote(ctx context.Context, tokens []string) (*Quote, error) {
	p.mu.Lock()
	p.calls++
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	hash := LegsHash(tokens)
	if err := p.errs[hash]; err != nil {
		return nil, err
	}
	if quote, ok := p.quotes[hash]; ok {
		return quote, nil
	}
	return &Quote{Price: 250}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// twoLegRequest builds a 2-leg parlay where draftkings and fanduel resolve to
// the same token set and betmgm to a different one.
func twoLegRequest() models.AggregateRequest {
	return models.AggregateRequest{
		Legs: []models.SgpLeg{
			{
				EventID: "evt1", Player: "Curry", MarketKey: "player_points", Line: 28.5, Side: "over",
				Tokens: map[models.BookKey]string{
					"draftkings": "shared-a1",
					"fanduel":    "shared-a1",
					"betmgm":     "mgm-a1",
				},
			},
			{
				EventID: "evt1", Player: "Curry", MarketKey: "player_threes", Line: 4.5, Side: "over",
				Tokens: map[models.BookKey]string{
					"draftkings": "shared-a2",
					"fanduel":    "shared-a2",
					"betmgm":     "mgm-a2",
				},
			},
		},
	}
}

func TestAggregateSharedTokenSetsFetchedOnce(t *testing.T) {
	cache := newFakeCache()
	provider := newFakeProvider()
	sharedHash := LegsHash([]string{"shared-a1", "shared-a2"})
	mgmHash := LegsHash([]string{"mgm-a1", "mgm-a2"})
	provider.quotes[sharedHash] = &Quote{Price: 260}
	provider.quotes[mgmHash] = &Quote{Price: 285}

	agg := NewAggregator(cache, provider, 0)
	resp, err := agg.Aggregate(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	// Two distinct token sets across three books means exactly two calls.
	if got := provider.callCount(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
	if len(resp.Odds) != 3 {
		t.Fatalf("got %d book entries, want 3", len(resp.Odds))
	}
	if resp.Odds["draftkings"].Price != 260 || resp.Odds["fanduel"].Price != 260 {
		t.Errorf("shared-hash books got %d/%d, want 260/260",
			resp.Odds["draftkings"].Price, resp.Odds["fanduel"].Price)
	}
	if resp.Odds["betmgm"].Price != 285 {
		t.Errorf("betmgm price = %d, want 285", resp.Odds["betmgm"].Price)
	}
	for book, odds := range resp.Odds {
		if !odds.HasAllLegs || odds.LegsSupported != 2 || odds.TotalLegs != 2 {
			t.Errorf("%s legs = %d/%d hasAll=%v", book, odds.LegsSupported, odds.TotalLegs, odds.HasAllLegs)
		}
	}
	if len(resp.BooksFetched) != 3 {
		t.Errorf("books fetched = %v, want all 3", resp.BooksFetched)
	}
	// Both quotes landed in the cache.
	if cache.sets != 2 {
		t.Errorf("cache writes = %d, want 2", cache.sets)
	}
}

// Two books with identical token sets share one fetch and one result; a
// book supporting only one leg resolves to an error without going upstream.
func TestAggregateMixedSupport(t *testing.T) {
	req := models.AggregateRequest{
		Legs: []models.SgpLeg{
			{EventID: "evt1", MarketKey: "player_points", Tokens: map[models.BookKey]string{
				"draftkings": "t1", "fanduel": "t1", "betmgm": "t1",
			}},
			{EventID: "evt1", MarketKey: "player_assists", Tokens: map[models.BookKey]string{
				"draftkings": "t2", "fanduel": "t2",
			}},
		},
	}

	provider := newFakeProvider()
	provider.quotes[LegsHash([]string{"t1", "t2"})] = &Quote{
		Price: 320,
		Links: &models.SgpLinks{Desktop: "https://sb.example/slip"},
	}

	agg := NewAggregator(newFakeCache(), provider, 0)
	resp, err := agg.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if got := provider.callCount(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if len(resp.Odds) != 3 {
		t.Fatalf("got %d entries, want 3", len(resp.Odds))
	}

	dk, fd := resp.Odds["draftkings"], resp.Odds["fanduel"]
	if dk.Price != fd.Price || dk.Price != 320 {
		t.Errorf("shared books priced %d/%d, want 320/320", dk.Price, fd.Price)
	}
	if dk.Links == nil || fd.Links == nil || dk.Links.Desktop != fd.Links.Desktop {
		t.Error("shared books do not share links")
	}

	mgm := resp.Odds["betmgm"]
	if mgm.Error != "Not enough legs with SGP support" {
		t.Errorf("betmgm error = %q", mgm.Error)
	}
	if mgm.LegsSupported != 1 || mgm.HasAllLegs {
		t.Errorf("betmgm support = %d hasAll=%v, want 1/false", mgm.LegsSupported, mgm.HasAllLegs)
	}
}

func TestAggregateCacheHitSkipsUpstream(t *testing.T) {
	cache := newFakeCache()
	provider := newFakeProvider()
	sharedHash := LegsHash([]string{"shared-a1", "shared-a2"})
	mgmHash := LegsHash([]string{"mgm-a1", "mgm-a2"})
	cache.entries[sharedHash] = CachedQuote{Quote: Quote{Price: 240}, CreatedAt: time.Now()}
	cache.entries[mgmHash] = CachedQuote{Quote: Quote{Price: 270}, CreatedAt: time.Now()}

	agg := NewAggregator(cache, provider, 0)
	resp, err := agg.Aggregate(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if got := provider.callCount(); got != 0 {
		t.Errorf("upstream calls = %d, want 0 on full cache hit", got)
	}
	for book, odds := range resp.Odds {
		if !odds.FromCache {
			t.Errorf("%s not marked from_cache", book)
		}
	}
	if resp.Odds["draftkings"].Price != 240 || resp.Odds["betmgm"].Price != 270 {
		t.Error("cached prices not served")
	}
}

func TestAggregateDuplicateTokens(t *testing.T) {
	req := models.AggregateRequest{
		Legs: []models.SgpLeg{
			{EventID: "evt1", MarketKey: "player_points", Tokens: map[models.BookKey]string{
				"draftkings": "dup-token", "fanduel": "fd-1",
			}},
			{EventID: "evt1", MarketKey: "player_assists", Tokens: map[models.BookKey]string{
				"draftkings": "dup-token", "fanduel": "fd-2",
			}},
		},
	}

	provider := newFakeProvider()
	agg := NewAggregator(newFakeCache(), provider, 0)
	resp, err := agg.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	dk := resp.Odds["draftkings"]
	if dk == nil || !strings.Contains(dk.Error, "duplicate SGP tokens") {
		t.Errorf("draftkings entry = %+v, want duplicate-token error", dk)
	}
	if dk != nil && dk.Price != 0 {
		t.Error("errored book carries a price")
	}
	// The sibling book still prices normally, with one upstream call.
	fd := resp.Odds["fanduel"]
	if fd == nil || fd.Error != "" || fd.Price == 0 {
		t.Errorf("fanduel entry = %+v, want priced", fd)
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if len(resp.BooksFetched) != 1 || resp.BooksFetched[0] != "fanduel" {
		t.Errorf("books fetched = %v, want [fanduel]", resp.BooksFetched)
	}
}

func TestAggregateNotEnoughLegs(t *testing.T) {
	req := models.AggregateRequest{
		Legs: []models.SgpLeg{
			{EventID: "evt1", MarketKey: "player_points", Tokens: map[models.BookKey]string{
				"draftkings": "dk-1", "fanduel": "fd-1",
			}},
			{EventID: "evt1", MarketKey: "player_assists", Tokens: map[models.BookKey]string{
				"fanduel": "fd-2",
			}},
		},
	}

	provider := newFakeProvider()
	agg := NewAggregator(newFakeCache(), provider, 0)
	resp, err := agg.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	dk := resp.Odds["draftkings"]
	if dk == nil || dk.Error != "Not enough legs with SGP support" {
		t.Errorf("draftkings entry = %+v, want not-enough-legs error", dk)
	}
	if dk != nil && (dk.LegsSupported != 1 || dk.HasAllLegs) {
		t.Errorf("draftkings support = %d hasAll=%v, want 1/false", dk.LegsSupported, dk.HasAllLegs)
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (fanduel only)", got)
	}
}

func TestAggregateProviderErrorIsolated(t *testing.T) {
	provider := newFakeProvider()
	provider.errs[LegsHash([]string{"mgm-a1", "mgm-a2"})] = errors.New("upstream timeout")

	cache := newFakeCache()
	agg := NewAggregator(cache, provider, 0)
	resp, err := agg.Aggregate(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if resp.Odds["betmgm"].Error != "upstream timeout" {
		t.Errorf("betmgm error = %q", resp.Odds["betmgm"].Error)
	}
	if resp.Odds["draftkings"].Error != "" || resp.Odds["draftkings"].Price == 0 {
		t.Error("sibling book affected by betmgm failure")
	}
	for _, book := range resp.BooksFetched {
		if book == "betmgm" {
			t.Error("failed book listed in books_fetched")
		}
	}
	// The failed hash must not be cached.
	if cache.sets != 1 {
		t.Errorf("cache writes = %d, want 1", cache.sets)
	}
}

func TestAggregateCacheWriteFailureNotFatal(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("redis down")

	agg := NewAggregator(cache, newFakeProvider(), 0)
	resp, err := agg.Aggregate(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("cache write failure surfaced as request failure: %v", err)
	}
	if resp.Odds["draftkings"].Error != "" {
		t.Error("cache write failure surfaced as book error")
	}
}

func TestAggregateCancelled(t *testing.T) {
	provider := newFakeProvider()
	provider.block = make(chan struct{})

	agg := NewAggregator(newFakeCache(), provider, 0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := agg.Aggregate(ctx, twoLegRequest())
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("aggregate did not abort on cancellation")
	}
	close(provider.block)
}

func TestAggregateEmptyRequest(t *testing.T) {
	agg := NewAggregator(newFakeCache(), newFakeProvider(), 0)
	if _, err := agg.Aggregate(context.Background(), models.AggregateRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}
