package sgp

import (
	"context"
	"testing"
	"time"

	"github.com/tmash55/unjuiced/pkg/models"
)

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var collected []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatal("stream never closed")
		}
	}
}

func TestAggregateStreamDeliversAllBooks(t *testing.T) {
	provider := newFakeProvider()
	provider.quotes[LegsHash([]string{"shared-a1", "shared-a2"})] = &Quote{Price: 260}
	provider.quotes[LegsHash([]string{"mgm-a1", "mgm-a2"})] = &Quote{Price: 285}

	agg := NewAggregator(newFakeCache(), provider, 0)
	events, err := agg.AggregateStream(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	collected := collectEvents(t, events)
	if len(collected) == 0 || collected[0].Name != EventHello {
		t.Fatal("stream did not open with hello")
	}
	hello := collected[0].Data.(models.StreamHello)
	if len(hello.BooksPending) != 3 {
		t.Errorf("hello pending = %v, want 3 books", hello.BooksPending)
	}
	if hello.LegsHash == "" {
		t.Error("hello missing request hash")
	}
	if hello.StaleCache {
		t.Error("cold cache reported stale_cache")
	}

	quoted := make(map[models.BookKey]int)
	for _, event := range collected[1 : len(collected)-1] {
		if event.Name != EventQuote {
			t.Fatalf("unexpected mid-stream event %q", event.Name)
		}
		quote := event.Data.(models.StreamQuote)
		quoted[quote.BookID] = quote.Price
	}
	if quoted["draftkings"] != 260 || quoted["fanduel"] != 260 || quoted["betmgm"] != 285 {
		t.Errorf("quoted prices = %v", quoted)
	}

	last := collected[len(collected)-1]
	if last.Name != EventDone {
		t.Fatalf("stream did not close with done, got %q", last.Name)
	}
	done := last.Data.(models.StreamDone)
	if done.TimedOut || len(done.Pending) != 0 {
		t.Errorf("done = %+v, want clean completion", done)
	}
}

func TestAggregateStreamTimeout(t *testing.T) {
	provider := newFakeProvider()
	provider.block = make(chan struct{})
	defer close(provider.block)

	agg := NewAggregator(newFakeCache(), provider, 50*time.Millisecond)
	events, err := agg.AggregateStream(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	collected := collectEvents(t, events)
	last := collected[len(collected)-1]
	if last.Name != EventDone {
		t.Fatalf("stream did not close with done, got %q", last.Name)
	}
	done := last.Data.(models.StreamDone)
	if !done.TimedOut {
		t.Error("blocked upstream did not report timeout")
	}
	if len(done.Pending) != 3 {
		t.Errorf("pending = %v, want all 3 books", done.Pending)
	}
}

func TestAggregateStreamErrorBooksResolveImmediately(t *testing.T) {
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

	agg := NewAggregator(newFakeCache(), newFakeProvider(), 0)
	events, err := agg.AggregateStream(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	collected := collectEvents(t, events)
	hello := collected[0].Data.(models.StreamHello)
	if len(hello.BooksPending) != 1 || hello.BooksPending[0] != "fanduel" {
		t.Errorf("hello pending = %v, want only fanduel", hello.BooksPending)
	}

	var sawErrorQuote, sawPricedQuote bool
	for _, event := range collected {
		if event.Name != EventQuote {
			continue
		}
		quote := event.Data.(models.StreamQuote)
		switch quote.BookID {
		case "draftkings":
			if quote.Error == "" {
				t.Error("draftkings quote missing error")
			}
			sawErrorQuote = true
		case "fanduel":
			if quote.Error != "" || quote.Price == 0 {
				t.Errorf("fanduel quote = %+v", quote)
			}
			sawPricedQuote = true
		}
	}
	if !sawErrorQuote || !sawPricedQuote {
		t.Error("stream missing a per-book quote event")
	}
}

func TestAggregateStreamStaleCacheFlag(t *testing.T) {
	cache := newFakeCache()
	cache.entries[LegsHash([]string{"shared-a1", "shared-a2"})] = CachedQuote{
		Quote: Quote{Price: 240}, CreatedAt: time.Now().Add(-30 * time.Second),
	}

	agg := NewAggregator(cache, newFakeProvider(), 0)
	events, err := agg.AggregateStream(context.Background(), twoLegRequest())
	if err != nil {
		t.Fatal(err)
	}

	collected := collectEvents(t, events)
	hello := collected[0].Data.(models.StreamHello)
	if !hello.StaleCache {
		t.Error("partial cache hit not reported as stale_cache")
	}

	for _, event := range collected {
		if event.Name != EventQuote {
			continue
		}
		quote := event.Data.(models.StreamQuote)
		if quote.BookID == "draftkings" && !quote.FromCache {
			t.Error("cached group not marked from_cache")
		}
	}
}

func TestCachedResponse(t *testing.T) {
	cache := newFakeCache()
	agg := NewAggregator(cache, newFakeProvider(), 0)
	req := twoLegRequest()

	// Partial cache is not enough for the single-body path.
	cache.entries[LegsHash([]string{"shared-a1", "shared-a2"})] = CachedQuote{
		Quote: Quote{Price: 240}, CreatedAt: time.Now().Add(-10 * time.Second),
	}
	if _, ok := agg.CachedResponse(context.Background(), req); ok {
		t.Fatal("partial cache served as a full cached response")
	}

	cache.entries[LegsHash([]string{"mgm-a1", "mgm-a2"})] = CachedQuote{
		Quote: Quote{Price: 270}, CreatedAt: time.Now().Add(-2 * time.Second),
	}
	resp, ok := agg.CachedResponse(context.Background(), req)
	if !ok {
		t.Fatal("full cache not served as a cached response")
	}
	if len(resp.Quotes) != 3 {
		t.Errorf("got %d quotes, want 3", len(resp.Quotes))
	}
	if resp.Quotes["draftkings"].Price != 240 || resp.Quotes["betmgm"].Price != 270 {
		t.Error("cached prices not served")
	}
	// Age reflects the oldest entry.
	if resp.CacheAgeMS < 9000 {
		t.Errorf("cache age = %dms, want >= oldest entry age", resp.CacheAgeMS)
	}
	if resp.LegsHash == "" {
		t.Error("missing request hash")
	}
}
