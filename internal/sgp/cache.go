package sgp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmash55/unjuiced/pkg/models"
)

const (
	quoteKeyPrefix = "sgp_quote:"

	// DefaultQuoteTTL keeps quotes fresh enough to display while absorbing
	// the request bursts a pricing page produces.
	DefaultQuoteTTL = 90 * time.Second
)

// Quote is the book-agnostic portion of one upstream pricing result, keyed by
// token-set hash.
type Quote struct {
	Price  int                 `json:"price"` // American odds
	Links  *models.SgpLinks    `json:"links,omitempty"`
	Limits *models.WagerLimits `json:"limits,omitempty"`
}

// CachedQuote is a Quote plus the time it was written, so consumers can
// report cache age.
type CachedQuote struct {
	Quote
	CreatedAt time.Time `json:"created_at"`
}

// QuoteCache stores quotes by token-set hash. Implementations must treat
// storage failures as misses: a broken cache degrades to upstream fetches,
// never to request failures.
type QuoteCache interface {
	Get(ctx context.Context, hash string) (*CachedQuote, bool)
	Set(ctx context.Context, hash string, quote Quote) error
}

// RedisQuoteCache backs QuoteCache with a short-TTL Redis keyspace.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQuoteCache creates a quote cache. A non-positive TTL uses the
// default.
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &RedisQuoteCache{client: client, ttl: ttl}
}

// Get looks up a cached quote. Any Redis or decode failure is reported as a
// miss.
func (c *RedisQuoteCache) Get(ctx context.Context, hash string) (*CachedQuote, bool) {
	data, err := c.client.Get(ctx, quoteKeyPrefix+hash).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("sgp cache read failed for %s: %v", hash, err)
		}
		return nil, false
	}

	var cached CachedQuote
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Printf("sgp cache entry for %s is corrupt: %v", hash, err)
		return nil, false
	}
	return &cached, true
}

// Set writes a quote under its token-set hash with the cache TTL.
func (c *RedisQuoteCache) Set(ctx context.Context, hash string, quote Quote) error {
	data, err := json.Marshal(CachedQuote{Quote: quote, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := c.client.Set(ctx, quoteKeyPrefix+hash, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache quote: %w", err)
	}
	return nil
}
