package sgp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// QuoteProvider fetches one parlay quote from the upstream pricing service.
// The token set fully identifies the parlay for the upstream.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, tokens []string) (*Quote, error)
}

// HTTPQuoteProvider calls the upstream SGP pricing API over HTTP, rate
// limited so bursts of uncached parlays cannot exhaust the upstream quota.
type HTTPQuoteProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPQuoteProvider creates a provider against the given base URL,
// allowing requestsPerSecond sustained upstream calls.
func NewHTTPQuoteProvider(baseURL, apiKey string, requestsPerSecond float64) *HTTPQuoteProvider {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &HTTPQuoteProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// FetchQuote posts the token set to the upstream and decodes the priced
// parlay. Missing credentials fail up front, before spending a rate-limit
// slot.
func (p *HTTPQuoteProvider) FetchQuote(ctx context.Context, tokens []string) (*Quote, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("missing upstream pricing credentials")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{"tokens": tokens})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/sgp/price", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream pricing unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream pricing returned status %d", resp.StatusCode)
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	return &quote, nil
}
