// Package fetcher talks to the opportunity refresh endpoint. The endpoint
// applies the de-vig pipeline server side and returns fully scored
// opportunities; this package only shapes the request and decodes the
// response.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tmash55/unjuiced/pkg/models"
)

// Filters is the active filter set for a stream session. Zero values mean
// "not filtered".
type Filters struct {
	Sports          []string          `json:"sports,omitempty"`
	Markets         []string          `json:"markets,omitempty"`
	Preset          string            `json:"preset,omitempty"`
	MarketLines     map[string]string `json:"market_lines,omitempty"`
	MinOdds         int               `json:"min_odds,omitempty"`
	MaxOdds         int               `json:"max_odds,omitempty"`
	MinEdge         float64           `json:"min_edge,omitempty"`
	MinBooksPerSide int               `json:"min_books_per_side,omitempty"`
	Sort            string            `json:"sort,omitempty"`
	Limit           int               `json:"limit,omitempty"`
}

// FetchResult is one snapshot of currently known opportunities.
type FetchResult struct {
	Opportunities []*models.Opportunity `json:"opportunities"`
	TotalScanned  int                   `json:"total_scanned"`
}

// OpportunityFetcher fetches the current opportunity snapshot for a filter
// set. refresh asks the server to bypass its own cache.
type OpportunityFetcher interface {
	Fetch(ctx context.Context, filters Filters, refresh bool) (*FetchResult, error)
}

// HTTPFetcher is the production OpportunityFetcher.
type HTTPFetcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the given endpoint.
func NewHTTPFetcher(baseURL, apiKey string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch issues the GET and decodes the snapshot.
func (f *HTTPFetcher) Fetch(ctx context.Context, filters Filters, refresh bool) (*FetchResult, error) {
	query := url.Values{}
	if len(filters.Sports) > 0 {
		query.Set("sports", strings.Join(filters.Sports, ","))
	}
	if filters.Preset != "" {
		query.Set("preset", filters.Preset)
	}
	if len(filters.MarketLines) > 0 {
		lines, err := json.Marshal(filters.MarketLines)
		if err != nil {
			return nil, fmt.Errorf("encoding market lines: %w", err)
		}
		query.Set("marketLines", string(lines))
	}
	if filters.MinOdds != 0 {
		query.Set("minOdds", strconv.Itoa(filters.MinOdds))
	}
	if filters.MaxOdds != 0 {
		query.Set("maxOdds", strconv.Itoa(filters.MaxOdds))
	}
	if filters.MinEdge != 0 {
		query.Set("minEdge", strconv.FormatFloat(filters.MinEdge, 'f', -1, 64))
	}
	if filters.MinBooksPerSide > 0 {
		query.Set("minBooksPerSide", strconv.Itoa(filters.MinBooksPerSide))
	}
	if filters.Sort != "" {
		query.Set("sort", filters.Sort)
	}
	if filters.Limit > 0 {
		query.Set("limit", strconv.Itoa(filters.Limit))
	}
	if refresh {
		query.Set("refresh", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching opportunities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opportunity fetch returned status %d", resp.StatusCode)
	}

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding opportunities: %w", err)
	}
	return &result, nil
}
