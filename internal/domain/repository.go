package domain

import (
	"context"
)

// ProductCache stores the last good record per (query, site) pair.
// Keys are the exact query string; no normalization is applied.
type ProductCache interface {
	// Get returns ErrCacheMiss when no entry exists or the entry is older than the TTL.
	Get(ctx context.Context, query string, site SiteID) (*ProductRecord, error)
	// Put replaces any existing entry for the key.
	Put(ctx context.Context, query string, site SiteID, record *ProductRecord) error
}

// FetchRequest describes one retailer page to retrieve.
type FetchRequest struct {
	Site SiteID
	URL  string
}

// Page is a fetched retailer page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Fetcher    string
}

// PageFetcher retrieves a retailer page. Implementations return errors
// wrapping ErrBlocked or ErrFetchFailed and must stop work when ctx is done.
type PageFetcher interface {
	Name() string
	Fetch(ctx context.Context, req *FetchRequest) (*Page, error)
}

// Extractor turns a fetched page into at most one product record.
// It returns nil when nothing could be derived and never panics on bad input.
type Extractor interface {
	Extract(query SearchQuery, page *Page) *ProductRecord
}

// TitleMatcher ranks candidate product titles against a query.
// SelectBest returns the index of the chosen title, or -1 for an empty list.
type TitleMatcher interface {
	SelectBest(query SearchQuery, titles []string) (index int, score int)
}
