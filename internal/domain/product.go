package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// PriceCheckWebsite is the price sentinel used when a record has no
// extractable price, and on every degraded result.
const PriceCheckWebsite = "Check website"

// ProductRecord is the normalized product extracted from a retailer page.
// Empty optional fields are omitted when encoded.
type ProductRecord struct {
	Title      string `json:"title"`
	Price      string `json:"price"`
	Rating     string `json:"rating,omitempty"`
	ImageURL   string `json:"image,omitempty"`
	ProductURL string `json:"url"`
	SearchURL  string `json:"searchUrl"`
	SizeHint   string `json:"size,omitempty"`
}

// SearchQuery is the free-text product query plus its derived match terms.
// Construct it with NewSearchQuery; the zero value has no terms.
type SearchQuery struct {
	text  string
	terms []string
}

// NewSearchQuery derives the ordered, deduplicated, lowercase terms of text.
// Terms shorter than two characters are dropped.
func NewSearchQuery(text string) SearchQuery {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 1 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return SearchQuery{text: text, terms: terms}
}

// Text returns the original query text, unmodified.
func (q SearchQuery) Text() string { return q.text }

// Terms returns a copy of the derived search terms.
func (q SearchQuery) Terms() []string {
	out := make([]string, len(q.terms))
	copy(out, q.terms)
	return out
}

// ResultStatus classifies a SiteResult.
type ResultStatus string

const (
	StatusFound    ResultStatus = "found"
	StatusDegraded ResultStatus = "degraded"
	StatusError    ResultStatus = "error"
)

// SiteResult is one element of a search response. Every requested site
// produces exactly one SiteResult.
type SiteResult struct {
	Site      SiteID
	Status    ResultStatus
	Record    *ProductRecord // nil when Status is StatusError
	Reason    ReasonKind     // set only when Status is StatusError
	SearchURL string
	Cached    bool
	Elapsed   time.Duration
}

// Found wraps an extracted record.
func Found(site SiteID, record *ProductRecord, cached bool) SiteResult {
	return SiteResult{
		Site:      site,
		Status:    StatusFound,
		Record:    record,
		SearchURL: record.SearchURL,
		Cached:    cached,
	}
}

// Degraded builds the result for a reachable site where no product could be
// derived. The record links to the plain search page.
func Degraded(site SiteID, query string) SiteResult {
	searchURL := SearchURL(site, query)
	return SiteResult{
		Site:   site,
		Status: StatusDegraded,
		Record: &ProductRecord{
			Title:      query,
			Price:      PriceCheckWebsite,
			ProductURL: searchURL,
			SearchURL:  searchURL,
		},
		SearchURL: searchURL,
	}
}

// Failed builds an error result. The search URL is still populated so the
// client can offer a fallback link.
func Failed(site SiteID, query string, reason ReasonKind) SiteResult {
	return SiteResult{
		Site:      site,
		Status:    StatusError,
		Reason:    reason,
		SearchURL: SearchURL(site, query),
	}
}

// IsError reports whether the result is an explicit error tuple.
func (r SiteResult) IsError() bool { return r.Status == StatusError }

type siteResultJSON struct {
	Site       string     `json:"site"`
	Title      string     `json:"title,omitempty"`
	Price      string     `json:"price,omitempty"`
	Rating     string     `json:"rating,omitempty"`
	ImageURL   string     `json:"image,omitempty"`
	ProductURL string     `json:"url,omitempty"`
	SizeHint   string     `json:"size,omitempty"`
	SearchURL  string     `json:"searchUrl"`
	Degraded   bool       `json:"degraded,omitempty"`
	Cached     bool       `json:"cached,omitempty"`
	Error      bool       `json:"error,omitempty"`
	Reason     ReasonKind `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// MarshalJSON flattens the result into the shape the extension renders:
// product fields at the top level, or {site, error, reason, message, searchUrl}.
func (r SiteResult) MarshalJSON() ([]byte, error) {
	out := siteResultJSON{
		Site:      string(r.Site),
		SearchURL: r.SearchURL,
		Cached:    r.Cached,
	}
	if r.IsError() {
		out.Error = true
		out.Reason = r.Reason
		out.Message = r.Reason.Message()
		return json.Marshal(out)
	}
	if r.Record != nil {
		out.Title = r.Record.Title
		out.Price = r.Record.Price
		out.Rating = r.Record.Rating
		out.ImageURL = r.Record.ImageURL
		out.ProductURL = r.Record.ProductURL
		out.SizeHint = r.Record.SizeHint
	}
	out.Degraded = r.Status == StatusDegraded
	return json.Marshal(out)
}
