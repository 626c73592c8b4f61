package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteID identifies a supported retailer.
type SiteID string

const (
	SiteAmazon   SiteID = "amazon"
	SiteFlipkart SiteID = "flipkart"
	SiteMyntra   SiteID = "myntra"
	SiteAjio     SiteID = "ajio"
	SiteNykaa    SiteID = "nykaa"
	SiteTira     SiteID = "tira"
)

type siteInfo struct {
	origin         string
	searchTemplate string // %s receives the escaped query
}

var sites = map[SiteID]siteInfo{
	SiteAmazon:   {origin: "https://www.amazon.in", searchTemplate: "https://www.amazon.in/s?k=%s"},
	SiteFlipkart: {origin: "https://www.flipkart.com", searchTemplate: "https://www.flipkart.com/search?q=%s"},
	SiteMyntra:   {origin: "https://www.myntra.com", searchTemplate: "https://www.myntra.com/%s"},
	SiteAjio:     {origin: "https://www.ajio.com", searchTemplate: "https://www.ajio.com/search/?text=%s"},
	SiteNykaa:    {origin: "https://www.nykaa.com", searchTemplate: "https://www.nykaa.com/search/result/?q=%s"},
	SiteTira:     {origin: "https://www.tirabeauty.com", searchTemplate: "https://www.tirabeauty.com/search?q=%s"},
}

// siteOrder is the registry order reported by AllSites.
var siteOrder = []SiteID{SiteAmazon, SiteFlipkart, SiteMyntra, SiteAjio, SiteNykaa, SiteTira}

// AllSites returns every registered site in registry order.
func AllSites() []SiteID {
	out := make([]SiteID, len(siteOrder))
	copy(out, siteOrder)
	return out
}

// ParseSiteID resolves a client-supplied site name. Matching ignores case
// and surrounding whitespace.
func ParseSiteID(name string) (SiteID, error) {
	id := SiteID(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := sites[id]; !ok {
		return id, fmt.Errorf("%w: %q", ErrNotSupported, name)
	}
	return id, nil
}

// Valid reports whether the site is in the registry.
func (s SiteID) Valid() bool {
	_, ok := sites[s]
	return ok
}

// Origin returns the scheme and host of the site, e.g. "https://www.amazon.in".
func (s SiteID) Origin() string {
	return sites[s].origin
}

// String implements fmt.Stringer.
func (s SiteID) String() string { return string(s) }

// SearchURL builds the site's public search URL for query. The query is
// percent-encoded with spaces as %20. Unregistered sites yield "".
func SearchURL(site SiteID, query string) string {
	info, ok := sites[site]
	if !ok {
		return ""
	}
	return fmt.Sprintf(info.searchTemplate, escapeComponent(query))
}

// escapeComponent percent-encodes s for use in a path segment or query value.
// QueryEscape already turns a literal '+' into %2B, so the remaining '+'
// characters are exactly the encoded spaces.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
