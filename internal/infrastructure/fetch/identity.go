package fetch

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/adot20/product-search-backend/internal/domain"
)

// userAgents is the rotation pool of current desktop browsers.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
}

// identity is one request's browser persona.
type identity struct {
	userAgent string
	headers   map[string]string
}

// pickIdentity chooses a random user agent and builds the header profile a
// browser would send when arriving at site's search page from its home page.
func pickIdentity(site domain.SiteID) identity {
	ua := userAgents[rand.IntN(len(userAgents))]
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-IN,en-GB;q=0.9,en-US;q=0.8,en;q=0.7",
		"Accept-Encoding":           "identity",
		"Cache-Control":             "no-cache",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-User":            "?1",
		"Sec-Fetch-Site":            "none",
	}

	if origin := site.Origin(); origin != "" {
		headers["Referer"] = origin + "/"
		headers["Sec-Fetch-Site"] = "same-origin"
	} else {
		headers["Referer"] = "https://www.google.com/"
		headers["Sec-Fetch-Site"] = "cross-site"
	}

	return identity{userAgent: ua, headers: headers}
}

func (id identity) apply(req *http.Request) {
	req.Header.Set("User-Agent", id.userAgent)
	for k, v := range id.headers {
		req.Header.Set(k, v)
	}
}

// politeDelay sleeps for a random duration in [min, max], returning early
// with ctx.Err() if ctx ends first. A zero max disables the delay.
func politeDelay(ctx context.Context, min, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	d := min
	if max > min {
		d += rand.N(max - min)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// hostOf returns the lowercase host of rawURL, or rawURL itself when it does not parse.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
