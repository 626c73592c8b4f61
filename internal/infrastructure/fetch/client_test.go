package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adot20/product-search-backend/internal/domain"
)

const listingHTML = `<html><head><title>Amazon.in : lakme lipstick</title></head>
<body><div data-component-type="s-search-result"><h2>Lakme Absolute Matte Lipstick</h2></div>` +
	`<p>` + "Results for lakme lipstick across beauty and personal care categories. " + `</p></body></html>`

func testConfig() Config {
	return Config{
		RatePerSecond: 1000,
		Burst:         10,
		MaxAttempts:   2,
		RetryBackoff:  time.Millisecond,
	}
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(Config{}, nil)

	assert.NotNil(t, f.httpClient)
	assert.Equal(t, "http", f.Name())
	assert.Equal(t, 2, f.cfg.MaxAttempts)
	assert.Equal(t, int64(10<<20), f.cfg.MaxBodyBytes)
	assert.Equal(t, 500*time.Millisecond, f.cfg.RetryBackoff)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 0},
		{2, 500 * time.Millisecond},
		{3, 1000 * time.Millisecond},
		{4, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(500*time.Millisecond, tt.attempt))
		})
	}
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	page, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteAmazon, URL: server.URL + "/s?k=lakme"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "http", page.Fetcher)
	assert.Contains(t, string(page.Body), "Lakme Absolute Matte Lipstick")
	assert.Contains(t, userAgents, gotUA)
	assert.Equal(t, "https://www.amazon.in/", gotReferer)
}

func TestFetch_BlockedStatus(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			f := NewHTTPFetcher(testConfig(), nil)
			_, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteFlipkart, URL: server.URL})

			assert.True(t, errors.Is(err, domain.ErrBlocked), "err = %v", err)
			assert.Equal(t, int32(1), hits.Load(), "blocked responses are not retried")
		})
	}
}

func TestFetch_CaptchaPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Robot Check</title></head><body>
			<p>Enter the characters you see below</p></body></html>`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	_, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteAmazon, URL: server.URL})

	assert.True(t, errors.Is(err, domain.ErrBlocked), "err = %v", err)
}

func TestFetch_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	page, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteNykaa, URL: server.URL})

	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ServerErrorExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	_, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteNykaa, URL: server.URL})

	assert.True(t, errors.Is(err, domain.ErrFetchFailed), "err = %v", err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	_, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteAjio, URL: server.URL})

	assert.True(t, errors.Is(err, domain.ErrFetchFailed), "err = %v", err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := NewHTTPFetcher(testConfig(), nil)
	_, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteTira, URL: url})

	assert.True(t, errors.Is(err, domain.ErrFetchFailed), "err = %v", err)
}

func TestFetch_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(testConfig(), nil)
	start := time.Now()
	_, err := f.Fetch(ctx, &domain.FetchRequest{Site: domain.SiteMyntra, URL: server.URL})

	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetch_PoliteDelayHonoursContext(t *testing.T) {
	cfg := testConfig()
	cfg.DelayMin = time.Hour
	cfg.DelayMax = time.Hour
	f := NewHTTPFetcher(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, &domain.FetchRequest{Site: domain.SiteAmazon, URL: "http://127.0.0.1:1"})
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestFetch_BodyCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 100
	f := NewHTTPFetcher(cfg, nil)
	page, err := f.Fetch(context.Background(), &domain.FetchRequest{Site: domain.SiteAmazon, URL: server.URL})

	require.NoError(t, err)
	assert.Len(t, page.Body, 100)
}

func TestLimiterIsPerSite(t *testing.T) {
	f := NewHTTPFetcher(testConfig(), nil)
	a := f.limiterFor(&domain.FetchRequest{Site: domain.SiteAmazon})
	b := f.limiterFor(&domain.FetchRequest{Site: domain.SiteFlipkart})
	again := f.limiterFor(&domain.FetchRequest{Site: domain.SiteAmazon})

	assert.NotSame(t, a, b)
	assert.Same(t, a, again)
}

func TestLooksBlocked(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"captcha title", `<html><head><title>Amazon CAPTCHA</title></head><body></body></html>`, true},
		{"access denied body", `<html><head><title>Nykaa</title></head><body><h1>Access Denied</h1></body></html>`, true},
		{"listing mentioning robot", `<html><head><title>robot vacuum</title></head><body>` +
			strings.Repeat("<p>Robot vacuum cleaner with smart mapping</p>", 100) + `</body></html>`, false},
		{"ordinary page", listingHTML, false},
		{"script text ignored", `<html><body><script>var captcha = false;</script><p>Products</p></body></html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksBlocked([]byte(tt.body)))
		})
	}
}
