package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adot20/product-search-backend/internal/domain"
)

// Config holds the outbound politeness and transport settings.
type Config struct {
	DelayMin      time.Duration
	DelayMax      time.Duration
	RatePerSecond float64
	Burst         int
	MaxAttempts   int
	MaxBodyBytes  int64
	Proxy         string
	Timeout       time.Duration
	RetryBackoff  time.Duration // wait before the second attempt; doubles after
}

func (c Config) withDefaults() Config {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// HTTPFetcher retrieves retailer pages over plain HTTP with a Chrome TLS
// fingerprint, a rotating browser identity and a per-site rate limit.
type HTTPFetcher struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new fetcher
func NewHTTPFetcher(cfg Config, logger *zap.Logger) *HTTPFetcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Transport: newChromeTransport(cfg.Proxy),
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cfg:      cfg,
		logger:   logger.Named("fetch.http"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Name implements domain.PageFetcher
func (f *HTTPFetcher) Name() string { return "http" }

// Fetch retrieves req.URL. Transport failures and 5xx responses are retried
// up to MaxAttempts; anti-bot answers are returned immediately as ErrBlocked.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *domain.FetchRequest) (*domain.Page, error) {
	if err := politeDelay(ctx, f.cfg.DelayMin, f.cfg.DelayMax); err != nil {
		return nil, err
	}

	limiter := f.limiterFor(req)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, exponentialBackoff(f.cfg.RetryBackoff, attempt)); err != nil {
				return nil, err
			}
		}

		// Wait for rate limiter
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", contextErr(ctx, err))
		}

		page, err := f.doRequest(ctx, req)
		if err == nil {
			f.logger.Debug("fetched page",
				zap.String("site", string(req.Site)),
				zap.Int("status", page.StatusCode),
				zap.Int("bytes", len(page.Body)),
				zap.Int("attempt", attempt))
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}

		f.logger.Debug("fetch attempt failed",
			zap.String("site", string(req.Site)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		lastErr = err
	}

	return nil, lastErr
}

// doRequest executes one GET and classifies the response
func (f *HTTPFetcher) doRequest(ctx context.Context, req *domain.FetchRequest) (*domain.Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrFetchFailed, err)
	}
	pickIdentity(req.Site).apply(httpReq)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)}
	}
	defer resp.Body.Close()

	if isBlockStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: status %d", domain.ErrBlocked, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrFetchFailed, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &retryableError{fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
	}
	if looksBlocked(body) {
		return nil, fmt.Errorf("%w: interstitial page", domain.ErrBlocked)
	}

	return &domain.Page{
		URL:        req.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
		Fetcher:    f.Name(),
	}, nil
}

// limiterFor returns the shared limiter for the request's site, creating it on first use
func (f *HTTPFetcher) limiterFor(req *domain.FetchRequest) *rate.Limiter {
	key := string(req.Site)
	if key == "" {
		key = hostOf(req.URL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RatePerSecond), f.cfg.Burst)
		f.limiters[key] = l
	}
	return l
}

// retryableError marks a failure worth another attempt: a transport error
// or a 5xx answer.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// exponentialBackoff returns the wait before the given attempt (2, 3, ...):
// base, 2*base, 4*base...
func exponentialBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return base << (attempt - 2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contextErr prefers the context's own error, since rate.Limiter.Wait reports
// a would-exceed-deadline condition with a plain error.
func contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
