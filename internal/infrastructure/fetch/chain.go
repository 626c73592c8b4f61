package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/internal/domain"
)

// Chain tries fetchers in order and escalates to the next one when a site
// blocks or fails the current one. Cancellation is never escalated.
type Chain struct {
	fetchers []domain.PageFetcher
	logger   *zap.Logger
}

// NewChain builds a chain over fetchers, lightest first.
func NewChain(logger *zap.Logger, fetchers ...domain.PageFetcher) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{fetchers: fetchers, logger: logger.Named("fetch.chain")}
}

// Name implements domain.PageFetcher
func (c *Chain) Name() string {
	names := make([]string, len(c.fetchers))
	for i, f := range c.fetchers {
		names[i] = f.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Fetch returns the first successful page, or the last error.
func (c *Chain) Fetch(ctx context.Context, req *domain.FetchRequest) (*domain.Page, error) {
	if len(c.fetchers) == 0 {
		return nil, fmt.Errorf("%w: no fetchers configured", domain.ErrFetchFailed)
	}

	var lastErr error
	for i, f := range c.fetchers {
		page, err := f.Fetch(ctx, req)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !escalates(err) {
			return nil, err
		}
		if i+1 < len(c.fetchers) {
			c.logger.Info("escalating fetcher",
				zap.String("site", string(req.Site)),
				zap.String("from", f.Name()),
				zap.String("to", c.fetchers[i+1].Name()),
				zap.Error(err))
		}
	}
	return nil, lastErr
}

func escalates(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrBlocked) || errors.Is(err, domain.ErrFetchFailed)
}
