package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/internal/domain"
)

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	SiteTimeout   time.Duration // budget for one site's pipeline, measured from its own start
	SearchTimeout time.Duration // ceiling for the whole call
}

// SearchService fans a query out to every requested site and assembles one
// result per site in request order.
type SearchService struct {
	cache      domain.ProductCache
	fetcher    domain.PageFetcher
	extractors map[domain.SiteID]domain.Extractor

	siteTimeout   time.Duration
	searchTimeout time.Duration
	logger        *zap.Logger
}

// NewSearchService creates a new search service with dependencies.
// A nil cache disables caching.
func NewSearchService(
	cache domain.ProductCache,
	fetcher domain.PageFetcher,
	extractors map[domain.SiteID]domain.Extractor,
	config SearchServiceConfig,
	logger *zap.Logger,
) *SearchService {
	if config.SiteTimeout <= 0 {
		config.SiteTimeout = 8 * time.Second
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SearchService{
		cache:         cache,
		fetcher:       fetcher,
		extractors:    extractors,
		siteTimeout:   config.SiteTimeout,
		searchTimeout: config.SearchTimeout,
		logger:        logger.Named("search"),
	}
}

// Sites returns the sites this service has extractors for, in registry order.
func (s *SearchService) Sites() []domain.SiteID {
	out := make([]domain.SiteID, 0, len(s.extractors))
	for _, site := range domain.AllSites() {
		if _, ok := s.extractors[site]; ok {
			out = append(out, site)
		}
	}
	return out
}

// Search runs one pipeline per site concurrently. The result has exactly one
// entry per requested site, in the same order, whatever happens to the
// individual pipelines.
func (s *SearchService) Search(ctx context.Context, query string, sites []domain.SiteID) []domain.SiteResult {
	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	q := domain.NewSearchQuery(query)
	results := make([]domain.SiteResult, len(sites))

	var wg sync.WaitGroup
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site domain.SiteID) {
			defer wg.Done()
			results[i] = s.runPipeline(ctx, q, site)
		}(i, site)
	}
	wg.Wait()

	return results
}

// runPipeline is cache -> fetch -> extract -> cache write for one site.
func (s *SearchService) runPipeline(ctx context.Context, q domain.SearchQuery, site domain.SiteID) (result domain.SiteResult) {
	start := time.Now()
	log := s.logger.With(zap.String("site", string(site)), zap.String("query", q.Text()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panicked", zap.Any("panic", r))
			result = domain.Failed(site, q.Text(), domain.ReasonFetchFailed)
		}
		result.Elapsed = time.Since(start)
		log.Info("site search finished",
			zap.String("status", string(result.Status)),
			zap.String("reason", string(result.Reason)),
			zap.Bool("cached", result.Cached),
			zap.Int64("elapsed_ms", result.Elapsed.Milliseconds()))
	}()

	extractor, ok := s.extractors[site]
	if !site.Valid() || !ok {
		return domain.Failed(site, q.Text(), domain.ReasonNotSupported)
	}

	if record := s.getFromCache(ctx, q.Text(), site); record != nil {
		return domain.Found(site, record, true)
	}

	pctx, cancel := context.WithTimeout(ctx, s.siteTimeout)
	defer cancel()

	record, err := s.fetchAndExtract(pctx, q, site, extractor)
	switch {
	case err == nil:
		s.setInCache(ctx, q.Text(), site, record)
		return domain.Found(site, record, false)
	case errors.Is(err, domain.ErrNoMatch):
		return domain.Degraded(site, q.Text())
	default:
		log.Warn("site search failed", zap.Error(err))
		return domain.Failed(site, q.Text(), domain.ReasonFor(err))
	}
}

type extraction struct {
	record *domain.ProductRecord
	err    error
}

// fetchAndExtract runs the fetch and extraction in a goroutine so the
// deadline holds even against a fetcher that ignores its context.
func (s *SearchService) fetchAndExtract(
	ctx context.Context,
	q domain.SearchQuery,
	site domain.SiteID,
	extractor domain.Extractor,
) (*domain.ProductRecord, error) {
	done := make(chan extraction, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extraction{err: fmt.Errorf("%w: panic: %v", domain.ErrFetchFailed, r)}
			}
		}()

		page, err := s.fetcher.Fetch(ctx, &domain.FetchRequest{
			Site: site,
			URL:  domain.SearchURL(site, q.Text()),
		})
		if err != nil {
			done <- extraction{err: err}
			return
		}
		if ctx.Err() != nil {
			done <- extraction{err: ctx.Err()}
			return
		}

		record := extractor.Extract(q, page)
		if record == nil {
			done <- extraction{err: domain.ErrNoMatch}
			return
		}
		done <- extraction{record: finalize(record, site, q.Text())}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
	case res := <-done:
		return res.record, res.err
	}
}

// finalize enforces the record invariants regardless of what the extractor
// produced: a title, a price or the sentinel, and absolute links.
func finalize(record *domain.ProductRecord, site domain.SiteID, query string) *domain.ProductRecord {
	out := *record
	if out.Title == "" {
		out.Title = query
	}
	if out.Price == "" {
		out.Price = domain.PriceCheckWebsite
	}
	if out.SearchURL == "" {
		out.SearchURL = domain.SearchURL(site, query)
	}
	if out.ProductURL == "" {
		out.ProductURL = out.SearchURL
	}
	return &out
}

// getFromCache returns nil on a miss. Cache failures are logged and treated as misses.
func (s *SearchService) getFromCache(ctx context.Context, query string, site domain.SiteID) *domain.ProductRecord {
	if s.cache == nil {
		return nil
	}
	record, err := s.cache.Get(ctx, query, site)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("cache read failed", zap.String("site", string(site)), zap.Error(err))
		}
		return nil
	}
	return record
}

func (s *SearchService) setInCache(ctx context.Context, query string, site domain.SiteID, record *domain.ProductRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, query, site, record); err != nil {
		s.logger.Warn("cache write failed", zap.String("site", string(site)), zap.Error(err))
	}
}
