package retailer

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/internal/domain"
)

// Extractor applies the two-phase strategy to one retailer: embedded
// structured data first, then the heuristic DOM scan.
type Extractor struct {
	profile *compiled
	matcher domain.TitleMatcher
	logger  *zap.Logger
}

// NewExtractor compiles p. A nil matcher makes BestMatch behave like FirstValid.
func NewExtractor(p Profile, matcher domain.TitleMatcher, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := compileProfile(p)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		profile: c,
		matcher: matcher,
		logger:  logger.Named("extractor").With(zap.String("site", string(p.Site))),
	}, nil
}

// Extract implements domain.Extractor
func (e *Extractor) Extract(query domain.SearchQuery, page *domain.Page) (record *domain.ProductRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", zap.Any("panic", r))
			record = nil
		}
	}()

	if page == nil || len(page.Body) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Debug("unparseable page", zap.Error(err))
		return nil
	}

	searchURL := domain.SearchURL(e.profile.Site, query.Text())

	if rec := e.fromStructured(query, doc, searchURL); rec != nil {
		e.logger.Debug("structured data match", zap.String("title", rec.Title))
		return rec
	}
	if rec := e.fromDOM(query, doc, searchURL); rec != nil {
		e.logger.Debug("heuristic match", zap.String("title", rec.Title))
		return rec
	}
	return nil
}

func (e *Extractor) fromStructured(query domain.SearchQuery, doc *goquery.Document, searchURL string) *domain.ProductRecord {
	c := e.profile
	for _, payload := range c.payloads(doc) {
		products := c.structuredProducts(payload)
		if len(products) == 0 {
			continue
		}

		titles := make([]string, len(products))
		for i, p := range products {
			titles[i] = p.title
		}
		p := products[e.choose(query, titles)]

		productURL := resolveURL(c.origin, p.link)
		if productURL == "" {
			productURL = searchURL
		}
		return &domain.ProductRecord{
			Title:      p.title,
			Price:      orCheckWebsite(NormalizePrice(p.price)),
			Rating:     NormalizeRating(p.rating),
			ImageURL:   resolveURL(c.origin, p.image),
			ProductURL: productURL,
			SearchURL:  searchURL,
			SizeHint:   ExtractSizeHint(p.title),
		}
	}
	return nil
}

func (e *Extractor) fromDOM(query domain.SearchQuery, doc *goquery.Document, searchURL string) *domain.ProductRecord {
	c := e.profile
	cands := c.candidates(doc)
	if len(cands) == 0 {
		return nil
	}

	var (
		titled []*goquery.Selection
		titles []string
	)
	for _, s := range cands {
		t := c.title(query, s)
		if t == "" {
			continue
		}
		titled = append(titled, s)
		titles = append(titles, t)
		if c.Mode == FirstValid {
			break
		}
	}

	if len(titled) == 0 {
		if c.UntitledFallback && c.price(cands[0]) != "" {
			return e.record(query.Text(), cands[0], searchURL)
		}
		return nil
	}

	i := e.choose(query, titles)
	return e.record(titles[i], titled[i], searchURL)
}

func (e *Extractor) record(title string, s *goquery.Selection, searchURL string) *domain.ProductRecord {
	c := e.profile
	productURL := c.link(s, c.links)
	if productURL == "" {
		productURL = searchURL
	}
	return &domain.ProductRecord{
		Title:      title,
		Price:      orCheckWebsite(c.price(s)),
		Rating:     c.rating(s),
		ImageURL:   c.link(s, c.images),
		ProductURL: productURL,
		SearchURL:  searchURL,
		SizeHint:   ExtractSizeHint(title),
	}
}

// choose picks the candidate index according to the selection mode.
func (e *Extractor) choose(query domain.SearchQuery, titles []string) int {
	if e.profile.Mode != BestMatch || e.matcher == nil || len(titles) < 2 {
		return 0
	}
	i, score := e.matcher.SelectBest(query, titles)
	if i < 0 || i >= len(titles) {
		return 0
	}
	e.logger.Debug("best match selected",
		zap.String("title", titles[i]),
		zap.Int("score", score),
		zap.Int("candidates", len(titles)))
	return i
}

func orCheckWebsite(price string) string {
	if price == "" {
		return domain.PriceCheckWebsite
	}
	return price
}

// Option customizes NewRegistry.
type Option func(*registryOptions)

type registryOptions struct {
	profiles      []Profile
	maxCandidates int
}

// WithProfiles replaces the built-in profiles.
func WithProfiles(profiles ...Profile) Option {
	return func(o *registryOptions) { o.profiles = profiles }
}

// WithMaxCandidates sets the candidate cap for profiles that do not set one.
func WithMaxCandidates(n int) Option {
	return func(o *registryOptions) { o.maxCandidates = n }
}

// NewRegistry builds one Extractor per profile, keyed by site.
func NewRegistry(matcher domain.TitleMatcher, logger *zap.Logger, opts ...Option) (map[domain.SiteID]domain.Extractor, error) {
	o := registryOptions{profiles: DefaultProfiles()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := make(map[domain.SiteID]domain.Extractor, len(o.profiles))
	for _, p := range o.profiles {
		if p.MaxCandidates <= 0 {
			p.MaxCandidates = o.maxCandidates
		}
		if _, dup := reg[p.Site]; dup {
			return nil, fmt.Errorf("retailer registry: duplicate profile for %s", p.Site)
		}
		ex, err := NewExtractor(p, matcher, logger)
		if err != nil {
			return nil, err
		}
		reg[p.Site] = ex
	}
	return reg, nil
}
