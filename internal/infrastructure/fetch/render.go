package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/internal/domain"
)

// RenderConfig configures the headless browser.
type RenderConfig struct {
	Headless  bool
	NoSandbox bool
	Bin       string
	Proxy     string
	MaxPages  int
	Settle    time.Duration // DOM quiet period before the page is read
}

// RenderFetcher loads pages in a stealth-patched headless Chrome. It is the
// escalation path for sites that serve an empty shell or an interstitial to
// plain HTTP clients.
type RenderFetcher struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pages    rod.Pool[rod.Page]
	settle   time.Duration
	logger   *zap.Logger

	openTab    func() (*rod.Page, error)
	prepareTab func(*rod.Page) error
}

// NewRenderFetcher launches the browser and prepares a bounded page pool.
func NewRenderFetcher(cfg RenderConfig, logger *zap.Logger) (*RenderFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 4
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 300 * time.Millisecond
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	logger.Info("browser renderer ready", zap.Int("max_pages", cfg.MaxPages))
	return &RenderFetcher{
		launcher: l,
		browser:  browser,
		pages:    rod.NewPagePool(cfg.MaxPages),
		settle:   cfg.Settle,
		logger:   logger.Named("fetch.render"),
		openTab: func() (*rod.Page, error) {
			return browser.Page(proto.TargetCreateTarget{})
		},
		prepareTab: injectStealth,
	}, nil
}

// Name implements domain.PageFetcher
func (f *RenderFetcher) Name() string { return "render" }

// Fetch navigates a pooled tab to req.URL and returns the rendered DOM.
func (f *RenderFetcher) Fetch(ctx context.Context, req *domain.FetchRequest) (*domain.Page, error) {
	page, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		// reset on the pooled handle, which is not bound to the request context
		_ = page.Navigate("about:blank")
		f.pages.Put(page)
	}()

	id := pickIdentity(req.Site)
	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      id.userAgent,
		AcceptLanguage: id.headers["Accept-Language"],
	})

	p := page.Context(ctx)
	if err := p.Navigate(req.URL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: navigate: %v", domain.ErrFetchFailed, err)
	}
	if err := p.WaitDOMStable(f.settle, 0.1); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rawHTML, err := p.HTML()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read DOM: %v", domain.ErrFetchFailed, err)
	}

	body := []byte(rawHTML)
	if looksBlocked(body) {
		return nil, fmt.Errorf("%w: interstitial page", domain.ErrBlocked)
	}

	finalURL := req.URL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &domain.Page{
		URL:        req.URL,
		FinalURL:   finalURL,
		StatusCode: 200,
		Body:       body,
		Fetcher:    f.Name(),
	}, nil
}

// acquire takes a tab from the pool, creating it on first use. Waiting for a
// free slot honours ctx. New tabs get the stealth script once; it persists
// across navigations.
func (f *RenderFetcher) acquire(ctx context.Context) (*rod.Page, error) {
	var page *rod.Page
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case page = <-f.pages:
	}
	if page != nil {
		return page, nil
	}

	page, err := f.openTab()
	if err != nil {
		f.pages.Put(nil)
		return nil, fmt.Errorf("%w: open tab: %v", domain.ErrFetchFailed, err)
	}
	if err := f.prepareTab(page); err != nil {
		f.logger.Warn("stealth injection failed", zap.Error(err))
	}
	return page, nil
}

// injectStealth runs once per tab, before it enters the pool.
func injectStealth(page *rod.Page) error {
	_, err := page.EvalOnNewDocument(stealth.JS)
	return err
}

// Close drains the page pool and kills the browser process.
func (f *RenderFetcher) Close() error {
	f.pages.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	err := f.browser.Close()
	f.launcher.Kill()
	return err
}
