package retailer

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/andybalholm/cascadia"

	"github.com/adot20/product-search-backend/internal/domain"
)

// SelectionMode decides which candidate a listing page yields.
type SelectionMode int

const (
	// FirstValid takes the first candidate, in document order, with a usable title.
	FirstValid SelectionMode = iota
	// BestMatch ranks every candidate title with the TitleMatcher.
	BestMatch
)

// Field names a sub-selector and where its value lives. An empty Attr means
// the element text.
type Field struct {
	Selector string
	Attr     string
}

// Container names a candidate-product selector. With Parent set, the
// candidate is the parent of each matched element.
type Container struct {
	Selector string
	Parent   bool
}

// JSONKeys lists the object keys, tried in order, that carry each product
// field inside an embedded payload. Keys may be dotted paths ("images.0.url").
type JSONKeys struct {
	Title  []string
	Brand  []string
	Price  []string
	Image  []string
	Link   []string
	Rating []string
}

// Profile is the site-specific configuration for the shared extraction
// strategy. Adding a retailer means adding a Profile.
type Profile struct {
	Site domain.SiteID

	// Structured-data phase.
	NextDataScript bool     // <script id="__NEXT_DATA__"> holds the whole payload
	Markers        []string // script assignments such as "window.__myx" or "products"
	ProductPaths   []string // "" is the payload root
	Keys           JSONKeys

	// Heuristic phase. Each selector list is tried in order.
	Containers    []Container
	Titles        []Field
	Brands        []Field
	Names         []Field
	AnyLinkTitle  bool // last resort: any link with 10 to 200 characters of text
	PriceWhole    string
	PriceFraction string
	Prices        []Field
	ScanPriceText bool // look for a short "₹" text node inside the container
	Ratings       []Field
	Images        []Field
	Links         []Field

	Mode             SelectionMode
	MaxCandidates    int
	MinTitleLength   int
	UntitledFallback bool // a priced container with no title yields the query as title
}

func images(sel string) []Field {
	return []Field{{sel, "src"}, {sel, "data-src"}, {sel, "data-lazy-src"}}
}

var defaultKeys = JSONKeys{
	Title:  []string{"productName", "name", "title"},
	Price:  []string{"price", "finalPrice", "sellingPrice"},
	Image:  []string{"imageUrl", "image", "images.0.url"},
	Link:   []string{"url", "productUrl", "link"},
	Rating: []string{"rating", "averageRating"},
}

// DefaultProfiles returns the built-in retailer profiles in registry order.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Site: domain.SiteAmazon,
			Containers: []Container{
				{Selector: `[data-component-type="s-search-result"]`},
				{Selector: `div[data-cel-widget*="search_result"]`},
				{Selector: `div[class*="s-result-item"]`},
			},
			Titles: []Field{
				{Selector: "h2"},
				{Selector: "h2 a span.a-text-normal"},
				{Selector: "h2 a span"},
				{Selector: `[data-cy="title-recipe"]`},
			},
			PriceWhole:    ".a-price-whole",
			PriceFraction: ".a-price-fraction",
			Prices:        []Field{{Selector: `.a-price .a-offscreen`}, {Selector: `.a-price, [class*="price"]`}},
			Ratings: []Field{
				{Selector: ".a-icon-star-small span, .a-icon-alt"},
				{Selector: `[aria-label*="star"]`, Attr: "aria-label"},
			},
			Images:         []Field{{"img.s-image", "src"}, {"img", "src"}},
			Links:          []Field{{"h2 a", "href"}, {`a[href*="/dp/"]`, "href"}},
			Mode:           FirstValid,
			MaxCandidates:  10,
			MinTitleLength: 10,
		},
		{
			Site: domain.SiteFlipkart,
			Containers: []Container{
				{Selector: "[data-id]"},
				{Selector: `div[class*="product"], div[class*="Product"]`},
				{Selector: `a[href*="/p/"]`, Parent: true},
			},
			Titles: []Field{
				{Selector: `a[class*="wjcEIp"], a[class*="WKTcLC"], a[class*="IRlnr"]`},
				{Selector: "a[title]", Attr: "title"},
				{Selector: `[class*="KzDlHZ"], [class*="title"], h2, h3, h4`},
			},
			AnyLinkTitle:  true,
			Prices:        []Field{{Selector: `div[class*="Nx9bqj"], div[class*="_30jeq3"], div[class*="hl05eU"], div[class*="_1_WHN1"]`}},
			ScanPriceText: true,
			Ratings:       []Field{{Selector: `div[class*="XQDdHH"], div[class*="Rsc7Yb"], span[class*="rating"]`}},
			Images:        []Field{{"img", "src"}, {"img", "data-src"}},
			Links:         []Field{{`a[href*="/p/"]`, "href"}, {"a", "href"}},
			Mode:          BestMatch,
			// MaxCandidates comes from the registry options.
			MinTitleLength: 5,
		},
		{
			Site:         domain.SiteMyntra,
			Markers:      []string{"window.__myx"},
			ProductPaths: []string{"searchData.results.products"},
			Keys: JSONKeys{
				Title:  []string{"product", "productName"},
				Brand:  []string{"brand"},
				Price:  []string{"price", "discountedPrice"},
				Image:  []string{"searchImage", "images.0.src"},
				Link:   []string{"landingPageUrl"},
				Rating: []string{"rating"},
			},
			Containers: []Container{{Selector: `.product-base, .product-productMetaInfo, li[class*="product-"]`}},
			Brands:     []Field{{Selector: `.product-brand, h3[class*="brand"], .brand-name`}},
			Names:      []Field{{Selector: `.product-product, h4[class*="product"], .product-name`}},
			Prices:     []Field{{Selector: `.product-discountedPrice, .product-price, [class*="discountedPrice"]`}},
			Ratings:    []Field{{Selector: `.product-ratingsContainer span, [class*="rating"]`}},
			Images:     images("img"),
			Links:      []Field{{"a", "href"}},
			Mode:       FirstValid,
		},
		{
			Site:         domain.SiteAjio,
			Markers:      []string{"__NEXT_DATA__", "products", "productList"},
			ProductPaths: []string{"props.pageProps.products", "products", "productList", ""},
			Keys: JSONKeys{
				Title:  []string{"name", "productName", "title"},
				Brand:  []string{"brandName"},
				Price:  []string{"price.value", "price", "finalPrice", "sellingPrice"},
				Image:  []string{"images.0.url", "imageUrl", "image"},
				Link:   []string{"url", "productUrl", "link"},
				Rating: []string{"rating", "averageRating"},
			},
			Containers: []Container{
				{Selector: ".item"},
				{Selector: `[class*="product"]`},
				{Selector: "[data-product-id]"},
				{Selector: `div[class*="ProductCard"]`},
			},
			Brands:           []Field{{Selector: ".brand"}, {Selector: `[class*="brand"]`}},
			Names:            []Field{{Selector: ".name"}, {Selector: `[class*="name"], [class*="product-name"]`}, {Selector: "a[title]", Attr: "title"}},
			Prices:           []Field{{Selector: ".price"}, {Selector: `[class*="price"]`}},
			Ratings:          []Field{{Selector: `[class*="rating"]`}},
			Images:           images("img"),
			Links:            []Field{{"a", "href"}},
			Mode:             FirstValid,
			UntitledFallback: true,
		},
		{
			Site:         domain.SiteNykaa,
			Markers:      []string{"__NEXT_DATA__", "searchResults", "products"},
			ProductPaths: []string{"props.pageProps.products", "products", "searchResults", ""},
			Keys: JSONKeys{
				Title:  []string{"productName", "name", "title"},
				Price:  []string{"mrp", "price", "finalPrice", "sellingPrice"},
				Image:  []string{"productImage", "imageUrl", "image", "images.0.url"},
				Link:   []string{"productUrl", "url", "link", "slug"},
				Rating: []string{"rating", "averageRating"},
			},
			Containers: []Container{
				{Selector: ".productCard"},
				{Selector: `[class*="product-card"]`},
				{Selector: `[class*="css-"][class*="product"]`},
				{Selector: "[data-product-id]"},
				{Selector: ".css-13gj7qq, .css-xrzmfa, .product-listing-item"},
				{Selector: `a[href*="/product/"]`, Parent: true},
			},
			Titles: []Field{
				{Selector: `.product-title, [class*="product-title"]`},
				{Selector: `.css-1jczs19, [class*="title"]`},
				{Selector: "h2, h3, h4"},
				{Selector: "a", Attr: "title"},
				{Selector: "a"},
			},
			Prices: []Field{
				{Selector: `.product-price, [class*="product-price"]`},
				{Selector: `.css-111z9ua, span[class*="price"], .css-4u561g`},
				{Selector: `[class*="discountedPrice"], [class*="sellingPrice"]`},
			},
			Ratings: []Field{{Selector: `.rating, [class*="rating"]`}},
			Images:  images("img"),
			Links:   []Field{{`a[href*="/product/"]`, "href"}, {"a", "href"}},
			Mode:    FirstValid,
		},
		{
			Site:         domain.SiteTira,
			Markers:      []string{"__NEXT_DATA__", "__INITIAL_STATE__", "products"},
			ProductPaths: []string{"props.pageProps.products", "products", "search.products", ""},
			Keys: JSONKeys{
				Title:  []string{"name", "productName", "title"},
				Price:  []string{"price", "finalPrice", "sellingPrice", "discountedPrice"},
				Image:  []string{"imageUrl", "image", "thumbnail", "images.0.url"},
				Link:   []string{"url", "productUrl", "link", "slug"},
				Rating: []string{"rating", "averageRating"},
			},
			Containers: []Container{
				{Selector: `[class*="product"]`},
				{Selector: "[data-product-id]"},
				{Selector: `div[class*="ProductCard"], div[class*="product-card"]`},
				{Selector: `a[href*="/product/"]`, Parent: true},
			},
			Titles: []Field{
				{Selector: `[class*="product-name"], [class*="product-title"]`},
				{Selector: "h2, h3, h4"},
				{Selector: "a[title]", Attr: "title"},
				{Selector: "a"},
			},
			Prices:           []Field{{Selector: `[class*="price"]`}},
			Ratings:          []Field{{Selector: `[class*="rating"]`}},
			Images:           images("img"),
			Links:            []Field{{`a[href*="/product/"]`, "href"}, {"a", "href"}},
			Mode:             FirstValid,
			UntitledFallback: true,
		},
	}
}

type field struct {
	sel  cascadia.Selector
	attr string
}

type container struct {
	sel    cascadia.Selector
	parent bool
}

// compiled is a Profile with every selector parsed once at construction.
type compiled struct {
	Profile
	origin  *url.URL
	markers []*regexp.Regexp

	containers    []container
	titles        []field
	brands        []field
	names         []field
	priceWhole    cascadia.Selector
	priceFraction cascadia.Selector
	prices        []field
	ratings       []field
	images        []field
	links         []field
}

func compileProfile(p Profile) (*compiled, error) {
	if !p.Site.Valid() {
		return nil, fmt.Errorf("profile: %w: %q", domain.ErrNotSupported, p.Site)
	}
	origin, err := url.Parse(p.Site.Origin() + "/")
	if err != nil {
		return nil, fmt.Errorf("profile %s: origin: %w", p.Site, err)
	}
	if p.MinTitleLength <= 0 {
		p.MinTitleLength = 3
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 20
	}
	if p.Keys.Title == nil {
		p.Keys = defaultKeys
	}

	c := &compiled{Profile: p, origin: origin, markers: markerPatterns(p.Markers)}
	for _, ct := range p.Containers {
		sel, err := cascadia.Compile(ct.Selector)
		if err != nil {
			return nil, fmt.Errorf("profile %s: container %q: %w", p.Site, ct.Selector, err)
		}
		c.containers = append(c.containers, container{sel: sel, parent: ct.Parent})
	}

	lists := []struct {
		in  []Field
		out *[]field
	}{
		{p.Titles, &c.titles},
		{p.Brands, &c.brands},
		{p.Names, &c.names},
		{p.Prices, &c.prices},
		{p.Ratings, &c.ratings},
		{p.Images, &c.images},
		{p.Links, &c.links},
	}
	for _, l := range lists {
		for _, f := range l.in {
			sel, err := cascadia.Compile(f.Selector)
			if err != nil {
				return nil, fmt.Errorf("profile %s: selector %q: %w", p.Site, f.Selector, err)
			}
			*l.out = append(*l.out, field{sel: sel, attr: f.Attr})
		}
	}

	if p.PriceWhole != "" {
		if c.priceWhole, err = cascadia.Compile(p.PriceWhole); err != nil {
			return nil, fmt.Errorf("profile %s: price whole: %w", p.Site, err)
		}
		if p.PriceFraction != "" {
			if c.priceFraction, err = cascadia.Compile(p.PriceFraction); err != nil {
				return nil, fmt.Errorf("profile %s: price fraction: %w", p.Site, err)
			}
		}
	}
	return c, nil
}
