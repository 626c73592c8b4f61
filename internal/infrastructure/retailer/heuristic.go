package retailer

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/adot20/product-search-backend/internal/domain"
)

var (
	anyElement = cascadia.MustCompile("*")
	anyLink    = cascadia.MustCompile("a")
)

// candidates returns the product containers of the first container selector
// that matches anything, capped at MaxCandidates.
func (c *compiled) candidates(doc *goquery.Document) []*goquery.Selection {
	for _, ct := range c.containers {
		found := doc.FindMatcher(ct.sel)
		if ct.parent {
			found = found.Parent()
		}
		if found.Length() == 0 {
			continue
		}

		out := make([]*goquery.Selection, 0, found.Length())
		found.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = append(out, s)
			return len(out) < c.MaxCandidates
		})
		return out
	}
	return nil
}

// title returns the first acceptable title in the container, or "".
func (c *compiled) title(query domain.SearchQuery, s *goquery.Selection) string {
	if len(c.brands) > 0 || len(c.names) > 0 {
		brand := firstValue(s, c.brands)
		name := firstValue(s, c.names)
		if t := cleanText(brand + " " + name); c.acceptTitle(query, t) {
			return t
		}
	}

	for _, f := range c.titles {
		var found string
		s.FindMatcher(f.sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			if t := value(n, f.attr); c.acceptTitle(query, t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	if c.AnyLinkTitle {
		var found string
		s.FindMatcher(anyLink).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			t := cleanText(n.Text())
			if l := utf8.RuneCountInString(t); l >= 10 && l <= 200 && c.acceptTitle(query, t) {
				found = t
				return false
			}
			return true
		})
		return found
	}
	return ""
}

func (c *compiled) acceptTitle(query domain.SearchQuery, t string) bool {
	if utf8.RuneCountInString(t) < c.MinTitleLength {
		return false
	}
	return !strings.EqualFold(t, strings.TrimSpace(query.Text()))
}

// price tries the split whole/fraction nodes, then the price selectors, then
// a scan for short currency-bearing text. It returns "" when none yields a price.
func (c *compiled) price(s *goquery.Selection) string {
	if c.priceWhole != nil {
		whole := s.FindMatcher(c.priceWhole).First()
		if whole.Length() > 0 {
			var fraction string
			if c.priceFraction != nil {
				fraction = s.FindMatcher(c.priceFraction).First().Text()
			}
			if p := JoinPrice(whole.Text(), fraction); p != "" {
				return p
			}
		}
	}

	for _, f := range c.prices {
		var found string
		s.FindMatcher(f.sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			found = NormalizePrice(value(n, f.attr))
			return found == ""
		})
		if found != "" {
			return found
		}
	}

	if c.ScanPriceText {
		var found string
		s.FindMatcher(anyElement).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			t := cleanText(spacedText(n))
			lower := strings.ToLower(t)
			if utf8.RuneCountInString(t) >= 30 || !strings.Contains(t, "₹") ||
				strings.Contains(t, "%") || strings.Contains(lower, "off") {
				return true
			}
			found = NormalizePrice(t)
			return found == ""
		})
		if found != "" {
			return found
		}
	}

	if m := currencyPriceRegex.FindStringSubmatch(spacedText(s)); m != nil {
		return formatRupees(m[1])
	}
	return ""
}

// spacedText is Selection.Text with a space between text nodes, so adjacent
// elements such as "<span>₹499</span><span>4.2</span>" stay separate numbers.
func spacedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

func (c *compiled) rating(s *goquery.Selection) string {
	for _, f := range c.ratings {
		var found string
		s.FindMatcher(f.sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			found = NormalizeRating(value(n, f.attr))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// link resolves the first usable reference among fields against the site origin.
func (c *compiled) link(s *goquery.Selection, fields []field) string {
	for _, f := range fields {
		var found string
		s.FindMatcher(f.sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			found = resolveURL(c.origin, value(n, f.attr))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func firstValue(s *goquery.Selection, fields []field) string {
	for _, f := range fields {
		if v := value(s.FindMatcher(f.sel).First(), f.attr); v != "" {
			return v
		}
	}
	return ""
}

// value reads the attribute, or the collapsed text when attr is empty.
func value(s *goquery.Selection, attr string) string {
	if s.Length() == 0 {
		return ""
	}
	if attr == "" {
		return cleanText(s.Text())
	}
	return strings.TrimSpace(s.AttrOr(attr, ""))
}
