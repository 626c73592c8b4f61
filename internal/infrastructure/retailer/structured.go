package retailer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"
)

// structuredProduct is one product object found in an embedded payload.
type structuredProduct struct {
	title  string
	price  string
	image  string
	link   string
	rating string
}

// payloads returns every JSON document embedded in the page's scripts that
// the profile knows how to locate, in document order.
func (c *compiled) payloads(doc *goquery.Document) []gson.JSON {
	var out []gson.JSON

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if strings.TrimSpace(text) == "" {
			return
		}

		if c.NextDataScript || containsString(c.Markers, "__NEXT_DATA__") {
			if id, _ := s.Attr("id"); id == "__NEXT_DATA__" {
				if blob := strings.TrimSpace(text); json.Valid([]byte(blob)) {
					out = append(out, gson.NewFrom(blob))
				}
				return
			}
		}

		for _, re := range c.markers {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				blob := balancedJSON(text[loc[1]:])
				if blob == "" || !json.Valid([]byte(blob)) {
					continue
				}
				out = append(out, gson.NewFrom(blob))
			}
		}
	})
	return out
}

// markerPatterns matches "marker =" and "marker:" including quoted keys.
func markerPatterns(markers []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		out = append(out, regexp.MustCompile(`["']?`+regexp.QuoteMeta(m)+`["']?\s*[=:]\s*`))
	}
	return out
}

// balancedJSON returns the object or array at the start of s, matched by
// bracket depth while skipping string literals. It returns "" when s does
// not open with '{' or '[' or the value is unterminated.
func balancedJSON(s string) string {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// structuredProducts walks the profile's product paths in order and returns
// the titled products of the first non-empty list.
func (c *compiled) structuredProducts(payload gson.JSON) []structuredProduct {
	for _, path := range c.ProductPaths {
		list := payload
		if path != "" {
			var ok bool
			if list, ok = payload.Gets(gson.Path(path)...); !ok {
				continue
			}
		}

		items := list.Arr()
		if len(items) == 0 {
			continue
		}

		var out []structuredProduct
		for _, item := range items {
			if len(out) == c.MaxCandidates {
				break
			}
			if p, ok := c.toProduct(item); ok {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (c *compiled) toProduct(item gson.JSON) (structuredProduct, bool) {
	if _, isObject := item.Val().(map[string]interface{}); !isObject {
		return structuredProduct{}, false
	}

	title := firstScalar(item, c.Keys.Title)
	if brand := firstScalar(item, c.Keys.Brand); brand != "" && title != "" &&
		!strings.HasPrefix(strings.ToLower(title), strings.ToLower(brand)) {
		title = brand + " " + title
	}
	title = cleanText(title)
	if title == "" {
		return structuredProduct{}, false
	}

	return structuredProduct{
		title:  title,
		price:  firstScalar(item, c.Keys.Price),
		image:  firstScalar(item, c.Keys.Image),
		link:   firstScalar(item, c.Keys.Link),
		rating: firstScalar(item, c.Keys.Rating),
	}, true
}

// firstScalar returns the first key that holds a non-empty string or number.
func firstScalar(item gson.JSON, keys []string) string {
	for _, k := range keys {
		v, ok := item.Gets(gson.Path(k)...)
		if !ok {
			continue
		}
		switch val := v.Val().(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			if val != 0 {
				return formatNumber(val)
			}
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
