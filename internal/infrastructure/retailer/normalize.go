package retailer

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Size patterns, tried in order; the first match wins.
var sizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\((\d+(?:\.\d+)?\s?(?:ml|gm|kg|g|l|oz|pack))\)`),
	regexp.MustCompile(`(?i)\b(\d+\s?x\s?\d+(?:\.\d+)?\s?(?:ml|gm|g))\b`),
	regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?\s?(?:ml|gm|kg|g|l|oz|pack))\b`),
}

var (
	// currency-marked price, e.g. "₹1,299.50", "Rs. 499", "INR 75"
	currencyPriceRegex = regexp.MustCompile(`(?:₹|Rs\.?|INR)\s*(\d[\d,]*(?:\.\d{1,2})?)`)
	// a bare number that is the whole string, e.g. "1,299" or "1299."
	barePriceRegex = regexp.MustCompile(`^\s*(\d[\d,]*(?:\.\d{1,2})?)\.?\s*$`)
	// a rating leads the text ("4.3", "4.3 out of 5", "4.3★") or is
	// followed by an out-of-five marker ("Rated 4.3/5")
	leadingRatingRegex = regexp.MustCompile(`^\s*(\d(?:\.\d{1,2})?)(?:\s|/|★|$)`)
	ratingPhraseRegex  = regexp.MustCompile(`(?:^|[^\d.,])(\d(?:\.\d{1,2})?)\s*(?:out of 5|/\s*5\b|★)`)
)

// ExtractSizeHint returns the quantity and unit mentioned in title, such as
// "100ml" or "2 x 50ml", or "" when none is present.
func ExtractSizeHint(title string) string {
	for _, re := range sizePatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			return m[1]
		}
	}
	return ""
}

// NormalizePrice finds the first price in raw and returns it as "₹<digits>"
// with thousands separators removed. It returns "" when raw holds no price.
func NormalizePrice(raw string) string {
	if m := currencyPriceRegex.FindStringSubmatch(raw); m != nil {
		return formatRupees(m[1])
	}
	if m := barePriceRegex.FindStringSubmatch(raw); m != nil {
		return formatRupees(m[1])
	}
	return ""
}

// JoinPrice assembles a price that a site renders as separate whole and
// fractional nodes, e.g. ("1,299.", "50") -> "₹1299.50".
func JoinPrice(whole, fraction string) string {
	whole = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(whole), "₹"))
	whole = strings.TrimSuffix(strings.ReplaceAll(whole, ",", ""), ".")
	if whole == "" || strings.Trim(whole, "0123456789") != "" {
		return ""
	}

	fraction = strings.TrimSpace(fraction)
	if fraction != "" && strings.Trim(fraction, "0123456789") == "" {
		return "₹" + whole + "." + fraction
	}
	return "₹" + whole
}

// NormalizeRating extracts a star rating, so "4.3 out of 5 stars" becomes
// "4.3". Counts such as "(1,234)" or "2,345 Ratings" and values outside 0-5
// are rejected.
func NormalizeRating(raw string) string {
	m := leadingRatingRegex.FindStringSubmatch(raw)
	if m == nil {
		m = ratingPhraseRegex.FindStringSubmatch(raw)
	}
	if m == nil {
		return ""
	}
	if v, err := strconv.ParseFloat(m[1], 64); err != nil || v <= 0 || v > 5 {
		return ""
	}
	return m[1]
}

// formatNumber renders a JSON number without exponent or trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRupees(digits string) string {
	digits = strings.TrimSuffix(strings.ReplaceAll(digits, ",", ""), ".")
	if digits == "" {
		return ""
	}
	return "₹" + digits
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL makes ref absolute against base. Protocol-relative references
// get https; script and data URLs are dropped.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return ""
		}
		return u.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
