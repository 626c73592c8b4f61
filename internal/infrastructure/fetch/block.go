package fetch

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// blockTitlePhrases mark an interstitial when they appear in <title>.
var blockTitlePhrases = []string{
	"captcha",
	"robot check",
	"access denied",
	"attention required",
	"are you a robot",
	"unusual activity",
	"request blocked",
}

// blockBodyPhrases mark an interstitial when they appear in a short page body.
// Product listings are long, so the length gate keeps words like "robot"
// in real product names from tripping detection.
var blockBodyPhrases = []string{
	"captcha",
	"enter the characters you see below",
	"unusual activity",
	"access denied",
	"are you a robot",
	"verify you are a human",
}

const interstitialMaxText = 2048

// isBlockStatus reports whether an HTTP status means the site refused us.
func isBlockStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests
}

// looksBlocked sniffs an HTTP 200 page for anti-bot interstitials.
func looksBlocked(body []byte) bool {
	title := strings.ToLower(extractTitle(body))
	for _, p := range blockTitlePhrases {
		if strings.Contains(title, p) {
			return true
		}
	}

	text := extractVisibleText(body)
	if len(text) > interstitialMaxText {
		return false
	}
	text = strings.ToLower(text)
	for _, p := range blockBodyPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// extractTitle returns the text of the first <title> element.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}

// extractVisibleText returns the text inside <body>, skipping script and style.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
