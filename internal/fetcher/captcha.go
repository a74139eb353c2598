package fetcher

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// interstitialSelectors only appear on challenge pages.
var interstitialSelectors = []string{
	"#challenge-form",
	"#cf-challenge-running",
	".cf-browser-verification",
	`script[src*="captcha-delivery.com"]`,
}

// widgetSelectors match challenge widgets. Sites also embed them in comment
// and login forms, so they only count on a page that looks like an
// interstitial.
var widgetSelectors = []string{
	".g-recaptcha",
	`iframe[src*="recaptcha"]`,
	".h-captcha",
	`iframe[src*="hcaptcha.com"]`,
	".cf-turnstile",
	`form[action*="captcha"]`,
	`input[name="captcha"]`,
	`img[src*="captcha"]`,
}

// loaderSelectors match provider scripts. Invisible reCAPTCHA v3 loads them
// on every page, so they only count on a challenge status.
var loaderSelectors = []string{
	`script[src*="recaptcha/api.js"]`,
	`script[src*="hcaptcha.com/1/api.js"]`,
}

// captchaMarkers are interstitial texts. They are matched against the title
// of a thin page, and against the body only on a challenge status.
var captchaMarkers = []string{
	"just a moment",
	"checking your browser",
	"attention required",
	"verify you are human",
	"are you a robot",
	"unusual traffic from your computer",
}

const (
	// maxMarkerPageSize is the largest body on which body text markers are checked.
	maxMarkerPageSize = 50000

	// thinPageText and thinPageLinks bound the content of an interstitial.
	thinPageText  = 500
	thinPageLinks = 3
)

// DetectCaptcha reports whether an HTML page served with the given status is
// a CAPTCHA challenge and returns the selector or marker that matched.
func DetectCaptcha(body []byte, status int) (bool, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, ""
	}
	return detectInDocument(doc, status, len(body))
}

func detectInDocument(doc *goquery.Document, status, size int) (bool, string) {
	if sel, ok := firstMatch(doc, interstitialSelectors); ok {
		return true, sel
	}

	challenge := isChallengeStatus(status)
	bodyText := collapseSpace(doc.Find("body").Text())
	if !challenge && !isThin(doc, bodyText) {
		return false, ""
	}

	if sel, ok := firstMatch(doc, widgetSelectors); ok {
		return true, sel
	}
	if challenge {
		if sel, ok := firstMatch(doc, loaderSelectors); ok {
			return true, sel
		}
	}

	title := strings.ToLower(doc.Find("title").First().Text())
	for _, m := range captchaMarkers {
		if strings.Contains(title, m) {
			return true, m
		}
	}
	if !challenge || size > maxMarkerPageSize {
		return false, ""
	}
	text := strings.ToLower(bodyText)
	for _, m := range captchaMarkers {
		if strings.Contains(text, m) {
			return true, m
		}
	}
	return false, ""
}

func firstMatch(doc *goquery.Document, selectors []string) (string, bool) {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	return "", false
}

// isChallengeStatus reports whether status is one challenge providers answer with.
func isChallengeStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// isThin reports whether a page carries almost no content of its own.
func isThin(doc *goquery.Document, bodyText string) bool {
	return utf8.RuneCountInString(bodyText) <= thinPageText &&
		doc.Find("a[href]").Length() <= thinPageLinks
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
