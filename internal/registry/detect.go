package registry

import (
	"net/http"
	"strings"
)

// PageKind classifies a registry response body before extraction.
type PageKind string

const (
	PageSnapshot PageKind = "snapshot"
	PageNotFound PageKind = "not_found"
	PageInactive PageKind = "inactive"
	PageBlocked  PageKind = "blocked"
)

var (
	notFoundMarkers = []string{"record not found", "no records matching"}
	inactiveMarkers = []string{"record inactive"}
	blockMarkers    = []string{"captcha", "checking your browser", "cf-browser-verification", "access denied"}
)

// DetectPage inspects a response for anti-bot interstitials and the
// registry's "no such record" pages.
func DetectPage(resp *http.Response, body []byte) PageKind {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
			return PageBlocked
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case containsAny(lower, blockMarkers):
		return PageBlocked
	case containsAny(lower, inactiveMarkers):
		return PageInactive
	case containsAny(lower, notFoundMarkers):
		return PageNotFound
	}
	return PageSnapshot
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
