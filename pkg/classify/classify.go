// Package classify maps an inbound request to the caching strategy that
// should handle it.
//
// Classification is a pure function over (method, URL) and is evaluated in a
// fixed priority order; the ordering is a contract, not an optimization.
// Overlapping rules resolve deterministically to the earliest match.
package classify

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Decision is the strategy selected for a request. Decisions are ephemeral
// per-request values and are never persisted.
type Decision int

const (
	// Bypass sends the request straight to the network, untouched. No
	// partition is ever consulted or written for a bypassed request.
	Bypass Decision = iota

	// Media routes the request to the media cache-first strategy.
	Media

	// API routes the request to the API network-first strategy.
	API

	// Default routes the request to the stale-while-revalidate strategy
	// against the versioned shell partition.
	Default
)

// String returns the decision name for logging and metrics labels.
func (d Decision) String() string {
	switch d {
	case Bypass:
		return "bypass"
	case Media:
		return "media"
	case API:
		return "api"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

// Rules holds the classification patterns. All matching is on the request
// host and path; queries and fragments never participate.
type Rules struct {
	// ExternalHosts are hosts whose requests always bypass the cache
	// (the host itself or any subdomain matches).
	ExternalHosts []string

	// FreshSuffixes are path suffixes of always-fresh data files that must
	// never be served stale. Evaluated before the media rules so a .json
	// suffix here is not captured by the media extension rule.
	FreshSuffixes []string

	// MediaExtensions are file extensions of cacheable media assets.
	MediaExtensions []string

	// MediaPrefixes are path prefixes under which media assets live.
	MediaPrefixes []string

	// APIPrefixes are the API route patterns, matched exactly or as a
	// path-segment prefix.
	APIPrefixes []string
}

// DefaultRules returns the rule set for the recitation app the gateway
// fronts: the Quran text API is external, the canonical text file is always
// fetched fresh, processed audio and alignment data live under /cache, and
// the app's own API is a small fixed route set.
func DefaultRules() Rules {
	return Rules{
		ExternalHosts:   []string{"api.alquran.cloud"},
		FreshSuffixes:   []string{"quran.json"},
		MediaExtensions: []string{".mp3", ".json"},
		MediaPrefixes:   []string{"/cache/"},
		APIPrefixes:     []string{"/history", "/recitation"},
	}
}

// Classify maps a request to its Decision. First match wins, in this order:
// external host, always-fresh path, non-idempotent method, media asset, API
// route, default.
func (r Rules) Classify(method string, u *url.URL) Decision {
	if r.matchesExternalHost(u.Host) {
		return Bypass
	}
	if hasAnySuffix(u.Path, r.FreshSuffixes) {
		return Bypass
	}
	// Never store or key on a non-idempotent request.
	if method != http.MethodGet {
		return Bypass
	}
	if r.matchesMedia(u.Path) {
		return Media
	}
	if r.matchesAPI(u.Path) {
		return API
	}
	return Default
}

func (r Rules) matchesExternalHost(host string) bool {
	host = stripPort(host)
	for _, h := range r.ExternalHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (r Rules) matchesMedia(p string) bool {
	ext := path.Ext(p)
	for _, e := range r.MediaExtensions {
		if ext == e {
			return true
		}
	}
	for _, prefix := range r.MediaPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (r Rules) matchesAPI(p string) bool {
	for _, route := range r.APIPrefixes {
		if p == route || strings.HasPrefix(p, route+"/") {
			return true
		}
	}
	return false
}

func hasAnySuffix(p string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(p, s) {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}
