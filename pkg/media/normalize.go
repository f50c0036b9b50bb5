// Package media rewrites range-bearing media requests into full-content
// fetches and derives the stable cache key under which the response is
// stored.
//
// Range requests are a client playback optimization. A cache that only stores
// whole-resource responses must never forward or key on the range: two
// requests for different byte ranges of one resource would otherwise miss
// against each other, and partial-content (206) responses would be stored
// erroneously.
package media

import (
	"fmt"
	"net/http"
	"net/url"
)

// CanonicalKey derives the cache key for a media request: the same-origin
// absolute URL reduced to its path. Headers, query and fragment do not
// participate, so requests differing only by range (or query noise) share one
// entry. Media URLs are path-addressed, which makes dropping the query safe.
func CanonicalKey(req *http.Request) string {
	u := url.URL{
		Scheme: req.URL.Scheme,
		Host:   req.URL.Host,
		Path:   req.URL.Path,
	}
	return u.String()
}

// Normalize rebuilds the request as a same-origin, full-content fetch: the
// canonical URL with the original header set discarded (the Range header in
// particular) and the method preserved. The original request's context is
// carried over.
func Normalize(req *http.Request) (*http.Request, error) {
	norm, err := http.NewRequestWithContext(req.Context(), req.Method, CanonicalKey(req), nil)
	if err != nil {
		return nil, fmt.Errorf("build full-content request: %w", err)
	}
	return norm, nil
}
