package gateway

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/tilawa/cache-gateway/pkg/classify"
)

// Default partition names. The shell name embeds the version token; media and
// API partitions are stable across versions and survive version bumps, being
// evicted only if removed from the whitelist.
const (
	DefaultShellPartition = "shell-v1"
	DefaultMediaPartition = "media"
	DefaultAPIPartition   = "api"
)

// Config holds the gateway configuration. There is no hidden global state:
// partition names, whitelist, precache list and classification rules all
// arrive here.
type Config struct {
	// Origin is the application origin precache paths resolve against.
	Origin *url.URL

	// ShellPartition names the versioned partition for default-strategy
	// entries. Bumping the embedded version token is how a deployment
	// supersedes the previous one.
	ShellPartition string

	// MediaPartition names the media snapshot store.
	MediaPartition string

	// APIPartition names the API snapshot store.
	APIPartition string

	// Whitelist is the set of partition names considered current. Empty
	// means the three partitions above. It must always include the
	// partitions the strategies write to.
	Whitelist []string

	// Precache lists origin-relative paths warmed into the shell partition
	// at install time.
	Precache []string

	// Rules are the classification patterns. Zero value means
	// classify.DefaultRules.
	Rules classify.Rules
}

// DefaultConfig returns a gateway configuration for the given origin, using
// the default partition names, rules, and the app-shell precache list.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		Origin:         origin,
		ShellPartition: DefaultShellPartition,
		MediaPartition: DefaultMediaPartition,
		APIPartition:   DefaultAPIPartition,
		Precache: []string{
			"/",
			"/index.html",
			"/styles.css",
			"/app.js",
		},
		Rules: classify.DefaultRules(),
	}
}

// withDefaults fills unset fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.Origin == nil {
		return c, errors.New("origin URL is required")
	}
	if c.Origin.Scheme == "" || c.Origin.Host == "" {
		return c, fmt.Errorf("origin URL %q must be absolute", c.Origin)
	}
	if c.ShellPartition == "" {
		c.ShellPartition = DefaultShellPartition
	}
	if c.MediaPartition == "" {
		c.MediaPartition = DefaultMediaPartition
	}
	if c.APIPartition == "" {
		c.APIPartition = DefaultAPIPartition
	}
	if len(c.Whitelist) == 0 {
		c.Whitelist = []string{c.ShellPartition, c.MediaPartition, c.APIPartition}
	} else {
		for _, required := range []string{c.ShellPartition, c.MediaPartition, c.APIPartition} {
			if !contains(c.Whitelist, required) {
				return c, fmt.Errorf("whitelist must include active partition %q", required)
			}
		}
	}
	if emptyRules(c.Rules) {
		c.Rules = classify.DefaultRules()
	}
	return c, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func emptyRules(r classify.Rules) bool {
	return len(r.ExternalHosts) == 0 &&
		len(r.FreshSuffixes) == 0 &&
		len(r.MediaExtensions) == 0 &&
		len(r.MediaPrefixes) == 0 &&
		len(r.APIPrefixes) == 0
}
