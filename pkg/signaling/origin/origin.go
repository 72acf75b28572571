// Package origin matches websocket Origin headers against configured host
// patterns.
package origin

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// CompilePatterns turns host patterns into anchored regular expressions. A
// '*' matches any run of characters; everything else is literal. Patterns
// that fail to compile are skipped.
func CompilePatterns(allowedHosts []string) []*regexp.Regexp {
	var patterns []*regexp.Regexp
	for _, host := range allowedHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(host), `\*`, `.*`) + "$"
		regex, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", host).Msg("skipping origin pattern")
			continue
		}
		patterns = append(patterns, regex)
	}
	return patterns
}

// IsAllowed reports whether an Origin header matches any pattern, either as a
// whole or by its host alone.
func IsAllowed(origin string, patterns []*regexp.Regexp) bool {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	for _, pattern := range patterns {
		if pattern.MatchString(origin) || pattern.MatchString(host) {
			return true
		}
	}
	return false
}
