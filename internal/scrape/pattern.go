// Package scrape turns fetched pages into text and pulls short URLs out of it.
package scrape

import (
	"regexp"
)

// Pattern finds short URLs in text.
type Pattern interface {
	Domain() string
	Scrape(text string) []string
}

type regexPattern struct {
	domain string
	re     *regexp.Regexp
}

func (p regexPattern) Domain() string { return p.domain }

// Scrape returns every match in order of appearance, duplicates included.
func (p regexPattern) Scrape(text string) []string {
	return p.re.FindAllString(text, -1)
}

func (p regexPattern) String() string { return p.re.String() }

// DefaultShortcode is the shortcode alphabet used when none is given.
const DefaultShortcode = `[a-zA-Z0-9]+`

// ShortcodePattern matches "<domain>/<shortcode>" for the given domain.
func ShortcodePattern(domain string) Pattern {
	return ShortcodePatternWith(domain, DefaultShortcode)
}

// ShortcodePatternWith uses a custom shortcode expression.
func ShortcodePatternWith(domain, shortcode string) Pattern {
	return regexPattern{
		domain: domain,
		re:     regexp.MustCompile(regexp.QuoteMeta(domain) + "/" + shortcode),
	}
}

var anyShortURL = regexp.MustCompile(`[a-z0-9.-]*[a-z0-9-]+\.[a-z0-9]+/[a-zA-Z0-9]+`)

// AnyShortURLPattern matches any "host.tld/code" string. domain is only used
// to build the search query.
func AnyShortURLPattern(domain string) Pattern {
	return regexPattern{domain: domain, re: anyShortURL}
}
