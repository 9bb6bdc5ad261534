// Package source implements the search-engine task bodies: build a site
// query, page through the results and scrape short URLs from each page.
package source

import (
	"fmt"
	"net/url"
	"strings"

	"furlat/internal/job"
	"furlat/internal/scrape"
)

// Engine describes one search engine.
type Engine struct {
	Name job.Category
	// QueryURL contains a single %s for the escaped query.
	QueryURL string
	// SiteOperator contains a single %s for the domain, e.g. "site:%s".
	SiteOperator string
	// Ready must match on a fully rendered result page.
	Ready scrape.Selector
	// Next locates the link to the following result page. A zero selector
	// means the engine has a single page.
	Next scrape.Selector
}

// Query renders `<operator> (<keywords>)`.
func (e Engine) Query(domain, keywords string) string {
	return fmt.Sprintf(e.SiteOperator, domain) + " (" + keywords + ")"
}

func (e Engine) FirstPage(domain, keywords string) string {
	return fmt.Sprintf(e.QueryURL, url.QueryEscape(e.Query(domain, keywords)))
}

var (
	Google = Engine{
		Name:         "google",
		QueryURL:     "https://www.google.com/search?q=%s",
		SiteOperator: "site:%s",
		Ready:        scrape.Selector{ID: "foot"},
		Next:         scrape.Selector{ID: "pnnext"},
	}
	Bing = Engine{
		Name:         "bing",
		QueryURL:     "https://www.bing.com/search?q=%s",
		SiteOperator: `"%s"`,
		Ready:        scrape.Selector{ID: "b_content"},
		Next:         scrape.Selector{Class: "sb_pagN"},
	}
	Yahoo = Engine{
		Name:         "yahoo",
		QueryURL:     "https://search.yahoo.com/search?p=%s",
		SiteOperator: `"%s"`,
		Ready:        scrape.Selector{ID: "ft"},
		Next:         scrape.Selector{Class: "next"},
	}
)

// Engines lists the built-in HTTP engines by name.
func Engines() map[job.Category]Engine {
	return map[job.Category]Engine{
		Google.Name: Google,
		Bing.Name:   Bing,
		Yahoo.Name:  Yahoo,
	}
}

// TestName is the offline source that never touches the network.
const TestName job.Category = "test"

// Names returns every known source name, sorted.
func Names() []string {
	return []string{string(Bing.Name), string(Google.Name), string(TestName), string(Yahoo.Name)}
}

// DefaultNames are the sources used when none are configured.
func DefaultNames() []string {
	return []string{string(Google.Name), string(Bing.Name), string(Yahoo.Name)}
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
