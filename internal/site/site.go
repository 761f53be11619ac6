// Package site describes the retailer balance-check pages: where the form
// lives, how to tell that the result page was reached, and how to turn the
// rendered result into a models.GiftCardResult.
package site

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gobwas/glob"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

// NormalizeFunc converts a page snapshot into a result.
type NormalizeFunc func(raw browser.RawExtraction) (*models.GiftCardResult, error)

// Site is one retailer's balance-check surface.
type Site struct {
	Name        string
	DisplayName string
	URL         string
	Currency    string

	CardSelectors   []string
	PinSelectors    []string
	SubmitSelectors []string

	// ResultURL matches the URL of the post-submit page. Either it or
	// ResultMarker must be set.
	ResultURL glob.Glob
	// ResultMarker is a CSS selector present only once results render.
	ResultMarker string

	normalize NormalizeFunc
}

// New builds a site. resultURL is a glob over the page URL where '**'
// crosses path separators and '*' does not.
func New(name, displayName, url, resultURL, resultMarker string, normalize NormalizeFunc) (*Site, error) {
	if name == "" || url == "" {
		return nil, fmt.Errorf("site needs a name and url")
	}
	if resultURL == "" && resultMarker == "" {
		return nil, fmt.Errorf("site %s needs a result url or marker", name)
	}
	if normalize == nil {
		return nil, fmt.Errorf("site %s needs a normalizer", name)
	}

	s := &Site{
		Name:         name,
		DisplayName:  displayName,
		URL:          url,
		Currency:     "AUD",
		ResultMarker: resultMarker,
		normalize:    normalize,
	}
	if resultURL != "" {
		g, err := glob.Compile(resultURL, '/')
		if err != nil {
			return nil, fmt.Errorf("site %s: bad result url pattern %q: %w", name, resultURL, err)
		}
		s.ResultURL = g
	}
	return s, nil
}

// WithURL returns a copy of s pointed at a different login URL.
func (s *Site) WithURL(url string) *Site {
	c := *s
	if url != "" {
		c.URL = url
	}
	return &c
}

// Normalize converts a snapshot of the result page.
func (s *Site) Normalize(raw browser.RawExtraction) (*models.GiftCardResult, error) {
	return s.normalize(raw)
}

// Reached reports whether h shows the post-submit page.
func (s *Site) Reached(ctx context.Context, h browser.Handle) (bool, error) {
	if s.ResultURL != nil && s.ResultURL.Match(h.CurrentURL()) {
		return true, nil
	}
	if s.ResultMarker == "" {
		return false, nil
	}

	raw, err := h.ExtractPageData(ctx)
	if err != nil {
		return false, err
	}
	doc, err := parseHTML(raw)
	if err != nil {
		return false, err
	}
	return doc.Find(s.ResultMarker).Length() > 0, nil
}

var registry = map[string]func() *Site{
	"everyday":    Everyday,
	"giftcards":   GiftCards,
	"thegoodguys": TheGoodGuys,
}

// Lookup returns the site registered under name.
func Lookup(name string) (*Site, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

// Names lists the registered sites.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustNew(name, displayName, url, resultURL, resultMarker string, normalize NormalizeFunc) *Site {
	s, err := New(name, displayName, url, resultURL, resultMarker, normalize)
	if err != nil {
		panic(err)
	}
	return s
}

func parseHTML(raw browser.RawExtraction) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}
