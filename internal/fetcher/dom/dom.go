// Package dom wraps a parsed HTML snapshot so engines that only hold page
// markup can answer element queries.
package dom

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// Document is an immutable parsed page.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Locate returns every element matching selector in document order. An
// invalid selector is an error.
func (d *Document) Locate(selector string) ([]crawler.Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	return wrap(d.doc.FindMatcher(matcher)), nil
}

type element struct {
	sel *goquery.Selection
}

func (e element) Text() string {
	return e.sel.Text()
}

func (e element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Locate searches the element's descendants. Invalid selectors match nothing.
func (e element) Locate(selector string) []crawler.Element {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	return wrap(e.sel.FindMatcher(matcher))
}

func wrap(sel *goquery.Selection) []crawler.Element {
	out := make([]crawler.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out
}
