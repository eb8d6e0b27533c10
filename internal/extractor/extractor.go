// Package extractor isolates the main content subtree of an HTML document.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/byteowlz/pagemd/internal/errs"
)

var (
	// Tags that never carry reader-visible content.
	nonContentTags = "script, style, noscript, iframe, svg"

	// Structural page chrome.
	chromeTags = "nav, aside, header, footer"

	navClassPatterns = []string{
		"sidebar", "side-bar", "sidenav", "side-nav",
		"toc", "table-of-contents", "menu", "navigation",
	}

	navRoles = map[string]bool{
		"navigation":    true,
		"complementary": true,
		"menu":          true,
	}

	contentClassPatterns = []string{"content", "article", "post", "entry", "main"}
)

// candidate locates a possible main content root; an empty selection means
// the candidate is absent.
type candidate struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

// candidates are tried in order and the first match wins.
var candidates = []candidate{
	{"main", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("main").First()
	}},
	{"article", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("article").First()
	}},
	{"role=main", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(`[role="main"]`).First()
	}},
	{"content div", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("div[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return classContains(s, contentClassPatterns)
		}).First()
	}},
	{"body", func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("body").First()
	}},
}

// Result is the extracted subtree serialized back to HTML.
type Result struct {
	HTML string
	// Source names the rule that selected the subtree.
	Source string
}

// Extract returns the main content of htmlContent. With a non-empty
// selector the first matching element is returned as is and
// errs.ErrSelectorNotFound is reported when nothing matches. Without one,
// boilerplate is stripped and the first main content candidate is chosen;
// that path never fails on missing structure.
func Extract(htmlContent, selector string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if selector != "" {
		return extractSelector(doc, selector)
	}

	Clean(doc)

	for _, c := range candidates {
		sel := c.find(doc)
		if sel.Length() == 0 {
			continue
		}
		out, err := goquery.OuterHtml(sel)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", c.name, err)
		}
		return &Result{HTML: out, Source: c.name}, nil
	}

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return &Result{HTML: out, Source: "document"}, nil
}

func extractSelector(doc *goquery.Document, selector string) (*Result, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", errs.ErrInvalidSelector, selector, err)
	}

	sel := doc.FindMatcher(matcher).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrSelectorNotFound, selector)
	}

	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to render selection: %w", err)
	}
	return &Result{HTML: out, Source: selector}, nil
}

// Clean removes non-content elements, comments and navigation chrome from
// doc in place.
func Clean(doc *goquery.Document) {
	doc.Find(nonContentTags).Remove()
	removeComments(doc.Selection)

	doc.Find(chromeTags).Remove()

	doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classContains(s, navClassPatterns)
	}).Remove()

	doc.Find("[role]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		role, _ := s.Attr("role")
		return navRoles[role]
	}).Remove()
}

func removeComments(sel *goquery.Selection) {
	var comments []*html.Node
	for _, root := range sel.Nodes {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.CommentNode {
					comments = append(comments, c)
					continue
				}
				walk(c)
			}
		}
		walk(root)
	}

	for _, c := range comments {
		c.Parent.RemoveChild(c)
	}
}

// classContains reports whether the lower-cased, space-joined class list of
// s contains any of patterns as a substring.
func classContains(s *goquery.Selection, patterns []string) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	joined := strings.ToLower(strings.Join(strings.Fields(class), " "))
	if joined == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(joined, p) {
			return true
		}
	}
	return false
}

// Readerable reports whether the document looks like an article to
// go-readability. It is a diagnostic only and never affects extraction.
func Readerable(htmlContent string) bool {
	return readability.Check(strings.NewReader(htmlContent))
}
