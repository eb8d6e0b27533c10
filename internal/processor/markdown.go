package processor

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
)

type ConverterOptions struct {
	// StripTags lists tag names removed entirely, content included.
	StripTags []string
	// Domain resolves relative link and image URLs when set.
	Domain string
}

// Converter turns HTML into Markdown with ATX headings, "-" bullets and
// fenced code blocks.
type Converter struct {
	conv   *converter.Converter
	domain string
}

// stripTagsPlugin registers tags to be removed during conversion.
type stripTagsPlugin struct {
	tags []string
}

func (p *stripTagsPlugin) Name() string {
	return "strip-tags"
}

func (p *stripTagsPlugin) Init(conv *converter.Converter) error {
	for _, tag := range p.tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityEarly)
	}
	return nil
}

func NewConverter(opts ConverterOptions) *Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
				commonmark.WithBulletListMarker("-"),
			),
			table.NewTablePlugin(),
			&stripTagsPlugin{tags: opts.StripTags},
		),
	)
	return &Converter{conv: conv, domain: opts.Domain}
}

// Convert transforms an HTML fragment or document into Markdown.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	annotateCodeLanguages(doc)

	var opts []converter.ConvertOptionFunc
	if c.domain != "" {
		opts = append(opts, converter.WithDomain(c.domain))
	}

	md, err := c.conv.ConvertNode(doc.Nodes[0], opts...)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	return string(md), nil
}

// annotateCodeLanguages rewrites the class of every <pre> block (and its
// <code> child) to "language-<lang>", where lang is the first class name of
// the <pre>, or of its <code> when the <pre> has none, with any
// "language-" prefix removed.
func annotateCodeLanguages(doc *goquery.Document) {
	doc.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		code := pre.ChildrenFiltered("code").First()

		lang := CodeLanguage(pre.AttrOr("class", ""))
		if lang == "" && code.Length() > 0 {
			lang = CodeLanguage(code.AttrOr("class", ""))
		}
		if lang == "" {
			return
		}

		pre.SetAttr("class", "language-"+lang)
		if code.Length() > 0 {
			code.SetAttr("class", "language-"+lang)
		}
	})
}

// CodeLanguage derives a fence language from a class attribute value.
func CodeLanguage(class string) string {
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[0], "language-")
}
