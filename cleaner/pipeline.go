// Package cleaner turns listing HTML into text: description Markdown and
// a readability fallback for pages the selector cascades do not recognize.
package cleaner

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Cleaner converts description HTML to Markdown. The converter is created
// once and reused (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Description converts a description block to Markdown after removing
// elements matching exclude (ad slots, expand buttons). Words such as
// "Свернуть" are stripped from the result.
func (c *Cleaner) Description(html, sourceURL string, exclude, strip []string) (string, error) {
	html = FilterContent(html, nil, exclude)
	md, err := ToMarkdown(c.mdConverter, html, sourceURL)
	if err != nil {
		return "", err
	}
	for _, w := range strip {
		md = strings.ReplaceAll(md, w, "")
	}
	return strings.TrimSpace(md), nil
}

// Article is the outcome of the fallback extraction.
type Article struct {
	Title string
	Text  string
}

// Fallback extracts a title and main text from a whole page. When scope is
// a CSS selector the page is first narrowed to its matches. Readability
// and pruning run concurrently and the result with more substantial text
// wins; ok is false when neither found anything.
//
// Flow:
//  1. Narrow to scope.
//  2. Readability and pruning in parallel.
//  3. Pick.
func Fallback(rawHTML, sourceURL, scope string) (Article, bool) {
	// ── 1. Scope ──
	scoped := rawHTML
	if scope != "" {
		narrowed, err := ApplyCSSSelector(rawHTML, scope)
		if err != nil {
			slog.Warn("fallback: invalid scope selector", "scope", scope, "error", err)
		} else {
			scoped = narrowed
		}
	}

	// ── 2. Extract ──
	var (
		art       Article
		readOK    bool
		prunedTxt string
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a, ok := ExtractContent(rawHTML, sourceURL)
		art = Article{Title: strings.TrimSpace(a.Title), Text: strings.TrimSpace(a.TextContent)}
		readOK = ok
	}()
	go func() {
		defer wg.Done()
		pruned, err := PruneContent(scoped)
		if err != nil {
			slog.Warn("fallback: pruning failed", "url", sourceURL, "error", err)
			return
		}
		prunedTxt = stripTags(pruned)
	}()
	wg.Wait()

	// ── 3. Pick ──
	// Pruning runs on the scoped page, so it wins unless readability found
	// clearly more text.
	if prunedTxt != "" && (!readOK || len(prunedTxt)*2 >= len(art.Text)) {
		art.Text = prunedTxt
	}
	if art.Text == "" && art.Title == "" {
		return Article{}, false
	}
	return art, true
}

// blockTags start a new line in stripTags output.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"footer": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// stripTags extracts visible text from an HTML fragment, keeping one line
// per block.
func stripTags(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if blockTags[n.Data] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
