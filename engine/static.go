package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Loader returns the saved HTML of a listing URL.
type Loader func(ctx context.Context, url string) (string, error)

// StaticSurface serves a saved HTML document through the Surface
// interface. It has no layout: geometry calls return ErrNoGeometry,
// hover and scroll are no-ops, and document readiness is always complete.
type StaticSurface struct {
	load Loader
	doc  *goquery.Document
}

// NewStaticSurface returns a surface that fetches documents with load.
func NewStaticSurface(load Loader) *StaticSurface {
	return &StaticSurface{load: load}
}

// StaticFromHTML returns a surface already showing rawHTML. Navigate keeps
// the document.
func StaticFromHTML(rawHTML string) (*StaticSurface, error) {
	s := &StaticSurface{}
	if err := s.SetHTML(rawHTML); err != nil {
		return nil, err
	}
	return s, nil
}

// SetHTML replaces the current document.
func (s *StaticSurface) SetHTML(rawHTML string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	s.doc = doc
	return nil
}

func (s *StaticSurface) Navigate(ctx context.Context, url string) error {
	if s.load == nil {
		if s.doc == nil {
			return fmt.Errorf("static surface: no document for %s", url)
		}
		return nil
	}
	raw, err := s.load(ctx, url)
	if err != nil {
		return err
	}
	return s.SetHTML(raw)
}

func (s *StaticSurface) BodyText() (string, error) {
	if s.doc == nil {
		return "", nil
	}
	return s.doc.Find("body").Text(), nil
}

func (s *StaticSurface) Query(sel Selector) ([]Element, error) {
	if s.doc == nil {
		return nil, nil
	}
	return querySelection(s, s.doc.Selection, sel)
}

func (s *StaticSurface) HTML() (string, error) {
	if s.doc == nil {
		return "", nil
	}
	return s.doc.Html()
}

func (s *StaticSurface) DevicePixelRatio() (float64, error) { return 1, nil }

func (s *StaticSurface) Viewport() (float64, float64, error) { return 0, 0, ErrNoGeometry }

func (s *StaticSurface) ReadyState() (string, error) { return "complete", nil }

func (s *StaticSurface) ScrollY() (float64, error) { return 0, nil }

func (s *StaticSurface) ScrollTo(float64) error { return nil }

func (s *StaticSurface) ScrollBy(float64) error { return nil }

func (s *StaticSurface) MoveAway() error { return nil }

func (s *StaticSurface) Capture(context.Context, string) (int, int, error) {
	return 0, 0, ErrNoGeometry
}

func (s *StaticSurface) Dispatch(string) error { return nil }

func (s *StaticSurface) Zoom(float64) error { return nil }

// staticElement wraps a single-node goquery selection.
type staticElement struct {
	surface *StaticSurface
	sel     *goquery.Selection
}

func (e *staticElement) Text() (string, error) { return nodeText(e.sel), nil }

func (e *staticElement) Visible() bool {
	style, _ := e.sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	_, hidden := e.sel.Attr("hidden")
	return !hidden
}

func (e *staticElement) Rect() (Rect, error) { return Rect{}, ErrNoGeometry }

func (e *staticElement) Hover() error { return nil }

func (e *staticElement) ScrollIntoView(Align) error { return nil }

func (e *staticElement) Click() error { return nil }

func (e *staticElement) Remove() error {
	e.sel.Remove()
	return nil
}

func (e *staticElement) HTML() (string, error) { return goquery.OuterHtml(e.sel) }

func (e *staticElement) Query(sel Selector) ([]Element, error) {
	return querySelection(e.surface, e.sel, sel)
}

func querySelection(s *StaticSurface, root *goquery.Selection, sel Selector) ([]Element, error) {
	var found *goquery.Selection
	if sel.IsText() {
		phrase := sel.Phrase()
		found = root.Find("*").FilterFunction(func(_ int, c *goquery.Selection) bool {
			return ownTextContains(c.Get(0), phrase)
		})
	} else {
		m, err := cascadia.Compile(string(sel))
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", sel, err)
		}
		found = root.FindMatcher(m)
	}
	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, c *goquery.Selection) {
		out = append(out, &staticElement{surface: s, sel: c})
	})
	return out, nil
}

func ownTextContains(n *html.Node, phrase string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.Contains(c.Data, phrase) {
			return true
		}
	}
	return false
}

// blockTags break lines in rendered text.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {}, "h1": {}, "h2": {},
	"h3": {}, "h4": {}, "section": {}, "article": {}, "ul": {}, "ol": {},
}

// nodeText approximates innerText: block elements and <br> become line
// breaks, runs of spaces collapse, scripts and styles are skipped.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteByte(' ')
			b.WriteString(strings.Join(strings.Fields(n.Data), " "))
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		_, block := blockTags[n.Data]
		if block && n.Type == html.ElementNode {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && n.Type == html.ElementNode {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
