// Package enginetest provides a scriptable in-memory engine.Surface.
package enginetest

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"

	"github.com/use-agent/appraise/engine"
)

// Element is a fake element. Fields may be set freely before the element
// is handed to a Page.
type Element struct {
	TextValue string
	HTMLValue string
	Hidden    bool
	Box       engine.Rect
	RectErr   error
	HoverErr  error
	// OnHover runs after every successful Hover call.
	OnHover  func()
	OnClick  func()
	Children map[engine.Selector][]*Element

	mu      sync.Mutex
	removed bool
	hovers  int
	clicks  int
}

// NewElement returns a visible element with the given text and box.
func NewElement(text string, box engine.Rect) *Element {
	return &Element{TextValue: text, HTMLValue: "<div>" + text + "</div>", Box: box}
}

func (e *Element) Text() (string, error) { return e.TextValue, nil }
func (e *Element) Visible() bool         { return !e.Hidden }
func (e *Element) HTML() (string, error) { return e.HTMLValue, nil }

func (e *Element) Rect() (engine.Rect, error) {
	if e.RectErr != nil {
		return engine.Rect{}, e.RectErr
	}
	return e.Box, nil
}

func (e *Element) Hover() error {
	if e.HoverErr != nil {
		return e.HoverErr
	}
	e.mu.Lock()
	e.hovers++
	e.mu.Unlock()
	if e.OnHover != nil {
		e.OnHover()
	}
	return nil
}

func (e *Element) ScrollIntoView(engine.Align) error { return nil }

func (e *Element) Click() error {
	e.mu.Lock()
	e.clicks++
	e.mu.Unlock()
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Remove() error {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return nil
}

func (e *Element) Query(sel engine.Selector) ([]engine.Element, error) {
	return live(e.Children[sel]), nil
}

// Hovers returns how many times Hover succeeded.
func (e *Element) Hovers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hovers
}

// Clicks returns how many times Click was called.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Removed reports whether Remove was called.
func (e *Element) Removed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

func live(els []*Element) []engine.Element {
	out := make([]engine.Element, 0, len(els))
	for _, el := range els {
		if !el.Removed() {
			out = append(out, el)
		}
	}
	return out
}

// Page is a fake engine.Surface. All methods are safe for concurrent use
// so tests can mutate the page from an operator goroutine while a session
// polls it.
type Page struct {
	mu sync.Mutex

	body     string
	html     string
	elements map[engine.Selector][]*Element

	DPR            float64
	ViewportWidth  float64
	ViewportHeight float64
	State          string

	// NavigateErr is returned by every Navigate call when set.
	NavigateErr error
	// OnNavigate runs inside Navigate, after the URL is recorded.
	OnNavigate func(url string)

	scrollY   float64
	navigated []string
	queries   int
	captures  []string
	events    []string
	zoom      float64
	movedAway int
}

// NewPage returns a ready, empty page with a 1600x1000 viewport at DPR 1.
func NewPage() *Page {
	return &Page{
		elements:       make(map[engine.Selector][]*Element),
		DPR:            1,
		ViewportWidth:  1600,
		ViewportHeight: 1000,
		State:          "complete",
	}
}

// SetBody replaces the rendered body text.
func (p *Page) SetBody(text string) {
	p.mu.Lock()
	p.body = text
	p.mu.Unlock()
}

// SetHTML replaces the document HTML.
func (p *Page) SetHTML(raw string) {
	p.mu.Lock()
	p.html = raw
	p.mu.Unlock()
}

// Set makes sel match els. An empty els removes the selector.
func (p *Page) Set(sel engine.Selector, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(els) == 0 {
		delete(p.elements, sel)
		return
	}
	p.elements[sel] = els
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	hook, err := p.OnNavigate, p.NavigateErr
	p.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return err
}

func (p *Page) BodyText() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, nil
}

func (p *Page) Query(sel engine.Selector) ([]engine.Element, error) {
	p.mu.Lock()
	p.queries++
	els := p.elements[sel]
	p.mu.Unlock()
	return live(els), nil
}

func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) DevicePixelRatio() (float64, error) { return p.DPR, nil }

func (p *Page) Viewport() (float64, float64, error) {
	return p.ViewportWidth, p.ViewportHeight, nil
}

func (p *Page) ReadyState() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State, nil
}

func (p *Page) ScrollY() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY, nil
}

func (p *Page) ScrollTo(y float64) error {
	p.mu.Lock()
	p.scrollY = y
	p.mu.Unlock()
	return nil
}

func (p *Page) ScrollBy(dy float64) error {
	p.mu.Lock()
	p.scrollY += dy
	p.mu.Unlock()
	return nil
}

func (p *Page) MoveAway() error {
	p.mu.Lock()
	p.movedAway++
	p.mu.Unlock()
	return nil
}

// Capture writes a gradient PNG sized viewport x DPR.
func (p *Page) Capture(_ context.Context, path string) (int, int, error) {
	w := int(p.ViewportWidth * p.DPR)
	h := int(p.ViewportHeight * p.DPR)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return 0, 0, err
	}
	p.mu.Lock()
	p.captures = append(p.captures, path)
	p.mu.Unlock()
	return w, h, nil
}

func (p *Page) Dispatch(event string) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *Page) Zoom(factor float64) error {
	p.mu.Lock()
	p.zoom = factor
	p.mu.Unlock()
	return nil
}

// Navigated returns every URL passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Queries returns how many Query calls the page served.
func (p *Page) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// Captures returns every path passed to Capture.
func (p *Page) Captures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.captures...)
}

// Events returns every dispatched event name.
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// ZoomFactor returns the last zoom set.
func (p *Page) ZoomFactor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

var _ engine.Surface = (*Page)(nil)
