// Package engine defines the capability surface of a rendered listing page.
//
// Every extraction component talks to the page through Surface and Element
// only, so the same code runs against a live browser tab (package scraper),
// a saved HTML document (StaticSurface) or a scripted fake (enginetest).
package engine

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Selector addresses elements on a surface. Plain strings are CSS
// selectors; the "text=" prefix matches elements whose own text contains
// the rest of the string.
type Selector string

const textPrefix = "text="

// ContainsText returns a selector for elements whose own text contains phrase.
func ContainsText(phrase string) Selector {
	return Selector(textPrefix + phrase)
}

// IsText reports whether s is a "text=" selector.
func (s Selector) IsText() bool {
	return strings.HasPrefix(string(s), textPrefix)
}

// Phrase returns the text of a "text=" selector, or "" for CSS selectors.
func (s Selector) Phrase() string {
	if !s.IsText() {
		return ""
	}
	return strings.TrimPrefix(string(s), textPrefix)
}

// Rect is an element's bounding client rect in CSS pixels, relative to the
// viewport.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Align is the block alignment used by Element.ScrollIntoView.
type Align string

const (
	AlignStart  Align = "start"
	AlignCenter Align = "center"
	AlignEnd    Align = "end"
)

// ErrNoGeometry is returned by surfaces that have no layout, such as a
// replayed HTML document.
var ErrNoGeometry = errors.New("engine: surface has no layout geometry")

// Element is one node on a rendered surface.
type Element interface {
	// Text returns the rendered text of the element.
	Text() (string, error)
	Visible() bool
	Rect() (Rect, error)
	Hover() error
	ScrollIntoView(align Align) error
	Click() error
	// Remove detaches the element from the document.
	Remove() error
	HTML() (string, error)
	// Query finds descendants. It never waits.
	Query(sel Selector) ([]Element, error)
}

// Surface is the single shared rendering session. It is not safe for
// concurrent use; callers drive it from one goroutine at a time.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	BodyText() (string, error)
	// Query finds elements in the current document. It never waits and
	// returns an empty slice when nothing matches.
	Query(sel Selector) ([]Element, error)
	HTML() (string, error)

	DevicePixelRatio() (float64, error)
	// Viewport returns the inner window size in CSS pixels.
	Viewport() (width, height float64, err error)
	// ReadyState returns document.readyState.
	ReadyState() (string, error)

	ScrollY() (float64, error)
	ScrollTo(y float64) error
	ScrollBy(dy float64) error
	// MoveAway moves the pointer to a neutral corner so hover overlays close.
	MoveAway() error

	// Capture writes a PNG of the current viewport to path and returns the
	// raster size in device pixels.
	Capture(ctx context.Context, path string) (width, height int, err error)
	// Dispatch fires a window event such as "resize".
	Dispatch(event string) error
	// Zoom sets the document zoom factor, 1 being 100%.
	Zoom(factor float64) error
}

// Queryer is implemented by both Surface and Element.
type Queryer interface {
	Query(sel Selector) ([]Element, error)
}

// QueryFirst returns the first element matching sel, or nil.
func QueryFirst(s Queryer, sel Selector) (Element, error) {
	els, err := s.Query(sel)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// Pause sleeps for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
