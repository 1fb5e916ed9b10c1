package scraper

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/appraise/engine"
)

// actionTimeout is the per-action deadline for pointer and DOM actions.
const actionTimeout = 10 * time.Second

// element adapts a rod element to engine.Element. Every action runs under
// its own actionTimeout so a detached node cannot stall a session.
type element struct {
	el *rod.Element
}

var _ engine.Element = element{}

func wrap(els rod.Elements) []engine.Element {
	out := make([]engine.Element, len(els))
	for i, el := range els {
		out[i] = element{el: el}
	}
	return out
}

// do runs fn on a copy of the element bound to a fresh action deadline.
func (e element) do(fn func(el *rod.Element) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	return fn(e.el.Context(ctx))
}

func (e element) Text() (string, error) {
	var text string
	err := e.do(func(el *rod.Element) (err error) {
		text, err = el.Text()
		return err
	})
	return text, err
}

func (e element) Visible() bool {
	var visible bool
	_ = e.do(func(el *rod.Element) (err error) {
		visible, err = el.Visible()
		return err
	})
	return visible
}

// Rect returns getBoundingClientRect in CSS pixels, relative to the
// viewport.
func (e element) Rect() (engine.Rect, error) {
	var r engine.Rect
	err := e.do(func(el *rod.Element) error {
		res, err := el.Eval(`() => {
			const r = this.getBoundingClientRect();
			return {left: r.left, top: r.top, width: r.width, height: r.height};
		}`)
		if err != nil {
			return err
		}
		v := res.Value
		r = engine.Rect{
			Left:   v.Get("left").Num(),
			Top:    v.Get("top").Num(),
			Width:  v.Get("width").Num(),
			Height: v.Get("height").Num(),
		}
		return nil
	})
	return r, err
}

func (e element) Hover() error {
	return e.do(func(el *rod.Element) error { return el.Hover() })
}

func (e element) ScrollIntoView(align engine.Align) error {
	return e.do(func(el *rod.Element) error {
		_, err := el.Eval(`(block) => this.scrollIntoView({block: block})`, string(align))
		return err
	})
}

func (e element) Click() error {
	return e.do(func(el *rod.Element) error { return el.Click(proto.InputMouseButtonLeft, 1) })
}

func (e element) Remove() error {
	return e.do(func(el *rod.Element) error { return el.Remove() })
}

func (e element) HTML() (string, error) {
	var html string
	err := e.do(func(el *rod.Element) (err error) {
		html, err = el.HTML()
		return err
	})
	return html, err
}

func (e element) Query(sel engine.Selector) ([]engine.Element, error) {
	var els rod.Elements
	err := e.do(func(el *rod.Element) (err error) {
		els, err = queryPage(el, sel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wrap(els), nil
}
