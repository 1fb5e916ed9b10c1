// Package extract reads listing fields from a rendered surface through
// ordered selector cascades.
package extract

import (
	"strings"

	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
)

// Cascade is an ordered list of selector candidates. The first candidate
// that yields a usable match wins.
type Cascade []engine.Selector

// Predicate filters candidate elements.
type Predicate func(engine.Element) bool

// Visible accepts displayed elements.
func Visible(el engine.Element) bool { return el.Visible() }

// MinSize accepts elements whose box is at least w x h CSS pixels.
// Elements without geometry are rejected.
func MinSize(w, h float64) Predicate {
	return func(el engine.Element) bool {
		r, err := el.Rect()
		return err == nil && r.Width >= w && r.Height >= h
	}
}

// ContainsAny accepts elements whose lower-cased text contains any of words.
func ContainsAny(words ...string) Predicate {
	return func(el engine.Element) bool {
		text, err := el.Text()
		if err != nil {
			return false
		}
		text = strings.ToLower(text)
		for _, w := range words {
			if strings.Contains(text, strings.ToLower(w)) {
				return true
			}
		}
		return false
	}
}

// All combines predicates; nil entries are ignored.
func All(preds ...Predicate) Predicate {
	return func(el engine.Element) bool {
		for _, p := range preds {
			if p != nil && !p(el) {
				return false
			}
		}
		return true
	}
}

// First returns the first element, in cascade order and then document
// order, that satisfies pred. A nil pred accepts everything. When nothing
// matches the error carries ErrCodeSelectorMiss.
func First(q engine.Queryer, c Cascade, pred Predicate) (engine.Element, error) {
	for _, sel := range c {
		els, err := q.Query(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if pred == nil || pred(el) {
				return el, nil
			}
		}
	}
	return nil, models.NewExtractError(models.ErrCodeSelectorMiss, "no element matched "+c.String(), nil)
}

// Each calls fn for every element matched by the cascade, in order.
func Each(q engine.Queryer, c Cascade, fn func(engine.Element)) {
	for _, sel := range c {
		els, err := q.Query(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			fn(el)
		}
	}
}

func (c Cascade) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = string(s)
	}
	return "[" + strings.Join(parts, " | ") + "]"
}
