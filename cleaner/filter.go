package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FilterContent removes elements matching exclude, then keeps only the
// elements matching include. Empty slices skip the step. When no element
// matches include, the exclude-filtered document is returned.
func FilterContent(html string, include, exclude []string) string {
	if len(include) == 0 && len(exclude) == 0 {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, selector := range exclude {
		doc.Find(selector).Remove()
	}

	if len(include) > 0 {
		matches := doc.Find(strings.Join(include, ", "))
		if matches.Length() > 0 {
			var buf strings.Builder
			matches.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					buf.WriteString(h)
				}
			})
			return buf.String()
		}
	}

	// A fragment parsed by goquery gains html/head/body wrappers; return
	// just the body content.
	result, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return result
}
