package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pruneScoreThreshold is the minimum weighted score a block element must reach
// to be retained as main content.
const pruneScoreThreshold = 0.0

// Signal weights for the pruning scorer.
const (
	wTextDensity   = 3.0
	wLinkDensity   = -2.0
	wTagWeight     = 1.5
	wClassIDWeight = 1.0
	wTextLength    = 0.5
)

// Listing pages mark the offer card and description with these substrings
// in class, id, data-marker or data-name attributes.
var positiveClassIDPatterns = []string{
	"item-view", "offer", "description", "content", "main", "params", "price",
}

// Similar-listing carousels, ads and chrome around the offer card.
var negativeClassIDPatterns = []string{
	"similar", "recommend", "ads", "banner", "sidebar", "nav", "menu",
	"footer", "header", "popup", "modal", "cookie", "social", "share",
	"promo", "related",
}

// PruneContent keeps the children of <body> (or of the single wrapper
// element sites render into) whose score passes the threshold. When nothing
// passes, the whole body is returned.
func PruneContent(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML, err
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		return rawHTML, nil
	}
	// SPA roots hold everything in one element; descend through it.
	for root.Children().Length() == 1 {
		root = root.Children()
	}

	var retained []string
	root.Children().Each(func(_ int, el *goquery.Selection) {
		if scoreElement(el) > pruneScoreThreshold {
			if html, err := goquery.OuterHtml(el); err == nil {
				retained = append(retained, html)
			}
		}
	})

	if len(retained) == 0 {
		html, err := root.Html()
		if err != nil {
			return rawHTML, nil
		}
		return html, nil
	}
	return strings.Join(retained, "\n"), nil
}

// scoreElement weighs text density, link density, tag semantics,
// attribute signals and text length.
func scoreElement(el *goquery.Selection) float64 {
	fullHTML, err := goquery.OuterHtml(el)
	if err != nil {
		return 0
	}

	text := strings.TrimSpace(el.Text())
	textLen := len(text)
	totalLen := len(fullHTML)

	textDensity := 0.0
	if totalLen > 0 {
		textDensity = float64(textLen) / float64(totalLen)
	}

	linkTextLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkTextLen += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := 0.0
	if textLen > 0 {
		linkDensity = float64(linkTextLen) / float64(textLen)
	}

	return textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(el)*wTagWeight +
		attrWeight(el)*wClassIDWeight +
		math.Log10(float64(textLen)+1)*wTextLength
}

func tagWeight(el *goquery.Selection) float64 {
	switch goquery.NodeName(el) {
	case "article", "main", "section":
		return 5.0
	case "nav", "footer", "aside", "header":
		return -5.0
	default:
		return 0.0
	}
}

// attrWeight scans class, id and the sites' data attributes.
func attrWeight(el *goquery.Selection) float64 {
	var combined strings.Builder
	for _, attr := range []string{"class", "id", "data-marker", "data-name"} {
		if v, ok := el.Attr(attr); ok {
			combined.WriteString(strings.ToLower(v))
			combined.WriteByte(' ')
		}
	}
	s := combined.String()

	score := 0.0
	for _, pat := range positiveClassIDPatterns {
		if strings.Contains(s, pat) {
			score += 3.0
			break
		}
	}
	for _, pat := range negativeClassIDPatterns {
		if strings.Contains(s, pat) {
			score -= 3.0
			break
		}
	}
	return score
}
