package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ApplyCSSSelector returns the concatenated outer HTML of the elements
// matching a selector group such as "[data-name='OfferCardPageLayout'],
// div[class*='item-view-content']". Nested matches are rendered once, as
// part of their outermost match. With no match the input is returned
// unchanged.
func ApplyCSSSelector(rawHTML string, selector string) (string, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if hasAncestor(node, matches) {
			continue
		}
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func hasAncestor(n *html.Node, set []*html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, m := range set {
			if m == p {
				return true
			}
		}
	}
	return false
}
