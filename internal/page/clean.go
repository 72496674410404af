package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector lists elements that carry no value for text analysis.
const noiseSelector = "head, script, style, link, form, input, button, select, textarea, nav, noscript, iframe, template"

// Clean strips non-content markup from doc and then recursively removes any
// element left without child elements or text. Clean is idempotent.
func Clean(doc *goquery.Document) {
	doc.Find(noiseSelector).Remove()
	for _, root := range doc.Nodes {
		pruneEmpty(root)
	}
}

// pruneEmpty removes empty descendants of n in post-order so a parent that
// only contained empty elements is removed in the same pass.
func pruneEmpty(n *html.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		switch child.Type {
		case html.ElementNode:
			pruneEmpty(child)
			if isEmptyElement(child) && !isStructural(child) {
				n.RemoveChild(child)
			}
		case html.CommentNode:
			n.RemoveChild(child)
		case html.TextNode:
			// The parser drops whitespace placed directly under <html>, so
			// keeping it would make a re-parsed document differ.
			if n.Data == "html" && strings.TrimSpace(child.Data) == "" {
				n.RemoveChild(child)
			}
		}
		child = next
	}
}

func isEmptyElement(n *html.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(child.Data) != "" {
				return false
			}
		}
	}
	return true
}

func isStructural(n *html.Node) bool {
	return n.Data == "html" || n.Data == "body"
}

// Text returns the document's non-empty text runs in document order, each
// with internal whitespace collapsed to single spaces.
func Text(doc *goquery.Document) []string {
	text := make([]string, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if collapsed := strings.Join(strings.Fields(n.Data), " "); collapsed != "" {
				text = append(text, collapsed)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
	return text
}
