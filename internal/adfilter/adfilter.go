// Package adfilter removes known ad/analytics embeds from a response body
// and, separately, injects operator-supplied ad HTML and tracker JS. Clean
// and Inject each parse and re-render the body with golang.org/x/net/html
// on their own, independently of the rewriter package's parse.
package adfilter

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"proxibase/internal/models"
)

// adHostTokens are matched case-insensitively as substrings of a script or
// iframe src attribute.
var adHostTokens = []string{
	"doubleclick",
	"googlesyndication",
	"adsystem",
	"adservice",
	"adsbygoogle",
	"googletagmanager",
	"google-analytics",
	"googleadservices",
}

// inlineScriptTokens are matched case-sensitively against the text content
// of a <script> with no src attribute, matching the literal
// (non-lowercased) substring checks.
var inlineScriptTokens = []string{
	"gtag(",
	"ga(",
	"GoogleAnalyticsObject",
	"fbq(",
	"_gaq",
	"dataLayer",
}

// Clean removes <script src>/<iframe src> elements whose src matches an ad
// host token, and inline <script> elements whose text matches a tracker
// pattern. It is a no-op unless RemoveAds or RemoveAnalytics is set; both
// flags gate the same removal passes since this pass does not
// distinguish which pattern list triggered which flag.
func Clean(body []byte, effective models.EffectiveConfig) []byte {
	if !effective.RemoveAds && !effective.RemoveAnalytics {
		return body
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return body
	}

	removeMatching(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return body
	}
	return buf.Bytes()
}

func removeMatching(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && shouldRemove(c) {
			n.RemoveChild(c)
			continue
		}
		removeMatching(c)
	}
}

func shouldRemove(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script:
		if src, ok := getAttr(n, "src"); ok {
			return matchesAny(strings.ToLower(src), adHostTokens)
		}
		text := textContent(n)
		if text == "" {
			return false
		}
		return matchesAny(text, inlineScriptTokens)
	case atom.Iframe:
		if src, ok := getAttr(n, "src"); ok {
			return matchesAny(strings.ToLower(src), adHostTokens)
		}
	}
	return false
}

func matchesAny(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return ""
	}
	return n.FirstChild.Data
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Inject appends CustomAdHTML (when InjectAds is set) and a <script>
// wrapping CustomTrackerJS (whenever it is non-empty) just before </body>.
// html.Parse adds a <body> element when the input has none, so such input
// receives the injection in that added body; the <head> and <html>
// branches only apply to a parsed tree with no body element.
// It is a no-op when there is nothing configured to inject.
func Inject(body []byte, effective models.EffectiveConfig) []byte {
	if !effective.InjectAds && effective.CustomTrackerJS == "" {
		return body
	}
	if effective.InjectAds && effective.CustomAdHTML == "" && effective.CustomTrackerJS == "" {
		return body
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return body
	}

	bodyNode := findNode(doc, atom.Body)

	if effective.InjectAds && effective.CustomAdHTML != "" && bodyNode != nil {
		appendFragment(bodyNode, effective.CustomAdHTML)
	}

	if effective.CustomTrackerJS != "" {
		scriptNode := &html.Node{
			Type:     html.ElementNode,
			Data:     "script",
			DataAtom: atom.Script,
		}
		scriptNode.AppendChild(&html.Node{
			Type: html.TextNode,
			Data: effective.CustomTrackerJS,
		})

		switch {
		case bodyNode != nil:
			bodyNode.AppendChild(scriptNode)
		case findNode(doc, atom.Head) != nil:
			findNode(doc, atom.Head).AppendChild(scriptNode)
		default:
			if htmlNode := findNode(doc, atom.Html); htmlNode != nil {
				htmlNode.AppendChild(scriptNode)
			}
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return body
	}
	return buf.Bytes()
}

func findNode(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, a); found != nil {
			return found
		}
	}
	return nil
}

// appendFragment parses fragment as an HTML fragment in a body context and
// appends its element/non-blank-text children to target.
func appendFragment(target *html.Node, fragment string) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		target.AppendChild(&html.Node{Type: html.TextNode, Data: fragment})
		return
	}
	for _, n := range nodes {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		target.AppendChild(n)
	}
}
