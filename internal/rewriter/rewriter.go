// Package rewriter implements the HTML/JS/CSS rewriter: it
// transforms every domain-bearing reference in a response body so
// navigation and embedded resources stay inside the mirror. Parsing is
// done with golang.org/x/net/html, walking the same node tree shape any
// HTML5 tree parser produces.
package rewriter

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"proxibase/internal/models"
	"proxibase/internal/urlalgebra"
)

// Context carries everything a rewrite needs about the current request.
type Context struct {
	MirrorHost    string
	Site          *models.Site
	Effective     models.EffectiveConfig
	PageOriginURL string
}

func (c Context) rewriteURL(u string) string {
	return urlalgebra.RewriteURLInPage(u, c.PageOriginURL, c.Site, c.Effective, c.MirrorHost)
}

// attrTargets lists which attribute on which element carries a
// domain-bearing reference. srcset attributes are
// handled separately because they hold comma-separated candidate URLs.
var attrTargets = map[atom.Atom]string{
	atom.A:      "href",
	atom.Form:   "action",
	atom.Iframe: "src",
	atom.Link:   "href",
	atom.Script: "src",
	atom.Img:    "src",
	atom.Source: "src",
	atom.Video:  "src",
	atom.Audio:  "src",
	atom.Base:   "href",
}

var srcsetElements = map[atom.Atom]bool{
	atom.Img:    true,
	atom.Source: true,
}

// Rewrite parses body as HTML and applies attribute rewriting, inline
// script/style rewriting, and re-serializes it, preserving document order.
// Malformed HTML degrades to a best-effort textual pass rather than
// aborting.
func Rewrite(body []byte, ctx Context) []byte {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return rewriteTextFallback(body, ctx)
	}

	walk(doc, ctx)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return rewriteTextFallback(body, ctx)
	}
	return buf.Bytes()
}

func walk(n *html.Node, ctx Context) {
	if n.Type == html.ElementNode {
		rewriteElement(n, ctx)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, ctx)
	}
}

func rewriteElement(n *html.Node, ctx Context) {
	if attr, ok := attrTargets[n.DataAtom]; ok {
		rewriteAttr(n, attr, ctx)
	}
	if srcsetElements[n.DataAtom] {
		rewriteSrcsetAttr(n, ctx)
	}

	if styleVal, ok := getAttr(n, "style"); ok && strings.Contains(styleVal, "url(") {
		setAttr(n, "style", RewriteCSS(styleVal, ctx))
	}

	switch n.DataAtom {
	case atom.Script:
		if _, hasSrc := getAttr(n, "src"); !hasSrc && ctx.Effective.RewriteJSRedirects {
			rewriteTextChild(n, func(js string) string { return RewriteJS(js, ctx) })
		}
	case atom.Style:
		rewriteTextChild(n, func(css string) string { return RewriteCSS(css, ctx) })
	}
}

func rewriteAttr(n *html.Node, key string, ctx Context) {
	val, ok := getAttr(n, key)
	if !ok {
		return
	}
	setAttr(n, key, ctx.rewriteURL(val))
}

func rewriteSrcsetAttr(n *html.Node, ctx Context) {
	val, ok := getAttr(n, "srcset")
	if !ok {
		return
	}
	setAttr(n, "srcset", rewriteSrcset(val, ctx))
}

// rewriteSrcset rewrites each comma-separated "url descriptor" candidate
// independently.
func rewriteSrcset(val string, ctx Context) string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.LastIndexByte(part, ' '); idx >= 0 {
			urlPart, descriptor := part[:idx], part[idx+1:]
			out = append(out, ctx.rewriteURL(strings.TrimSpace(urlPart))+" "+descriptor)
		} else {
			out = append(out, ctx.rewriteURL(part))
		}
	}
	return strings.Join(out, ", ")
}

func rewriteTextChild(n *html.Node, f func(string) string) {
	if n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return
	}
	original := n.FirstChild.Data
	rewritten := f(original)
	if rewritten != original {
		n.FirstChild.Data = rewritten
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// rewriteTextFallback is the best-effort textual pass used when the body
// cannot be parsed as HTML at all: it still
// runs the inline-script and <style> regex passes over the raw bytes.
func rewriteTextFallback(body []byte, ctx Context) []byte {
	text := string(body)
	if ctx.Effective.RewriteJSRedirects {
		text = RewriteJS(text, ctx)
	}
	text = RewriteCSS(text, ctx)
	return []byte(text)
}
