package rewriter

import (
	"regexp"
	"strings"
)

// cssURLPattern matches url(...), url("..."), and url('...') occurrences
// occurrences.
var cssURLPattern = regexp.MustCompile(`url\(\s*(["']?)([^"')]*)(["']?)\s*\)`)

// RewriteCSS rewrites every url(...) occurrence in css, preserving the
// original quoting form. data: URLs are left untouched.
func RewriteCSS(css string, ctx Context) string {
	if css == "" {
		return css
	}
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		groups := cssURLPattern.FindStringSubmatch(match)
		quote, rawURL := groups[1], strings.TrimSpace(groups[2])

		if strings.HasPrefix(rawURL, "data:") {
			return match
		}

		rewritten := ctx.rewriteURL(rawURL)

		switch quote {
		case `"`:
			return `url("` + rewritten + `")`
		case `'`:
			return `url('` + rewritten + `')`
		default:
			return `url(` + rewritten + `)`
		}
	})
}
