package rewriter

import "regexp"

// jsRedirectPatterns matches the coarse set of inline-script redirect
// idioms. This is intentionally regex-based, not an
// AST rewrite — variable-tracked JavaScript rewriting is a non-goal
// a non-goal.
var jsRedirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`window\.location\.href\s*=\s*(["'])([^"']*)(["'])`),
	regexp.MustCompile(`(?:[^.]|^)location\.href\s*=\s*(["'])([^"']*)(["'])`),
	regexp.MustCompile(`location\.replace\s*\(\s*(["'])([^"']*)(["'])\s*\)`),
	regexp.MustCompile(`(?:[^.]|^)location\s*=\s*(["'])([^"']*)(["'])`),
}

// RewriteJS applies each redirect pattern in turn, rewriting the quoted URL
// through ctx while preserving the surrounding statement and quote style.
func RewriteJS(js string, ctx Context) string {
	if js == "" {
		return js
	}
	for _, pattern := range jsRedirectPatterns {
		js = pattern.ReplaceAllStringFunc(js, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			if len(groups) != 4 {
				return match
			}
			quote, original := groups[1], groups[2]
			rewritten := ctx.rewriteURL(original)
			return replaceOnce(match, quote+original+quote, quote+rewritten+quote)
		})
	}
	return js
}

// replaceOnce replaces the first occurrence of old in s with new, leaving
// everything else in s (the surrounding "location.href =" etc.) untouched.
func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
