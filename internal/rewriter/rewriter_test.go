package rewriter

import (
	"strings"
	"testing"

	"proxibase/internal/models"
)

func testContext() Context {
	site := &models.Site{Mirror: "m.test", Source: "example.com", Enabled: true}
	gc := models.DefaultGlobalConfig()
	return Context{
		MirrorHost:    "m.test",
		Site:          site,
		Effective:     gc.Effective(site),
		PageOriginURL: "https://example.com/",
	}
}

func TestRewriteAnchorHref(t *testing.T) {
	ctx := testContext()
	out := string(Rewrite([]byte(`<a href="https://example.com/x">link</a>`), ctx))
	if !strings.Contains(out, `href="https://m.test/x"`) {
		t.Errorf("got %s", out)
	}
}

func TestRewriteExternalHref(t *testing.T) {
	ctx := testContext()
	out := string(Rewrite([]byte(`<a href="https://other.org/y">link</a>`), ctx))
	if !strings.Contains(out, `href="https://m.test/other.org/y"`) {
		t.Errorf("got %s", out)
	}
}

func TestRewriteSrcset(t *testing.T) {
	ctx := testContext()
	html := `<img srcset="https://example.com/a.png 1x, https://example.com/b.png 2x">`
	out := string(Rewrite([]byte(html), ctx))
	if !strings.Contains(out, "https://m.test/a.png 1x") || !strings.Contains(out, "https://m.test/b.png 2x") {
		t.Errorf("got %s", out)
	}
}

func TestRewriteInlineStyleAttr(t *testing.T) {
	ctx := testContext()
	html := `<div style="background: url('https://example.com/bg.png')"></div>`
	out := string(Rewrite([]byte(html), ctx))
	// html.Render escapes ' inside attribute values as &#39;.
	if !strings.Contains(out, "url(&#39;https://m.test/bg.png&#39;)") {
		t.Errorf("got %s", out)
	}
}

func TestRewriteStyleTag(t *testing.T) {
	ctx := testContext()
	html := `<style>body { background: url(https://example.com/bg.png); }</style>`
	out := string(Rewrite([]byte(html), ctx))
	if !strings.Contains(out, "url(https://m.test/bg.png)") {
		t.Errorf("got %s", out)
	}
}

func TestRewriteInlineScriptRedirect(t *testing.T) {
	ctx := testContext()
	html := `<script>window.location.href = "https://example.com/login";</script>`
	out := string(Rewrite([]byte(html), ctx))
	if !strings.Contains(out, `window.location.href = "https://m.test/login"`) {
		t.Errorf("got %s", out)
	}
}

func TestRewriteScriptSrcAttribute(t *testing.T) {
	ctx := testContext()
	html := `<script src="https://example.com/app.js"></script>`
	out := string(Rewrite([]byte(html), ctx))
	if !strings.Contains(out, `src="https://m.test/app.js"`) {
		t.Errorf("expected src attribute rewritten, got %s", out)
	}
}

func TestRewriteIdempotentOnMirroredPage(t *testing.T) {
	ctx := testContext()
	html := `<a href="https://m.test/already">x</a>`
	first := string(Rewrite([]byte(html), ctx))
	second := string(Rewrite([]byte(first), ctx))
	if first != second {
		t.Errorf("not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestRewriteMalformedHTMLDoesNotPanic(t *testing.T) {
	ctx := testContext()
	html := `<div><a href="https://example.com/x">broken<div>`
	out := Rewrite([]byte(html), ctx)
	if len(out) == 0 {
		t.Error("expected non-empty output for malformed HTML")
	}
}
