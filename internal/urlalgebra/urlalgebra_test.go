package urlalgebra

import (
	"net/url"
	"testing"

	"proxibase/internal/models"
)

func testSite() *models.Site {
	return &models.Site{Mirror: "m.test", Source: "example.com", Enabled: true}
}

func defaultEffective() models.EffectiveConfig {
	gc := models.DefaultGlobalConfig()
	return gc.Effective(nil)
}

func TestBuildOriginURL(t *testing.T) {
	site := testSite()

	cases := []struct {
		name   string
		host   string
		path   string
		want   string
		wantOK bool
	}{
		{"root", "m.test", "/", "https://example.com/", true},
		{"simple path", "m.test", "/x", "https://example.com/x", true},
		{"subdomain prefix", "sub.m.test", "/", "https://sub.example.com/", true},
		{"subdomain path", "sub.m.test", "/abc", "https://sub.example.com/abc", true},
		{"encoded external", "m.test", "/other.org/y", "https://other.org/y", true},
		{"encoded external root only", "m.test", "/other.org", "https://other.org/", true},
		{"with query", "m.test", "/x?a=1", "https://example.com/x?a=1", true},
		{"not a mirror host", "unrelated.com", "/x", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := BuildOriginURL(c.host, c.path, site)
			if ok != c.wantOK {
				t.Fatalf("ok = %v, want %v", ok, c.wantOK)
			}
			if ok && got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestMapOriginURLToMirror(t *testing.T) {
	site := testSite()
	ec := defaultEffective()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"same domain", "https://example.com/x", "https://m.test/x"},
		{"subdomain", "https://sub.example.com/y", "https://sub.m.test/y"},
		{"external", "https://other.org/z", "https://m.test/other.org/z"},
		{"bad scheme unchanged", "ftp://example.com/x", "ftp://example.com/x"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := MapOriginURLToMirror(c.in, site, ec, "m.test")
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestMappingRoundTrip(t *testing.T) {
	site := testSite()
	ec := defaultEffective()

	origins := []string{
		"https://example.com/x",
		"https://sub.example.com/deep/path",
	}
	for _, origin := range origins {
		mirror := MapOriginURLToMirror(origin, site, ec, "m.test")
		// extract host+path+query from mirror to feed back into BuildOriginURL
		u, err := url.Parse(mirror)
		if err != nil {
			t.Fatalf("parse %q: %v", mirror, err)
		}
		requestURI := u.Path
		if u.RawQuery != "" {
			requestURI += "?" + u.RawQuery
		}
		got, ok := BuildOriginURL(u.Host, requestURI, site)
		if !ok {
			t.Fatalf("BuildOriginURL failed for %q", mirror)
		}
		if got != origin {
			t.Errorf("round trip: got %q, want %q (via mirror %q)", got, origin, mirror)
		}
	}
}

func TestExternalEncodingRoundTrip(t *testing.T) {
	site := testSite()

	external := "https://other.org/some/path"
	got, ok := BuildOriginURL(site.Mirror, "/other.org/some/path", site)
	if !ok {
		t.Fatal("BuildOriginURL failed")
	}
	if got != external {
		t.Errorf("got %q, want %q", got, external)
	}
}

func TestIsMediaURL(t *testing.T) {
	cases := map[string]bool{
		"https://x.com/a.jpg":        true,
		"https://x.com/a.JPG":        true,
		"https://x.com/a.mp4":        true,
		"https://x.com/a.pdf":        true,
		"https://x.com/a":            false,
		"https://x.com/a.html":       false,
		"":                           false,
		"https://x.com/a.jpg?q=1#f":  true,
	}
	for in, want := range cases {
		if got := IsMediaURL(in); got != want {
			t.Errorf("IsMediaURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRewriteURLInPageEdgeCases(t *testing.T) {
	site := testSite()
	ec := defaultEffective()
	page := "https://example.com/page"

	cases := map[string]string{
		"":                     "",
		"data:image/png;xyz":   "data:image/png;xyz",
		"javascript:alert(1)":  "javascript:alert(1)",
		"mailto:a@b.com":       "mailto:a@b.com",
		"#frag":                "#frag",
	}
	for in, want := range cases {
		if got := RewriteURLInPage(in, page, site, ec, "m.test"); got != want {
			t.Errorf("RewriteURLInPage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteURLInPageProtocolRelative(t *testing.T) {
	site := testSite()
	ec := defaultEffective()
	page := "https://example.com/page"

	got := RewriteURLInPage("//example.com/x", page, site, ec, "m.test")
	if got != "https://m.test/x" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteURLInPageMediaBypass(t *testing.T) {
	site := testSite()
	gc := models.DefaultGlobalConfig()
	bypass := models.MediaPolicyBypass
	site.MediaPolicy = &bypass
	ec := gc.Effective(site)
	page := "https://example.com/page"

	got := RewriteURLInPage("/img.png", page, site, ec, "m.test")
	if got != "https://example.com/img.png" {
		t.Errorf("got %q", got)
	}
}
