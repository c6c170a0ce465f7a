// Package urlalgebra implements the pure, side-effect-free mirror<->origin
// URL mapping functions. None of these functions do network or
// filesystem I/O; they only parse and rewrite strings.
package urlalgebra

import (
	"net/url"
	"strconv"
	"strings"

	"proxibase/internal/models"
)

// mediaExtensions classifies a URL as media by its path suffix, case
// insensitive.
var mediaExtensions = map[string]bool{
	// images
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".bmp": true,
	// video
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true,
	".m3u8": true, ".flv": true, ".wmv": true,
	// audio
	".mp3": true, ".wav": true, ".ogg": true, ".aac": true, ".flac": true,
	".m4a": true,
	// archives
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".bz2": true,
	// documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	// executables
	".apk": true, ".exe": true, ".dmg": true, ".deb": true, ".rpm": true,
	// fonts
	".ttf": true, ".woff": true, ".woff2": true, ".eot": true, ".otf": true,
}

// IsMediaURL classifies url by its path extension only; query and fragment
// are ignored. URLs with no recognized extension are not media.
func IsMediaURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	var path string
	if err == nil {
		path = u.Path
	} else {
		path = rawURL
	}
	path = strings.ToLower(path)
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return false
	}
	return mediaExtensions[path[dot:]]
}

// isSkippableURL matches the URL schemes/forms the rewriter leaves alone
// verbatim: empty, data:, javascript:, mailto:, and bare fragments.
func isSkippableURL(u string) bool {
	if u == "" {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(u))
	switch {
	case strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(u, "#"):
		return true
	}
	return false
}

// stripPort removes a trailing ":port" from a host header value.
func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		// only strip if what follows looks like a port (digits) — a bare
		// IPv6 literal is left intact only when its last group holds a hex
		// letter; one ending in a digits-only group (e.g. "::1") is cut.
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}

// looksLikeEncodedHost reports whether a path segment should be treated as
// an encoded external host: it contains at least one dot and no spaces.
func looksLikeEncodedHost(segment string) bool {
	return strings.Contains(segment, ".") && !strings.Contains(segment, " ")
}

// BuildOriginURL computes the origin URL to fetch for an incoming mirror
// request. mirrorHost is the request's Host
// header (may carry a port); pathAndQuery is the request-target.
func BuildOriginURL(mirrorHost, pathAndQuery string, site *models.Site) (string, bool) {
	host := stripPort(strings.ToLower(mirrorHost))

	prefix := ""
	switch {
	case host == site.Mirror:
		prefix = ""
	case strings.HasSuffix(host, "."+site.Mirror):
		prefix = strings.TrimSuffix(host, "."+site.Mirror)
	default:
		return "", false
	}

	if pathAndQuery == "" {
		pathAndQuery = "/"
	}
	if !strings.HasPrefix(pathAndQuery, "/") {
		pathAndQuery = "/" + pathAndQuery
	}

	path, query := pathAndQuery, ""
	if i := strings.IndexByte(pathAndQuery, '?'); i >= 0 {
		path, query = pathAndQuery[:i], pathAndQuery[i+1:]
	}

	trimmed := strings.TrimPrefix(path, "/")
	firstSegment := trimmed
	rest := ""
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		firstSegment, rest = trimmed[:i], trimmed[i:]
	}

	if firstSegment != "" && looksLikeEncodedHost(firstSegment) {
		if rest == "" {
			rest = "/"
		}
		u := "https://" + firstSegment + rest
		if query != "" {
			u += "?" + query
		}
		return u, true
	}

	originHost := site.Source
	if prefix != "" {
		originHost = prefix + "." + site.Source
	}
	u := "https://" + originHost + path
	if query != "" {
		u += "?" + query
	}
	return u, true
}

// MapOriginURLToMirror is the inverse mapping used on redirects and during
// rewriting.
func MapOriginURLToMirror(originURL string, site *models.Site, effective models.EffectiveConfig, mirrorHost string) string {
	u, err := url.Parse(originURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return originURL
	}
	originHost := stripPort(strings.ToLower(u.Hostname()))

	// Already mirror-form (e.g. re-processing an already-rewritten page):
	// leave it alone rather than re-encoding it as an "external" domain.
	if originHost == site.Mirror || strings.HasSuffix(originHost, "."+site.Mirror) {
		return originURL
	}

	isSourceDomain := originHost == site.Source || strings.HasSuffix(originHost, "."+site.Source)
	if isSourceDomain && effective.ProxySubdomains {
		newHost := site.Mirror
		if originHost != site.Source {
			prefix := strings.TrimSuffix(originHost, "."+site.Source)
			newHost = prefix + "." + site.Mirror
		}
		return rebuild("https", newHost, u.EscapedPath(), u.RawQuery, u.Fragment)
	}

	if !isSourceDomain {
		if effective.ProxyExternalDomains {
			path := u.EscapedPath()
			if path == "" {
				path = "/"
			}
			encoded := "/" + u.Host + path
			return rebuild("https", mirrorHost, encoded, u.RawQuery, u.Fragment)
		}
		return originURL
	}

	// same domain but subdomain proxying disabled: leave pointing at origin.
	return originURL
}

func rebuild(scheme, host, path, query, fragment string) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

// RewriteURLInPage resolves url (possibly relative or protocol-relative)
// against pageOriginURL, then applies MapOriginURLToMirror, honoring
// media_policy == bypass.
func RewriteURLInPage(rawURL, pageOriginURL string, site *models.Site, effective models.EffectiveConfig, mirrorHost string) string {
	if isSkippableURL(rawURL) {
		return rawURL
	}

	absolute, ok := resolveAgainst(rawURL, pageOriginURL)
	if !ok {
		return rawURL
	}

	if effective.MediaPolicy == models.MediaPolicyBypass && IsMediaURL(absolute) {
		return absolute
	}

	return MapOriginURLToMirror(absolute, site, effective, mirrorHost)
}

// resolveAgainst makes url absolute against base, handling protocol-relative
// ("//host/path") forms explicitly.
func resolveAgainst(rawURL, base string) (string, bool) {
	if strings.HasPrefix(rawURL, "//") {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		scheme := baseURL.Scheme
		if scheme == "" {
			scheme = "https"
		}
		return scheme + ":" + rawURL, true
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(ref).String(), true
}
