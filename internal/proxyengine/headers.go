package proxyengine

import (
	"net/http"
	"strings"
)

// forwardRequestHeaders lists the headers copied verbatim from the client
// request onto the outbound origin request. Accept-Encoding is deliberately
// excluded: forwarding it invites origins to return a compressed body we'd
// then rewrite as raw bytes, corrupting HTML/JS/CSS output.
var forwardRequestHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Content-Type",
}

// stripResponseHeaders lists exact header names that never reach the
// client, regardless of origin response.
var stripResponseHeaders = map[string]bool{
	"Set-Cookie":                       true,
	"Content-Security-Policy":         true,
	"Content-Security-Policy-Report-Only": true,
	"Strict-Transport-Security":       true,
	"X-Frame-Options":                 true,
	"Content-Length":                  true,
	"Content-Encoding":                true,
	"Transfer-Encoding":               true,
}

// stripResponseHeader reports whether header key (any case) must be
// dropped from the response sent to the client.
func stripResponseHeader(key string) bool {
	if stripResponseHeaders[http.CanonicalHeaderKey(key)] {
		return true
	}
	return strings.HasPrefix(strings.ToLower(key), "access-control-")
}

// isMediaContentType classifies a response by its Content-Type for the
// purpose of the size cap, separately from urlalgebra's extension-based
// classification used by the rewriter.
func isMediaContentType(contentType string) bool {
	lower := strings.ToLower(contentType)
	for _, prefix := range []string{"image/", "video/", "audio/", "application/octet-stream"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
