// Package models holds the data types the core operates on: Site and
// GlobalConfig records as read from the admin collaborator, and the
// EffectiveConfig produced by overlaying one onto the other.
package models

// MediaPolicy controls how the rewriter treats URLs classified as media.
type MediaPolicy string

const (
	MediaPolicyBypass     MediaPolicy = "bypass"
	MediaPolicyProxy      MediaPolicy = "proxy"
	MediaPolicySizeLimited MediaPolicy = "size_limited"
)

// SessionMode controls whether the engine mints/tracks a per-client session
// and partitions origin cookies by it.
type SessionMode string

const (
	SessionModeStateless SessionMode = "stateless"
	SessionModeCookieJar SessionMode = "cookie_jar"
)

// Site binds a mirror_root to a source_root, with per-site overrides of the
// GlobalConfig defaults. Sites are created and edited by the admin
// collaborator; the core only ever reads them.
type Site struct {
	ID     string
	Mirror string // mirror_root, lowercase, unique among enabled sites
	Source string // source_root
	Enabled bool

	// Overrides. nil means "inherit from GlobalConfig".
	ProxySubdomains       *bool
	ProxyExternalDomains  *bool
	RewriteJSRedirects    *bool
	RemoveAds             *bool
	InjectAds             *bool
	RemoveAnalytics       *bool
	MediaPolicy           *MediaPolicy
	SessionMode           *SessionMode
	CustomAdHTML          *string
	CustomTrackerJS       *string
}
