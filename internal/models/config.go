package models

// GlobalConfig is the singleton holding process-wide defaults for every
// field a Site may override. Its fields are plain values; when no
// GlobalConfig exists, DefaultGlobalConfig supplies the hardcoded defaults.
type GlobalConfig struct {
	ID string

	ProxySubdomains      bool
	ProxyExternalDomains bool
	RewriteJSRedirects   bool
	RemoveAds            bool
	InjectAds            bool
	RemoveAnalytics      bool
	MediaPolicy          MediaPolicy
	SessionMode          SessionMode
	CustomAdHTML         string
	CustomTrackerJS      string
}

// EffectiveConfig is the per-request merge of Site overrides over
// GlobalConfig defaults over hardcoded defaults.
type EffectiveConfig struct {
	ProxySubdomains      bool
	ProxyExternalDomains bool
	RewriteJSRedirects   bool
	RemoveAds            bool
	InjectAds            bool
	RemoveAnalytics      bool
	MediaPolicy          MediaPolicy
	SessionMode          SessionMode
	CustomAdHTML         string
	CustomTrackerJS      string
}

// DefaultGlobalConfig returns the hardcoded defaults used when the admin
// collaborator has no GlobalConfig row yet; the row is created lazily on
// first write rather than provisioned up front.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		ProxySubdomains:      true,
		ProxyExternalDomains: true,
		RewriteJSRedirects:   true,
		RemoveAds:            false,
		InjectAds:            false,
		RemoveAnalytics:      false,
		MediaPolicy:          MediaPolicyProxy,
		SessionMode:          SessionModeStateless,
	}
}

// Effective overlays site-level non-nil fields onto g, producing the
// EffectiveConfig for a single request.
func (g GlobalConfig) Effective(site *Site) EffectiveConfig {
	ec := EffectiveConfig{
		ProxySubdomains:      g.ProxySubdomains,
		ProxyExternalDomains: g.ProxyExternalDomains,
		RewriteJSRedirects:   g.RewriteJSRedirects,
		RemoveAds:            g.RemoveAds,
		InjectAds:            g.InjectAds,
		RemoveAnalytics:      g.RemoveAnalytics,
		MediaPolicy:          g.MediaPolicy,
		SessionMode:          g.SessionMode,
		CustomAdHTML:         g.CustomAdHTML,
		CustomTrackerJS:      g.CustomTrackerJS,
	}
	if site == nil {
		return ec
	}
	if site.ProxySubdomains != nil {
		ec.ProxySubdomains = *site.ProxySubdomains
	}
	if site.ProxyExternalDomains != nil {
		ec.ProxyExternalDomains = *site.ProxyExternalDomains
	}
	if site.RewriteJSRedirects != nil {
		ec.RewriteJSRedirects = *site.RewriteJSRedirects
	}
	if site.RemoveAds != nil {
		ec.RemoveAds = *site.RemoveAds
	}
	if site.InjectAds != nil {
		ec.InjectAds = *site.InjectAds
	}
	if site.RemoveAnalytics != nil {
		ec.RemoveAnalytics = *site.RemoveAnalytics
	}
	if site.MediaPolicy != nil {
		ec.MediaPolicy = *site.MediaPolicy
	}
	if site.SessionMode != nil {
		ec.SessionMode = *site.SessionMode
	}
	if site.CustomAdHTML != nil {
		ec.CustomAdHTML = *site.CustomAdHTML
	}
	if site.CustomTrackerJS != nil {
		ec.CustomTrackerJS = *site.CustomTrackerJS
	}
	return ec
}
