package siteconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"proxibase/internal/models"
)

// siteDocument is the on-disk shape of one file under the sites directory.
// An explicit "id" lets an operator pin a Site's identity across reloads
// (e.g. to keep cookie jar entries, which key on site ID, stable); when
// omitted a fresh one is minted on load.
type siteDocument struct {
	ID         string `yaml:"id"`
	MirrorRoot string `yaml:"mirror_root"`
	SourceRoot string `yaml:"source_root"`
	Enabled    *bool  `yaml:"enabled"`

	ProxySubdomains      *bool   `yaml:"proxy_subdomains"`
	ProxyExternalDomains *bool   `yaml:"proxy_external_domains"`
	RewriteJSRedirects   *bool   `yaml:"rewrite_js_redirects"`
	RemoveAds            *bool   `yaml:"remove_ads"`
	InjectAds            *bool   `yaml:"inject_ads"`
	RemoveAnalytics      *bool   `yaml:"remove_analytics"`
	MediaPolicy          *string `yaml:"media_policy"`
	SessionMode          *string `yaml:"session_mode"`
	CustomAdHTML         *string `yaml:"custom_ad_html"`
	CustomTrackerJS      *string `yaml:"custom_tracker_js"`
}

// globalDocument is the on-disk shape of global_config.yml. Every override
// field is a pointer so an operator can set only the fields they care
// about; an omitted field falls back to models.DefaultGlobalConfig()
// rather than unmarshaling to Go's zero value and stomping the default.
type globalDocument struct {
	ID                   string  `yaml:"id"`
	ProxySubdomains      *bool   `yaml:"proxy_subdomains"`
	ProxyExternalDomains *bool   `yaml:"proxy_external_domains"`
	RewriteJSRedirects   *bool   `yaml:"rewrite_js_redirects"`
	RemoveAds            *bool   `yaml:"remove_ads"`
	InjectAds            *bool   `yaml:"inject_ads"`
	RemoveAnalytics      *bool   `yaml:"remove_analytics"`
	MediaPolicy          *string `yaml:"media_policy"`
	SessionMode          *string `yaml:"session_mode"`
	CustomAdHTML         *string `yaml:"custom_ad_html"`
	CustomTrackerJS      *string `yaml:"custom_tracker_js"`
}

// YAMLStore is a Store backed by a directory of per-site YAML files plus an
// optional global_config.yml. It stands in for the admin HTTP surface
// (delegated to the admin collaborator) in the standalone binary; a real
// deployment swaps in a database-backed Store without the core noticing,
// since both satisfy the same Store interface.
type YAMLStore struct {
	mu     sync.RWMutex
	sites  []*models.Site
	global *models.GlobalConfig
}

// LoadYAMLStore reads every "*.yml"/"*.yaml" file in dir except
// "global_config.yml"/"global_config.yaml" as a Site document, and that
// global_config file (if present) as the GlobalConfig.
func LoadYAMLStore(dir string) (*YAMLStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	s := &YAMLStore{}
	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if !strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		if name == "global_config.yml" || name == "global_config.yaml" {
			var gd globalDocument
			if err := yaml.Unmarshal(data, &gd); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			gc := globalFromDocument(gd)
			s.global = &gc
			continue
		}

		var sd siteDocument
		if err := yaml.Unmarshal(data, &sd); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if sd.MirrorRoot == "" {
			return nil, fmt.Errorf("%s: mirror_root missing", name)
		}
		if sd.SourceRoot == "" {
			return nil, fmt.Errorf("%s: source_root missing", name)
		}
		site := siteFromDocument(sd)
		s.sites = append(s.sites, site)
	}

	return s, nil
}

func siteFromDocument(sd siteDocument) *models.Site {
	enabled := true
	if sd.Enabled != nil {
		enabled = *sd.Enabled
	}
	id := sd.ID
	if id == "" {
		id = uuid.New().String()
	}
	site := &models.Site{
		ID:      id,
		Mirror:  strings.ToLower(sd.MirrorRoot),
		Source:  strings.ToLower(sd.SourceRoot),
		Enabled: enabled,

		ProxySubdomains:      sd.ProxySubdomains,
		ProxyExternalDomains: sd.ProxyExternalDomains,
		RewriteJSRedirects:   sd.RewriteJSRedirects,
		RemoveAds:            sd.RemoveAds,
		InjectAds:            sd.InjectAds,
		RemoveAnalytics:      sd.RemoveAnalytics,
		CustomAdHTML:         sd.CustomAdHTML,
		CustomTrackerJS:      sd.CustomTrackerJS,
	}
	if sd.MediaPolicy != nil {
		mp := models.MediaPolicy(*sd.MediaPolicy)
		site.MediaPolicy = &mp
	}
	if sd.SessionMode != nil {
		sm := models.SessionMode(*sd.SessionMode)
		site.SessionMode = &sm
	}
	return site
}

func globalFromDocument(gd globalDocument) models.GlobalConfig {
	gc := models.DefaultGlobalConfig()
	gc.ID = gd.ID
	if gc.ID == "" {
		gc.ID = uuid.New().String()
	}
	if gd.ProxySubdomains != nil {
		gc.ProxySubdomains = *gd.ProxySubdomains
	}
	if gd.ProxyExternalDomains != nil {
		gc.ProxyExternalDomains = *gd.ProxyExternalDomains
	}
	if gd.RewriteJSRedirects != nil {
		gc.RewriteJSRedirects = *gd.RewriteJSRedirects
	}
	if gd.RemoveAds != nil {
		gc.RemoveAds = *gd.RemoveAds
	}
	if gd.InjectAds != nil {
		gc.InjectAds = *gd.InjectAds
	}
	if gd.RemoveAnalytics != nil {
		gc.RemoveAnalytics = *gd.RemoveAnalytics
	}
	if gd.CustomAdHTML != nil {
		gc.CustomAdHTML = *gd.CustomAdHTML
	}
	if gd.CustomTrackerJS != nil {
		gc.CustomTrackerJS = *gd.CustomTrackerJS
	}
	if gd.MediaPolicy != nil {
		gc.MediaPolicy = models.MediaPolicy(*gd.MediaPolicy)
	}
	if gd.SessionMode != nil {
		gc.SessionMode = models.SessionMode(*gd.SessionMode)
	}
	return gc
}

// EnabledSites implements Store.
func (s *YAMLStore) EnabledSites(ctx context.Context) ([]*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		if site.Enabled {
			out = append(out, site)
		}
	}
	return out, nil
}

// GlobalConfig implements Store. It returns nil if no global_config.yml was
// present, letting the Resolver fall back to hardcoded defaults.
func (s *YAMLStore) GlobalConfig(ctx context.Context) (*models.GlobalConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global, nil
}
