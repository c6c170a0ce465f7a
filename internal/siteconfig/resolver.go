package siteconfig

import (
	"context"
	"strconv"
	"strings"

	"proxibase/internal/models"
)

// Resolver answers host->Site lookups against a Store, and produces the
// EffectiveConfig for a resolved site.
type Resolver struct {
	store Store
}

// New builds a Resolver over store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}

// Resolve finds the enabled Site whose mirror_root exactly equals host, or
// failing that, the site whose mirror_root is the longest suffix such that
// host == "<prefix>.<mirror_root>".
func (r *Resolver) Resolve(ctx context.Context, host string) (*models.Site, bool, error) {
	host = strings.ToLower(stripPort(host))

	sites, err := r.store.EnabledSites(ctx)
	if err != nil {
		return nil, false, err
	}

	var best *models.Site
	bestLen := -1
	for _, site := range sites {
		if !site.Enabled {
			continue
		}
		mirror := strings.ToLower(site.Mirror)
		if host == mirror {
			return site, true, nil
		}
		if strings.HasSuffix(host, "."+mirror) && len(mirror) > bestLen {
			best = site
			bestLen = len(mirror)
		}
	}
	if best != nil {
		return best, true, nil
	}
	return nil, false, nil
}

// Effective returns the EffectiveConfig for site, merging the admin
// collaborator's GlobalConfig (or the hardcoded defaults, if none exists
// yet) onto the site's own overrides.
func (r *Resolver) Effective(ctx context.Context, site *models.Site) (models.EffectiveConfig, error) {
	gc, err := r.store.GlobalConfig(ctx)
	if err != nil {
		return models.EffectiveConfig{}, err
	}
	if gc == nil {
		defaults := models.DefaultGlobalConfig()
		gc = &defaults
	}
	return gc.Effective(site), nil
}
