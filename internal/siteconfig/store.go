// Package siteconfig implements the Site Resolver: host->Site
// lookup with exact and suffix match, and the EffectiveConfig merge.
package siteconfig

import (
	"context"

	"proxibase/internal/models"
)

// Store is the read interface the admin collaborator exposes to the core
// a read interface over Sites and GlobalConfig. The core
// does not call into admin for writes."). The core never constructs or
// mutates Site/GlobalConfig records itself.
type Store interface {
	EnabledSites(ctx context.Context) ([]*models.Site, error)
	GlobalConfig(ctx context.Context) (*models.GlobalConfig, error)
}
