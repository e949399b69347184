// Package store holds validation for configuration that the database
// layer treats as an opaque write. SQLiteDB.SetDeploymentConfig only
// guards the one invariant it must enforce itself (the org_ prefix);
// Validate here gives the CLI the full, actionable error list before it
// ever reaches the database, mirroring
// original_source/apps/bms-iot-app/src/models/deployment_config.py's
// validate_deployment_config.
package store

import (
	"strings"

	"github.com/openbms-io/bms-edge-agent/internal/database"
)

// Validate checks a deployment config for completeness and the
// organization_id naming convention, returning every violation found
// rather than stopping at the first.
func Validate(cfg database.DeploymentConfig) (bool, []string) {
	var errs []string

	if strings.TrimSpace(cfg.OrganizationID) == "" {
		errs = append(errs, "organization_id is required and cannot be empty")
	}
	if strings.TrimSpace(cfg.SiteID) == "" {
		errs = append(errs, "site_id is required and cannot be empty")
	}
	if strings.TrimSpace(cfg.DeviceID) == "" {
		errs = append(errs, "device_id is required and cannot be empty")
	}
	if cfg.OrganizationID != "" && !strings.HasPrefix(cfg.OrganizationID, "org_") {
		errs = append(errs, "organization_id should start with 'org_'")
	}

	return len(errs) == 0, errs
}
