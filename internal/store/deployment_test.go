package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbms-io/bms-edge-agent/internal/database"
)

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	ok, errs := Validate(database.DeploymentConfig{
		OrganizationID: "org_123",
		SiteID:         "site_1",
		DeviceID:       "dev_1",
	})
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestValidate_RejectsMissingOrganizationPrefix(t *testing.T) {
	ok, errs := Validate(database.DeploymentConfig{
		OrganizationID: "acme",
		SiteID:         "site_1",
		DeviceID:       "dev_1",
	})
	assert.False(t, ok)
	assert.Contains(t, errs, "organization_id should start with 'org_'")
}

func TestValidate_ReportsEveryMissingFieldAtOnce(t *testing.T) {
	ok, errs := Validate(database.DeploymentConfig{})
	assert.False(t, ok)
	assert.Len(t, errs, 3) // empty org, empty site, empty device (prefix check only fires on a non-empty org_id)
}

func TestValidate_BlankFieldsAreTreatedAsEmpty(t *testing.T) {
	ok, errs := Validate(database.DeploymentConfig{
		OrganizationID: "   ",
		SiteID:         "site_1",
		DeviceID:       "dev_1",
	})
	assert.False(t, ok)
	assert.Contains(t, errs, "organization_id is required and cannot be empty")
}
