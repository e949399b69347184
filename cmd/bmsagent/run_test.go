package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbms-io/bms-edge-agent/internal/bacnet"
	"github.com/openbms-io/bms-edge-agent/internal/database"
)

func setupTestDB(t *testing.T) *database.SQLiteDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agent.db")
	db := database.NewSQLiteDB(database.NewConfig(dbPath))
	ctx := context.Background()
	require.NoError(t, db.Connect(ctx, dbPath))
	require.NoError(t, db.Migrator().Run())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadDeploymentConfig_MissingRowIsFatal(t *testing.T) {
	db := setupTestDB(t)

	_, err := loadDeploymentConfig(context.Background(), db)

	assert.Error(t, err)
}

func TestLoadDeploymentConfig_InvalidConfigIsRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	// empty site_id: the store itself only guards the org_ prefix, so the
	// row is written and then rejected by Validate on load
	require.NoError(t, db.SetDeploymentConfig(ctx, &database.DeploymentConfig{
		OrganizationID: "org_acme",
		SiteID:         "",
		DeviceID:       "dev-1",
	}))

	_, err := loadDeploymentConfig(ctx, db)

	assert.Error(t, err)
}

func TestLoadDeploymentConfig_ValidRowIsReturned(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SetDeploymentConfig(ctx, &database.DeploymentConfig{
		OrganizationID: "org_acme",
		SiteID:         "site-1",
		DeviceID:       "dev-1",
	}))

	cfg, err := loadDeploymentConfig(ctx, db)

	require.NoError(t, err)
	assert.Equal(t, "org_acme", cfg.OrganizationID)
	assert.Equal(t, "dev-1", cfg.DeviceID)
}

func TestInitializeDeviceStatus_SeedsActiveStatusOnFirstRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, initializeDeviceStatus(ctx, db, "dev-1"))

	status, err := db.GetDeviceStatus(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, bacnet.MonitoringActive, status.MonitoringStatus)
}

func TestInitializeDeviceStatus_LeavesExistingRowUntouched(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertDeviceStatus(ctx, &database.DeviceStatus{
		DeviceID:         "dev-1",
		MonitoringStatus: "stopped",
	}))

	require.NoError(t, initializeDeviceStatus(ctx, db, "dev-1"))

	status, err := db.GetDeviceStatus(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", status.MonitoringStatus)
}
