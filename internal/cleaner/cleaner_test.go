package cleaner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func sampleRow(pointID string) database.StagingRow {
	return database.StagingRow{
		ControllerIP:       "10.0.1.50",
		UDPPort:            47808,
		ControllerDeviceID: 1001,
		ControllerID:       "ctrl-1",
		PointID:            pointID,
		IoTDevicePointID:   "cloud-" + pointID,
		ObjectType:         "analogInput",
		Units:              "degreesFahrenheit",
		PresentValue:       "72.5",
	}
}

func TestDeleteUploadedPoints_RemovesOnlyUploadedRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.BulkInsertStagingRows(ctx, []database.StagingRow{sampleRow("pt-1"), sampleRow("pt-2")}))

	pending, err := db.GetPointsToUpload(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.NoError(t, db.MarkUploaded(ctx, []int64{pending[0].ID}))

	a := &Actor{DB: db}
	require.NoError(t, a.deleteUploadedPoints(ctx))

	remaining, err := db.GetPointsToUpload(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending[1].ID, remaining[0].ID)
}

func TestDeleteUploadedPoints_NoopWhenNothingUploaded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.BulkInsertStagingRows(ctx, []database.StagingRow{sampleRow("pt-1")}))

	a := &Actor{DB: db}
	require.NoError(t, a.deleteUploadedPoints(ctx))

	remaining, err := db.GetPointsToUpload(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
