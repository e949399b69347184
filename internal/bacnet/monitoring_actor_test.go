package bacnet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
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

func TestObjectTypeCode_MapsKnownTypes(t *testing.T) {
	assert.EqualValues(t, 0, objectTypeCode("analogInput"))
	assert.EqualValues(t, 3, objectTypeCode("binaryInput"))
	assert.EqualValues(t, 19, objectTypeCode("multiStateValue"))
	assert.EqualValues(t, 0, objectTypeCode("unknownType"))
}

func TestHandleConfigUpload_EmptyReadersStopsMonitoringButStillResponds(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	uploaderBox, err := registry.Register(message.ActorUploader)
	require.NoError(t, err)

	a := &MonitoringActor{Registry: registry, DB: db, DeviceID: "dev-1"}
	a.state.monitoringEnabled = true

	a.handleConfigUpload(context.Background(), message.ActorMQTT, message.ConfigUploadRequest{
		CommandID: "cmd-1",
		UploadURL: "https://cloud.example/upload",
		JWT:       "token",
	})

	status, err := db.GetDeviceStatus(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, MonitoringStopped, status.MonitoringStatus)

	env, ok := uploaderBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeConfigUploadResponse, env.Type)
	resp, ok := env.Payload.(message.ConfigUploadResponse)
	require.True(t, ok)
	assert.Equal(t, "cmd-1", resp.CommandID)
	assert.Equal(t, "https://cloud.example/upload", resp.UploadURL)

	enabled, initialized, _ := a.state.snapshot()
	assert.False(t, enabled)
	assert.False(t, initialized)
}

func TestSetMonitoring_StartUpdatesStatusAndNotifiesHeartbeat(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	heartbeatBox, err := registry.Register(message.ActorHeartbeat)
	require.NoError(t, err)
	senderBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &MonitoringActor{Registry: registry, DB: db, DeviceID: "dev-1"}
	a.setMonitoring(context.Background(), message.ActorMQTT, "cmd-2", true)

	status, err := db.GetDeviceStatus(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, MonitoringActive, status.MonitoringStatus)

	forceEnv, ok := heartbeatBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeForceHeartbeatRequest, forceEnv.Type)

	respEnv, ok := senderBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeStartMonitoringResponse, respEnv.Type)

	enabled, _, _ := a.state.snapshot()
	assert.True(t, enabled)
}

func TestSetMonitoring_StopUpdatesStatus(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	_, err := registry.Register(message.ActorHeartbeat)
	require.NoError(t, err)
	senderBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &MonitoringActor{Registry: registry, DB: db, DeviceID: "dev-1"}
	a.state.monitoringEnabled = true
	a.setMonitoring(context.Background(), message.ActorMQTT, "cmd-3", false)

	status, err := db.GetDeviceStatus(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, MonitoringStopped, status.MonitoringStatus)

	respEnv, ok := senderBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeStopMonitoringResponse, respEnv.Type)

	enabled, _, _ := a.state.snapshot()
	assert.False(t, enabled)
}
