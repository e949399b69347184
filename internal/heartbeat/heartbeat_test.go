package heartbeat

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

func TestCollectHeartbeatData_NoRecordReturnsDeviceIDOnly(t *testing.T) {
	db := setupTestDB(t)
	a := &Actor{DB: db, DeviceID: "dev-1"}

	got := a.collectHeartbeatData(context.Background())

	assert.Equal(t, message.HeartbeatStatus{DeviceID: "dev-1"}, got)
}

func TestCollectHeartbeatData_MapsStoredSnapshot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cpu := 42.5
	temp := 55.0

	require.NoError(t, db.UpsertDeviceStatus(ctx, &database.DeviceStatus{
		DeviceID:         "dev-1",
		MonitoringStatus: "active",
		MQTTConnection:   "connected",
		BACnetConnection: "connected",
		CPUPercent:       &cpu,
		TemperatureC:     &temp,
		ConnectedDevices: 3,
		MonitoredPoints:  10,
	}))

	a := &Actor{DB: db, DeviceID: "dev-1"}
	got := a.collectHeartbeatData(ctx)

	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, "active", got.MonitoringStatus)
	assert.Equal(t, "connected", got.MQTTConnection)
	assert.Equal(t, 42.5, got.CPUPercent)
	assert.Equal(t, &temp, got.TemperatureC)
	assert.Equal(t, 3, got.ConnectedDevices)
	assert.Equal(t, 10, got.MonitoredPoints)
}

func TestCollectHeartbeatData_DBErrorReturnsConnectionErrors(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Close())

	a := &Actor{DB: db, DeviceID: "dev-1"}
	got := a.collectHeartbeatData(context.Background())

	assert.Equal(t, connectionError, got.MQTTConnection)
	assert.Equal(t, connectionError, got.BACnetConnection)
}

func TestHandleMessage_ForceHeartbeatSendsStatusToMQTT(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	mqttBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &Actor{Registry: registry, DB: db, DeviceID: "dev-1"}
	a.handleMessage(context.Background(), message.Envelope{
		Sender:  "controller",
		Type:    message.TypeForceHeartbeatRequest,
		Payload: message.ForceHeartbeatRequest{Reason: "operator requested"},
	})

	env, ok := mqttBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeHeartbeatStatus, env.Type)
	status, ok := env.Payload.(message.HeartbeatStatus)
	require.True(t, ok)
	assert.Equal(t, "dev-1", status.DeviceID)
}

func TestHandleMessage_UnhandledTypeIsIgnored(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	_, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &Actor{Registry: registry, DB: db, DeviceID: "dev-1"}
	assert.NotPanics(t, func() {
		a.handleMessage(context.Background(), message.Envelope{Type: message.TypeDeviceReboot})
	})
}
