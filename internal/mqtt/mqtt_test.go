package mqtt

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

func TestDecodePayload_StopMonitoringRequest(t *testing.T) {
	v, err := decodePayload(message.TypeStopMonitoringRequest, []byte(`{"CommandID":"cmd-1"}`))
	require.NoError(t, err)
	req, ok := v.(message.StopMonitoringRequest)
	require.True(t, ok)
	assert.Equal(t, "cmd-1", req.CommandID)
}

func TestDecodePayload_UnsupportedTypeErrors(t *testing.T) {
	_, err := decodePayload(message.TypeHeartbeatStatus, []byte(`{}`))
	assert.Error(t, err)
}

func TestHandleInbound_IgnoresOtherTopics(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	_, err := registry.Register(message.ActorBACnet)
	require.NoError(t, err)

	a := &Actor{Config: Config{DeviceID: "dev-1"}, Registry: registry}
	assert.NotPanics(t, func() {
		a.handleInbound(context.Background(), "some/other/topic", []byte(`{}`))
	})
}

func TestHandleInbound_MalformedPayloadIsIgnored(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	a := &Actor{Config: Config{DeviceID: "dev-1"}, Registry: registry}
	assert.NotPanics(t, func() {
		a.handleInbound(context.Background(), a.Config.commandTopic(), []byte(`not json`))
	})
}

func TestHandleInbound_DeliversDecodedCommandToTarget(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	bacnetBox, err := registry.Register(message.ActorBACnet)
	require.NoError(t, err)

	a := &Actor{Config: Config{DeviceID: "dev-1"}, Registry: registry}
	payload := `{"type":"STOP_MONITORING_REQUEST","target":"bacnet_monitoring","payload":{"CommandID":"cmd-9"}}`
	a.handleInbound(context.Background(), a.Config.commandTopic(), []byte(payload))

	env, ok := bacnetBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypeStopMonitoringRequest, env.Type)
	req, ok := env.Payload.(message.StopMonitoringRequest)
	require.True(t, ok)
	assert.Equal(t, "cmd-9", req.CommandID)
}

func TestHandleOutbound_DropsWhenNotConnected(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	a := &Actor{Config: Config{DeviceID: "dev-1"}, Registry: registry}

	assert.NotPanics(t, func() {
		a.handleOutbound(context.Background(), message.Envelope{Type: message.TypeHeartbeatStatus, Payload: message.HeartbeatStatus{DeviceID: "dev-1"}})
	})
}

func TestUpdateConnection_PersistsStatus(t *testing.T) {
	db := setupTestDB(t)
	a := &Actor{Config: Config{DeviceID: "dev-1"}, DB: db}

	a.updateConnection(context.Background(), "connected")

	status, err := db.GetDeviceStatus(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "connected", status.MQTTConnection)
}

func TestTopics_AreScopedToDevice(t *testing.T) {
	cfg := Config{DeviceID: "dev-1"}
	assert.Equal(t, "bms/dev-1/commands", cfg.commandTopic())
	assert.Equal(t, "bms/dev-1/responses", cfg.responseTopic())
	assert.Equal(t, "bms/dev-1/points", cfg.pointsTopic())
}
