package bacnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

func TestWriteValueToPoint_NegativeInstanceIDFailsFast(t *testing.T) {
	a := &WriterActor{Pool: NewReaderPool(StrategyRoundRobin)}

	resp, row := a.writeValueToPoint(context.Background(), message.SetValueToPointRequest{
		CommandID:       "cmd-1",
		PointInstanceID: -1,
		ControllerIP:    "10.0.1.50",
	})

	assert.False(t, resp.Success)
	assert.Nil(t, row)
	assert.Contains(t, resp.Message, "must not be negative")
}

func TestWriteValueToPoint_NoReaderAvailableFails(t *testing.T) {
	a := &WriterActor{Pool: NewReaderPool(StrategyRoundRobin)}

	resp, row := a.writeValueToPoint(context.Background(), message.SetValueToPointRequest{
		CommandID:       "cmd-2",
		PointInstanceID: 5,
		ControllerIP:    "10.0.1.50",
	})

	assert.False(t, resp.Success)
	assert.Nil(t, row)
	assert.Contains(t, resp.Message, "no BACnet reader available")
}

func TestHandleSetValue_NoStagingRowOnFailureAndNoUploadTrigger(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	senderBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)
	uploaderBox, err := registry.Register(message.ActorUploader)
	require.NoError(t, err)

	a := &WriterActor{Registry: registry, Pool: NewReaderPool(StrategyRoundRobin)}
	a.handleSetValue(context.Background(), message.ActorMQTT, message.SetValueToPointRequest{
		CommandID:       "cmd-3",
		PointInstanceID: 5,
		ControllerIP:    "10.0.1.50",
	})

	respEnv, ok := senderBox.TryRecv()
	require.True(t, ok)
	resp, ok := respEnv.Payload.(message.CommandResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)

	_, ok = uploaderBox.TryRecv()
	assert.False(t, ok, "no IMMEDIATE_UPLOAD_TRIGGER should be sent on a failed write")
}

func TestHandleMessage_UnhandledTypeLogsAndIgnores(t *testing.T) {
	registry := mailbox.NewRegistry(8, nil)
	a := &WriterActor{Registry: registry}
	assert.NotPanics(t, func() {
		a.handleMessage(context.Background(), message.Envelope{Type: message.TypeDeviceReboot})
	})
}
