package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbms-io/bms-edge-agent/internal/message"
)

func TestRegister_DuplicateNameFails(t *testing.T) {
	r := NewRegistry(4, nil)
	_, err := r.Register("mqtt")
	require.NoError(t, err)

	_, err = r.Register("mqtt")
	assert.ErrorAs(t, err, &AlreadyRegisteredError{})
}

func TestSend_UnknownRecipientFails(t *testing.T) {
	r := NewRegistry(4, nil)
	err := r.Send(context.Background(), "mqtt", "ghost", message.TypeHeartbeatStatus, nil)
	assert.ErrorAs(t, err, &UnknownRecipientError{})
}

func TestSend_PreservesFIFOOrder(t *testing.T) {
	r := NewRegistry(8, nil)
	mb, err := r.Register("uploader")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Send(ctx, "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "first"}))
	require.NoError(t, r.Send(ctx, "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "second"}))
	require.NoError(t, r.Send(ctx, "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "third"}))

	var got []string
	for i := 0; i < 3; i++ {
		env, err := mb.Recv(ctx)
		require.NoError(t, err)
		trigger, ok := env.Payload.(message.ImmediateUploadTrigger)
		require.True(t, ok)
		got = append(got, trigger.Reason)
	}

	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestSend_BlocksOnFullMailboxUntilContextCancelled(t *testing.T) {
	r := NewRegistry(1, nil)
	_, err := r.Register("uploader")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Send(ctx, "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "fills buffer"}))

	deadlineCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = r.Send(deadlineCtx, "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcast_SkipsSenderAndExcluded(t *testing.T) {
	r := NewRegistry(4, nil)
	mqttBox, err := r.Register(message.ActorMQTT)
	require.NoError(t, err)
	_, err = r.Register(message.ActorCleaner)
	require.NoError(t, err)
	senderBox, err := r.Register("bacnet_monitoring")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Broadcast(ctx, "bacnet_monitoring", message.TypeHeartbeatStatus, message.HeartbeatStatus{DeviceID: "dev-1"}, message.ActorCleaner))

	env, ok := mqttBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.ActorMQTT, env.Receiver)

	_, ok = senderBox.TryRecv()
	assert.False(t, ok, "sender should never receive its own broadcast")
}

func TestIsReady_FalseUntilAnActorRegisters(t *testing.T) {
	r := NewRegistry(4, nil)
	assert.False(t, r.IsReady())

	_, err := r.Register("mqtt")
	require.NoError(t, err)
	assert.True(t, r.IsReady())
}

func TestDepth_TracksQueuedMessages(t *testing.T) {
	r := NewRegistry(4, nil)
	mb, err := r.Register("uploader")
	require.NoError(t, err)

	assert.Equal(t, 0, mb.Depth())
	require.NoError(t, r.Send(context.Background(), "cleaner", "uploader", message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{}))
	assert.Equal(t, 1, mb.Depth())
}
