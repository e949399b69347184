package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

// heartbeatInterval matches the Python actor's 30-second cadence.
const heartbeatInterval = 30 * time.Second

// connectionError is reported in HEARTBEAT_STATUS when the latest
// status snapshot can't be read, mirroring HeartbeatController's
// minimal-heartbeat-on-error fallback.
const connectionError = "error"

// Actor composes the latest device status snapshot into a
// HEARTBEAT_STATUS message for the MQTT actor, either on the fixed
// interval or immediately on FORCE_HEARTBEAT_REQUEST. Grounded on
// original_source/.../actors/heartbeat_actor.py and
// .../controllers/heartbeat_controller/heartbeat.py.
type Actor struct {
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	DeviceID string
}

func (a *Actor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorHeartbeat, Run: a.run}
}

func (a *Actor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorHeartbeat)
	if err != nil {
		logger.Warn("heartbeat: %v", err)
	}
	if mb == nil {
		return fmt.Errorf("heartbeat: mailbox unavailable")
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sendHeartbeat(ctx, "")
			handle.Heartbeat()
			continue
		default:
		}

		env, ok := mb.TryRecv()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.sendHeartbeat(ctx, "")
				handle.Heartbeat()
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		a.handleMessage(ctx, env)
		handle.Heartbeat()
	}
}

func (a *Actor) handleMessage(ctx context.Context, env message.Envelope) {
	if env.Type != message.TypeForceHeartbeatRequest {
		logger.Warn("heartbeat: unhandled message type %s", env.Type)
		return
	}
	req, ok := env.Payload.(message.ForceHeartbeatRequest)
	if !ok {
		logger.Warn("heartbeat: FORCE_HEARTBEAT_REQUEST with unexpected payload type %T", env.Payload)
		return
	}
	logger.Info("heartbeat: force heartbeat requested, reason=%s", req.Reason)
	a.sendHeartbeat(ctx, req.Reason)
}

// sendHeartbeat collects the current status payload and forwards it to
// the MQTT actor. reason is empty for the periodic tick, non-empty for
// a forced heartbeat — it is only used in logging.
func (a *Actor) sendHeartbeat(ctx context.Context, reason string) {
	payload := a.collectHeartbeatData(ctx)

	if err := a.Registry.Send(ctx, message.ActorHeartbeat, message.ActorMQTT, message.TypeHeartbeatStatus, payload); err != nil {
		logger.Error("heartbeat: failed to send heartbeat: %v", err)
		return
	}

	if reason != "" {
		logger.Info("heartbeat: force heartbeat completed for reason: %s", reason)
	} else {
		logger.Info("heartbeat: sent heartbeat for device %s", a.DeviceID)
	}
}

// collectHeartbeatData reads the latest cached status from the local
// database. On read failure it falls back to a minimal payload with
// both connection fields marked as errored, same as
// HeartbeatController.collect_heartbeat_data's except branch.
func (a *Actor) collectHeartbeatData(ctx context.Context) message.HeartbeatStatus {
	status, err := a.DB.GetDeviceStatus(ctx, a.DeviceID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Warn("heartbeat: no status record found for device %s", a.DeviceID)
		return message.HeartbeatStatus{DeviceID: a.DeviceID}
	}
	if err != nil {
		logger.Error("heartbeat: failed to read device status for %s: %v", a.DeviceID, err)
		return message.HeartbeatStatus{
			DeviceID:         a.DeviceID,
			MQTTConnection:   connectionError,
			BACnetConnection: connectionError,
		}
	}

	return message.HeartbeatStatus{
		DeviceID:         a.DeviceID,
		MonitoringStatus: status.MonitoringStatus,
		MQTTConnection:   status.MQTTConnection,
		BACnetConnection: status.BACnetConnection,
		CPUPercent:       derefFloat(status.CPUPercent),
		MemoryPercent:    derefFloat(status.MemoryPercent),
		DiskPercent:      derefFloat(status.DiskPercent),
		TemperatureC:     status.TemperatureC,
		UptimeSeconds:    derefInt(status.UptimeSeconds),
		LoadAverage1m:    derefFloat(status.LoadAverage1m),
		ConnectedDevices: status.ConnectedDevices,
		MonitoredPoints:  status.MonitoredPoints,
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
