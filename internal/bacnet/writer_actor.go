package bacnet

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// writePriority is the BACnet write priority used for manual operator
// writes (8 — "manual operator"; 1 would be life safety).
const writePriority = 8

// WriterActor implements C5: it resolves a point from the latest BACnet
// config, writes present_value through the owning reader at
// writePriority, reads the value back to confirm, and stages the
// resulting row for upload. Grounded on
// original_source/.../actors/bacnet_writer_actor.py and
// .../controllers/bacnet_writer/writer.py.
type WriterActor struct {
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	Pool     *ReaderPool
	Metrics  *telemetry.Metrics
}

func (a *WriterActor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorBACnetWrite, Run: a.run}
}

func (a *WriterActor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorBACnetWrite)
	if err != nil {
		logger.Warn("bacnet writer: %v", err)
	}
	if mb == nil {
		return fmt.Errorf("bacnet writer: mailbox unavailable")
	}

	for {
		env, err := mb.Recv(ctx)
		if err != nil {
			return nil
		}
		a.handleMessage(ctx, env)
		handle.Heartbeat()
	}
}

func (a *WriterActor) handleMessage(ctx context.Context, env message.Envelope) {
	if env.Type != message.TypeSetValueToPointRequest {
		logger.Warn("bacnet writer: unhandled message type %s", env.Type)
		return
	}
	req, ok := env.Payload.(message.SetValueToPointRequest)
	if !ok {
		logger.Warn("bacnet writer: SET_VALUE_TO_POINT_REQUEST with unexpected payload type %T", env.Payload)
		return
	}
	a.handleSetValue(ctx, env.Sender, req)
}

func (a *WriterActor) handleSetValue(ctx context.Context, sender string, req message.SetValueToPointRequest) {
	resp, row := a.writeValueToPoint(ctx, req)

	if err := a.Registry.Send(ctx, message.ActorBACnetWrite, sender, message.TypeSetValueToPointResponse, resp); err != nil {
		logger.Error("bacnet writer: failed to reply to SET_VALUE_TO_POINT_REQUEST: %v", err)
	}

	if resp.Success && row != nil {
		if err := a.DB.BulkInsertStagingRows(ctx, []database.StagingRow{*row}); err != nil {
			logger.Error("bacnet writer: failed to stage manual write: %v", err)
			return
		}
		if err := a.Registry.Send(ctx, message.ActorBACnetWrite, message.ActorUploader, message.TypeImmediateUploadTrigger, message.ImmediateUploadTrigger{Reason: "manual_write"}); err != nil {
			logger.Warn("bacnet writer: failed to trigger immediate upload: %v", err)
		}
	} else if !resp.Success {
		logger.Error("bacnet writer: failed to handle request for point %d: %s", req.PointInstanceID, resp.Message)
	}
}

func (a *WriterActor) writeValueToPoint(ctx context.Context, req message.SetValueToPointRequest) (message.CommandResponse, *database.StagingRow) {
	fail := func(reason string) message.CommandResponse {
		return message.CommandResponse{CommandID: req.CommandID, Success: false, Message: reason}
	}

	if req.PointInstanceID < 0 {
		return fail(fmt.Sprintf("invalid point instance id %d: must not be negative", req.PointInstanceID)), nil
	}

	reader := a.Pool.SelectBySubnet(req.ControllerIP)
	if reader == nil {
		return fail(fmt.Sprintf("no BACnet reader available to reach controller %s", req.ControllerIP)), nil
	}

	obj := ObjectIdentifier{Instance: uint32(req.PointInstanceID)}
	pointID := strconv.Itoa(req.PointInstanceID)

	release := reader.Acquire()
	defer release()

	device, err := reader.DiscoverDevice(ctx, uint32(0), 3*time.Second)
	if err != nil {
		return fail(fmt.Sprintf("failed to locate controller %s: %v", req.ControllerIP, err)), nil
	}

	written, err := reader.WriteWithPriority(ctx, device, obj, req.Value, writePriority)
	if err != nil {
		if a.Metrics != nil {
			a.Metrics.RecordWriteError()
		}
		return fail(fmt.Sprintf("write failed: %v", err)), nil
	}

	row := &database.StagingRow{
		ControllerIP:     req.ControllerIP,
		ControllerID:     req.ControllerID,
		PointID:          pointID,
		IoTDevicePointID: pointID,
		PresentValue:     fmt.Sprintf("%v", written),
		CreatedAt:        time.Now(),
		CreatedAtMillis:  time.Now().UnixMilli(),
	}

	return message.CommandResponse{
		CommandID: req.CommandID,
		Success:   true,
		Message:   fmt.Sprintf("successfully wrote value %v to point %d", written, req.PointInstanceID),
	}, row
}
