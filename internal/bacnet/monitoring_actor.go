package bacnet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/REQUEA/bacnet"
	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/bacnet/health"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// Monitoring status values stored in DeviceStatus.MonitoringStatus,
// mirroring MonitoringStatusEnum.
const (
	MonitoringActive  = "active"
	MonitoringStopped = "stopped"
	MonitoringError   = "error"
)

// Connection status values stored in DeviceStatus.BACnetConnection,
// mirroring ConnectionStatusEnum.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
	ConnectionError        = "error"
)

const pollInterval = 5 * time.Second

// monitorState is the mutable configuration the message-handler goroutine
// writes and the poll-loop goroutine reads, guarded by one mutex — the Go
// equivalent of the Python actor's plain instance attributes shared
// across two asyncio tasks on a single event loop.
type monitorState struct {
	mu                sync.Mutex
	monitoringEnabled bool
	monitorInitialized bool
	controllers       []message.ControllerConfig
}

func (s *monitorState) snapshot() (enabled, initialized bool, controllers []message.ControllerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoringEnabled, s.monitorInitialized, s.controllers
}

// MonitoringActor implements C4: it owns the reader pool, runs the
// periodic poll loop, and answers CONFIG_UPLOAD / START_MONITORING /
// STOP_MONITORING requests. Grounded on
// original_source/.../actors/bacnet_monitoring_actor.py.
type MonitoringActor struct {
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	Pool     *ReaderPool
	Metrics  *telemetry.Metrics
	DeviceID string

	state monitorState
}

func (a *MonitoringActor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorBACnet, Run: a.run}
}

func (a *MonitoringActor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorBACnet)
	if err != nil {
		// Already registered from a previous supervisor restart — reuse it.
		logger.Warn("bacnet monitoring: %v", err)
	}
	if mb == nil {
		return fmt.Errorf("bacnet monitoring: mailbox unavailable")
	}

	status, err := a.DB.GetDeviceStatus(ctx, a.DeviceID)
	if err != nil || status == nil {
		return fmt.Errorf("no monitoring status found for device %s: %w", a.DeviceID, err)
	}
	a.state.mu.Lock()
	a.state.monitoringEnabled = status.MonitoringStatus == MonitoringActive
	a.state.mu.Unlock()

	a.loadFromDatabase(ctx)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		a.handleMessagesLoop(ctx, mb, handle)
	}()
	go func() {
		defer wg.Done()
		errCh <- a.pollLoop(ctx, handle)
	}()

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (a *MonitoringActor) loadFromDatabase(ctx context.Context) {
	readers, err := a.DB.GetReaders(ctx, true)
	if err != nil {
		logger.Warn("bacnet monitoring: failed to load readers from database: %v", err)
		return
	}
	if len(readers) == 0 {
		logger.Info("bacnet monitoring: no saved readers found, waiting for CONFIG_UPLOAD_REQUEST")
		return
	}

	cfgs := make([]message.ReaderConfig, 0, len(readers))
	for _, r := range readers {
		cfgs = append(cfgs, toReaderConfig(r))
	}
	if err := a.Pool.Initialize(cfgs); err != nil {
		logger.Warn("bacnet monitoring: failed to initialize reader pool from database: %v", err)
		return
	}

	a.state.mu.Lock()
	a.state.monitorInitialized = true
	a.state.mu.Unlock()
	logger.Info("bacnet monitoring: initialized %d readers from database", len(cfgs))

	if rec, err := a.DB.GetLatestBACnetConfig(ctx); err == nil && rec != nil {
		var controllers []message.ControllerConfig
		if jsonErr := json.Unmarshal([]byte(rec.ConfigJSON), &controllers); jsonErr == nil {
			a.state.mu.Lock()
			a.state.controllers = controllers
			a.state.mu.Unlock()
		}
	}
}

func toReaderConfig(r database.Reader) message.ReaderConfig {
	cfg := message.ReaderConfig{
		ReaderID:       r.ReaderID,
		BoundIP:        r.BoundIP,
		SubnetMaskBits: r.SubnetMaskBits,
		UDPPort:        r.UDPPort,
		BACnetDeviceID: r.BACnetDeviceID,
		BBMDEnabled:    r.BBMDEnabled,
		IsActive:       r.IsActive,
	}
	if r.BBMDServerIP != nil {
		cfg.BBMDServerIP = *r.BBMDServerIP
	}
	return cfg
}

func (a *MonitoringActor) handleMessagesLoop(ctx context.Context, mb *mailbox.Mailbox, handle *actor.Handle) {
	for {
		env, err := mb.Recv(ctx)
		if err != nil {
			return
		}
		a.handleMessage(ctx, env)
		handle.Heartbeat()
	}
}

func (a *MonitoringActor) handleMessage(ctx context.Context, env message.Envelope) {
	switch env.Type {
	case message.TypeConfigUploadRequest:
		req, ok := env.Payload.(message.ConfigUploadRequest)
		if !ok {
			logger.Warn("bacnet monitoring: CONFIG_UPLOAD_REQUEST with unexpected payload type %T", env.Payload)
			return
		}
		a.handleConfigUpload(ctx, env.Sender, req)
	case message.TypeStartMonitoringRequest:
		req, ok := env.Payload.(message.StartMonitoringRequest)
		if !ok {
			return
		}
		a.setMonitoring(ctx, env.Sender, req.CommandID, true)
	case message.TypeStopMonitoringRequest:
		req, ok := env.Payload.(message.StopMonitoringRequest)
		if !ok {
			return
		}
		a.setMonitoring(ctx, env.Sender, req.CommandID, false)
	default:
		logger.Warn("bacnet monitoring: unhandled message type %s", env.Type)
	}
}

func (a *MonitoringActor) handleConfigUpload(ctx context.Context, sender string, req message.ConfigUploadRequest) {
	a.state.mu.Lock()
	oldEnabled := a.state.monitoringEnabled
	oldInitialized := a.state.monitorInitialized
	a.state.monitoringEnabled = false
	a.state.monitorInitialized = false
	a.state.mu.Unlock()

	success := true
	resultMessage := "configuration applied"

	if len(req.Readers) > 0 {
		for _, rc := range req.Readers {
			dbReader := database.Reader{
				ReaderID:       rc.ReaderID,
				BoundIP:        rc.BoundIP,
				SubnetMaskBits: rc.SubnetMaskBits,
				UDPPort:        rc.UDPPort,
				BACnetDeviceID: rc.BACnetDeviceID,
				BBMDEnabled:    rc.BBMDEnabled,
				IsActive:       rc.IsActive,
			}
			if rc.BBMDServerIP != "" {
				dbReader.BBMDServerIP = &rc.BBMDServerIP
			}
			if err := a.DB.UpsertReader(ctx, &dbReader); err != nil {
				logger.Warn("bacnet monitoring: failed to persist reader %s: %v", rc.ReaderID, err)
			}
		}

		a.Pool.Cleanup()
		if err := a.Pool.Initialize(req.Readers); err != nil {
			success = false
			resultMessage = fmt.Sprintf("failed to initialize readers: %v", err)
			a.restoreState(oldEnabled, oldInitialized)
			a.updateMonitoringStatus(ctx, MonitoringError)
		} else {
			a.state.mu.Lock()
			a.state.monitorInitialized = true
			a.state.controllers = req.Controllers
			if oldEnabled {
				a.state.monitoringEnabled = true
			}
			a.state.mu.Unlock()
		}
	} else {
		logger.Warn("bacnet monitoring: CONFIG_UPLOAD_REQUEST with no readers — monitoring stays disabled")
		a.updateMonitoringStatus(ctx, MonitoringStopped)
	}

	if success {
		if b, err := json.Marshal(req.Controllers); err == nil {
			if err := a.DB.SetBACnetConfig(ctx, string(b)); err != nil {
				logger.Warn("bacnet monitoring: failed to save controller config: %v", err)
			}
		}
	}

	resp := message.ConfigUploadResponse{
		CommandID: req.CommandID,
		Success:   success,
		Message:   resultMessage,
		UploadURL: req.UploadURL,
		JWT:       req.JWT,
	}
	if err := a.Registry.Send(ctx, message.ActorBACnet, message.ActorUploader, message.TypeConfigUploadResponse, resp); err != nil {
		logger.Error("bacnet monitoring: failed to forward CONFIG_UPLOAD_RESPONSE: %v", err)
	}
}

func (a *MonitoringActor) restoreState(enabled, initialized bool) {
	a.state.mu.Lock()
	a.state.monitoringEnabled = enabled
	a.state.monitorInitialized = initialized
	a.state.mu.Unlock()
}

func (a *MonitoringActor) setMonitoring(ctx context.Context, sender, commandID string, enabled bool) {
	a.state.mu.Lock()
	a.state.monitoringEnabled = enabled
	a.state.mu.Unlock()

	status := MonitoringStopped
	respType := message.TypeStopMonitoringResponse
	reason := "monitoring_stopped"
	if enabled {
		status = MonitoringActive
		respType = message.TypeStartMonitoringResponse
		reason = "monitoring_started"
	}
	a.updateMonitoringStatus(ctx, status)

	if err := a.Registry.Send(ctx, message.ActorBACnet, message.ActorHeartbeat, message.TypeForceHeartbeatRequest, message.ForceHeartbeatRequest{Reason: reason}); err != nil {
		logger.Warn("bacnet monitoring: failed to trigger force heartbeat: %v", err)
	}

	resp := message.CommandResponse{CommandID: commandID, Success: true, Message: "monitoring state updated"}
	if err := a.Registry.Send(ctx, message.ActorBACnet, sender, respType, resp); err != nil {
		logger.Error("bacnet monitoring: failed to reply to monitoring control request: %v", err)
	}
}

func (a *MonitoringActor) updateMonitoringStatus(ctx context.Context, status string) {
	if err := a.DB.UpsertDeviceStatus(ctx, &database.DeviceStatus{DeviceID: a.DeviceID, MonitoringStatus: status}); err != nil {
		logger.Error("bacnet monitoring: failed to update monitoring status: %v", err)
	}
}

func (a *MonitoringActor) updateConnectionStatus(ctx context.Context, status string) {
	if err := a.DB.UpsertDeviceStatus(ctx, &database.DeviceStatus{DeviceID: a.DeviceID, BACnetConnection: status}); err != nil {
		logger.Error("bacnet monitoring: failed to update connection status: %v", err)
	}
}

func (a *MonitoringActor) pollLoop(ctx context.Context, handle *actor.Handle) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			enabled, initialized, controllers := a.state.snapshot()
			if !enabled || !initialized {
				continue
			}
			if err := a.monitorAllDevices(ctx, controllers); err != nil {
				logger.Error("bacnet monitoring: poll cycle failed: %v", err)
				a.updateConnectionStatus(ctx, ConnectionError)
				continue
			}
			a.updateConnectionStatus(ctx, ConnectionConnected)
			handle.Heartbeat()
		}
	}
}

// monitorAllDevices polls present_value and the optional health
// properties for every configured point and stages the results.
func (a *MonitoringActor) monitorAllDevices(ctx context.Context, controllers []message.ControllerConfig) error {
	var rows []database.StagingRow

	for _, ctrl := range controllers {
		reader := a.Pool.SelectBySubnet(ctrl.ControllerIP)
		if reader == nil {
			logger.Warn("bacnet monitoring: no reader available for controller %s", ctrl.ControllerIP)
			continue
		}

		release := reader.Acquire()
		device, err := reader.DiscoverDevice(ctx, uint32(ctrl.BACnetDeviceID), 3*time.Second)
		if err != nil {
			release()
			logger.Warn("bacnet monitoring: who-is failed for controller %s: %v", ctrl.ControllerIP, err)
			continue
		}

		for _, obj := range ctrl.Objects {
			row := a.pollOne(ctx, reader, device, ctrl, obj)
			if row != nil {
				rows = append(rows, *row)
			}
		}
		release()
	}

	if len(rows) == 0 {
		return nil
	}
	return a.DB.BulkInsertStagingRows(ctx, rows)
}

func (a *MonitoringActor) pollOne(ctx context.Context, reader *Reader, device bacnet.Device, ctrl message.ControllerConfig, obj message.ObjectConfig) *database.StagingRow {
	objID := ObjectIdentifier{ObjectType: bacnet.ObjectType(objectTypeCode(obj.ObjectType)), Instance: uint32(obj.InstanceID)}

	value, err := reader.ReadPresentValue(ctx, device, objID)
	if err != nil {
		if a.Metrics != nil {
			a.Metrics.RecordReadError()
		}
		logger.Warn("bacnet monitoring: read present_value failed for point %s: %v", obj.PointID, err)
		return nil
	}

	statusFlags := a.readOptionalStatusFlags(ctx, reader, device, objID)

	row := &database.StagingRow{
		ControllerIP:       ctrl.ControllerIP,
		ControllerDeviceID: ctrl.BACnetDeviceID,
		ControllerID:       ctrl.ControllerID,
		PointID:            obj.PointID,
		IoTDevicePointID:   obj.PointID,
		ObjectType:         obj.ObjectType,
		PresentValue:       fmt.Sprintf("%v", value),
		CreatedAt:          time.Now(),
		CreatedAtMillis:    time.Now().UnixMilli(),
		StatusFlags:        statusFlags,
	}

	if a.Metrics != nil {
		a.Metrics.RecordPointsRead(1)
	}
	return row
}

func (a *MonitoringActor) readOptionalStatusFlags(ctx context.Context, reader *Reader, device bacnet.Device, obj ObjectIdentifier) *string {
	raw, err := reader.ReadOptionalProperty(ctx, device, obj, PropStatusFlags)
	if err != nil {
		return nil
	}
	return health.ProcessStatusFlags(raw)
}

// objectTypeCode maps the spec's string object-type names to their
// BACnet standard object-type enumeration values.
func objectTypeCode(objectType string) uint32 {
	switch objectType {
	case "analogInput":
		return 0
	case "analogOutput":
		return 1
	case "analogValue":
		return 2
	case "binaryInput":
		return 3
	case "binaryOutput":
		return 4
	case "binaryValue":
		return 5
	case "multiStateInput":
		return 13
	case "multiStateOutput":
		return 14
	case "multiStateValue":
		return 19
	default:
		return 0
	}
}
