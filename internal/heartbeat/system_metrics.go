// Package heartbeat implements C8: the System Metrics actor, which
// samples host resource usage on a fixed interval and caches it in the
// device status snapshot, and the Heartbeat actor, which composes that
// snapshot into a HEARTBEAT_STATUS message for the control plane.
// Grounded on
// original_source/apps/bms-iot-app/src/actors/system_metrics_actor.go
// and .../actors/heartbeat_actor.py, with the gopsutil wiring itself
// grounded on arx-os-arxos/arx-backend/services/metrics.go.
package heartbeat

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

// metricsInterval matches the Python actor's 30-second collection_interval.
const metricsInterval = 30 * time.Second

// SystemMetricsActor samples CPU, memory, disk, uptime, load average and
// (where available) temperature and upserts them into the device status
// snapshot the Heartbeat actor later reads from. It registers a mailbox
// purely to participate in supervision — the Python actor's own
// _handle_message never expects a message type it can act on either.
type SystemMetricsActor struct {
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	DeviceID string
}

func (a *SystemMetricsActor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorSysMetrics, Run: a.run}
}

func (a *SystemMetricsActor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorSysMetrics)
	if err != nil {
		logger.Warn("system metrics: %v", err)
	}

	logger.Info("system metrics: starting collection for device %s", a.DeviceID)

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	a.collectAndStore(ctx)
	handle.Heartbeat()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.collectAndStore(ctx)
			handle.Heartbeat()
			continue
		default:
		}

		if mb != nil {
			if env, ok := mb.TryRecv(); ok {
				logger.Warn("system metrics: unhandled message type %s from %s", env.Type, env.Sender)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.collectAndStore(ctx)
			handle.Heartbeat()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (a *SystemMetricsActor) collectAndStore(ctx context.Context) {
	snapshot := collectSystemMetrics(ctx)

	if err := a.DB.UpsertDeviceStatus(ctx, &database.DeviceStatus{
		DeviceID:      a.DeviceID,
		CPUPercent:    snapshot.cpuPercent,
		MemoryPercent: snapshot.memoryPercent,
		DiskPercent:   snapshot.diskPercent,
		TemperatureC:  snapshot.temperatureC,
		UptimeSeconds: snapshot.uptimeSeconds,
		LoadAverage1m: snapshot.loadAverage1m,
	}); err != nil {
		logger.Error("system metrics: failed to store snapshot for %s: %v", a.DeviceID, err)
		return
	}
	logger.Debug("system metrics: updated snapshot for device %s", a.DeviceID)
}

type systemSnapshot struct {
	cpuPercent    *float64
	memoryPercent *float64
	diskPercent   *float64
	temperatureC  *float64
	uptimeSeconds *int64
	loadAverage1m *float64
}

// collectSystemMetrics mirrors _collect_system_metrics: every field is
// collected independently, and a failure collecting one never blocks
// the others — it's simply left nil, same as the Python dict leaving
// the key unset or None.
func collectSystemMetrics(ctx context.Context) systemSnapshot {
	var snap systemSnapshot

	if pct, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(pct) > 0 {
		snap.cpuPercent = &pct[0]
	} else if err != nil {
		logger.Warn("system metrics: cpu.Percent failed: %v", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.memoryPercent = &vm.UsedPercent
	} else {
		logger.Warn("system metrics: mem.VirtualMemory failed: %v", err)
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		snap.diskPercent = &du.UsedPercent
	} else {
		logger.Warn("system metrics: disk.Usage failed: %v", err)
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		seconds := int64(uptime)
		snap.uptimeSeconds = &seconds
	} else {
		logger.Warn("system metrics: host.Uptime failed: %v", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.loadAverage1m = &avg.Load1
	} else {
		// Not available on all platforms (notably Windows) — left nil,
		// same as the Python fallback to None.
		logger.Debug("system metrics: load average unavailable: %v", err)
	}

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				temp := t.Temperature
				snap.temperatureC = &temp
				break
			}
		}
	} else {
		logger.Debug("system metrics: temperature sensors unavailable: %v", err)
	}

	return snap
}
