// Package message defines the closed set of typed envelopes exchanged
// between actors through the mailbox registry.
package message

// Type discriminates the payload carried by an Envelope.
type Type string

const (
	TypeConfigUploadRequest     Type = "CONFIG_UPLOAD_REQUEST"
	TypeConfigUploadResponse    Type = "CONFIG_UPLOAD_RESPONSE"
	TypeStartMonitoringRequest  Type = "START_MONITORING_REQUEST"
	TypeStartMonitoringResponse Type = "START_MONITORING_RESPONSE"
	TypeStopMonitoringRequest   Type = "STOP_MONITORING_REQUEST"
	TypeStopMonitoringResponse  Type = "STOP_MONITORING_RESPONSE"
	TypePointPublishRequest     Type = "POINT_PUBLISH_REQUEST"
	TypePointPublishResponse    Type = "POINT_PUBLISH_RESPONSE"
	TypeSetValueToPointRequest  Type = "SET_VALUE_TO_POINT_REQUEST"
	TypeSetValueToPointResponse Type = "SET_VALUE_TO_POINT_RESPONSE"
	TypeImmediateUploadTrigger  Type = "IMMEDIATE_UPLOAD_TRIGGER"
	TypeHeartbeatStatus         Type = "HEARTBEAT_STATUS"
	TypeForceHeartbeatRequest   Type = "FORCE_HEARTBEAT_REQUEST"
	TypeDeviceReboot            Type = "DEVICE_REBOOT"
)

// Well-known actor names used as mailbox registry keys.
const (
	ActorMQTT        = "mqtt"
	ActorBACnet      = "bacnet_monitoring"
	ActorBACnetWrite = "bacnet_writer"
	ActorUploader    = "uploader"
	ActorCleaner     = "cleaner"
	ActorHeartbeat   = "heartbeat"
	ActorSysMetrics  = "system_metrics"
	ActorSupervisor  = "supervisor"
)

// Envelope is the wire shape of every inter-actor message. Payload is one
// of the typed structs below; the Type field is the discriminator.
type Envelope struct {
	Sender   string
	Receiver string
	Type     Type
	Payload  any
}

// ConfigUploadRequest carries a full reconfiguration: new reader set and/or
// controller inventory, plus the cloud upload destination for the
// resulting CONFIG_UPLOAD_RESPONSE.
type ConfigUploadRequest struct {
	CommandID    string
	UploadURL    string
	JWT          string
	Readers      []ReaderConfig
	Controllers  []ControllerConfig
}

// ConfigUploadResponse echoes the request outcome.
type ConfigUploadResponse struct {
	CommandID string
	Success   bool
	Message   string
	UploadURL string
	JWT       string
}

// ReaderConfig is the wire shape of a bacnet_readers row (§3.1).
type ReaderConfig struct {
	ReaderID       string
	BoundIP        string
	SubnetMaskBits int
	UDPPort        int
	BACnetDeviceID int
	BBMDEnabled    bool
	BBMDServerIP   string
	IsActive       bool
}

// ControllerConfig is the wire shape of a discovered/declared BACnet
// controller (§3.2).
type ControllerConfig struct {
	ControllerID   string
	ControllerIP   string
	BACnetDeviceID int
	VendorID       int
	Objects        []ObjectConfig
}

// ObjectConfig is one BACnet object on a controller.
type ObjectConfig struct {
	ObjectType string
	InstanceID int
	PointID    string
}

// StartMonitoringRequest / StopMonitoringRequest carry only a command id;
// the actor name in Envelope.Receiver selects the target.
type StartMonitoringRequest struct{ CommandID string }
type StopMonitoringRequest struct{ CommandID string }

// CommandResponse is the shared shape of every *_RESPONSE that is not
// itself a config/publish/write response.
type CommandResponse struct {
	CommandID string
	Success   bool
	Message   string
}

// PointPublishRequest carries a batch of staging rows awaiting broker ack.
type PointPublishRequest struct {
	Rows []StagingRow
}

// PointPublishResponse echoes the rows now acknowledged by the broker.
type PointPublishResponse struct {
	RowIDs []int64
}

// StagingRow is the wire shape of a controller_points row (§3.3). Mirrors
// store.StagingRow but kept separate so the message catalog does not
// import the storage package.
type StagingRow struct {
	ID                  int64
	ControllerIP        string
	UDPPort             int
	ControllerDeviceID  int
	ControllerID        string
	PointID             string
	IoTDevicePointID    string
	ObjectType          string
	Units               string
	PresentValue        string
	CreatedAtMillis     int64
	StatusFlags         *string
	EventState          *string
	OutOfService        *bool
	Reliability         *string
}

// SetValueToPointRequest is a point-write command.
type SetValueToPointRequest struct {
	CommandID        string
	ControllerID     string
	PointInstanceID  int
	ControllerIP     string
	Value            string
}

// SetValueToPointResponse acknowledges a point-write command.
type SetValueToPointResponse = CommandResponse

// ImmediateUploadTrigger asks the Uploader to run one drain cycle now.
type ImmediateUploadTrigger struct{ Reason string }

// HeartbeatStatus is the full device snapshot published every cycle.
type HeartbeatStatus struct {
	DeviceID          string
	MonitoringStatus  string
	MQTTConnection    string
	BACnetConnection  string
	CPUPercent        float64
	MemoryPercent     float64
	DiskPercent       float64
	TemperatureC      *float64
	UptimeSeconds     int64
	LoadAverage1m     float64
	ConnectedDevices  int
	MonitoredPoints   int
}

// ForceHeartbeatRequest asks the Heartbeat actor to emit immediately.
type ForceHeartbeatRequest struct{ Reason string }

// DeviceReboot asks the supervisor to restart the process.
type DeviceReboot struct{ DeviceID string }
