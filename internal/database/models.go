package database

import "time"

// StagingRow is a controller_points record — one polled BACnet value
// awaiting upload (§3.3). ID is 0 until the row is actually inserted; the
// bulk-insert path treats an incoming ID of 0 as "unassigned" and lets
// SQLite allocate it.
type StagingRow struct {
	ID                  int64     `db:"id"`
	ControllerIP        string    `db:"controller_ip"`
	UDPPort             int       `db:"udp_port"`
	ControllerDeviceID  int       `db:"controller_device_id"`
	ControllerID        string    `db:"controller_id"`
	PointID             string    `db:"point_id"`
	IoTDevicePointID    string    `db:"iot_device_point_id"`
	ObjectType          string    `db:"object_type"`
	Units               string    `db:"units"`
	PresentValue        string    `db:"present_value"`
	CreatedAt           time.Time `db:"created_at"`
	CreatedAtMillis     int64     `db:"created_at_millis"`
	StatusFlags         *string   `db:"status_flags"`
	EventState          *string   `db:"event_state"`
	OutOfService        *bool     `db:"out_of_service"`
	Reliability         *string   `db:"reliability"`
	MinPresValue        *string   `db:"min_pres_value"`
	MaxPresValue        *string   `db:"max_pres_value"`
	Resolution          *string   `db:"resolution"`
	COVIncrement        *string   `db:"cov_increment"`
	Deadband            *string   `db:"deadband"`
	PriorityArray       *string   `db:"priority_array"`
	RelinquishDefault   *string   `db:"relinquish_default"`
	TimeDelay           *int      `db:"time_delay"`
	TimeDelayNormal     *int      `db:"time_delay_normal"`
	NotificationClass   *int      `db:"notification_class"`
	NotifyType          *string   `db:"notify_type"`
	HighLimit           *string   `db:"high_limit"`
	LowLimit            *string   `db:"low_limit"`
	LimitEnable         *string   `db:"limit_enable"`
	EventEnable         *string   `db:"event_enable"`
	AckedTransitions    *string   `db:"acked_transitions"`
	EventTransitionBits *string   `db:"event_transition_bits"`
	EventTimeStamps     *string   `db:"event_time_stamps"`
	EventMessageTexts   *string   `db:"event_message_texts"`
	NotificationThresh  *string   `db:"notification_threshold"`
	AlgInhibitRef       *string   `db:"algorithmic_inhibit_ref"`
	AlgInhibit          *bool     `db:"algorithmic_inhibit"`
	EventAlgInhibit     *bool     `db:"event_algorithm_inhibit"`
	EventAlgInhibitRef  *string   `db:"event_algorithm_inhibit_ref"`
	ReliabilityEvalInh  *bool     `db:"reliability_evaluation_inhibit"`
	IsUploaded          bool      `db:"is_uploaded"`
}

// DeviceStatus is one iot_device_status row (§3.4), unique per DeviceID.
type DeviceStatus struct {
	ID               int64      `db:"id"`
	DeviceID         string     `db:"device_id"`
	MonitoringStatus string     `db:"monitoring_status"`
	MQTTConnection   string     `db:"mqtt_connection"`
	BACnetConnection string     `db:"bacnet_connection"`
	CPUPercent       *float64   `db:"cpu_percent"`
	MemoryPercent    *float64   `db:"memory_percent"`
	DiskPercent      *float64   `db:"disk_percent"`
	TemperatureC     *float64   `db:"temperature_c"`
	UptimeSeconds    *int64     `db:"uptime_seconds"`
	LoadAverage1m    *float64   `db:"load_average_1m"`
	ConnectedDevices int        `db:"connected_devices"`
	MonitoredPoints  int        `db:"monitored_points"`
	Payload          *string    `db:"payload"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	ReceivedAt       *time.Time `db:"received_at"`
}

// BACnetConfigRecord is a bacnet_config snapshot (§3.2). SetBACnetConfig
// deletes every older row in the same transaction as the insert, so the
// table holds at most one row.
type BACnetConfigRecord struct {
	ID         int64     `db:"id"`
	ConfigJSON string    `db:"config_json"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Reader is a bacnet_readers row (§3.1).
type Reader struct {
	ReaderID        string     `db:"reader_id"`
	BoundIP         string     `db:"bound_ip"`
	SubnetMaskBits  int        `db:"subnet_mask_bits"`
	UDPPort         int        `db:"udp_port"`
	BACnetDeviceID  int        `db:"bacnet_device_id"`
	BBMDEnabled     bool       `db:"bbmd_enabled"`
	BBMDServerIP    *string    `db:"bbmd_server_ip"`
	IsActive        bool       `db:"is_active"`
	ConnectionState string     `db:"connection_state"`
	LastConnectedAt *time.Time `db:"last_connected_at"`
}

// DeploymentConfig is the deployment_config singleton (§3.5).
type DeploymentConfig struct {
	ID             int64     `db:"id"`
	OrganizationID string    `db:"organization_id"`
	SiteID         string    `db:"site_id"`
	DeviceID       string    `db:"device_id"`
	Metadata       *string   `db:"metadata"`
	CreatedAt      time.Time `db:"created_at"`
}
