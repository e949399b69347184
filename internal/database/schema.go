package database

// embeddedMigrations is the agent's full schema history. The agent never
// creates or alters these tables implicitly (§6.1) — schema changes ship
// as a new entry here and are applied by the `agent migrate` command.
var embeddedMigrations = []Migration{
	{
		Version: "001",
		Name:    "initial_schema",
		UpSQL: `
			CREATE TABLE controller_points (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				controller_ip TEXT NOT NULL,
				udp_port INTEGER NOT NULL,
				controller_device_id INTEGER NOT NULL,
				controller_id TEXT NOT NULL,
				point_id TEXT NOT NULL,
				iot_device_point_id TEXT NOT NULL,
				object_type TEXT NOT NULL,
				units TEXT,
				present_value TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				created_at_millis INTEGER NOT NULL,
				status_flags TEXT,
				event_state TEXT,
				out_of_service INTEGER,
				reliability TEXT,
				min_pres_value TEXT,
				max_pres_value TEXT,
				resolution TEXT,
				cov_increment TEXT,
				deadband TEXT,
				priority_array TEXT,
				relinquish_default TEXT,
				time_delay INTEGER,
				time_delay_normal INTEGER,
				notification_class INTEGER,
				notify_type TEXT,
				high_limit TEXT,
				low_limit TEXT,
				limit_enable TEXT,
				event_enable TEXT,
				acked_transitions TEXT,
				event_transition_bits TEXT,
				event_time_stamps TEXT,
				event_message_texts TEXT,
				notification_threshold TEXT,
				algorithmic_inhibit_ref TEXT,
				algorithmic_inhibit INTEGER,
				event_algorithm_inhibit INTEGER,
				event_algorithm_inhibit_ref TEXT,
				reliability_evaluation_inhibit INTEGER,
				is_uploaded INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX idx_controller_points_upload ON controller_points(is_uploaded, created_at);
			CREATE INDEX idx_controller_points_millis ON controller_points(created_at_millis);

			CREATE TABLE iot_device_status (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				device_id TEXT NOT NULL,
				monitoring_status TEXT NOT NULL DEFAULT 'stopped',
				mqtt_connection TEXT NOT NULL DEFAULT 'disconnected',
				bacnet_connection TEXT NOT NULL DEFAULT 'disconnected',
				cpu_percent REAL,
				memory_percent REAL,
				disk_percent REAL,
				temperature_c REAL,
				uptime_seconds INTEGER,
				load_average_1m REAL,
				connected_devices INTEGER NOT NULL DEFAULT 0,
				monitored_points INTEGER NOT NULL DEFAULT 0,
				payload TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				received_at TIMESTAMP
			);
			CREATE UNIQUE INDEX idx_iot_device_status_device ON iot_device_status(device_id);

			CREATE TABLE bacnet_config (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				config_json TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE bacnet_readers (
				reader_id TEXT PRIMARY KEY,
				bound_ip TEXT NOT NULL,
				subnet_mask_bits INTEGER NOT NULL,
				udp_port INTEGER NOT NULL DEFAULT 47808,
				bacnet_device_id INTEGER NOT NULL,
				bbmd_enabled INTEGER NOT NULL DEFAULT 0,
				bbmd_server_ip TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				connection_state TEXT NOT NULL DEFAULT 'disconnected',
				last_connected_at TIMESTAMP
			);
			CREATE INDEX idx_bacnet_readers_device ON bacnet_readers(bacnet_device_id);

			CREATE TABLE deployment_config (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				organization_id TEXT NOT NULL,
				site_id TEXT NOT NULL,
				device_id TEXT NOT NULL,
				metadata TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS deployment_config;
			DROP TABLE IF EXISTS bacnet_readers;
			DROP TABLE IF EXISTS bacnet_config;
			DROP TABLE IF EXISTS iot_device_status;
			DROP TABLE IF EXISTS controller_points;
		`,
	},
}
