// Package database is the staging store (§4.12): the embedded relational
// store that buffers polled BACnet readings between the Monitoring Actor
// and the Uploader, and that holds the device's cached reader/controller
// inventory and deployment identity.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/common/retry"
)

// writeRetry governs every mutating operation in this package per §4.12:
// up to 5 attempts, exponential backoff starting at 50ms, limited to the
// retryable error set in errors.go.
var writeRetry = retry.Config{
	MaxAttempts:  5,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
	Strategy:     retry.StrategyExponential,
	RetryIf:      IsRetryableStorageError,
}

// SQLiteDB is the staging store backed by a single SQLite file.
type SQLiteDB struct {
	db     *sqlx.DB
	config *Config
	pool   *ConnectionPool
}

// NewSQLiteDB builds a store bound to config. The database is not opened
// until Connect is called.
func NewSQLiteDB(config *Config) *SQLiteDB {
	return &SQLiteDB{config: config}
}

// NewSQLiteDBFromPath is a convenience constructor that opens the
// database immediately with default pool settings.
func NewSQLiteDBFromPath(dbPath string) (*SQLiteDB, error) {
	db := NewSQLiteDB(NewConfig(dbPath))
	if err := db.Connect(context.Background(), dbPath); err != nil {
		return nil, err
	}
	return db, nil
}

// Connect opens the database file. It does not create or migrate schema —
// §6.1 requires that to happen only through the explicit migration
// runner, never implicitly at process start.
func (s *SQLiteDB) Connect(ctx context.Context, dbPath string) error {
	if dbPath == "" {
		dbPath = s.config.DatabasePath
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	dsn := absPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	poolConfig := DefaultPoolConfig()
	poolConfig.MaxOpenConns = s.config.MaxOpenConns
	poolConfig.MaxIdleConns = s.config.MaxIdleConns
	poolConfig.ConnMaxLifetime = s.config.MaxLifetime
	s.pool = NewConnectionPool(db.DB, poolConfig)

	logger.Info("staging store connected: %s", absPath)
	return nil
}

// Stats reports connection pool health for the `agent health` command and
// the telemetry readiness endpoint.
func (s *SQLiteDB) Stats() PoolStats {
	return s.pool.GetStats()
}

// Close closes the underlying connection pool.
func (s *SQLiteDB) Close() error {
	if s.pool != nil {
		// pool.Close also closes the *sql.DB sqlx.DB wraps; closing both
		// would double-close, so only the pool is closed here.
		return s.pool.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrator returns a MigrationRunner bound to this connection, for the
// `agent migrate` CLI command.
func (s *SQLiteDB) Migrator() *MigrationRunner {
	return NewMigrationRunner(s.db.DB)
}

// withRetry wraps fn in the staging store's write-retry policy.
func withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	result := retry.Do(ctx, fn, writeRetry)
	if !result.Success {
		return fmt.Errorf("%s: %w", op, result.LastError)
	}
	return nil
}

// BulkInsertStagingRows inserts rows in a single transaction (§4.12).
// An incoming ID of 0 is treated as unassigned and left for SQLite to
// allocate; rows are never re-read afterwards to pick up assigned IDs —
// the caller does not need them, and refreshing would risk a detached-row
// fault if the transaction already committed.
func (s *SQLiteDB) BulkInsertStagingRows(ctx context.Context, rows []StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID < 0 {
			return fmt.Errorf("staging row has negative id %d", rows[i].ID)
		}
	}

	return withRetry(ctx, "bulk insert staging rows", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		const insert = `
			INSERT INTO controller_points (
				controller_ip, udp_port, controller_device_id, controller_id,
				point_id, iot_device_point_id, object_type, units, present_value,
				created_at, created_at_millis, status_flags, event_state,
				out_of_service, reliability, min_pres_value, max_pres_value,
				resolution, cov_increment, deadband, priority_array,
				relinquish_default, time_delay, time_delay_normal,
				notification_class, notify_type, high_limit, low_limit,
				limit_enable, event_enable, acked_transitions,
				event_transition_bits, event_time_stamps, event_message_texts,
				notification_threshold, algorithmic_inhibit_ref, algorithmic_inhibit,
				event_algorithm_inhibit, event_algorithm_inhibit_ref,
				reliability_evaluation_inhibit, is_uploaded
			) VALUES (
				:controller_ip, :udp_port, :controller_device_id, :controller_id,
				:point_id, :iot_device_point_id, :object_type, :units, :present_value,
				:created_at, :created_at_millis, :status_flags, :event_state,
				:out_of_service, :reliability, :min_pres_value, :max_pres_value,
				:resolution, :cov_increment, :deadband, :priority_array,
				:relinquish_default, :time_delay, :time_delay_normal,
				:notification_class, :notify_type, :high_limit, :low_limit,
				:limit_enable, :event_enable, :acked_transitions,
				:event_transition_bits, :event_time_stamps, :event_message_texts,
				:notification_threshold, :algorithmic_inhibit_ref, :algorithmic_inhibit,
				:event_algorithm_inhibit, :event_algorithm_inhibit_ref,
				:reliability_evaluation_inhibit, false
			)
		`
		stmt, err := tx.PrepareNamedContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range rows {
			if rows[i].CreatedAt.IsZero() {
				rows[i].CreatedAt = time.Now().UTC()
			}
			if rows[i].CreatedAtMillis == 0 {
				rows[i].CreatedAtMillis = rows[i].CreatedAt.UnixMilli()
			}
			if _, err := stmt.ExecContext(ctx, rows[i]); err != nil {
				return fmt.Errorf("insert staging row %d: %w", i, err)
			}
		}

		return tx.Commit()
	})
}

// MarkUploaded flips is_uploaded false→true for the given ids in a single
// statement (§4.12). An empty id list is a no-op. Uses explicit equality
// against 0/1, never the Python is-True/is-False style predicate that
// compiles to an IS NULL check against a SQL backend.
func (s *SQLiteDB) MarkUploaded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return withRetry(ctx, "mark uploaded", func(ctx context.Context) error {
		query, args, err := sqlx.In(`UPDATE controller_points SET is_uploaded = 1 WHERE id IN (?) AND is_uploaded = 0`, ids)
		if err != nil {
			return err
		}
		query = s.db.Rebind(query)
		_, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// GetPointsToUpload returns up to limit rows with is_uploaded = 0,
// oldest first, for the Uploader's drain cycle.
func (s *SQLiteDB) GetPointsToUpload(ctx context.Context, limit int) ([]StagingRow, error) {
	var rows []StagingRow
	const query = `
		SELECT * FROM controller_points
		WHERE is_uploaded = 0
		ORDER BY created_at ASC
		LIMIT ?
	`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("get points to upload: %w", err)
	}
	return rows, nil
}

// DeleteUploadedPoints removes rows with is_uploaded = 1 older than
// cutoff (the Cleaner's periodic sweep). It never touches is_uploaded = 0
// rows — I1 forbids deleting a row before it has been published.
func (s *SQLiteDB) DeleteUploadedPoints(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := withRetry(ctx, "delete uploaded points", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM controller_points WHERE is_uploaded = 1 AND created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// UpsertDeviceStatus writes the single status row for status.DeviceID.
// Mirrors the source's insert-then-update-on-conflict technique (§5:
// "Upsert handles unique-constraint races by update-after-insert-fail")
// rather than SQLite's native ON CONFLICT clause, so two concurrent
// writers racing to create the row both converge correctly.
func (s *SQLiteDB) UpsertDeviceStatus(ctx context.Context, status *DeviceStatus) error {
	now := time.Now().UTC()
	status.UpdatedAt = now
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}

	return withRetry(ctx, "upsert device status", func(ctx context.Context) error {
		const insert = `
			INSERT INTO iot_device_status (
				device_id, monitoring_status, mqtt_connection, bacnet_connection,
				cpu_percent, memory_percent, disk_percent, temperature_c,
				uptime_seconds, load_average_1m, connected_devices, monitored_points,
				payload, created_at, updated_at, received_at
			) VALUES (
				:device_id, :monitoring_status, :mqtt_connection, :bacnet_connection,
				:cpu_percent, :memory_percent, :disk_percent, :temperature_c,
				:uptime_seconds, :load_average_1m, :connected_devices, :monitored_points,
				:payload, :created_at, :updated_at, :received_at
			)
		`
		_, err := s.db.NamedExecContext(ctx, insert, status)
		if err == nil {
			return nil
		}
		if !isUniqueConstraintError(err) {
			return err
		}

		const update = `
			UPDATE iot_device_status SET
				monitoring_status = :monitoring_status,
				mqtt_connection = :mqtt_connection,
				bacnet_connection = :bacnet_connection,
				cpu_percent = :cpu_percent,
				memory_percent = :memory_percent,
				disk_percent = :disk_percent,
				temperature_c = :temperature_c,
				uptime_seconds = :uptime_seconds,
				load_average_1m = :load_average_1m,
				connected_devices = :connected_devices,
				monitored_points = :monitored_points,
				payload = :payload,
				updated_at = :updated_at,
				received_at = :received_at
			WHERE device_id = :device_id
		`
		_, err = s.db.NamedExecContext(ctx, update, status)
		return err
	})
}

// GetDeviceStatus fetches the current snapshot for deviceID.
func (s *SQLiteDB) GetDeviceStatus(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	var status DeviceStatus
	err := s.db.GetContext(ctx, &status, `SELECT * FROM iot_device_status WHERE device_id = ?`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device status: %w", err)
	}
	return &status, nil
}

// SetBACnetConfig overwrites the cached controller inventory atomically
// (§3.2: "only the most recent snapshot is retained; older ones are
// overwritten atomically").
func (s *SQLiteDB) SetBACnetConfig(ctx context.Context, configJSON string) error {
	return withRetry(ctx, "set bacnet config", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM bacnet_config`); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bacnet_config (config_json, created_at, updated_at) VALUES (?, ?, ?)`,
			configJSON, now, now); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetLatestBACnetConfig returns the most recently written config, if any.
func (s *SQLiteDB) GetLatestBACnetConfig(ctx context.Context) (*BACnetConfigRecord, error) {
	var rec BACnetConfigRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM bacnet_config ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest bacnet config: %w", err)
	}
	return &rec, nil
}

// UpsertReader creates or replaces a reader row keyed by ReaderID (§3.1).
func (s *SQLiteDB) UpsertReader(ctx context.Context, r *Reader) error {
	return withRetry(ctx, "upsert reader", func(ctx context.Context) error {
		const query = `
			INSERT INTO bacnet_readers (
				reader_id, bound_ip, subnet_mask_bits, udp_port, bacnet_device_id,
				bbmd_enabled, bbmd_server_ip, is_active, connection_state, last_connected_at
			) VALUES (
				:reader_id, :bound_ip, :subnet_mask_bits, :udp_port, :bacnet_device_id,
				:bbmd_enabled, :bbmd_server_ip, :is_active, :connection_state, :last_connected_at
			)
			ON CONFLICT(reader_id) DO UPDATE SET
				bound_ip = excluded.bound_ip,
				subnet_mask_bits = excluded.subnet_mask_bits,
				udp_port = excluded.udp_port,
				bacnet_device_id = excluded.bacnet_device_id,
				bbmd_enabled = excluded.bbmd_enabled,
				bbmd_server_ip = excluded.bbmd_server_ip,
				is_active = excluded.is_active,
				connection_state = excluded.connection_state,
				last_connected_at = excluded.last_connected_at
		`
		_, err := s.db.NamedExecContext(ctx, query, r)
		return err
	})
}

// GetReaders lists readers, optionally restricted to is_active = 1 using
// explicit equality — never the is-True-style predicate the source gets
// wrong elsewhere.
func (s *SQLiteDB) GetReaders(ctx context.Context, activeOnly bool) ([]Reader, error) {
	var readers []Reader
	query := `SELECT * FROM bacnet_readers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	if err := s.db.SelectContext(ctx, &readers, query); err != nil {
		return nil, fmt.Errorf("get readers: %w", err)
	}
	return readers, nil
}

// GetReader fetches one reader by id.
func (s *SQLiteDB) GetReader(ctx context.Context, readerID string) (*Reader, error) {
	var r Reader
	err := s.db.GetContext(ctx, &r, `SELECT * FROM bacnet_readers WHERE reader_id = ?`, readerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reader: %w", err)
	}
	return &r, nil
}

// SetDeploymentConfig replaces the deployment_config singleton (§3.5,
// I5): the old row, if any, is deleted and the new one inserted in the
// same transaction, so the table never transiently holds zero or two
// rows from another reader's point of view once the call returns.
func (s *SQLiteDB) SetDeploymentConfig(ctx context.Context, cfg *DeploymentConfig) error {
	if !strings.HasPrefix(cfg.OrganizationID, "org_") {
		return fmt.Errorf("organization_id must have the org_ prefix, got %q", cfg.OrganizationID)
	}

	return withRetry(ctx, "set deployment config", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM deployment_config`); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deployment_config (organization_id, site_id, device_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			cfg.OrganizationID, cfg.SiteID, cfg.DeviceID, cfg.Metadata, now); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetDeploymentConfig returns the single deployment_config row.
func (s *SQLiteDB) GetDeploymentConfig(ctx context.Context) (*DeploymentConfig, error) {
	var cfg DeploymentConfig
	err := s.db.GetContext(ctx, &cfg, `SELECT * FROM deployment_config LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment config: %w", err)
	}
	return &cfg, nil
}

// Query executes a read-only query. Non-SELECT statements are rejected —
// ad-hoc writes must go through the typed operations above so the
// retry/transaction discipline in §4.12 can't be bypassed.
func (s *SQLiteDB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !strings.HasPrefix(strings.TrimSpace(strings.ToUpper(query)), "SELECT") {
		return nil, ErrInvalidQuery
	}
	return s.db.QueryContext(ctx, query, args...)
}

func isUniqueConstraintError(err error) bool {
	return contains(strings.ToLower(err.Error()), "unique constraint")
}
