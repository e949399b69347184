package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/bacnet"
	"github.com/openbms-io/bms-edge-agent/internal/cleaner"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/config"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/heartbeat"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/mqtt"
	"github.com/openbms-io/bms-edge-agent/internal/store"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
	"github.com/openbms-io/bms-edge-agent/internal/uploader"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the supervisor and all actors (default)",
	Long:  "Starts the staging store, mailbox registry, BACnet/MQTT/uploader/cleaner/heartbeat actors, and the supervisor that keeps them alive.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAgent(); err != nil {
			logger.Error("agent exited: %v", err)
			os.Exit(1)
		}
	},
}

func runAgent() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewSQLiteDBFromPath(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	deployment, err := loadDeploymentConfig(ctx, db)
	if err != nil {
		// Kind-5 configuration error: fatal, aborts startup (§7).
		return err
	}

	if err := initializeDeviceStatus(ctx, db, deployment.DeviceID); err != nil {
		logger.Warn("failed to initialize device status: %v", err)
	}

	mqttCfg, err := config.LoadMQTT(cfg.MQTTConfigPath)
	if err != nil {
		return fmt.Errorf("load mqtt config: %w", err)
	}

	metrics := telemetry.NewMetrics()
	registry := mailbox.NewRegistry(cfg.MailboxCapacity, metrics)
	pool := bacnet.NewReaderPool(bacnet.StrategyRoundRobin)
	defer pool.Cleanup()

	monitoring := &bacnet.MonitoringActor{
		Registry: registry,
		DB:       db,
		Pool:     pool,
		Metrics:  metrics,
		DeviceID: deployment.DeviceID,
	}
	writer := &bacnet.WriterActor{Registry: registry, DB: db, Pool: pool, Metrics: metrics}
	mqttActor := &mqtt.Actor{
		Config: mqtt.Config{
			BrokerURL: mqttCfg.BrokerURL,
			Username:  mqttCfg.Username,
			Password:  mqttCfg.Password,
			DeviceID:  deployment.DeviceID,
			ClientID:  mqttCfg.ClientID,
		},
		Registry: registry,
		DB:       db,
		Metrics:  metrics,
	}
	uploaderActor := &uploader.Actor{Registry: registry, DB: db, Metrics: metrics}
	cleanerActor := &cleaner.Actor{Registry: registry, DB: db, Metrics: metrics}
	sysMetricsActor := &heartbeat.SystemMetricsActor{Registry: registry, DB: db, DeviceID: deployment.DeviceID}
	heartbeatActor := &heartbeat.Actor{Registry: registry, DB: db, DeviceID: deployment.DeviceID}

	supervisor := actor.New(metrics,
		monitoring.Actor(),
		writer.Actor(),
		mqttActor.Actor(),
		uploaderActor.Actor(),
		cleanerActor.Actor(),
		sysMetricsActor.Actor(),
		heartbeatActor.Actor(),
	)

	metricsServer := telemetry.NewMetricsServer(metrics, registry, cfg.MetricsPort)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("metrics server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping agent...")
		cancel()
	}()

	logger.Info("bmsagent starting for device %s (org=%s site=%s)", deployment.DeviceID, deployment.OrganizationID, deployment.SiteID)

	runErr := supervisor.Run(runCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error: %v", err)
	}

	return runErr
}

// loadDeploymentConfig returns the deployment config, or a fatal
// configuration error when it is missing or invalid; every violation
// found is logged before it returns — mirroring
// main.py's load_deployment_config, which refuses to start rather than
// run with a partial identity.
func loadDeploymentConfig(ctx context.Context, db *database.SQLiteDB) (*database.DeploymentConfig, error) {
	cfg, err := db.GetDeploymentConfig(ctx)
	if err != nil {
		logger.Error("no valid deployment configuration found")
		logger.Error("run one of the following to configure this device:")
		logger.Error("  bmsagent config set --org <id> --site <id> --device <id>")
		logger.Error("  bmsagent config setup")
		return nil, fmt.Errorf("missing deployment configuration: %w", err)
	}

	if ok, errs := store.Validate(*cfg); !ok {
		logger.Error("deployment configuration is invalid:")
		for _, e := range errs {
			logger.Error("  - %s", e)
		}
		return nil, fmt.Errorf("invalid deployment configuration")
	}

	logger.Info("deployment configuration loaded: org=%s site=%s device=%s", cfg.OrganizationID, cfg.SiteID, cfg.DeviceID)
	return cfg, nil
}

// initializeDeviceStatus seeds an initial "active" monitoring status row
// the first time this device runs, matching main.py's
// initialize_device_status.
func initializeDeviceStatus(ctx context.Context, db *database.SQLiteDB, deviceID string) error {
	_, err := db.GetDeviceStatus(ctx, deviceID)
	if err == nil {
		return nil
	}
	if err != database.ErrNotFound {
		return err
	}

	logger.Info("no status record found for device %s, initializing as active", deviceID)
	return db.UpsertDeviceStatus(ctx, &database.DeviceStatus{
		DeviceID:         deviceID,
		MonitoringStatus: bacnet.MonitoringActive,
	})
}

const shutdownTimeout = 10 * time.Second
