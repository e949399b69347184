package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/config"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the device's deployment identity",
	Long:  "Write the organization/site/device identity triple the agent runs as (§3.5 of the deployment config).",
}

var (
	orgID    string
	siteID   string
	deviceID string
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Write the deployment identity non-interactively",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := database.DeploymentConfig{OrganizationID: orgID, SiteID: siteID, DeviceID: deviceID}
		if err := applyDeploymentConfig(cfg); err != nil {
			logger.Error("config set failed: %v", err)
			os.Exit(1)
		}
		fmt.Println("deployment configuration saved")
	},
}

var configSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively configure the deployment identity",
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)
		cfg := database.DeploymentConfig{
			OrganizationID: prompt(reader, "Organization ID (org_...): "),
			SiteID:         prompt(reader, "Site ID: "),
			DeviceID:       prompt(reader, "Device ID: "),
		}
		if err := applyDeploymentConfig(cfg); err != nil {
			logger.Error("config setup failed: %v", err)
			os.Exit(1)
		}
		fmt.Println("deployment configuration saved")
	},
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func applyDeploymentConfig(cfg database.DeploymentConfig) error {
	if ok, errs := store.Validate(cfg); !ok {
		for _, e := range errs {
			logger.Error("  - %s", e)
		}
		return fmt.Errorf("invalid deployment configuration")
	}

	path := configPath
	appCfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewSQLiteDBFromPath(appCfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return db.SetDeploymentConfig(context.Background(), &cfg)
}

func init() {
	configSetCmd.Flags().StringVar(&orgID, "org", "", "organization id (must start with org_)")
	configSetCmd.Flags().StringVar(&siteID, "site", "", "site id")
	configSetCmd.Flags().StringVar(&deviceID, "device", "", "device id")
	configCmd.AddCommand(configSetCmd, configSetupCmd)
}
