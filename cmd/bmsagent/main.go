// Command bmsagent is the BACnet/IoT edge agent: it supervises the
// actor set (MQTT, BACnet monitoring/writer, uploader, cleaner, system
// metrics, heartbeat) against the local staging store. Grounded on
// original_source/apps/bms-iot-app/src/main.py for the wiring order
// and cmd/arx/main.go (teacher) for the cobra command-tree shape.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bmsagent",
	Short: "BACnet/IoT building-management edge agent",
	Long: `bmsagent is the on-premises edge agent that bridges a site's BACnet
controllers to the cloud: it polls configured points, stages readings
locally, uploads them over MQTT, and accepts remote configuration and
write commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("BMS_CONFIG_PATH"), "path to the agent's YAML config file")

	logLevel := strings.ToLower(os.Getenv("BMS_LOG_LEVEL"))
	switch logLevel {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn", "warning":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}

	rootCmd.AddCommand(runCmd, configCmd, migrateCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
