package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbms-io/bms-edge-agent/internal/config"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "One-shot readiness probe against a running agent",
	Long:  "Polls the running instance's /ready HTTP endpoint and exits non-zero if it isn't ready or isn't reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}

		url := fmt.Sprintf("http://127.0.0.1:%d/ready", cfg.MetricsPort)
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agent unreachable: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("NOT READY (%s)\n", string(body))
			os.Exit(1)
		}
		fmt.Println("READY")
	},
}
