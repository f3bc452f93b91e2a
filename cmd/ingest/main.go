// Command ingest collects buoy telemetry and surf forecasts into the
// configured store, either on a schedule (serve) or once (run).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Surf data ingestion service",
	Long: `Ingest wave buoy readings from Portus and surf forecasts from
surf-forecast.com, normalize them, and upsert them into the configured store.

Configuration is read from the environment, optionally seeded from --env-file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to seed the environment from (ignored when missing)")
	rootCmd.AddCommand(serveCmd, runCmd, checkCmd, parseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
