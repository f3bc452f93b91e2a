package main

import (
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/catalog"
	"github.com/couchcryptid/surf-ingest-service/internal/config"
	"github.com/couchcryptid/surf-ingest-service/internal/scheduler"
	"github.com/spf13/cobra"
)

var checkFirings int

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration, catalog and schedule without fetching anything",
	Long: `Load the configuration and catalog exactly as serve would, then print the
targets and the next scheduled firings. Exits non-zero on the first problem.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return check(cmd.OutOrStdout(), cfg, time.Now(), checkFirings)
	},
}

func init() {
	checkCmd.Flags().IntVar(&checkFirings, "firings", 3, "number of upcoming firings to list")
}

func check(out io.Writer, cfg *config.Config, now time.Time, firings int) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	next, err := scheduler.Preview(cfg.Schedule, cfg.ScheduleLocation, now, firings)
	if err != nil {
		return err
	}

	source := "embedded default"
	if cfg.CatalogPath != "" {
		source = cfg.CatalogPath
	}
	fmt.Fprintf(out, "store:    %s\n", cfg.StoreBackend)
	fmt.Fprintf(out, "catalog:  %s (%d buoys, %d spots)\n", source, len(cat.Buoys), len(cat.Spots))
	for _, b := range cat.Buoys {
		fmt.Fprintf(out, "  buoy  %s  %s\n", b.ID, b.Name)
	}
	for _, s := range cat.Spots {
		fmt.Fprintf(out, "  spot  %s\n", s)
	}
	fmt.Fprintf(out, "schedule: %q in %s (enabled=%t)\n", cfg.Schedule, cfg.ScheduleLocation, cfg.SchedulerEnabled)
	for _, t := range next {
		fmt.Fprintf(out, "  next  %s\n", t.Format(time.RFC3339))
	}
	return nil
}
