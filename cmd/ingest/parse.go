package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/adapter/surfforecast"
	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/spf13/cobra"
)

var parseOpts struct {
	source string
	spot   string
	now    string
	tz     string
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a saved forecast table fragment and print the records",
	Long: `Parse a surf-forecast.com table fragment (as found in the content field of
the forecast data endpoint) from a file, or stdin when the file is "-" or
omitted, and print the resulting records and skipped cells as JSON.

Examples:
  ingest parse --source hourly_48h --spot Mundaka fragment.html
  ingest parse --source general_7d --now 2024-04-29T06:00:00Z < fragment.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return parseFragment(in, cmd.OutOrStdout())
	},
}

func init() {
	f := parseCmd.Flags()
	f.StringVar(&parseOpts.source, "source", string(domain.SourceHourly), "forecast window: hourly_48h or general_7d")
	f.StringVar(&parseOpts.spot, "spot", "fixture", "spot slug stamped on the records")
	f.StringVar(&parseOpts.now, "now", "", "reference time for date reconstruction (RFC 3339, default now)")
	f.StringVar(&parseOpts.tz, "tz", "Europe/Madrid", "civil timezone of the date labels")
}

func parseFragment(in io.Reader, out io.Writer) error {
	source := domain.ForecastSource(parseOpts.source)
	if source != domain.SourceHourly && source != domain.SourceGeneral {
		return fmt.Errorf("unknown source %q", parseOpts.source)
	}
	loc, err := time.LoadLocation(parseOpts.tz)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	now := time.Now()
	if parseOpts.now != "" {
		if now, err = time.Parse(time.RFC3339, parseOpts.now); err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
	}

	fragment, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	res, err := surfforecast.Parse(parseOpts.spot, source, string(fragment), domain.NewCalendar(now, loc))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
