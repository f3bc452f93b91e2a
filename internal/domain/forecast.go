package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ForecastSource identifies which upstream window produced a record.
type ForecastSource string

const (
	SourceHourly  ForecastSource = "hourly_48h"
	SourceGeneral ForecastSource = "general_7d"
)

// Swell is one swell component of a forecast.
type Swell struct {
	Angle  float64 `json:"angle"`
	Height float64 `json:"height"`
	Period float64 `json:"period"`
}

// Wind is the forecast wind.
type Wind struct {
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

// ForecastRecord is the canonical surf forecast for one spot at one instant.
type ForecastRecord struct {
	Spot        string         `json:"spot"`
	Date        time.Time      `json:"date"`
	ValidSwells []Swell        `json:"validSwells"`
	Wind        Wind           `json:"wind"`
	Energy      float64        `json:"energy"`
	Source      ForecastSource `json:"source"`
}

// Key returns the natural key of the record.
func (r ForecastRecord) Key() string {
	return fmt.Sprintf("%s|%d|%s", r.Spot, r.Date.UnixMilli(), r.Source)
}

// SkippedCell identifies a forecast cell that produced no record.
type SkippedCell struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ParsedForecast holds the records built from one forecast table and the
// cells skipped along the way.
type ParsedForecast struct {
	Records []ForecastRecord `json:"records"`
	Skipped []SkippedCell    `json:"skipped"`
}

// InvertAngle converts between "towards" and "coming from" bearings.
// Applying it twice returns the input for any angle in (0, 360).
func InvertAngle(a float64) float64 {
	if a > 180 {
		return a - 180
	}
	return a + 180
}

var hourLabel = regexp.MustCompile(`^(\d{1,2})(AM|PM)$`)

// Representative hours for the general forecast periods.
var periodHours = map[string]int{
	"morning":   10,
	"afternoon": 16,
	"night":     22,
	"mañana":    10,
	"tarde":     16,
	"noche":     22,
}

// ParseHourlyLabel parses an hourly label such as "Tue 06 2PM" into a
// day-of-month and a 24-hour clock hour.
func ParseHourlyLabel(label string) (day, hour int, err error) {
	fields := strings.Fields(label)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("hourly label %q: expected weekday, day and hour", label)
	}
	day, err = parseDay(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("hourly label %q: %w", label, err)
	}

	m := hourLabel.FindStringSubmatch(strings.ToUpper(fields[2]))
	if m == nil {
		return 0, 0, fmt.Errorf("hourly label %q: invalid hour %q", label, fields[2])
	}
	h, _ := strconv.Atoi(m[1])
	if h < 1 || h > 12 {
		return 0, 0, fmt.Errorf("hourly label %q: hour %d out of range", label, h)
	}

	switch {
	case m[2] == "AM" && h == 12:
		hour = 0
	case m[2] == "AM":
		hour = h
	case h == 12:
		hour = 12
	default:
		hour = h + 12
	}
	return day, hour, nil
}

// ParseGeneralLabel parses a general-forecast label such as "Tue 06 tarde"
// into a day-of-month and the representative hour of the period.
func ParseGeneralLabel(label string) (day, hour int, err error) {
	fields := strings.Fields(label)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("general label %q: expected weekday, day and period", label)
	}
	day, err = parseDay(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("general label %q: %w", label, err)
	}
	hour, ok := periodHours[strings.ToLower(fields[2])]
	if !ok {
		return 0, 0, fmt.Errorf("general label %q: unknown period %q", label, fields[2])
	}
	return day, hour, nil
}

// ParseLabel dispatches to the label parser for the given source.
func ParseLabel(source ForecastSource, label string) (day, hour int, err error) {
	switch source {
	case SourceHourly:
		return ParseHourlyLabel(label)
	case SourceGeneral:
		return ParseGeneralLabel(label)
	default:
		return 0, 0, fmt.Errorf("unknown forecast source %q", source)
	}
}

func parseDay(s string) (int, error) {
	day, err := strconv.Atoi(s)
	if err != nil || day < 1 || day > 31 {
		return 0, fmt.Errorf("invalid day %q", s)
	}
	return day, nil
}
