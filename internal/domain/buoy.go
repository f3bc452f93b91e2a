package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Portus parameter names mapped onto BuoySample fields.
const (
	ParamPeakPeriod    = "Periodo de Pico"
	ParamHeight        = "Altura Signif. del Oleaje"
	ParamAvgDirection  = "Direcc. Media de Proced."
	ParamPeakDirection = "Direcc. de pico de proced."
)

const portusTimeLayout = "2006-01-02 15:04:05"

// BuoyTarget identifies a Portus station and the request body used to query it.
type BuoyTarget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// PortusReading is one timestamped reading returned by the Portus RTData API.
type PortusReading struct {
	Fecha string        `json:"fecha"`
	Datos []PortusDatum `json:"datos"`
}

// PortusDatum is a single parameter value within a reading.
type PortusDatum struct {
	ID              int         `json:"id"`
	NombreParametro string      `json:"nombreParametro"`
	Valor           PortusValue `json:"valor"`
	Unidad          string      `json:"unidad,omitempty"`
}

// PortusValue holds the raw "valor" field. The API serves it as a string but
// numeric literals are accepted too.
type PortusValue string

func (v *PortusValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = PortusValue(s)
		return nil
	}
	*v = PortusValue(data)
	return nil
}

// BuoySample is the canonical buoy observation.
type BuoySample struct {
	BuoyID          string   `json:"buoyId"`
	TimestampMillis int64    `json:"date"`
	Period          float64  `json:"period"`
	Height          float64  `json:"height"`
	AvgDirection    float64  `json:"avgDirection"`
	PeakDirection   *float64 `json:"peakDirection,omitempty"`
}

// Time returns the observation instant in UTC.
func (s BuoySample) Time() time.Time {
	return time.UnixMilli(s.TimestampMillis).UTC()
}

// Key returns the natural key of the sample.
func (s BuoySample) Key() string {
	return s.BuoyID + "|" + strconv.FormatInt(s.TimestampMillis, 10)
}

// NormalizeValue converts a raw Portus value according to its parameter code.
// Unparseable values normalize to 0.
func NormalizeValue(code int, raw string) float64 {
	switch code {
	case 34, 13, 32:
		return parseNumber(raw) / 100
	case 20, 21:
		return parseNumber(raw)
	default:
		return 0
	}
}

func parseNumber(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}

// ParsePortusTime parses a Portus "fecha" value as UTC.
func ParsePortusTime(fecha string) (time.Time, error) {
	t, err := time.Parse(portusTimeLayout, strings.TrimSpace(fecha))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse portus timestamp %q: %w", fecha, err)
	}
	return t.UTC(), nil
}

// NormalizeBuoyReading maps one Portus reading onto a BuoySample.
func NormalizeBuoyReading(buoyID string, r PortusReading) (BuoySample, error) {
	ts, err := ParsePortusTime(r.Fecha)
	if err != nil {
		return BuoySample{}, err
	}

	sample := BuoySample{BuoyID: buoyID, TimestampMillis: ts.UnixMilli()}
	var peak float64
	for _, d := range r.Datos {
		v := NormalizeValue(d.ID, string(d.Valor))
		switch d.NombreParametro {
		case ParamPeakPeriod:
			sample.Period = v
		case ParamHeight:
			sample.Height = v
		case ParamAvgDirection:
			sample.AvgDirection = v
		case ParamPeakDirection:
			peak = v
		}
	}
	if peak != 0 {
		sample.PeakDirection = &peak
	}
	return sample, nil
}

// NormalizeBuoyReadings maps a station payload onto canonical samples.
// Readings with an unparseable timestamp are dropped and counted in skipped.
func NormalizeBuoyReadings(buoyID string, readings []PortusReading) (samples []BuoySample, skipped int) {
	samples = make([]BuoySample, 0, len(readings))
	for _, r := range readings {
		s, err := NormalizeBuoyReading(buoyID, r)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, skipped
}
