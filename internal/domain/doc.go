// Package domain models wave buoy telemetry and surf-spot forecasts.
//
// # Data Sources
//
// Buoy readings come from the Puertos del Estado "Portus" RTData API. Each
// station is queried with a POST whose body selects the parameters of
// interest; the response is a JSON array of hourly readings:
//
//	[{"fecha": "2024-05-01 10:00:00.0", "datos": [{"id": 34, "nombreParametro": "Periodo de Pico", "valor": "1200"}, ...]}]
//
// Forecasts come from surf-forecast.com. The upstream returns a JSON envelope
// wrapping an HTML table fragment; the wave-height cells carry the forecast
// in data-* attributes. Two windows are fetched per spot: a 48 hour hourly
// window and a 7 day window split into morning/afternoon/night periods.
//
// # Portus Conventions
//
// Timestamps:
//
//	"YYYY-MM-DD HH:MM:SS.0" in UTC. The trailing fraction is ignored.
//
// Parameter codes (the "id" field) determine the unit scaling of "valor":
//
//	34, 13, 32  hundredths, divided by 100 (peak period, significant height, ...)
//	20, 21      passed through unchanged (directions, degrees)
//	other       not used, normalized to 0
//
// Parameter names select the canonical field:
//
//	"Periodo de Pico"            → Period
//	"Altura Signif. del Oleaje"  → Height
//	"Direcc. Media de Proced."   → AvgDirection
//	"Direcc. de pico de proced." → PeakDirection (omitted when zero)
//
// # Forecast Conventions
//
// Date labels carry a day-of-month but no month or year:
//
//	hourly:  "Tue 06 2PM"      12AM → 0, 1–11AM → h, 12PM → 12, 1–11PM → h+12
//	general: "Tue 06 tarde"    morning/mañana → 10, afternoon/tarde → 16, night/noche → 22
//
// The month and year are reconstructed by [Calendar] from the order in which
// cells appear: a day-of-month lower than the previous one means the month
// rolled over. Labels are civil time in the source timezone (Europe/Madrid)
// and are stored in UTC.
//
// Angles: the upstream reports the direction waves and wind travel towards.
// Stored records use the direction they come from, see [InvertAngle].
//
// # Natural Keys
//
//	BuoySample:     (BuoyID, TimestampMillis), insert-only
//	ForecastRecord: (Spot, Date, Source), last write wins
package domain
