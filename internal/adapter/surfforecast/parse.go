package surfforecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	cellClass       = "forecast-table__cell"
	waveHeightClass = "forecast-table-wave-height__cell"
)

// ParsedCell is the decoded content of one wave-height cell. Angles are
// already converted to "coming from" bearings.
type ParsedCell struct {
	Label  string
	Day    int
	Hour   int
	Swells []domain.Swell
	Wind   domain.Wind
	Energy float64
}

// CellResult is either a parsed cell or a skipped one with its reason.
type CellResult struct {
	Index  int
	Cell   ParsedCell
	Reason string
}

// Skipped reports whether the cell was not usable.
func (r CellResult) Skipped() bool {
	return r.Reason != ""
}

func okCell(index int, cell ParsedCell) CellResult {
	return CellResult{Index: index, Cell: cell}
}

func skipCell(index int, format string, args ...any) CellResult {
	return CellResult{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// Parser is Parse as a method, for injection into the forecast worker.
type Parser struct{}

func (Parser) ParseForecast(spot string, source domain.ForecastSource, fragment string, cal *domain.Calendar) (domain.ParsedForecast, error) {
	return Parse(spot, source, fragment, cal)
}

// Parse extracts forecast records for spot from a table fragment. cal must be
// fresh for each fragment; cells resolve their dates in document order.
func Parse(spot string, source domain.ForecastSource, fragment string, cal *domain.Calendar) (domain.ParsedForecast, error) {
	cells, err := ParseCells(fragment, source)
	if err != nil {
		return domain.ParsedForecast{}, err
	}

	res := domain.ParsedForecast{
		Records: make([]domain.ForecastRecord, 0, len(cells)),
		Skipped: []domain.SkippedCell{},
	}
	for _, c := range cells {
		if c.Skipped() {
			res.Skipped = append(res.Skipped, domain.SkippedCell{Index: c.Index, Reason: c.Reason})
			continue
		}
		res.Records = append(res.Records, domain.ForecastRecord{
			Spot:        spot,
			Date:        cal.Resolve(c.Cell.Day, c.Cell.Hour),
			ValidSwells: c.Cell.Swells,
			Wind:        c.Cell.Wind,
			Energy:      c.Cell.Energy,
			Source:      source,
		})
	}
	return res, nil
}

// ParseCells decodes every wave-height cell of the fragment in document order.
func ParseCells(fragment string, source domain.ForecastSource) ([]CellResult, error) {
	doc, err := html.Parse(strings.NewReader("<html><body><table>" + fragment + "</table></body></html>"))
	if err != nil {
		return nil, fmt.Errorf("parse forecast html: %w", err)
	}

	var results []CellResult
	walk(doc, func(n *html.Node) {
		results = append(results, parseCell(len(results), n, source))
	})
	return results, nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Td && hasClasses(n, cellClass, waveHeightClass) {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func hasClasses(n *html.Node, want ...string) bool {
	classes, ok := attr(n, "class")
	if !ok {
		return false
	}
	fields := strings.Fields(classes)
	for _, w := range want {
		found := false
		for _, f := range fields {
			if f == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func parseCell(index int, n *html.Node, source domain.ForecastSource) CellResult {
	label, ok := attr(n, "data-date")
	if !ok || strings.TrimSpace(label) == "" {
		return skipCell(index, "missing data-date")
	}

	rawSwells, ok := attr(n, "data-swell-state")
	if !ok {
		return skipCell(index, "missing data-swell-state")
	}
	var swellState []*rawSwell
	if err := json.Unmarshal([]byte(rawSwells), &swellState); err != nil {
		return skipCell(index, "malformed data-swell-state: %v", err)
	}
	if swellState == nil {
		return skipCell(index, "empty data-swell-state")
	}

	rawWindAttr, ok := attr(n, "data-wind")
	if !ok {
		return skipCell(index, "missing data-wind")
	}
	var wind *rawWind
	if err := json.Unmarshal([]byte(rawWindAttr), &wind); err != nil {
		return skipCell(index, "malformed data-wind: %v", err)
	}
	if wind == nil {
		return skipCell(index, "empty data-wind")
	}

	energy, err := parseEnergy(n)
	if err != nil {
		return skipCell(index, "malformed data-swell-energies: %v", err)
	}

	day, hour, err := domain.ParseLabel(source, label)
	if err != nil {
		return skipCell(index, "%v", err)
	}

	swells := make([]domain.Swell, 0, len(swellState))
	for _, s := range swellState {
		if s == nil {
			continue
		}
		swells = append(swells, domain.Swell{
			Angle:  domain.InvertAngle(float64(s.Angle)),
			Height: float64(s.Height),
			Period: float64(s.Period),
		})
	}

	var windAngle float64
	if wind.Direction != nil && wind.Direction.Angle != nil {
		windAngle = domain.InvertAngle(float64(*wind.Direction.Angle))
	}

	return okCell(index, ParsedCell{
		Label:  label,
		Day:    day,
		Hour:   hour,
		Swells: swells,
		Wind:   domain.Wind{Speed: float64(wind.Speed), Angle: windAngle},
		Energy: energy,
	})
}

// parseEnergy returns the first energy value. A missing attribute or an
// empty list yields 0.
func parseEnergy(n *html.Node) (float64, error) {
	raw, ok := attr(n, "data-swell-energies")
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	var energies []*rawEnergy
	if err := json.Unmarshal([]byte(raw), &energies); err != nil {
		return 0, err
	}
	if len(energies) == 0 || energies[0] == nil {
		return 0, nil
	}
	return float64(energies[0].Value), nil
}

// Attribute payloads.

type rawSwell struct {
	Period number `json:"period"`
	Angle  number `json:"angle"`
	Height number `json:"height"`
}

type rawWind struct {
	Speed     number `json:"speed"`
	Direction *struct {
		Angle *number `json:"angle"`
	} `json:"direction"`
}

type rawEnergy struct {
	Value number `json:"value"`
}

// number accepts JSON numbers, numeric strings and null. Anything
// unparseable decodes as 0.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}
