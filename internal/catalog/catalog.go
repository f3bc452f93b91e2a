// Package catalog loads the list of buoys and surf spots to ingest.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
)

//go:embed default.json
var defaultCatalog []byte

// Both target lists must be non-empty.
var (
	ErrNoBuoys = errors.New("catalog has no buoys")
	ErrNoSpots = errors.New("catalog has no spots")
)

// Catalog is the read-only set of ingestion targets.
type Catalog struct {
	Buoys []domain.BuoyTarget `json:"buoys"`
	Spots []string            `json:"spots"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects empty target lists, blank identifiers and duplicates.
func (c *Catalog) Validate() error {
	if len(c.Buoys) == 0 {
		return ErrNoBuoys
	}
	if len(c.Spots) == 0 {
		return ErrNoSpots
	}

	seen := make(map[string]bool, len(c.Buoys))
	for i, b := range c.Buoys {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return fmt.Errorf("buoy %d: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate buoy id %q", id)
		}
		seen[id] = true
	}

	seen = make(map[string]bool, len(c.Spots))
	for i, s := range c.Spots {
		slug := strings.TrimSpace(s)
		if slug == "" {
			return fmt.Errorf("spot %d: slug is required", i)
		}
		if seen[slug] {
			return fmt.Errorf("duplicate spot %q", slug)
		}
		seen[slug] = true
	}
	return nil
}
