package db

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	stations "andon-board/internal/stations/domain"
)

//go:embed catalogue/stations.yaml
var defaultCatalogue []byte

// Catalogue is the zone/station layout of the factory floor.
type Catalogue struct {
	Zones []CatalogueZone `yaml:"zones"`
}

// CatalogueZone groups stations of one factory area.
type CatalogueZone struct {
	Name     string             `yaml:"name"`
	Stations []CatalogueStation `yaml:"stations"`
}

// CatalogueStation is one station entry.
type CatalogueStation struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadCatalogue reads a catalogue file, or the built-in one when path is empty.
func LoadCatalogue(path string) (Catalogue, error) {
	data := defaultCatalogue
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Catalogue{}, fmt.Errorf("read catalogue %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates catalogue YAML.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse catalogue: %w", err)
	}
	seen := make(map[string]bool)
	for _, z := range c.Zones {
		for _, s := range z.Stations {
			code := strings.TrimSpace(s.Code)
			if code == "" || strings.TrimSpace(s.Name) == "" {
				return Catalogue{}, fmt.Errorf("catalogue zone %q: station code and name are required", z.Name)
			}
			if seen[code] {
				return Catalogue{}, fmt.Errorf("catalogue: duplicate station code %q", code)
			}
			seen[code] = true
		}
	}
	return c, nil
}

// Stations flattens the catalogue in file order.
func (c Catalogue) Stations() []stations.Station {
	var out []stations.Station
	for _, z := range c.Zones {
		for _, s := range z.Stations {
			code := strings.TrimSpace(s.Code)
			out = append(out, stations.Station{
				ID:          code,
				Code:        code,
				Name:        strings.TrimSpace(s.Name),
				Description: s.Description,
				Zone:        z.Name,
				Status:      stations.StatusNormal,
			})
		}
	}
	return out
}
