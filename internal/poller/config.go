package poller

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/models"
)

// Config is the watch-location file read by the poll command.
type Config struct {
	Schedule  string  `yaml:"schedule"`
	Locations []Watch `yaml:"locations"`
}

// Watch is one location evaluated on every poll. Exactly one of Query or the
// Latitude/Longitude pair identifies it.
type Watch struct {
	Name       string            `yaml:"name"`
	Query      string            `yaml:"query"`
	Latitude   *float64          `yaml:"lat"`
	Longitude  *float64          `yaml:"lon"`
	Thresholds models.Thresholds `yaml:"thresholds"`
}

// UnmarshalYAML starts each watch from the default thresholds so the file only
// needs to list the values it overrides.
func (w *Watch) UnmarshalYAML(node *yaml.Node) error {
	type plain Watch
	p := plain{Thresholds: models.DefaultThresholds()}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*w = Watch(p)
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	if len(cfg.Locations) == 0 {
		return nil, fmt.Errorf("locations file %s: no locations", path)
	}
	for i, w := range cfg.Locations {
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("locations file %s: location %d: %w", path, i+1, err)
		}
	}
	return &cfg, nil
}

func (w Watch) validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	hasCoords := w.Latitude != nil || w.Longitude != nil
	switch {
	case w.Query != "" && hasCoords:
		return fmt.Errorf("%s: set either query or lat/lon, not both", w.Name)
	case w.Query == "" && !hasCoords:
		return fmt.Errorf("%s: query or lat/lon is required", w.Name)
	case hasCoords && (w.Latitude == nil || w.Longitude == nil):
		return fmt.Errorf("%s: both lat and lon are required", w.Name)
	}
	return nil
}

// Request builds the evaluation request for w.
func (w Watch) Request() advisor.Request {
	req := advisor.Request{Query: w.Query, Thresholds: w.Thresholds, Source: "poller"}
	if w.Latitude != nil && w.Longitude != nil {
		req.Coordinates = &models.Coordinates{Latitude: *w.Latitude, Longitude: *w.Longitude}
	}
	return req
}
