package crawl

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultCachePath is where the facilities subcommand writes its catalogue.
const DefaultCachePath = "facilities_cache.json"

// SaveFacilityCache writes the facility catalogue as indented JSON so the
// file stays hand-inspectable.
func SaveFacilityCache(path string, facilities map[string]Facility) error {
	data, err := json.MarshalIndent(facilities, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal facilities: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadFacilityCache reads a previously saved facility catalogue.
func LoadFacilityCache(path string) (map[string]Facility, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out map[string]Facility
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for id, f := range out {
		if f.ID == "" {
			f.ID = id
			out[id] = f
		}
	}
	return out, nil
}
