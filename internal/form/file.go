package form

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads field values from a YAML or JSON file and sets them on f.
// Each value set counts as a change.
func LoadFile(f *Form, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read form file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse form file %s: %w", path, err)
	}

	n := 0
	for _, name := range Fields {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		if err := f.Set(name, fmt.Sprint(v)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
