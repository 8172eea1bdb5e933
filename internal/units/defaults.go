package units

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults holds the configured default target units per category and
// the categories conversion applies to by default. An empty
// SelectedCategories means every category is selected.
type Defaults struct {
	TargetUnits        map[string]string `koanf:"default_units"`
	SelectedCategories []string          `koanf:"default_selected_categories"`
}

// LoadDefaults reads the default-units YAML config:
//
//	default_units:
//	  energy: GJ
//	  mass: t
//	default_selected_categories:
//	  - energy
func LoadDefaults(path string) (Defaults, error) {
	var d Defaults

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return d, fmt.Errorf("load default units %s: %w", path, err)
	}
	if err := k.Unmarshal("", &d); err != nil {
		return d, fmt.Errorf("parse default units %s: %w", path, err)
	}
	if d.TargetUnits == nil {
		d.TargetUnits = make(map[string]string)
	}
	return d, nil
}
