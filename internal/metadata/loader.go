package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is the on-disk layout of the schema file.
type Schema struct {
	Entities  []*Entity   `yaml:"entities"`
	Relations []*Relation `yaml:"relations"`
}

// Parse decodes a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}

// LoadFile reads the schema file at path and loads it into the registry.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return err
	}
	if err := reg.Load(s.Entities, s.Relations); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	return nil
}
