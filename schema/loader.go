package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the layout of a declarative schema file.
//
//	entities:
//	  - name: Person
//	    labels: [Person]
//	    properties:
//	      - {field: ID, property: id, id: true}
//	      - {field: Name, property: name}
//	    relationships:
//	      - {field: Knows, type: KNOWS, target: Person, many: true}
type File struct {
	Entities []NodeDefinition `yaml:"entities"`
}

// LoadFile loads and parses a YAML schema file from the given path.
func LoadFile(path string) ([]NodeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML data into node definitions. The definitions carry no Go
// types; the descriptors resolved from them generate statements only.
func Parse(data []byte) ([]NodeDefinition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	for i, def := range f.Entities {
		if def.Name == "" {
			return nil, newMetadataError("", ErrInvalidDefinition, "entity %d has no name", i)
		}
	}
	return f.Entities, nil
}

// Marshal serializes definitions to YAML.
func Marshal(defs []NodeDefinition) ([]byte, error) {
	return yaml.Marshal(File{Entities: defs})
}
