package parser

import (
	"fmt"
	"strings"
)

// Registry holds the known source formats and picks one per file.
type Registry struct {
	formats  []SourceFormat
	fallback SourceFormat
}

var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	csv := NewCSVFormat()
	return &Registry{
		formats:  []SourceFormat{csv, NewTSVFormat()},
		fallback: csv,
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a format. Later registrations are tried after the built-ins.
func (r *Registry) Register(f SourceFormat) {
	r.formats = append(r.formats, f)
}

// FindFormat selects the format for a file by extension, falling back to csv.
func (r *Registry) FindFormat(filePath string) SourceFormat {
	for _, f := range r.formats {
		can, err := f.CanParse(filePath)
		if err != nil {
			continue
		}
		if can {
			return f
		}
	}
	return r.fallback
}

// GetFormatByName returns a format by its name.
func (r *Registry) GetFormatByName(name string) (SourceFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range r.formats {
		if strings.ToLower(f.Name()) == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("source format not found: %s", name)
}

// Names lists registered format names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.formats))
	for i, f := range r.formats {
		out[i] = f.Name()
	}
	return out
}
