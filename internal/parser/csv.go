package parser

import (
	"path/filepath"
	"strings"

	"github.com/flight-replay/backend/internal/models"
)

// DelimitedFormat is a SourceFormat for delimiter-separated telemetry exports.
type DelimitedFormat struct {
	name       string
	comma      rune
	extensions []string
}

// NewCSVFormat handles comma-separated sources.
func NewCSVFormat() *DelimitedFormat {
	return &DelimitedFormat{name: "csv", comma: ',', extensions: []string{".csv", ".txt"}}
}

// NewTSVFormat handles tab-separated sources.
func NewTSVFormat() *DelimitedFormat {
	return &DelimitedFormat{name: "tsv", comma: '\t', extensions: []string{".tsv", ".tab"}}
}

func (f *DelimitedFormat) Name() string { return f.name }

// CanParse matches on extension; compression suffixes are ignored.
func (f *DelimitedFormat) CanParse(filePath string) (bool, error) {
	ext := sourceExt(filePath)
	for _, e := range f.extensions {
		if ext == e {
			return true, nil
		}
	}
	return false, nil
}

func (f *DelimitedFormat) Load(filePath string) (*models.RawTable, error) {
	l := &Loader{Comma: f.comma}
	return l.Load(filePath)
}

// Loader returns a loader configured with this format's delimiter.
func (f *DelimitedFormat) Loader() *Loader {
	return &Loader{Comma: f.comma}
}

// sourceExt returns the lower-cased extension after stripping .gz/.zst.
func sourceExt(path string) string {
	p := strings.ToLower(path)
	for _, suffix := range []string{".gz", ".zst", ".zstd"} {
		if strings.HasSuffix(p, suffix) {
			p = strings.TrimSuffix(p, suffix)
			break
		}
	}
	return filepath.Ext(p)
}
