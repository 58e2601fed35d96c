package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/flight-replay/backend/internal/models"
)

const utf8BOM = "\uFEFF"

// Loader reads a delimited telemetry source and keeps only the required columns.
type Loader struct {
	Comma rune
}

// NewLoader returns a comma-separated loader.
func NewLoader() *Loader {
	return &Loader{Comma: ','}
}

// Load opens path (decompressing .gz and .zst sources) and loads it.
func (l *Loader) Load(path string) (*models.RawTable, error) {
	rc, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := l.LoadReader(rc)
	if err != nil {
		var schemaErr *models.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, err
		}
		return nil, &models.IOError{Op: "read", Path: path, Err: err}
	}
	return raw, nil
}

// LoadReader loads a table from r. It fails with a SchemaError naming every
// required column absent from the header. An empty source loads as a table
// with no rows. Cell contents are not validated.
func (l *Loader) LoadReader(r io.Reader) (*models.RawTable, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	if l.Comma != 0 {
		cr.Comma = l.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		// no header at all: an empty source, rejected later by the normalizer
		return &models.RawTable{Header: models.RequiredHeaders()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index, err := projectHeader(header)
	if err != nil {
		return nil, err
	}

	raw := &models.RawTable{
		Header: models.RequiredHeaders(),
		Rows:   make([][]string, 0, 1024),
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(raw.Rows)+1, err)
		}
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(index))
		for i, col := range index {
			if col < len(rec) {
				row[i] = rec[col]
			}
		}
		raw.Rows = append(raw.Rows, row)
	}
	return raw, nil
}

// projectHeader maps each required field to its source column index.
func projectHeader(header []string) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	index := make([]int, len(models.RequiredFields))
	var missing []string
	for i, f := range models.RequiredFields {
		pos, ok := positions[f.Header()]
		if !ok {
			missing = append(missing, f.Header())
			continue
		}
		index[i] = pos
	}
	if len(missing) > 0 {
		return nil, &models.SchemaError{Missing: missing}
	}
	return index, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// OpenSource opens path for reading, transparently decompressing gzip and
// zstd sources by extension.
func OpenSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &models.IOError{Op: "open", Path: path, Err: err}
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &models.IOError{Op: "open", Path: path, Err: err}
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	}
	return f, nil
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// zstd.Decoder.Close has no error return.
type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
