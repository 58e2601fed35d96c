// Package export writes the pipeline's persisted artifacts: the .fdr replay
// file and the intermediate cleaned-data checkpoint.
package export

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/replay"
)

// Fixed decimal places per exported column.
const (
	timePrecision     = 3
	positionPrecision = 6
	valuePrecision    = 2
)

// FDRHeader returns the fixed block that precedes the data rows.
func FDRHeader() []string {
	cols := make([]string, len(models.RequiredFields))
	for i, f := range models.RequiredFields {
		cols[i] = f.ExportName()
	}
	return []string{
		"A",
		"1000 Version",
		"FDR Created by Flight Data Replay Project",
		"I",
		strings.Join(cols, ","),
		"DATA",
	}
}

// AppendFrame appends the data line for f (without newline) to dst.
// Values are rounded half-to-even on their exact binary value.
func AppendFrame(dst []byte, f models.Frame) []byte {
	dst = strconv.AppendFloat(dst, f.Time, 'f', timePrecision, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, f.Lon, 'f', positionPrecision, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, f.Lat, 'f', positionPrecision, 64)
	for _, v := range [...]float64{f.Alt, f.Roll, f.Pitch, f.Yaw} {
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, v, 'f', valuePrecision, 64)
	}
	return dst
}

// FormatFrame renders one data line.
func FormatFrame(f models.Frame) string {
	return string(AppendFrame(nil, f))
}

// FDRWriter streams a replay file one frame at a time.
type FDRWriter struct {
	w    *bufio.Writer
	line []byte
	rows int
}

func NewFDRWriter(w io.Writer) *FDRWriter {
	return &FDRWriter{w: bufio.NewWriterSize(w, 64*1024), line: make([]byte, 0, 96)}
}

// WriteHeader writes the fixed six-line header.
func (fw *FDRWriter) WriteHeader() error {
	for _, line := range FDRHeader() {
		if _, err := fw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame writes one data row.
func (fw *FDRWriter) WriteFrame(f models.Frame) error {
	fw.line = append(AppendFrame(fw.line[:0], f), '\n')
	if _, err := fw.w.Write(fw.line); err != nil {
		return err
	}
	fw.rows++
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (fw *FDRWriter) Flush() error {
	return fw.w.Flush()
}

// Rows returns the number of data rows written so far.
func (fw *FDRWriter) Rows() int {
	return fw.rows
}

// WriteFDRTo writes a complete replay file for frames to w and returns the
// number of data rows.
func WriteFDRTo(w io.Writer, frames iter.Seq[models.Frame]) (int, error) {
	fw := NewFDRWriter(w)
	if err := fw.WriteHeader(); err != nil {
		return 0, &models.IOError{Op: "write", Path: "fdr stream", Err: err}
	}
	for f := range frames {
		if err := fw.WriteFrame(f); err != nil {
			return fw.Rows(), &models.IOError{Op: "write", Path: "fdr stream", Err: err}
		}
	}
	if err := fw.Flush(); err != nil {
		return fw.Rows(), &models.IOError{Op: "flush", Path: "fdr stream", Err: err}
	}
	return fw.Rows(), nil
}

// WriteFDR writes table to path, replacing any existing file. On error the
// file contents are undefined.
func WriteFDR(path string, table *models.FlightTable) (int, error) {
	if err := ensureParent(path); err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, &models.IOError{Op: "create", Path: path, Err: err}
	}

	rows, err := WriteFDRTo(file, replay.Frames(table))
	if err != nil {
		file.Close()
		var ioErr *models.IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return rows, err
	}
	if err := file.Close(); err != nil {
		return rows, &models.IOError{Op: "close", Path: path, Err: err}
	}
	return rows, nil
}
