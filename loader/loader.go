// Package loader reads the monthly trip export CSVs and concatenates them
// into a single raw table.
package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var loadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name: "pedal_load_latency_seconds",
	Help: "Monthly export load latency distribution",
})

func init() {
	prometheus.MustRegister(loadLatency)
}

// SchemaMismatchError reports a monthly file whose header disagrees with
// the first file's header.
type SchemaMismatchError struct {
	File string
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: got columns [%s], want [%s]",
		e.File, strings.Join(e.Got, ","), strings.Join(e.Want, ","))
}

// Row is one raw trip row with its source provenance, kept so that later
// stages can identify the offending file and line in error messages.
type Row struct {
	File   string
	Line   int // 1-based line in the source file; the header is line 1
	Fields []string
}

// Table is the concatenated raw dataset: one header and every data row
// from every input file, in input order.
type Table struct {
	Header []string
	Rows   []Row
}

// Loader reads and concatenates monthly export files.
type Loader struct {
	log *zap.Logger
}

// New creates a Loader.
func New(log *zap.Logger) *Loader {
	return &Loader{log: log}
}

// Discover lists the monthly export files in dir, sorted lexicographically.
// The YYYYMM- name prefix makes that chronological order.
func Discover(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*-tripdata.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list trip files in %q: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no *-tripdata.csv files found in %q", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads every file in order and concatenates the rows under the first
// file's header. Any file whose header differs aborts the load with a
// SchemaMismatchError; rows are never deduplicated across files.
func (l *Loader) Load(paths []string) (*Table, error) {
	start := time.Now()

	table := &Table{}
	for _, path := range paths {
		header, rows, err := l.readFile(path)
		if err != nil {
			return nil, err
		}
		if table.Header == nil {
			table.Header = header
		} else if !equalColumns(table.Header, header) {
			return nil, &SchemaMismatchError{File: path, Want: table.Header, Got: header}
		}
		table.Rows = append(table.Rows, rows...)
		l.log.Info("Loaded monthly export",
			zap.String("file", filepath.Base(path)),
			zap.Int("rows", len(rows)))
	}
	loadLatency.Observe(time.Since(start).Seconds())

	l.log.Info("Concatenated trip files",
		zap.Int("files", len(paths)),
		zap.Int("rows", len(table.Rows)))
	return table, nil
}

// readFile reads a single export, returning its header and data rows.
func (l *Loader) readFile(path string) ([]string, []Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	// Some exports carry a UTF-8 BOM.
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %q: %w", path, err)
	}

	var rows []Row
	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %q line %d: %w", path, line+1, err)
		}
		line++
		rows = append(rows, Row{File: path, Line: line, Fields: fields})
	}
	return header, rows, nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
