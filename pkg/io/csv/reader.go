// Package csv reads transaction tables from CSV sources.
package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	tableio "github.com/finsight-labs/riskscan/pkg/io"
	"github.com/finsight-labs/riskscan/pkg/table"
)

// Reader reads a transaction table from a CSV file.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
}

var _ tableio.Reader = (*Reader)(nil)

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates whether the CSV has a header row. Without one,
// columns are named col_0, col_1, and so on.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// NewReader creates a new CSV reader.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			file.Close()
			return nil, err
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns the remaining records as a table.
func (r *Reader) Read() (*table.Table, error) {
	var records [][]string

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	headers := r.headers
	if headers == nil && len(records) > 0 {
		headers = syntheticHeaders(len(records[0]))
	}

	return build(headers, records), nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Parse reads an entire CSV stream whose first record is the header. It is
// the entry point for in-memory sources such as HTTP uploads.
func Parse(src io.Reader) (*table.Table, error) {
	records, err := csv.NewReader(src).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &table.Table{}, nil
	}
	return build(records[0], records[1:]), nil
}

// build assembles a table from string records. Empty fields become missing
// cells, and any column whose present cells all parse as numbers is
// converted to float64 so downstream serialization keeps numbers numeric.
func build(headers []string, records [][]string) *table.Table {
	t := &table.Table{
		Columns: headers,
		Rows:    make([]table.Row, len(records)),
	}

	for i, record := range records {
		row := make(table.Row, len(headers))
		for j, col := range headers {
			if j >= len(record) || record[j] == "" {
				row[col] = nil
				continue
			}
			row[col] = record[j]
		}
		t.Rows[i] = row
	}

	inferNumericColumns(t)
	return t
}

func inferNumericColumns(t *table.Table) {
	for _, col := range t.Columns {
		parsed := make([]float64, len(t.Rows))
		numeric := true
		present := 0
		for i, row := range t.Rows {
			cell := row[col]
			if cell == nil {
				continue
			}
			s, ok := cell.(string)
			if !ok {
				numeric = false
				break
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				numeric = false
				break
			}
			parsed[i] = f
			present++
		}
		if !numeric || present == 0 {
			continue
		}
		for i, row := range t.Rows {
			if row[col] != nil {
				row[col] = parsed[i]
			}
		}
	}
}

func syntheticHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = "col_" + strconv.Itoa(i)
	}
	return headers
}
