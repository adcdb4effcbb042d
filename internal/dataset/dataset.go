// Package dataset holds the tabular input model: a column-oriented,
// dictionary-encoded string table read from CSV. Encoding assigns dense
// integer codes per column so the checker can group records cheaply.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Dictionary maps column values to dense integer codes and back.
type Dictionary struct {
	codes  map[string]int
	values []string
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{codes: make(map[string]int)}
}

// Encode returns the code for value, assigning the next free code on first
// sight.
func (d *Dictionary) Encode(value string) int {
	if code, ok := d.codes[value]; ok {
		return code
	}
	code := len(d.values)
	d.codes[value] = code
	d.values = append(d.values, value)
	return code
}

// Lookup returns the code for value without assigning one.
func (d *Dictionary) Lookup(value string) (int, bool) {
	code, ok := d.codes[value]
	return code, ok
}

// Value returns the string for a code.
func (d *Dictionary) Value(code int) string { return d.values[code] }

// Size returns the number of distinct values.
func (d *Dictionary) Size() int { return len(d.values) }

// Dataset is a dictionary-encoded table. Rows share one dictionary per
// column.
type Dataset struct {
	columns []string
	dicts   []*Dictionary
	rows    [][]int
}

// Columns returns the header in input order.
func (d *Dataset) Columns() []string { return d.columns }

// Rows returns the number of records.
func (d *Dataset) Rows() int { return len(d.rows) }

// Row returns the encoded record at index i.
func (d *Dataset) Row(i int) []int { return d.rows[i] }

// Dictionary returns the dictionary for column index col.
func (d *Dataset) Dictionary(col int) *Dictionary { return d.dicts[col] }

// ColumnIndex resolves a column name to its index.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	for i, c := range d.columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Value decodes the cell at (row, col).
func (d *Dataset) Value(row, col int) string {
	return d.dicts[col].Value(d.rows[row][col])
}

// FromRecords builds a dataset from a header row and data records.
func FromRecords(header []string, records [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("dataset: empty header")
	}
	ds := &Dataset{
		columns: append([]string(nil), header...),
		dicts:   make([]*Dictionary, len(header)),
	}
	for i := range ds.dicts {
		ds.dicts[i] = NewDictionary()
	}
	for n, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("dataset: record %d has %d fields, want %d", n+1, len(rec), len(header))
		}
		row := make([]int, len(rec))
		for i, v := range rec {
			row[i] = ds.dicts[i].Encode(v)
		}
		ds.rows = append(ds.rows, row)
	}
	return ds, nil
}

// ReadCSV reads a header-first CSV stream into a dataset.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: empty input")
	}
	return FromRecords(records[0], records[1:])
}
