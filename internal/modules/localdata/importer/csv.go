package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// table is a CSV file read into memory with a case-insensitive header index.
type table struct {
	header []string
	rows   [][]string
}

func readTable(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}
	return &table{header: header, rows: rows}, nil
}

// column returns the index of the first header equal to one of names, ignoring case.
func (t *table) column(names ...string) (int, bool) {
	for _, n := range names {
		for i, h := range t.header {
			if strings.EqualFold(h, n) {
				return i, true
			}
		}
	}
	return -1, false
}

// columnContaining returns the first header containing one of the keywords, ignoring case.
func (t *table) columnContaining(keywords ...string) (int, bool) {
	for _, k := range keywords {
		k = strings.ToLower(k)
		for i, h := range t.header {
			if strings.Contains(strings.ToLower(h), k) {
				return i, true
			}
		}
	}
	return -1, false
}

func (t *table) require(what string, names ...string) (int, error) {
	if i, ok := t.column(names...); ok {
		return i, nil
	}
	return -1, fmt.Errorf("missing %s column (want one of %s)", what, strings.Join(names, ", "))
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	f, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}
