package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// csvTable is a header-addressed view of a CSV export.
type csvTable struct {
	columns map[string]int
	rows    []csvRow
}

type csvRow struct {
	index  int
	fields []string
	table  *csvTable
}

// readCSV parses raw with a tolerant reader. Rows that cannot be parsed are
// reported as diagnostics; required names headers that must be present.
func readCSV(raw string, required ...string) (*csvTable, []Diagnostic) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, utf8BOM)))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fileDiag("file is empty")
	}
	if err != nil {
		return nil, fileDiag("cannot read CSV header: %v", err)
	}

	t := &csvTable{columns: make(map[string]int, len(header))}
	for i, name := range header {
		key := normalizeHeader(name)
		if _, dup := t.columns[key]; !dup {
			t.columns[key] = i
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := t.columns[normalizeHeader(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fileDiag("missing required column(s): %s", strings.Join(missing, ", "))
	}

	var diags []Diagnostic
	for index := 0; ; index++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			diags = append(diags, Diagnostic{Index: index, Message: "malformed CSV row: " + err.Error()})
			continue
		}
		if blank(fields) {
			index--
			continue
		}
		t.rows = append(t.rows, csvRow{index: index, fields: fields, table: t})
	}
	return t, diags
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// get returns the first non-empty value among the named columns.
func (r csvRow) get(names ...string) string {
	for _, name := range names {
		i, ok := r.table.columns[normalizeHeader(name)]
		if !ok || i >= len(r.fields) {
			continue
		}
		if v := strings.TrimSpace(r.fields[i]); v != "" {
			return v
		}
	}
	return ""
}

// raw returns a column value without trimming, for multi-line fields.
func (r csvRow) raw(name string) string {
	i, ok := r.table.columns[normalizeHeader(name)]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}
