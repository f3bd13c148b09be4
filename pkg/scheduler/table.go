package scheduler

import (
	"encoding/csv"
	"io"
	"strings"
)

// Table is an ordered grid of string cells with a header row. It is the
// interchange format for availability input and schedule export.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// ReadCSV reads an availability table from delimited text. The first record
// is the header.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Row width is checked by NewAvailabilityModel so the error names the row.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, malformed(-1, "", "empty input")
	}
	if err != nil {
		return Table{}, malformed(-1, "", "read header: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// Strip a UTF-8 BOM left by spreadsheet exports.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := Table{Header: header}
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, malformed(row, "", "read record: %v", err)
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}
