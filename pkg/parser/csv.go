package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV reads a header-first CSV into raw rows. Row numbers start at 2;
// the header is line 1. Ragged rows are tolerated so a single malformed line
// can be quarantined instead of sinking the file.
func ReadCSV(r io.Reader) (header []string, rows []Row, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	record, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	header = make([]string, len(record))
	for i, col := range record {
		header[i] = strings.TrimSpace(col)
	}

	lineNumber := 1
	for {
		lineNumber++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed csv at line %d: %w", lineNumber, err)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			}
		}

		rows = append(rows, Row{Number: lineNumber, Fields: fields})
	}

	return header, rows, nil
}
