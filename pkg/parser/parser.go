// Package parser turns submitted files into raw rows. A row is an ordered
// map of source column names to uninterpreted string values; normalization
// and validation happen downstream.
package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind reports a document whose fact family could not be resolved
// from its filename, header, or content. Callers match it with errors.Is.
var ErrUnknownKind = errors.New("unknown document kind")

// Kind is the fact family a document carries
type Kind string

const (
	KindInspection  Kind = "inspection"
	KindNCR         Kind = "ncr"
	KindMaintenance Kind = "maintenance"
)

// Row is one raw record plus its position in the source file. Number is
// 1-based and counts the header, matching what an operator sees in a
// spreadsheet.
type Row struct {
	Number int
	Fields map[string]string
}

// DetectKind resolves the fact family from the filename, falling back to
// header sniffing for files named unhelpfully.
func DetectKind(filename string, header []string) (Kind, error) {
	name := strings.ToLower(filename)

	switch {
	case strings.Contains(name, "inspection"), strings.HasPrefix(name, "ins"):
		return KindInspection, nil
	case strings.Contains(name, "ncr"):
		return KindNCR, nil
	case strings.Contains(name, "maintenance"), strings.HasPrefix(name, "mnt"):
		return KindMaintenance, nil
	}

	for _, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "inspection_id":
			return KindInspection, nil
		case "ncr_id":
			return KindNCR, nil
		case "event_id", "machine_id":
			return KindMaintenance, nil
		}
	}

	return "", fmt.Errorf("%w for %q", ErrUnknownKind, filename)
}
