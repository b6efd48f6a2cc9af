package models

import (
	"encoding/json"
	"time"
)

// DocumentSource identifies how a document entered the system
type DocumentSource string

const (
	DocumentSourceCSV    DocumentSource = "CSV"
	DocumentSourcePDF    DocumentSource = "PDF"
	DocumentSourceAPI    DocumentSource = "API"
	DocumentSourceManual DocumentSource = "MANUAL"
)

// Document is the durable record of a submitted file. Identity is the content
// checksum - identical bytes always resolve to the same row. Documents are
// append-only evidence: never mutated, never deleted.
type Document struct {
	ID            string          `json:"id" db:"id"`
	Source        DocumentSource  `json:"source" db:"source"`
	Filename      string          `json:"filename" db:"filename"`
	FilePath      string          `json:"file_path" db:"file_path"`
	Checksum      string          `json:"checksum" db:"checksum"`
	FileSizeBytes int64           `json:"file_size_bytes" db:"file_size_bytes"`
	ReceivedAt    time.Time       `json:"received_at" db:"received_at"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// RegisterDocumentRequest is the request for registering a document on first sight
type RegisterDocumentRequest struct {
	Source        DocumentSource  `json:"source" validate:"required"`
	Filename      string          `json:"filename" validate:"required"`
	FilePath      string          `json:"file_path"`
	Checksum      string          `json:"checksum" validate:"required"`
	FileSizeBytes int64           `json:"file_size_bytes"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// DocumentRef is the compact document reference embedded in every fact
// response so consumers can always show evidence.
type DocumentRef struct {
	ID         string         `json:"document_id" db:"document_id"`
	Filename   string         `json:"filename" db:"filename"`
	FilePath   string         `json:"file_path" db:"file_path"`
	Source     DocumentSource `json:"source" db:"source"`
	ReceivedAt time.Time      `json:"received_at" db:"received_at"`
}
