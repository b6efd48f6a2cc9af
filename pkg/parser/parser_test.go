package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		header   []string
		want     Kind
		wantErr  bool
	}{
		{name: "inspection filename", filename: "inspections_2025_03.csv", want: KindInspection},
		{name: "ins prefix", filename: "INS-2024-001.pdf", want: KindInspection},
		{name: "ncr filename", filename: "ncr_export.csv", want: KindNCR},
		{name: "maintenance filename", filename: "maintenance_log.csv", want: KindMaintenance},
		{name: "mnt prefix", filename: "MNT-2024-007.pdf", want: KindMaintenance},
		{name: "header fallback inspection", filename: "export.csv", header: []string{"inspection_id", "site"}, want: KindInspection},
		{name: "header fallback ncr", filename: "export.csv", header: []string{"ncr_id", "severity"}, want: KindNCR},
		{name: "header fallback maintenance", filename: "export.csv", header: []string{"event_id", "site"}, want: KindMaintenance},
		{name: "unknown", filename: "data.csv", header: []string{"foo", "bar"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectKind(tt.filename, tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV(t *testing.T) {
	input := "inspection_id,site,result\nINS-001,Plant A,PASS\nINS-002,Plant B,FAIL\n"

	header, rows, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"inspection_id", "site", "result"}, header)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "INS-001", rows[0].Fields["inspection_id"])
	assert.Equal(t, "Plant A", rows[0].Fields["site"])

	assert.Equal(t, 3, rows[1].Number)
	assert.Equal(t, "FAIL", rows[1].Fields["result"])
}

func TestReadCSVRaggedRow(t *testing.T) {
	// short row keeps only the columns it has
	input := "ncr_id,site,severity\nNCR-1,Plant A\n"

	header, rows, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, header, 3)
	require.Len(t, rows, 1)
	assert.Equal(t, "NCR-1", rows[0].Fields["ncr_id"])
	_, hasSeverity := rows[0].Fields["severity"]
	assert.False(t, hasSeverity)
}

func TestReadCSVEmptyFile(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestExtractField(t *testing.T) {
	text := "NON-CONFORMANCE REPORT\nSite: Plant A\nSupplier: Acme Metals\nSeverity: high\nStatus: open\nDescription: Cracked housing on batch 42\n"

	assert.Equal(t, "Plant A", ExtractField(text, `(?:Site|Location):\s*(.+)`))
	assert.Equal(t, "Acme Metals", ExtractField(text, `Supplier:\s*(.+)`))
	assert.Equal(t, "high", ExtractField(text, `Severity:\s*(.+)`))
	assert.Equal(t, "", ExtractField(text, `Technician:\s*(.+)`))
}

func TestContentStreamText(t *testing.T) {
	stream := "BT /F1 12 Tf (Site: Plant A) Tj ET BT [(Sup) -20 (plier: Acme)] TJ ET"

	text := contentStreamText(stream)
	assert.Contains(t, text, "Site: Plant A")
	assert.Contains(t, text, "Supplier: Acme")
}

func TestParseInspectionFormFields(t *testing.T) {
	text := strings.Join([]string{
		"INSPECTION CERTIFICATE",
		"Site: Plant B",
		"Part Number: PN-1138",
		"Supplier: Acme Metals",
		"Inspector: J. Ruiz",
		"Inspection Date: 2025-03-14",
		"RESULT: FAIL",
		"Measured Value: 12.7",
		"Spec Min: 12.0",
		"Spec Max: 12.5",
	}, "\n")

	fields := parseInspectionForm("INS-2024-001", text)
	assert.Equal(t, "INS-2024-001", fields["inspection_id"])
	assert.Equal(t, "Plant B", fields["site"])
	assert.Equal(t, "PN-1138", fields["part_number"])
	assert.Equal(t, "FAIL", fields["result"])
	assert.Equal(t, "12.7", fields["measurement_value"])
	assert.Equal(t, "12.0", fields["spec_min"])
	assert.Equal(t, "12.5", fields["spec_max"])
}

func TestDetectPDFKindFromContent(t *testing.T) {
	kind, err := detectPDFKind("scan_0042.pdf", "NON-CONFORMANCE REPORT\nSite: Plant A")
	require.NoError(t, err)
	assert.Equal(t, KindNCR, kind)

	kind, err = detectPDFKind("scan_0043.pdf", "MAINTENANCE WORK ORDER\nMachine ID: M-7")
	require.NoError(t, err)
	assert.Equal(t, KindMaintenance, kind)

	_, err = detectPDFKind("scan_0044.pdf", "completely unrelated text with enough length")
	assert.Error(t, err)
}
