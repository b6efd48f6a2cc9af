package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// minPDFTextLength guards against scans with no extractable text layer.
const minPDFTextLength = 50

// ExtractPDFText validates a PDF and pulls the text out of its content
// streams. Extraction quality is bounded by the source; forms generated by
// the plant systems carry a text layer, scanned paper does not.
func ExtractPDFText(path string) (string, int, error) {
	tempDir, err := os.MkdirTemp("", "sorrel-pdf-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	optimized := filepath.Join(tempDir, "optimized.pdf")
	if err := api.OptimizeFile(path, optimized, cfg); err != nil {
		return "", 0, fmt.Errorf("invalid pdf: %w", err)
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}

	contentDir := filepath.Join(tempDir, "content")
	if err := os.Mkdir(contentDir, 0o755); err != nil {
		return "", 0, err
	}
	if err := api.ExtractContentFile(optimized, contentDir, nil, cfg); err != nil {
		return "", 0, fmt.Errorf("failed to extract content: %w", err)
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return "", 0, err
	}

	var text strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(contentDir, entry.Name()))
		if err != nil {
			return "", 0, err
		}
		text.WriteString(contentStreamText(string(data)))
		text.WriteString("\n")
	}

	return text.String(), pageCount, nil
}

// showTextRe matches the string operands of Tj/TJ show-text operators.
var showTextRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*(?:Tj|TJ|')`)

// tjArrayRe matches TJ arrays, whose elements interleave strings and kerning.
var tjArrayRe = regexp.MustCompile(`\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)

var arrayStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// contentStreamText recovers the show-text operands from a decoded content
// stream. Positioning operators are ignored; a newline is emitted per text
// block which is enough structure for the label regexes downstream.
func contentStreamText(stream string) string {
	var out strings.Builder

	for _, block := range strings.Split(stream, "BT") {
		wrote := false
		for _, m := range tjArrayRe.FindAllStringSubmatch(block, -1) {
			for _, sm := range arrayStringRe.FindAllStringSubmatch(m[1], -1) {
				out.WriteString(unescapePDFString(sm[1]))
				wrote = true
			}
		}
		for _, m := range showTextRe.FindAllStringSubmatch(block, -1) {
			out.WriteString(unescapePDFString(m[1]))
			wrote = true
		}
		if wrote {
			out.WriteString("\n")
		}
	}

	return out.String()
}

func unescapePDFString(s string) string {
	replacer := strings.NewReplacer(
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}

// ExtractField pulls the first capture group of pattern out of text.
// Patterns follow the form layouts the plant systems print, e.g.
// `Supplier:\s*(.+)`.
func ExtractField(text, pattern string) string {
	re, err := regexp.Compile(`(?im)` + pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParsePDF extracts the single raw row a form PDF carries. The business key
// comes from the filename stem, matching how the plant systems name exports.
func ParsePDF(path string) (Kind, Row, error) {
	text, _, err := ExtractPDFText(path)
	if err != nil {
		return "", Row{}, err
	}

	if len(strings.TrimSpace(text)) < minPDFTextLength {
		return "", Row{}, fmt.Errorf("insufficient text extracted from pdf")
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	kind, err := detectPDFKind(path, text)
	if err != nil {
		return "", Row{}, err
	}

	var fields map[string]string
	switch kind {
	case KindNCR:
		fields = parseNCRForm(stem, text)
	case KindInspection:
		fields = parseInspectionForm(stem, text)
	case KindMaintenance:
		fields = parseMaintenanceForm(stem, text)
	}

	return kind, Row{Number: 1, Fields: fields}, nil
}

func detectPDFKind(path, text string) (Kind, error) {
	if kind, err := DetectKind(filepath.Base(path), nil); err == nil {
		return kind, nil
	}

	upper := strings.ToUpper(text)
	head := upper
	if len(head) > 500 {
		head = head[:500]
	}

	switch {
	case strings.Contains(upper, "NON-CONFORMANCE"), strings.Contains(head, "NCR"):
		return KindNCR, nil
	case strings.Contains(upper, "INSPECTION CERTIFICATE"):
		return KindInspection, nil
	case strings.Contains(upper, "WORK ORDER"):
		return KindMaintenance, nil
	}

	return "", fmt.Errorf("%w for pdf %q", ErrUnknownKind, filepath.Base(path))
}

func parseNCRForm(stem, text string) map[string]string {
	return map[string]string{
		"ncr_id":      stem,
		"site":        ExtractField(text, `(?:Site|Location):\s*(.+)`),
		"supplier":    ExtractField(text, `Supplier:\s*(.+)`),
		"part_number": ExtractField(text, `Part Number:\s*(.+)`),
		"severity":    ExtractField(text, `Severity:\s*(.+)`),
		"status":      ExtractField(text, `Status:\s*(.+)`),
		"description": ExtractField(text, `Description:\s*(.+)`),
		"opened_date": ExtractField(text, `(?:Opened|Date Opened):\s*(.+)`),
	}
}

func parseInspectionForm(stem, text string) map[string]string {
	return map[string]string{
		"inspection_id":     stem,
		"site":              ExtractField(text, `Site(?: Location)?:\s*(.+)`),
		"part_number":       ExtractField(text, `Part Number:\s*(.+)`),
		"part_description":  ExtractField(text, `Description:\s*(.+)`),
		"supplier":          ExtractField(text, `Supplier:\s*(.+)`),
		"inspector":         ExtractField(text, `Inspector:\s*(.+)`),
		"inspection_date":   ExtractField(text, `Inspection Date:\s*(.+)`),
		"result":            ExtractField(text, `(?:INSPECTION )?RESULT:\s*(.+)`),
		"measurement_value": ExtractField(text, `(?:Measured Value|Dimension).*?(\d+\.?\d*)`),
		"spec_min":          ExtractField(text, `Spec Min.*?(\d+\.?\d*)`),
		"spec_max":          ExtractField(text, `Spec Max.*?(\d+\.?\d*)`),
	}
}

func parseMaintenanceForm(stem, text string) map[string]string {
	return map[string]string{
		"event_id":       stem,
		"site":           ExtractField(text, `Site:\s*(.+)`),
		"machine_id":     ExtractField(text, `Machine ID:\s*(.+)`),
		"machine_name":   ExtractField(text, `Machine Name:\s*(.+)`),
		"event_type":     ExtractField(text, `Type:\s*(.+)`),
		"event_date":     ExtractField(text, `Event Date:\s*(.+)`),
		"technician":     ExtractField(text, `Technician:\s*(.+)`),
		"downtime_hours": ExtractField(text, `Downtime.*?(\d+\.?\d*)`),
		"description":    ExtractField(text, `WORK DESCRIPTION\s+(.+)`),
	}
}
