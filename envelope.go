package apigate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// FlashLevel classifies a flash message.
type FlashLevel string

const (
	FlashDebug   FlashLevel = "DEBUG"
	FlashInfo    FlashLevel = "INFO"
	FlashWarning FlashLevel = "WARNING"
	FlashError   FlashLevel = "ERROR"
)

// Flash is a leveled, human-readable note attached to one response. Flash
// messages accumulate in request order and surface in the envelope only when
// at least one was added.
type Flash struct {
	Level   FlashLevel `json:"level"`
	Message string     `json:"message"`
}

// Envelope is the canonical wrapper for every response body, success or
// error. The field names and presence rules are the wire format existing
// clients depend on.
type Envelope struct {
	ID        string    `json:"_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Flash     []Flash   `json:"flash,omitempty"`
}

type resultKind int

const (
	resultStructured resultKind = iota
	resultTabular
	resultRaw
)

// Result is what a handler returns: structured data, a table, or raw text.
// The kind decides serialization explicitly instead of inspecting the
// payload's runtime type.
//
// Structured results and every error are wrapped in the Envelope. Tabular and
// raw results rendered to a non-JSON representation bypass the envelope and
// answer with the rendered body directly.
type Result struct {
	kind    resultKind
	value   any
	text    string
	columns []string
	rows    [][]string
}

// JSON returns a structured-data result. The value is placed in the
// envelope's data field.
func JSON(v any) Result {
	return Result{kind: resultStructured, value: v}
}

// Table returns a tabular result. How it is serialized depends on the
// negotiated content type: CSV, an HTML table, an aligned plain-text table,
// or a list of records inside the JSON envelope.
func Table(columns []string, rows [][]string) Result {
	return Result{kind: resultTabular, columns: columns, rows: rows}
}

// Text returns a raw text result. For non-JSON representations the text is
// the whole body; for JSON it becomes the envelope's data field.
func Text(s string) Result {
	return Result{kind: resultRaw, text: s}
}

// envelopeData converts the result into the envelope's data value.
func (res Result) envelopeData() any {
	switch res.kind {
	case resultTabular:
		return res.records()
	case resultRaw:
		return res.text
	default:
		return res.value
	}
}

// records flattens a table into one map per row, keyed by column name.
func (res Result) records() []map[string]string {
	records := make([]map[string]string, 0, len(res.rows))
	for _, row := range res.rows {
		record := make(map[string]string, len(res.columns))
		for i, col := range res.columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// render serializes a tabular or raw result for the given non-JSON content
// type.
func (res Result) render(contentType string) (string, error) {
	if res.kind == resultRaw {
		return res.text, nil
	}
	switch contentType {
	case "text/csv":
		return res.renderCSV()
	case "text/html":
		return res.renderHTML(), nil
	default:
		return res.renderText()
	}
}

func (res Result) renderCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(res.columns); err != nil {
		return "", fmt.Errorf("failed rendering CSV header: %w", err)
	}
	if err := w.WriteAll(res.rows); err != nil {
		return "", fmt.Errorf("failed rendering CSV rows: %w", err)
	}
	return buf.String(), nil
}

func (res Result) renderHTML() string {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for _, col := range res.columns {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(col))
		b.WriteString("</th>")
	}
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for _, row := range res.rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

func (res Result) renderText() (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf)
	table.Header(res.columns)
	if err := table.Bulk(res.rows); err != nil {
		return "", fmt.Errorf("failed rendering table rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("failed rendering table: %w", err)
	}
	return buf.String(), nil
}
