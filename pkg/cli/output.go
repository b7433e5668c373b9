package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatTable aligns rows in columns.
	FormatTable OutputFormat = "table"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatTable, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: text, table, json)", s)
	}
}

// Tabular is implemented by results that can be printed as a table.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// Formatter writes command results.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter prints data with %v, or as a table when data is Tabular.
type TextFormatter struct{}

// FormatTo writes data to w.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	if t, ok := data.(Tabular); ok {
		return (&TableFormatter{}).FormatTo(w, t)
	}
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter prints data as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// TableFormatter prints Tabular data in aligned columns.
type TableFormatter struct{}

// FormatTo writes data to w. data must implement Tabular.
func (f *TableFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("cannot print %T as a table", data)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Headers(), "\t"))
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// NewFormatter returns the formatter for format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatTable:
		return &TableFormatter{}
	default:
		return &TextFormatter{}
	}
}
