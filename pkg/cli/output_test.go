package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type endpointRows [][]string

func (r endpointRows) Headers() []string { return []string{"ENDPOINT", "CALLS", "P99"} }
func (r endpointRows) Rows() [][]string  { return r }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "text", want: FormatText},
		{in: "TABLE", want: FormatTable},
		{in: " json ", want: FormatJSON},
		{in: "csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, "3 endpoints"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "3 endpoints\n" {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), "3 endpoints\n")
	}
}

func TestTableFormatter(t *testing.T) {
	rows := endpointRows{
		{"OrderService.list", "100", "99"},
		{"UserService.get", "7", "1200"},
	}

	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatText).FormatTo(buf, rows); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ENDPOINT") {
		t.Errorf("header = %q", lines[0])
	}
	col := strings.Index(lines[0], "CALLS")
	if strings.Index(lines[1], "100") != col || strings.Index(lines[2], "7") != col {
		t.Errorf("columns are not aligned:\n%s", buf.String())
	}
}

func TestTableFormatterRejectsPlainData(t *testing.T) {
	if err := (&TableFormatter{}).FormatTo(&bytes.Buffer{}, 42); err == nil {
		t.Error("FormatTo() should fail for non-tabular data")
	}
}

func TestJSONFormatter(t *testing.T) {
	data := map[string]any{"endpoint": "OrderService.list", "p99": 99}

	buf := &bytes.Buffer{}
	if err := NewFormatter(FormatJSON).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got["endpoint"] != "OrderService.list" {
		t.Errorf("endpoint = %v", got["endpoint"])
	}
}
