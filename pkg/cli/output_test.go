package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type testTable struct{}

func (testTable) Header() []string { return []string{"ID", "DECISION"} }
func (testTable) Rows() [][]string {
	return [][]string{{"log-1", "allow"}, {"log-22", "deny, flagged"}}
}

func TestTextFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestTextFormatterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf)
	}
	col := strings.Index(lines[0], "DECISION")
	if strings.Index(lines[1], "allow") != col || strings.Index(lines[2], "deny") != col {
		t.Errorf("columns are not aligned:\n%s", buf)
	}
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	data := map[string]string{"test": "value"}
	if err := (&JSONFormatter{Indent: true}).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("FormatTo() produced invalid JSON: %v", err)
	}
	if result["test"] != "value" {
		t.Errorf("FormatTo() = %v, want %v", result, data)
	}
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&CSVFormatter{}).FormatTo(buf, testTable{}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "ID,DECISION\nlog-1,allow\nlog-22,\"deny, flagged\"\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := (&CSVFormatter{}).FormatTo(buf, "plain"); err == nil {
		t.Error("FormatTo() should reject non-tabular data")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if err != nil {
				t.Fatalf("NewFormatter() error = %v", err)
			}
			if got := fmt.Sprintf("%T", f); got != tt.want {
				t.Errorf("NewFormatter() = %s, want %s", got, tt.want)
			}
		})
	}
	if _, err := NewFormatter("yaml"); err == nil {
		t.Error("NewFormatter(yaml) should fail")
	}
}
