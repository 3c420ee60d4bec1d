package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sessionTable []struct{ id, points string }

func (s sessionTable) Header() []string { return []string{"id", "points"} }

func (s sessionTable) Rows() [][]string {
	rows := make([][]string, len(s))
	for i, r := range s {
		rows[i] = []string{r.id, r.points}
	}
	return rows
}

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := Output(map[string]any{"name": "test", "value": 123}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if result["name"] != "test" {
		t.Errorf("name = %v, want test", result["name"])
	}
	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("default indent not applied: %q", buf.String())
	}
}

func TestOutput_YAMLDefault(t *testing.T) {
	for _, f := range []OutputFormat{FormatYAML, ""} {
		var buf bytes.Buffer
		if err := Output(map[string]string{"key": "value"}, OutputOptions{Format: f, Writer: &buf}); err != nil {
			t.Fatalf("Output(%q) error: %v", f, err)
		}
		if !strings.Contains(buf.String(), "key: value") {
			t.Errorf("Output(%q) = %q, want YAML", f, buf.String())
		}
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	tbl := sessionTable{{"a1", "12"}, {"session-long", "3"}}
	if err := Output(tbl, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	want := "ID            POINTS\n" +
		"a1            12\n" +
		"session-long  3\n"
	if buf.String() != want {
		t.Errorf("table output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestOutput_TableFallback(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(map[string]int{"n": 1}, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "n: 1") {
		t.Errorf("non-table value should render as YAML, got %q", buf.String())
	}
}

func TestOutput_Raw(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{[]byte("bytes"), "bytes"},
		{"text", "text"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := Output(tt.in, OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
			t.Fatalf("Output error: %v", err)
		}
		if buf.String() != tt.want {
			t.Errorf("raw output = %q, want %q", buf.String(), tt.want)
		}
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	err := Output("x", OutputOptions{Format: "xml", Writer: &bytes.Buffer{}})
	if err == nil {
		t.Error("Output with unsupported format should fail")
	}
}

func TestOutput_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Output([]int{1, 2}, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got []int
	if err := json.Unmarshal(data, &got); err != nil || len(got) != 2 {
		t.Errorf("file content = %q, err %v", data, err)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"raw", FormatRaw, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, "saved %s", "a")
	PrintWarning(&buf, "dropped %d", 3)
	if got, want := buf.String(), "✓ saved a\n⚠ dropped 3\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
