package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"p.yaml": "backend: graph\ncapacity: small\nthreads: 2\n",
		"p.json": `{"backend": "graph", "capacity": "small", "threads": 2}`,
		"p.txt":  `{"backend": "graph", "capacity": "small", "threads": 2}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		var p Profile
		if err := LoadFile(path, &p); err != nil {
			t.Fatalf("LoadFile(%s) error: %v", name, err)
		}
		if p.Backend != "graph" || p.Capacity != "small" || p.Threads != 2 {
			t.Errorf("LoadFile(%s) = %+v", name, p)
		}
	}
}

func TestLoadFile_Errors(t *testing.T) {
	var p Profile
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), &p); err == nil {
		t.Error("LoadFile(missing) should fail")
	}
	if err := ParseFile([]byte("{not json"), "x.json", &p); err == nil {
		t.Error("ParseFile(bad json) should fail")
	}
	if err := ParseFile([]byte("threads: [1"), "x.yml", &p); err == nil {
		t.Error("ParseFile(bad yaml) should fail")
	}
}
