// Package testutil provides the golden-file helper used by printer and
// output-format tests.
//
// Golden files live under a package's testdata/ directory and are
// refreshed with UPDATE_GOLDENS=true go test ./...
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// UpdateGoldens controls whether golden files are rewritten instead of
// compared.
var UpdateGoldens = os.Getenv("UPDATE_GOLDENS") == "true"

// AssertGolden compares actual against testdata/<name>.golden, creating
// or updating it in update mode.
func AssertGolden(t *testing.T, name string, actual string) {
	t.Helper()
	path := filepath.Join("testdata", name+".golden")

	if UpdateGoldens {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating golden directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			t.Fatalf("writing golden file: %v", err)
		}
		t.Logf("updated %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file %s does not exist; run with UPDATE_GOLDENS=true to create it", path)
		}
		t.Fatalf("reading golden file: %v", err)
	}
	if string(expected) != actual {
		t.Errorf("golden mismatch for %s\n--- expected\n%s\n--- actual\n%s", name, expected, actual)
	}
}
