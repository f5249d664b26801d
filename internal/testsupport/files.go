package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteDocument creates a small workflow document at dir/name and returns its path.
func WriteDocument(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := []byte("out.txt: in.txt\n\tcp in.txt out.txt\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Exists reports whether path exists, failing the test on unexpected stat errors.
func Exists(t testing.TB, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("stat %s: %v", path, err)
	return false
}
