package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with content, creating parent directories
// as needed.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteWorkspaceFile writes content at rel inside the workspace root.
func WriteWorkspaceFile(t testing.TB, workspace, rel, content string) {
	t.Helper()
	WriteFile(t, filepath.Join(workspace, filepath.FromSlash(rel)), content)
}
