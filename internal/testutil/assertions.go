package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ListFiles returns the slash-separated paths of every regular file below
// root, sorted. A missing root yields nil.
func ListFiles(t *testing.T, root string) []string {
	t.Helper()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

// AssertLogged fails the test unless the captured log output contains msg.
func AssertLogged(t *testing.T, logs *SafeBuffer, msg string) {
	t.Helper()
	require.True(t, strings.Contains(logs.String(), msg),
		"expected log output to contain %q, got:\n%s", msg, logs.String())
}
