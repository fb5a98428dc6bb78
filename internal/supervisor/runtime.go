package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/tsforge/internal/builderr"
)

// DefaultRuntime is used when no compiler/runtime is configured.
const DefaultRuntime = "node"

// ResolveRuntime locates the JavaScript runtime executable. name may be an
// explicit path; otherwise the project's node_modules/.bin is tried before
// $PATH.
func ResolveRuntime(name, workDir string) (string, error) {
	if name == "" {
		name = DefaultRuntime
	}

	var tried []string
	if strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if isExecutable(path) {
			return path, nil
		}
		return "", builderr.Resolution("resolve runtime", fmt.Errorf("%s is not an executable file", path))
	}

	local := filepath.Join(workDir, "node_modules", ".bin", name)
	if isExecutable(local) {
		return local, nil
	}
	tried = append(tried, local)

	path, err := exec.LookPath(name)
	if err == nil {
		return path, nil
	}
	tried = append(tried, "$PATH")
	return "", builderr.Resolution("resolve runtime",
		errors.Join(fmt.Errorf("runtime %q not found (tried %s)", name, strings.Join(tried, ", ")), err))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}
