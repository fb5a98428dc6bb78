package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreRules matches paths below a root against gitignore-style patterns.
// The .git directory is always ignored.
type IgnoreRules struct {
	root    string
	matcher *ignore.GitIgnore
}

// LoadIgnoreRules compiles the ignore file at path. A missing file yields
// rules that only exclude .git.
func LoadIgnoreRules(root, path string) (*IgnoreRules, error) {
	r := &IgnoreRules{root: root}
	if path == "" {
		return r, nil
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	r.matcher = matcher
	return r, nil
}

// NewIgnoreRules compiles patterns given inline.
func NewIgnoreRules(root string, lines ...string) *IgnoreRules {
	return &IgnoreRules{root: root, matcher: ignore.CompileIgnoreLines(lines...)}
}

// Match reports whether path, absolute or relative to the root, is ignored.
func (r *IgnoreRules) Match(path string, isDir bool) bool {
	rel := path
	if filepath.IsAbs(path) {
		var err error
		if rel, err = filepath.Rel(r.root, path); err != nil || strings.HasPrefix(rel, "..") {
			return false
		}
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}
	if r.matcher == nil || rel == "." {
		return false
	}
	if isDir {
		return r.matcher.MatchesPath(rel + "/")
	}
	return r.matcher.MatchesPath(rel)
}

// MatchFile stats path to decide whether it is a directory before matching.
// Paths that no longer exist are matched as files.
func (r *IgnoreRules) MatchFile(path string) bool {
	info, err := os.Stat(path)
	return r.Match(path, err == nil && info.IsDir())
}
