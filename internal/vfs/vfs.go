// Package vfs provides the in-memory filesystem used as the emission target
// for watch and binary builds, so iterative compiles never touch the working
// tree. It is a thin layer over afero's MemMapFs, plus an Overlay that makes
// exactly one virtual file visible through an otherwise real filesystem.
package vfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// FS is an in-process, memory-backed filesystem. MemMapFs is safe for
// concurrent use; FS adds no locking of its own.
type FS struct {
	afero.Fs
}

// New creates an empty in-memory filesystem.
func New() *FS {
	return &FS{Fs: afero.NewMemMapFs()}
}

// WriteFile stores data at path, creating parent directories as needed.
func (f *FS) WriteFile(path string, data []byte) error {
	if err := f.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.Fs, path, data, 0o644)
}

// ReadFile returns the content stored at path.
func (f *FS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.Fs, path)
}

// Exists reports whether a regular file is stored at path.
func (f *FS) Exists(path string) bool {
	info, err := f.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Remove deletes a single file.
func (f *FS) Remove(path string) error {
	return f.Fs.Remove(path)
}

// Files lists every regular file below root in lexical order.
func (f *FS) Files(root string) ([]string, error) {
	if _, err := f.Fs.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := afero.Walk(f.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
