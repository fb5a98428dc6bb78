package vfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

// Overlay is an afero.Fs that serves read access to exactly one path from a
// virtual filesystem and forwards every other operation, unmodified, to a
// base filesystem. Existence checks, Stat, reads and listings of the parent
// directory all see the virtual file; writes never do.
type Overlay struct {
	base    afero.Fs
	virtual afero.Fs
	path    string
	dir     string
}

var (
	_ afero.Fs      = (*Overlay)(nil)
	_ afero.Lstater = (*Overlay)(nil)
	_ afero.File    = (*listingFile)(nil)
)

// NewOverlay makes path, stored in virtual, visible through base.
func NewOverlay(base, virtual afero.Fs, path string) *Overlay {
	clean := filepath.Clean(path)
	return &Overlay{base: base, virtual: virtual, path: clean, dir: filepath.Dir(clean)}
}

// Path returns the intercepted path.
func (o *Overlay) Path() string { return o.path }

func (o *Overlay) isTarget(name string) bool {
	return filepath.Clean(name) == o.path
}

func (o *Overlay) isParent(name string) bool {
	return filepath.Clean(name) == o.dir
}

// Name implements afero.Fs.
func (o *Overlay) Name() string { return "OverlayFs(" + o.base.Name() + ")" }

// Stat implements afero.Fs.
func (o *Overlay) Stat(name string) (os.FileInfo, error) {
	if o.isTarget(name) {
		return o.virtual.Stat(o.path)
	}
	info, err := o.base.Stat(name)
	if err != nil && o.isParent(name) && errors.Is(err, os.ErrNotExist) {
		return o.virtual.Stat(o.dir)
	}
	return info, err
}

// LstatIfPossible implements afero.Lstater.
func (o *Overlay) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if o.isTarget(name) {
		info, err := o.virtual.Stat(o.path)
		return info, false, err
	}
	if l, ok := o.base.(afero.Lstater); ok && !o.isParent(name) {
		return l.LstatIfPossible(name)
	}
	info, err := o.Stat(name)
	return info, false, err
}

// Open implements afero.Fs.
func (o *Overlay) Open(name string) (afero.File, error) {
	if o.isTarget(name) {
		return o.virtual.Open(o.path)
	}
	f, err := o.base.Open(name)
	if !o.isParent(name) {
		return f, err
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o.virtual.Open(o.dir)
		}
		return nil, err
	}
	info, err := o.virtual.Stat(o.path)
	if err != nil {
		return f, nil
	}
	return &listingFile{File: f, extra: info}, nil
}

// OpenFile implements afero.Fs. Only read-only opens of the target path are
// intercepted.
func (o *Overlay) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&writeFlags == 0 {
		return o.Open(name)
	}
	return o.base.OpenFile(name, flag, perm)
}

func (o *Overlay) Create(name string) (afero.File, error) { return o.base.Create(name) }

func (o *Overlay) Mkdir(name string, perm os.FileMode) error { return o.base.Mkdir(name, perm) }

func (o *Overlay) MkdirAll(path string, perm os.FileMode) error { return o.base.MkdirAll(path, perm) }

func (o *Overlay) Remove(name string) error { return o.base.Remove(name) }

func (o *Overlay) RemoveAll(path string) error { return o.base.RemoveAll(path) }

func (o *Overlay) Rename(oldname, newname string) error { return o.base.Rename(oldname, newname) }

func (o *Overlay) Chmod(name string, mode os.FileMode) error { return o.base.Chmod(name, mode) }

func (o *Overlay) Chown(name string, uid, gid int) error { return o.base.Chown(name, uid, gid) }

func (o *Overlay) Chtimes(name string, atime, mtime time.Time) error {
	return o.base.Chtimes(name, atime, mtime)
}

// listingFile is the real parent directory with the virtual file appended
// to its listing.
type listingFile struct {
	afero.File
	extra os.FileInfo
	done  bool
}

func (l *listingFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := l.File.Readdir(count)
	if l.done {
		return infos, err
	}
	for _, info := range infos {
		if info.Name() == l.extra.Name() {
			l.done = true
			return infos, err
		}
	}
	if count <= 0 || len(infos) < count {
		l.done = true
		infos = append(infos, l.extra)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	return infos, err
}

func (l *listingFile) Readdirnames(n int) ([]string, error) {
	infos, err := l.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}
