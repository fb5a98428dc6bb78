package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/tsforge/internal/builderr"
)

var sourcemapModes = map[string]bool{"": true, "none": true, "inline": true, "external": true}

// Resolve turns every path of the request into an absolute path. Relative
// paths are interpreted against WorkDir, which itself is made absolute
// against the process working directory.
func (r *Request) Resolve() error {
	if r.WorkDir == "" {
		r.WorkDir = "."
	}
	wd, err := filepath.Abs(r.WorkDir)
	if err != nil {
		return builderr.Config("resolve work dir", err)
	}
	r.WorkDir = wd

	for _, p := range []*string{&r.EntryPath, &r.OutputPath, &r.TSProject} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(r.WorkDir, *p)
		}
	}
	if r.IgnoreFile == "" {
		r.IgnoreFile = ".gitignore"
	}
	if !filepath.IsAbs(r.IgnoreFile) {
		r.IgnoreFile = filepath.Join(r.WorkDir, r.IgnoreFile)
	}
	if r.Mode == ModeSDKGen && r.LoaderID == "" && r.PresetID == "" {
		r.PresetID = "sdk"
	}
	// A compiler given as a path is resolved like any other path; a bare
	// name is looked up later by the runtime resolver chain.
	if strings.ContainsRune(r.Compiler, filepath.Separator) && !filepath.IsAbs(r.Compiler) {
		r.Compiler = filepath.Join(r.WorkDir, r.Compiler)
	}
	return nil
}

// Validate checks the request for missing or contradictory fields.
func (r *Request) Validate() error {
	var errs []error
	if r.EntryPath == "" {
		errs = append(errs, errors.New("entry is required"))
	}
	if r.OutputPath == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if r.EntryName == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.LoaderID != "" && r.PresetID != "" {
		errs = append(errs, errors.New("loader and preset are mutually exclusive"))
	}
	if fn := r.EntryFilename(); !strings.HasSuffix(fn, ".js") {
		errs = append(errs, fmt.Errorf("output filename %q must end in .js", fn))
	} else if filepath.IsAbs(fn) || strings.Contains(fn, "..") {
		errs = append(errs, fmt.Errorf("output filename %q must stay inside the output path", fn))
	}
	if !sourcemapModes[r.Sourcemap] {
		errs = append(errs, fmt.Errorf("invalid sourcemap mode %q", r.Sourcemap))
	}
	if r.Mode == ModeBinary && len(r.BinaryTargets) == 0 {
		errs = append(errs, errors.New("binary mode requires at least one target"))
	}
	if r.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}
	if r.EntryPath != "" && r.OutputPath != "" && r.OutputPath == r.WorkDir {
		errs = append(errs, errors.New("output path must not be the work dir"))
	}
	if len(errs) > 0 {
		return builderr.Config("validate request", errors.Join(errs...))
	}
	return nil
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, filepath.FromSlash(name))
}
