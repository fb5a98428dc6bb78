package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Mode selects how the orchestrator drives a build.
type Mode int

const (
	// ModeOneShot compiles once to disk and exits.
	ModeOneShot Mode = iota
	// ModeWatch compiles into memory, runs the artifact and restarts on change.
	ModeWatch
	// ModeBinary compiles into memory and packages native executables.
	ModeBinary
	// ModeSDKGen compiles to disk and runs the artifact exactly once.
	ModeSDKGen
)

var modeNames = map[Mode]string{
	ModeOneShot: "bundle",
	ModeWatch:   "watch",
	ModeBinary:  "binary",
	ModeSDKGen:  "sdk",
}

// String returns the name used for run-type override blocks.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a run-type name into a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Target is a platform triplet a native executable is packaged for.
type Target struct {
	Runtime string
	OS      string
	Arch    string
}

// String renders the target in its canonical runtime-os-arch form.
func (t Target) String() string {
	return t.Runtime + "-" + t.OS + "-" + t.Arch
}

// Executable reports whether binaries for this target carry an .exe suffix.
func (t Target) Executable() bool {
	return t.OS == "win"
}

// IsHost reports whether the target matches the machine tsforge runs on.
func (t Target) IsHost() bool {
	return t.OS == hostOS() && t.Arch == hostArch()
}

// HostTarget is the target of the machine tsforge runs on.
func HostTarget() Target {
	return Target{Runtime: "node", OS: hostOS(), Arch: hostArch()}
}

var osAliases = map[string]string{
	"linux": "linux", "alpine": "linux",
	"macos": "macos", "mac": "macos", "darwin": "macos",
	"win": "win", "windows": "win",
}

var archAliases = map[string]string{
	"x64": "x64", "amd64": "x64",
	"arm64": "arm64", "aarch64": "arm64",
}

// ParseTarget parses "[runtime-]os-arch" (e.g. "linux-x64", "node18-macos-arm64").
// The camel-case form used in configuration files ("linuxX64") is accepted too.
func ParseTarget(s string) (Target, error) {
	raw := strings.TrimSpace(s)
	for _, a := range []string{"X64", "Arm64"} {
		if strings.HasSuffix(raw, a) && !strings.Contains(raw, "-") {
			raw = strings.TrimSuffix(raw, a) + "-" + strings.ToLower(a)
		}
	}
	parts := strings.Split(strings.ToLower(raw), "-")
	t := Target{Runtime: "node"}
	switch len(parts) {
	case 2:
	case 3:
		t.Runtime = parts[0]
		parts = parts[1:]
	default:
		return Target{}, fmt.Errorf("invalid target %q: expected [runtime-]os-arch", s)
	}
	osName, ok := osAliases[parts[0]]
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: unknown platform %q", s, parts[0])
	}
	arch, ok := archAliases[parts[1]]
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: unknown architecture %q", s, parts[1])
	}
	t.OS, t.Arch = osName, arch
	return t, nil
}

func hostOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "windows":
		return "win"
	default:
		return runtime.GOOS
	}
}

func hostArch() string {
	if runtime.GOARCH == "amd64" {
		return "x64"
	}
	return runtime.GOARCH
}

// Request is a fully resolved, validated build request.
type Request struct {
	Mode Mode

	EntryPath  string
	OutputPath string
	WorkDir    string
	// Compiler names the JavaScript runtime that executes compiled output and
	// provides the base image for native executables.
	Compiler  string
	TSProject string

	LoaderID string
	PresetID string

	EntryName      string
	OutputFilename string
	BinaryTargets  []Target

	Clean     bool
	Run       bool
	Parallel  bool
	Sourcemap string

	IgnoreFile string
	Debounce   time.Duration

	// RunConfig is the merged run-type configuration handed to loaders and presets.
	RunConfig map[string]any
	// Env holds variables from the project's .env file, forwarded to workers.
	Env map[string]string

	PackageName string
	Registry    string

	NotifyURL  string
	ReloadAddr string
}

// LoaderRef returns the requested loader or preset identifier and whether it
// names a preset. An empty id means the real entry is compiled directly.
func (r *Request) LoaderRef() (id string, preset bool) {
	if r.PresetID != "" {
		return r.PresetID, true
	}
	return r.LoaderID, false
}

// EntryFilename renders OutputFilename for EntryName ("[name].js" -> "index.js").
func (r *Request) EntryFilename() string {
	pattern := r.OutputFilename
	if pattern == "" {
		pattern = "[name].js"
	}
	return strings.ReplaceAll(pattern, "[name]", r.EntryName)
}

// BundlePath is the absolute path of the entry script inside OutputPath.
func (r *Request) BundlePath() string {
	return joinPath(r.OutputPath, r.EntryFilename())
}

// EmitsToMemory reports whether compiled output is kept in the virtual
// filesystem instead of being written under OutputPath.
func (r *Request) EmitsToMemory() bool {
	return r.Mode == ModeWatch || r.Mode == ModeBinary
}
