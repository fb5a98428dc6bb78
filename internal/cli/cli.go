package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/tsforge/internal/app"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Flags take precedence over the project configuration file, which takes
// precedence over TSFORGE_* environment defaults.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	defaults := config.EnvDefaults()
	flagSet := flag.NewFlagSet("tsforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
tsforge - build orchestrator for TypeScript services.

Usage:
  tsforge [options] [ENTRY]

Arguments:
  ENTRY
    Path to the TypeScript entry module (same as --entry).

Modes (default: one-shot bundle):
  --watch    compile into memory, run the worker and restart it on change
  --binary   package native executables for --targets
  --sdk      compile and run the SDK generator once

Options:
`)
		flagSet.PrintDefaults()
	}

	entryFlag := flagSet.String("entry", "", "Path to the entry module.")
	outputFlag := flagSet.String("output-path", "", "Output directory. Defaults to 'dist'.")
	workDirFlag := flagSet.String("work-dir", "", "Project root that relative paths are resolved against.")
	compilerFlag := flagSet.String("compiler", "", "JavaScript runtime that executes compiled output. Defaults to 'node'.")
	tsProjectFlag := flagSet.String("ts-project", "", "Path to tsconfig.json.")
	nameFlag := flagSet.String("name", "index", "Entry name, substituted for [name] in --output-filename.")
	outputFilenameFlag := flagSet.String("output-filename", "[name].js", "Output filename pattern.")
	loaderFlag := flagSet.String("loader", "", "Loader that synthesizes the entry module.")
	presetFlag := flagSet.String("preset", "", "Preset template that synthesizes the entry module.")
	watchFlag := flagSet.Bool("watch", false, "Watch mode.")
	binaryFlag := flagSet.Bool("binary", false, "Binary mode.")
	sdkFlag := flagSet.Bool("sdk", false, "SDK generation mode.")
	runFlag := flagSet.Bool("run", false, "Run the bundle once after a one-shot build.")
	parallelFlag := flagSet.Bool("parallel", false, "In watch mode, do not wait for the worker to exit.")
	cleanFlag := flagSet.Bool("clean", false, "Remove the output directory's content before the first build.")
	targetsFlag := flagSet.String("targets", "", "Comma-separated binary targets, e.g. 'linux-x64,macos-arm64'.")
	sourcemapFlag := flagSet.String("sourcemap", "none", "Source maps. Options: 'none', 'inline', 'external'.")
	ignoreFileFlag := flagSet.String("ignore-file", ".gitignore", "Gitignore-style file of paths the watcher skips.")
	debounceFlag := flagSet.Duration("debounce", 0, "Coalesce file events within this window. 0 restarts on every event.")
	configFlag := flagSet.String("config", "", "Path to tsforge.hcl, tsforge.json or tsforge.toml. Probed in the work dir when empty.")
	registryFlag := flagSet.String("registry", "", "Publish binaries to this registry, e.g. 's3://bucket/prefix'.")
	packageNameFlag := flagSet.String("package-name", "", "Name used for binaries and published objects. Defaults to --name.")
	notifyURLFlag := flagSet.String("notify-url", "", "socket.io server that receives build events.")
	reloadAddrFlag := flagSet.String("reload-addr", "", "Listen address of the live-reload websocket hub, e.g. ':35729'.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server in watch mode. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	entry := *entryFlag
	if entry == "" && flagSet.NArg() > 0 {
		entry = flagSet.Arg(0)
	}
	if flagSet.NArg() > 1 {
		return nil, false, usageError("unexpected arguments: %s", strings.Join(flagSet.Args()[1:], " "))
	}

	mode, err := selectMode(*watchFlag, *binaryFlag, *sdkFlag)
	if err != nil {
		return nil, false, err
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	targets, err := parseTargets(*targetsFlag)
	if err != nil {
		return nil, false, err
	}
	sourcemap := strings.ToLower(*sourcemapFlag)
	if sourcemap == "none" {
		sourcemap = ""
	}

	req := &config.Request{
		Mode:           mode,
		EntryPath:      entry,
		OutputPath:     *outputFlag,
		WorkDir:        *workDirFlag,
		Compiler:       *compilerFlag,
		TSProject:      *tsProjectFlag,
		LoaderID:       *loaderFlag,
		PresetID:       *presetFlag,
		EntryName:      *nameFlag,
		OutputFilename: *outputFilenameFlag,
		BinaryTargets:  targets,
		Clean:          *cleanFlag,
		Run:            *runFlag,
		Parallel:       *parallelFlag,
		Sourcemap:      sourcemap,
		IgnoreFile:     *ignoreFileFlag,
		Debounce:       *debounceFlag,
		PackageName:    *packageNameFlag,
		Registry:       *registryFlag,
		NotifyURL:      *notifyURLFlag,
		ReloadAddr:     *reloadAddrFlag,
	}

	file, err := loadConfigFile(*configFlag, *workDirFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 1, Message: err.Error()}
	}
	if file == nil && len(args) == 0 {
		slog.Debug("No arguments and no config file, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	file.ApplyTo(req)
	if req.OutputPath == "" {
		req.OutputPath = "dist"
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		Request:         req,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		RuntimeCache:    defaults.RuntimeCache,
		HealthcheckPort: *healthPortFlag,
	})
	if err != nil {
		// An unusable request is a configuration error, not flag misuse.
		return nil, false, &ExitError{Code: builderr.ExitCode(err), Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "mode", req.Mode.String(), "entry", req.EntryPath)
	return cfg, false, nil
}

func selectMode(watch, binary, sdk bool) (config.Mode, error) {
	mode := config.ModeOneShot
	n := 0
	if watch {
		mode, n = config.ModeWatch, n+1
	}
	if binary {
		mode, n = config.ModeBinary, n+1
	}
	if sdk {
		mode, n = config.ModeSDKGen, n+1
	}
	if n > 1 {
		return 0, usageError("--watch, --binary and --sdk are mutually exclusive")
	}
	return mode, nil
}

func parseTargets(raw string) ([]config.Target, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var targets []config.Target
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := config.ParseTarget(part)
		if err != nil {
			return nil, usageError("invalid --targets: %v", err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// loadConfigFile reads the explicit config file, or the first default file
// found in workDir. No file at all is not an error.
func loadConfigFile(path, workDir string) (*config.File, error) {
	if path == "" {
		dir := workDir
		if dir == "" {
			dir = "."
		}
		path = config.FindFile(dir)
		if path == "" {
			return nil, nil
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return config.LoadFile(ctx, abs)
}
