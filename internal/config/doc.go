// Package config defines the validated build request consumed by the
// orchestrator, together with the loaders that read project configuration
// files (HCL, JSON or TOML), the project's .env file and environment defaults.
//
// The `config.Request` is the single source of truth for the entry, compiler,
// supervisor, watcher and packager packages. Resolve and Validate are called
// once, by app.NewConfig.
package config
