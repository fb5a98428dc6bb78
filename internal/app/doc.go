// Package app contains the build orchestrator. It defines the main App
// struct, its configuration, and the per-mode lifecycles (bundle, watch,
// binary, sdk), decoupled from any specific entrypoint like a CLI.
package app
