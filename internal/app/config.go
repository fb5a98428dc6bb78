package app

import (
	"io"

	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/packager"
	"github.com/vk/tsforge/internal/supervisor"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Request *config.Request

	LogFormat string
	LogLevel  string
	// RuntimeCache holds prebuilt runtime binaries for binary mode.
	RuntimeCache    string
	HealthcheckPort int

	// Stdout and Stderr receive worker output. Nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// Launcher and NativeBuilder replace the process launcher and the
	// single executable builder when set.
	Launcher      supervisor.Launcher
	NativeBuilder packager.NativeBuilder
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Request == nil {
		return nil, builderr.New(builderr.KindConfig, "new config", errMissingRequest)
	}
	if err := cfg.Request.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Request.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
