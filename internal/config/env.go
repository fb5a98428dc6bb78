package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/xyproto/env/v2"
)

// Environment variables consulted for defaults.
const (
	EnvLogLevel     = "TSFORGE_LOG_LEVEL"
	EnvLogFormat    = "TSFORGE_LOG_FORMAT"
	EnvRuntimeCache = "TSFORGE_RUNTIME_CACHE"
	EnvS3Endpoint   = "TSFORGE_S3_ENDPOINT"
	EnvS3Region     = "TSFORGE_S3_REGION"
	EnvS3AccessKey  = "TSFORGE_S3_ACCESS_KEY"
	EnvS3SecretKey  = "TSFORGE_S3_SECRET_KEY"
	EnvS3UseSSL     = "TSFORGE_S3_USE_SSL"
)

// Defaults holds the environment-provided fallbacks for CLI flags.
type Defaults struct {
	LogLevel     string
	LogFormat    string
	RuntimeCache string
}

// EnvDefaults reads the TSFORGE_* variables from the process environment.
func EnvDefaults() Defaults {
	cache := ""
	if dir, err := os.UserCacheDir(); err == nil {
		cache = filepath.Join(dir, "tsforge", "runtimes")
	}
	return Defaults{
		LogLevel:     env.Str(EnvLogLevel, "info"),
		LogFormat:    env.Str(EnvLogFormat, "text"),
		RuntimeCache: env.Str(EnvRuntimeCache, cache),
	}
}

// S3Settings are the credentials used to publish binaries to a registry.
type S3Settings struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3FromEnv reads registry credentials, preferring values from the project's
// .env file over the process environment.
func S3FromEnv(dotenv map[string]string) S3Settings {
	get := func(name, fallback string) string {
		if v, ok := dotenv[name]; ok && v != "" {
			return v
		}
		return env.Str(name, fallback)
	}
	useSSL := env.Bool(EnvS3UseSSL)
	if v, ok := dotenv[EnvS3UseSSL]; ok {
		useSSL = v == "1" || v == "true"
	}
	return S3Settings{
		Endpoint:  get(EnvS3Endpoint, ""),
		Region:    get(EnvS3Region, "us-east-1"),
		AccessKey: get(EnvS3AccessKey, ""),
		SecretKey: get(EnvS3SecretKey, ""),
		UseSSL:    useSSL,
	}
}

// LoadDotEnv reads <dir>/.env. A missing file yields an empty map.
func LoadDotEnv(dir string) (map[string]string, error) {
	vars, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, builderr.Config("load .env", err)
	}
	return vars, nil
}
