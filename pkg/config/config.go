// Package config reads CLI defaults from the environment and an optional
// .env file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	EnvOriginMode = "AHEADLIB_ORIGIN_MODE"
	EnvOriginName = "AHEADLIB_ORIGIN_NAME"
	EnvOriginPath = "AHEADLIB_ORIGIN_PATH"
	EnvAsm        = "AHEADLIB_ASM"
	EnvVerbose    = "AHEADLIB_VERBOSE"

	DefaultOriginMode = "system"
)

// Config holds the defaults that command-line flags override.
type Config struct {
	OriginMode string
	OriginName string
	OriginPath string
	// Asm is a comma separated dialect list, e.g. "masm,gas".
	Asm     string
	Verbose bool
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadFiles()
}

// LoadFiles is Load with explicit .env files. With no files it looks for
// .env in the working directory and ignores its absence.
func LoadFiles(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, errors.Wrap(err, "failed to load env file")
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		OriginMode: DefaultOriginMode,
		OriginName: strings.TrimSpace(os.Getenv(EnvOriginName)),
		OriginPath: strings.TrimSpace(os.Getenv(EnvOriginPath)),
		Asm:        strings.TrimSpace(os.Getenv(EnvAsm)),
	}
	if mode := strings.TrimSpace(os.Getenv(EnvOriginMode)); mode != "" {
		cfg.OriginMode = mode
	}
	if v := strings.TrimSpace(os.Getenv(EnvVerbose)); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvVerbose)
		}
		cfg.Verbose = verbose
	}
	return cfg, nil
}
