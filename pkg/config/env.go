package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration
const (
	EnvDBDriver      = "CLIMATE_DB_DRIVER"
	EnvDBDSN         = "CLIMATE_DB_DSN"
	EnvListenAddr    = "CLIMATE_LISTEN_ADDR"
	EnvHTTPPort      = "CLIMATE_HTTP_PORT"
	EnvReferenceDate = "CLIMATE_REFERENCE_DATE"
)

// ApplyEnvironment loads the given .env files (missing files are ignored) and
// then overrides config fields from the process environment. Variables that
// are already set in the environment win over .env contents.
func ApplyEnvironment(config *ConfigData, envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading env file %s: %w", f, err)
		}
	}

	if v := lookup(EnvDBDriver); v != "" {
		config.Storage.Driver = v
	}
	if v := lookup(EnvDBDSN); v != "" {
		config.Storage.DSN = v
	}
	if v := lookup(EnvListenAddr); v != "" {
		config.REST.ListenAddr = v
	}
	if v := lookup(EnvHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHTTPPort, v, err)
		}
		config.REST.Port = port
	}
	if v := lookup(EnvReferenceDate); v != "" {
		config.Climate.ReferenceDate = v
	}

	return nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
