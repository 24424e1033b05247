package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files.
// Environment overrides are applied on top of the file contents.
type YAMLProvider struct {
	filename string
	envFiles []string
}

// NewYAMLProvider creates a new YAML configuration provider. An empty
// filename skips the file and yields defaults plus environment overrides.
func NewYAMLProvider(filename string, envFiles ...string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
		envFiles: envFiles,
	}
}

type storageYAML struct {
	Driver             string `yaml:"driver,omitempty"`
	DSN                string `yaml:"dsn,omitempty"`
	MaxOpenConns       *int   `yaml:"max_open_conns,omitempty"`
	MaxIdleConns       *int   `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime    string `yaml:"conn_max_lifetime,omitempty"`
	SlowQueryThreshold string `yaml:"slow_query_threshold,omitempty"`
}

type restYAML struct {
	ListenAddr     string   `yaml:"listen_addr,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	TLSCertPath    string   `yaml:"tls_cert_path,omitempty"`
	TLSKeyPath     string   `yaml:"tls_key_path,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

type climateYAML struct {
	ReferenceDate string `yaml:"reference_date,omitempty"`
	WindowDays    int    `yaml:"window_days,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	config := Defaults()

	if y.filename != "" {
		cfgFile, err := os.ReadFile(y.filename)
		if err != nil {
			return nil, err
		}
		if err := mergeYAML(config, cfgFile); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnvironment(config, y.envFiles...); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func mergeYAML(config *ConfigData, data []byte) error {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Storage storageYAML `yaml:"storage,omitempty"`
		REST    restYAML    `yaml:"rest,omitempty"`
		Climate climateYAML `yaml:"climate,omitempty"`
	}

	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return fmt.Errorf("error parsing YAML config: %w", err)
	}

	s := yamlConfig.Storage
	if s.Driver != "" {
		config.Storage.Driver = s.Driver
	}
	if s.DSN != "" {
		config.Storage.DSN = s.DSN
	}
	if s.MaxOpenConns != nil {
		config.Storage.MaxOpenConns = *s.MaxOpenConns
	}
	if s.MaxIdleConns != nil {
		config.Storage.MaxIdleConns = *s.MaxIdleConns
	}
	if s.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(s.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("invalid storage.conn_max_lifetime %q: %w", s.ConnMaxLifetime, err)
		}
		config.Storage.ConnMaxLifetime = d
	}
	if s.SlowQueryThreshold != "" {
		d, err := time.ParseDuration(s.SlowQueryThreshold)
		if err != nil {
			return fmt.Errorf("invalid storage.slow_query_threshold %q: %w", s.SlowQueryThreshold, err)
		}
		config.Storage.SlowQueryThreshold = d
	}

	r := yamlConfig.REST
	if r.ListenAddr != "" {
		config.REST.ListenAddr = r.ListenAddr
	}
	if r.Port != 0 {
		config.REST.Port = r.Port
	}
	config.REST.TLSCertPath = r.TLSCertPath
	config.REST.TLSKeyPath = r.TLSKeyPath
	if len(r.AllowedOrigins) > 0 {
		config.REST.AllowedOrigins = r.AllowedOrigins
	}

	c := yamlConfig.Climate
	if c.ReferenceDate != "" {
		config.Climate.ReferenceDate = c.ReferenceDate
	}
	if c.WindowDays != 0 {
		config.Climate.WindowDays = c.WindowDays
	}

	return nil
}
