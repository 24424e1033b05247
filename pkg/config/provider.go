package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Storage StorageData    `json:"storage"`
	REST    RESTServerData `json:"rest"`
	Climate ClimateData    `json:"climate"`
}

// StorageData holds the connection settings for the observation store
type StorageData struct {
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConns       int           `json:"max_open_conns"`
	MaxIdleConns       int           `json:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold"`
	// ReadOnly is set by the API process, never by config files
	ReadOnly bool `json:"-"`
}

// RESTServerData holds configuration for the HTTP API
type RESTServerData struct {
	ListenAddr     string   `json:"listen_addr"`
	Port           int      `json:"port"`
	TLSCertPath    string   `json:"tls_cert_path,omitempty"`
	TLSKeyPath     string   `json:"tls_key_path,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// ClimateData holds the query parameters that are fixed per deployment
type ClimateData struct {
	// ReferenceDate is a YYYY-MM-DD date or ReferenceDateLatest.
	ReferenceDate string `json:"reference_date"`
	WindowDays    int    `json:"window_days"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// ReferenceDateLatest resolves the reference date to the newest
	// measurement date at query time.
	ReferenceDateLatest = "latest"

	DateLayout = "2006-01-02"
)

// Defaults returns the configuration used when no file or environment value overrides it
func Defaults() *ConfigData {
	return &ConfigData{
		Storage: StorageData{
			Driver:             DriverSQLite,
			DSN:                "Resources/hawaii.sqlite",
			MaxOpenConns:       4,
			MaxIdleConns:       0,
			SlowQueryThreshold: time.Second,
		},
		REST: RESTServerData{
			ListenAddr:     "0.0.0.0",
			Port:           5000,
			AllowedOrigins: []string{"*"},
		},
		Climate: ClimateData{
			ReferenceDate: "2017-08-23",
			WindowDays:    365,
		},
	}
}

// Validate checks the configuration for values the application cannot run with
func (c *ConfigData) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q (allowed: %s, %s)", c.Storage.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must be set")
	}
	if c.Storage.MaxOpenConns < 0 || c.Storage.MaxIdleConns < 0 {
		return fmt.Errorf("storage connection limits must not be negative")
	}

	if c.REST.Port <= 0 || c.REST.Port > 65535 {
		return fmt.Errorf("invalid rest.port %d", c.REST.Port)
	}
	if (c.REST.TLSCertPath == "") != (c.REST.TLSKeyPath == "") {
		return fmt.Errorf("rest.tls_cert_path and rest.tls_key_path must be set together")
	}

	if c.Climate.ReferenceDate != ReferenceDateLatest {
		if _, err := time.Parse(DateLayout, c.Climate.ReferenceDate); err != nil {
			return fmt.Errorf("invalid climate.reference_date %q (expected YYYY-MM-DD or %q)", c.Climate.ReferenceDate, ReferenceDateLatest)
		}
	}
	if c.Climate.WindowDays <= 0 {
		return fmt.Errorf("climate.window_days must be positive")
	}

	return nil
}
