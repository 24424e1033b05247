package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/climate-api/internal/log"
	"github.com/chrissnell/climate-api/pkg/config"

	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver used by the gorm dialector
)

// Client holds the connection to the climate observation store
type Client struct {
	config config.StorageData
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c config.StorageData, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: logger,
	}
}

// Connect opens the store and verifies that it answers.
func (c *Client) Connect() error {
	dialector, err := newDialector(c.config)
	if err != nil {
		return err
	}

	slow := c.config.SlowQueryThreshold
	if slow <= 0 {
		slow = time.Second
	}

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             slow,        // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	c.logger.Infof("connecting to %s store...", c.config.Driver)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger})
	if err != nil {
		return fmt.Errorf("unable to open %s store: %w", c.config.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unable to get underlying connection pool: %w", err)
	}
	// MaxIdleConns of zero means every request gets a fresh connection that is
	// closed as soon as its statement completes.
	sqlDB.SetMaxOpenConns(c.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.config.MaxIdleConns)
	if c.config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(c.config.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("unable to reach %s store: %w", c.config.Driver, err)
	}

	c.DB = db
	c.logger.Infof("%s store connection successful", c.config.Driver)
	return nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the store is reachable
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func newDialector(c config.StorageData) (gorm.Dialector, error) {
	switch c.Driver {
	case config.DriverPostgres:
		return postgres.Open(c.DSN), nil
	case config.DriverSQLite:
		return sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: sqliteDSN(c)}), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}
}

// sqliteDSN turns a plain path into a read-only URI when c.ReadOnly is set, so
// a missing file is an open error instead of a new empty database.
func sqliteDSN(c config.StorageData) string {
	if !c.ReadOnly {
		return c.DSN
	}
	dsn := c.DSN
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "mode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&mode=ro"
	}
	return dsn + "?mode=ro"
}
