package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrissnell/climate-api/internal/database"
	"github.com/chrissnell/climate-api/internal/importer"
	"github.com/chrissnell/climate-api/internal/log"
	"github.com/chrissnell/climate-api/pkg/config"
)

func main() {
	driver := flag.String("driver", config.DriverSQLite, "Database driver (sqlite, postgres)")
	dsn := flag.String("dsn", "", "Database connection string or sqlite file path (required)")
	stationsFile := flag.String("stations", "", "Station CSV (station,name,latitude,longitude,elevation)")
	measurementsFile := flag.String("measurements", "", "Measurement CSV (station,date,prcp,tobs)")
	batchSize := flag.Int("batch", 1000, "Rows per insert batch (sqlite only)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintf(os.Stderr, "Error: -dsn flag is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if *stationsFile == "" && *measurementsFile == "" {
		fmt.Fprintf(os.Stderr, "Error: at least one of -stations or -measurements is required\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *driver, *dsn, *stationsFile, *measurementsFile, *batchSize); err != nil {
		log.Errorf("Import failed: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, driver, dsn, stationsFile, measurementsFile string, batchSize int) error {
	client := database.NewClient(config.StorageData{
		Driver:       driver,
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, log.GetSugaredLogger())
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnsureSchema(); err != nil {
		return err
	}

	var loader importer.Loader
	switch driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("unable to create connection pool: %w", err)
		}
		defer pool.Close()
		loader = importer.NewCopyLoader(pool)
	default:
		loader = importer.NewGormLoader(client.DB, batchSize)
	}

	if stationsFile != "" {
		stations, err := readFile(stationsFile, importer.ReadStations)
		if err != nil {
			return err
		}
		n, err := loader.LoadStations(ctx, stations)
		if err != nil {
			return err
		}
		log.Infof("imported %d stations from %s", n, stationsFile)
	}

	if measurementsFile != "" {
		measurements, err := readFile(measurementsFile, importer.ReadMeasurements)
		if err != nil {
			return err
		}
		n, err := loader.LoadMeasurements(ctx, measurements)
		if err != nil {
			return err
		}
		log.Infof("imported %d measurements from %s", n, measurementsFile)
	}

	return nil
}

func readFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) == 0 {
		log.Warnw("CSV file has a header but no rows", "file", path)
	}
	log.Debugw("parsed CSV file", "file", path, "records", len(records))
	return records, nil
}
